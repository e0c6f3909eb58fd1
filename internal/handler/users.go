package handler

import (
	"log/slog"
	"net/http"

	"oauth2jwt/internal/service"

	"github.com/gin-gonic/gin"
)

// GET /user/me
func (h *Handler) GetCurrentUser(c *gin.Context) {
	const op = "handler.GetCurrentUser"

	log := h.opLogger(c, op)

	caller, ok := callerFromContext(c)
	if !ok {
		h.writeServiceError(c, log, service.ErrUnauthorized)

		return
	}

	user, err := h.serviceLayer.CurrentUser(c.Request.Context(), caller)
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, user)
}

// GET /user/:id
func (h *Handler) GetUserByID(c *gin.Context) {
	const op = "handler.GetUserByID"

	log := h.opLogger(c, op)

	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.serviceLayer.GetUser(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, user)
}

// GET /admin/users
func (h *Handler) GetAllUsers(c *gin.Context) {
	const op = "handler.GetAllUsers"

	log := h.opLogger(c, op)

	users, err := h.serviceLayer.ListUsers(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, users)
}

// PUT /admin/users/:id/give-admin
func (h *Handler) GiveAdmin(c *gin.Context) {
	const op = "handler.GiveAdmin"

	log := h.opLogger(c, op)

	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.serviceLayer.GiveAdmin(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	log.Info("admin role granted", slog.String("user_id", id.String()))

	c.JSON(http.StatusOK, user)
}

// PUT /admin/users/:id/remove-admin
func (h *Handler) RemoveAdmin(c *gin.Context) {
	const op = "handler.RemoveAdmin"

	log := h.opLogger(c, op)

	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.serviceLayer.RemoveAdmin(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	log.Info("admin role removed", slog.String("user_id", id.String()))

	c.JSON(http.StatusOK, user)
}

// DELETE /admin/users/:id/sessions
func (h *Handler) RevokeSessions(c *gin.Context) {
	const op = "handler.RevokeSessions"

	log := h.opLogger(c, op)

	id, ok := parseUserID(c)
	if !ok {
		return
	}

	if err := h.serviceLayer.RevokeSessions(c.Request.Context(), id); err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	log.Info("user sessions revoked", slog.String("user_id", id.String()))

	c.Status(http.StatusNoContent)
}
