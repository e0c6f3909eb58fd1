package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email,max=100"`
	Password string `json:"password" binding:"required,min=6,max=40"`
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	const op = "handler.Login"

	log := h.opLogger(c, op)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("invalid login request", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "bad_request", "invalid request body")

		return
	}

	resp, err := h.serviceLayer.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, resp)
}

// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	const op = "handler.Register"

	log := h.opLogger(c, op)

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("invalid register request", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "bad_request", bindingMessage(err))

		return
	}

	resp, err := h.serviceLayer.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	log.Info("user registered", slog.String("user_id", resp.User.ID.String()))

	c.JSON(http.StatusOK, resp)
}

// POST /auth/refresh?refreshToken=
func (h *Handler) Refresh(c *gin.Context) {
	const op = "handler.Refresh"

	log := h.opLogger(c, op)

	refreshToken, ok := refreshTokenParam(c)
	if !ok {
		return
	}

	resp, err := h.serviceLayer.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, resp)
}

// POST /auth/logout?refreshToken=
func (h *Handler) Logout(c *gin.Context) {
	const op = "handler.Logout"

	log := h.opLogger(c, op)

	refreshToken, ok := refreshTokenParam(c)
	if !ok {
		return
	}

	if err := h.serviceLayer.Logout(c.Request.Context(), refreshToken); err != nil {
		h.writeServiceError(c, log, err)

		return
	}

	c.Status(http.StatusOK)
}

func refreshTokenParam(c *gin.Context) (string, bool) {
	token := c.Query("refreshToken")
	if token == "" {
		newErrorResponse(c, http.StatusBadRequest, "bad_request", "refreshToken parameter is required")

		return "", false
	}
	return token, true
}

// bindingMessage names the rejected fields by their json keys without
// exposing the validator's internal struct paths.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), rule))
	}
	return "invalid request: " + strings.Join(fields, ", ")
}
