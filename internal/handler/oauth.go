package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"

	"oauth2jwt/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	stateCookie       = "oauth2_state"
	stateCookiePath   = "/login/oauth2"
	stateCookieMaxAge = 300
	stateBytes        = 16
)

// GET /oauth2/authorize/google
func (h *Handler) OAuth2Authorize(c *gin.Context) {
	const op = "handler.OAuth2Authorize"

	log := h.opLogger(c, op)

	state, err := auth.RandomToken(stateBytes)
	if err != nil {
		log.Error("failed to generate state", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, "internal", "internal error")

		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, stateCookieMaxAge, stateCookiePath, "", h.cfg.SecureCookies, true)
	c.Redirect(http.StatusFound, h.google.AuthCodeURL(state))
}

// GET /login/oauth2/code/google
func (h *Handler) OAuth2Callback(c *gin.Context) {
	const op = "handler.OAuth2Callback"

	log := h.opLogger(c, op)

	expected, _ := c.Cookie(stateCookie)
	c.SetCookie(stateCookie, "", -1, stateCookiePath, "", h.cfg.SecureCookies, true)

	if providerErr := c.Query("error"); providerErr != "" {
		log.Info("provider returned error", slog.String("error", providerErr))

		h.redirectWithError(c, providerErr)

		return
	}

	state := c.Query("state")
	if expected == "" || state == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		newErrorResponse(c, http.StatusBadRequest, "bad_request", "invalid oauth2 state")

		return
	}

	code := c.Query("code")
	if code == "" {
		newErrorResponse(c, http.StatusBadRequest, "bad_request", "missing authorization code")

		return
	}

	ident, err := h.google.Exchange(c.Request.Context(), code)
	if err != nil {
		log.Error("failed to exchange authorization code", slog.Any("error", err))

		h.redirectWithError(c, "authentication failed")

		return
	}

	resp, err := h.serviceLayer.OAuth2Login(c.Request.Context(), ident)
	if err != nil {
		_, kind, msg := classify(err)
		log.Info("oauth2 login rejected", slog.String("kind", kind), slog.Any("error", err))

		h.redirectWithError(c, msg)

		return
	}

	target, err := h.successURL(url.Values{
		"token":        {resp.AccessToken},
		"refreshToken": {resp.RefreshToken},
	})
	if err != nil {
		log.Error("invalid success redirect uri", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, "configuration_fault", "service is not configured")

		return
	}

	c.Redirect(http.StatusFound, target)
}

func (h *Handler) redirectWithError(c *gin.Context, msg string) {
	target, err := h.successURL(url.Values{"error": {msg}})
	if err != nil {
		newErrorResponse(c, http.StatusBadRequest, "bad_request", msg)

		return
	}

	c.Redirect(http.StatusFound, target)
}

func (h *Handler) successURL(params url.Values) (string, error) {
	u, err := url.Parse(h.cfg.SuccessRedirectURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
