package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"oauth2jwt/internal/auth"
	"oauth2jwt/internal/metrics"
	"oauth2jwt/internal/models"
	"oauth2jwt/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// Service is the part of service.Service the HTTP layer drives.
type Service interface {
	Login(ctx context.Context, email, password string) (models.AuthResponse, error)
	Register(ctx context.Context, name, email, password string) (models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (models.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	OAuth2Login(ctx context.Context, ext models.ExternalIdentity) (models.AuthResponse, error)
	RevokeSessions(ctx context.Context, userID uuid.UUID) error

	CurrentUser(ctx context.Context, caller models.Caller) (models.UserDTO, error)
	GetUser(ctx context.Context, userID uuid.UUID) (models.UserDTO, error)
	ListUsers(ctx context.Context) ([]models.UserDTO, error)
	GiveAdmin(ctx context.Context, userID uuid.UUID) (models.UserDTO, error)
	RemoveAdmin(ctx context.Context, userID uuid.UUID) (models.UserDTO, error)
}

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// IdentityProvider runs the third-party authorization code handshake.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.ExternalIdentity, error)
}

type Config struct {
	SuccessRedirectURI string
	RateLimitRPS       float64
	RateLimitBurst     int
	SecureCookies      bool
}

type Handler struct {
	serviceLayer Service
	tokens       TokenVerifier
	google       IdentityProvider
	cfg          Config
	limiter      *ipLimiter
	log          *slog.Logger
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newErrorResponse(c *gin.Context, statusCode int, kind, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Error: kind, Message: errMessage})
}

// NewHandler builds the HTTP layer. google may be nil, in which case the
// provider sign-in routes are not mounted.
func NewHandler(srvc Service, tokens TokenVerifier, google IdentityProvider, cfg Config, lgr *slog.Logger) *Handler {
	return &Handler{
		serviceLayer: srvc,
		tokens:       tokens,
		google:       google,
		cfg:          cfg,
		limiter:      newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		log:          lgr,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Instrument(), gin.Recovery(), h.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authGroup := router.Group("/auth")
	authGroup.Use(h.RateLimit())
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.Register)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/logout", h.Logout)
	}

	user := router.Group("/user")
	user.Use(AuthMiddleware(h.tokens), RequireRole(models.RoleUser))
	{
		user.GET("/me", h.GetCurrentUser)
		user.GET("/:id", h.GetUserByID)
	}

	admin := router.Group("/admin")
	admin.Use(AuthMiddleware(h.tokens), RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", h.GetAllUsers)
		admin.PUT("/users/:id/give-admin", h.GiveAdmin)
		admin.PUT("/users/:id/remove-admin", h.RemoveAdmin)
		admin.DELETE("/users/:id/sessions", h.RevokeSessions)
	}

	if h.google != nil {
		router.GET("/oauth2/authorize/google", h.OAuth2Authorize)
		router.GET("/login/oauth2/code/google", h.OAuth2Callback)
	}

	return router
}

// writeServiceError maps service errors onto status codes and stable kinds.
func (h *Handler) writeServiceError(c *gin.Context, log *slog.Logger, err error) {
	status, kind, msg := classify(err)

	switch {
	case errors.Is(err, service.ErrConfiguration):
		log.Error("configuration fault", slog.Any("error", err))
	case status >= http.StatusInternalServerError:
		log.Error("request failed", slog.Any("error", err))
	default:
		log.Info("request rejected", slog.String("kind", kind), slog.Any("error", err))
	}

	newErrorResponse(c, status, kind, msg)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", service.ErrInvalidCredentials.Error()
	case errors.Is(err, service.ErrEmailInUse):
		return http.StatusConflict, "email_in_use", service.ErrEmailInUse.Error()
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "invalid_token", service.ErrTokenExpired.Error()
	case errors.Is(err, service.ErrTokenNotFound):
		return http.StatusUnauthorized, "invalid_token", service.ErrTokenNotFound.Error()
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", service.ErrInvalidToken.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found", "user not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden", service.ErrForbidden.Error()
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", service.ErrUnauthorized.Error()
	case errors.Is(err, service.ErrProviderMismatch):
		return http.StatusConflict, "provider_mismatch", service.ErrProviderMismatch.Error()
	case errors.Is(err, service.ErrMissingEmail):
		return http.StatusBadRequest, "bad_request", service.ErrMissingEmail.Error()
	case errors.Is(err, service.ErrConfiguration):
		return http.StatusInternalServerError, "configuration_fault", "service is not configured"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

func (h *Handler) opLogger(c *gin.Context, op string) *slog.Logger {
	return h.log.With(slog.String("op", op), slog.String("request_id", c.GetString(requestIDKey)))
}

func parseUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		newErrorResponse(c, http.StatusBadRequest, "bad_request", "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
