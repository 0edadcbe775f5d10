package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

const sessionKey = "session"

// AuthService is the account surface of the auth routes.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (models.Session, error)
	SignIn(ctx context.Context, email, password string) (models.Session, error)
	SignOut(ctx context.Context, token string) error
	SignOutEverywhere(ctx context.Context, token string) error
	CurrentSession(ctx context.Context, token string) (models.Session, error)
}

// AuthHandler serves sign up, sign in and sign out, and guards the API.
type AuthHandler struct {
	svc    AuthService
	logger *zap.Logger
}

// NewAuthHandler constructs the auth routes adapter.
func NewAuthHandler(svc AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp creates an account and returns its first session.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid credentials payload", err)
		return
	}
	session, err := h.svc.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "sign up failed", err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// SignIn opens a session.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid credentials payload", err)
		return
	}
	session, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "sign in failed", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// SignOut revokes the bearer session.
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.svc.SignOut(c.Request.Context(), bearerToken(c)); err != nil {
		respondError(c, h.logger, "sign out failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SignOutEverywhere revokes every session of the bearer's account.
func (h *AuthHandler) SignOutEverywhere(c *gin.Context) {
	if err := h.svc.SignOutEverywhere(c.Request.Context(), bearerToken(c)); err != nil {
		respondError(c, h.logger, "sign out everywhere failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Session returns the session resolved by RequireSession.
func (h *AuthHandler) Session(c *gin.Context) {
	session, ok := CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": models.ErrUnauthorized.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

// RequireSession rejects requests without a live bearer session and stores
// the session on the context.
func (h *AuthHandler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := h.svc.CurrentSession(c.Request.Context(), bearerToken(c))
		if errors.Is(err, models.ErrUnauthorized) {
			h.logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": models.ErrUnauthorized.Error()})
			return
		}
		if err != nil {
			respondError(c, h.logger, "failed resolving session", err)
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// CurrentSession returns the session stored by RequireSession.
func CurrentSession(c *gin.Context) (models.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return models.Session{}, false
	}
	session, ok := v.(models.Session)
	return session, ok
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
