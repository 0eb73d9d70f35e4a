package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/socialsignin/auth-service/internal/config"
	"github.com/socialsignin/auth-service/internal/providers"
	"github.com/socialsignin/auth-service/internal/sessions"
	"github.com/socialsignin/auth-service/internal/users"
	"github.com/socialsignin/auth-service/pkg/logger"
	"github.com/socialsignin/auth-service/pkg/metrics"
	"github.com/socialsignin/auth-service/pkg/middleware"
)

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	providers   providers.Registry
	cookies     *middleware.SessionManager
}

func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service, reg providers.Registry, cookies *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s, providers: reg, cookies: cookies}
}

// Register routes under /auth plus /getuser
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.GET("/logout", h.Logout)
	a.GET("/:provider", h.Begin)
	a.GET("/:provider/callback", h.Callback)
	rg.GET("/getuser", h.GetUser)
}

// Begin starts the provider handshake and redirects the browser to the provider.
func (h *AuthHandler) Begin(c *gin.Context) {
	p, ok := h.providers.Get(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	ctx := c.Request.Context()
	hs, err := p.Begin(ctx, h.callbackURL(c, p.Name()))
	if err != nil {
		h.fail(c, p.Name(), err)
		return
	}
	sess, err := h.sessionsSvc.Begin(ctx, middleware.CurrentSession(c), p.Name(), hs.Secret)
	if err != nil {
		h.fail(c, p.Name(), err)
		return
	}
	h.cookies.SetCookie(c, sess.ID)
	c.Redirect(http.StatusFound, hs.URL)
}

// Callback completes the handshake, resolves the user and starts a fresh
// authenticated session. Every failure redirects to the failure path.
func (h *AuthHandler) Callback(c *gin.Context) {
	p, ok := h.providers.Get(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	ctx := c.Request.Context()
	pending := middleware.CurrentSession(c)
	secret, err := h.sessionsSvc.TakeHandshake(ctx, pending, p.Name())
	if err != nil {
		h.fail(c, p.Name(), err)
		return
	}
	identity, err := p.Complete(ctx, c.Request, h.callbackURL(c, p.Name()), secret)
	if err != nil {
		h.fail(c, p.Name(), err)
		return
	}
	u, err := h.usersSvc.Resolve(ctx, identity)
	if err != nil {
		h.fail(c, p.Name(), err)
		return
	}
	sid, err := h.sessionsSvc.Serialize(ctx, u)
	if err != nil {
		h.fail(c, p.Name(), err)
		return
	}
	if pending != nil {
		if err := h.sessionsSvc.Destroy(ctx, pending.ID); err != nil {
			logger.Warnf("failed to drop pre-login session: %v", err)
		}
	}
	h.cookies.SetCookie(c, sid)
	metrics.Logins.WithLabelValues(p.Name(), "success").Inc()
	logger.Infof("%s login for user %s", p.Name(), u.ID)
	c.Redirect(http.StatusFound, h.cfg.Client.Origin)
}

// GetUser returns the request-bound user, or an empty 200 body when anonymous.
func (h *AuthHandler) GetUser(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if u == nil {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Logout destroys the session. Anonymous requests get 401 so the request
// always terminates.
func (h *AuthHandler) Logout(c *gin.Context) {
	if middleware.CurrentUser(c) == nil {
		c.String(http.StatusUnauthorized, "not logged in")
		return
	}
	if sess := middleware.CurrentSession(c); sess != nil {
		if err := h.sessionsSvc.Destroy(c.Request.Context(), sess.ID); err != nil {
			logger.Errorf("logout: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
			return
		}
	}
	h.cookies.ClearCookie(c)
	c.String(http.StatusOK, "done")
}

func (h *AuthHandler) fail(c *gin.Context, provider string, err error) {
	outcome := "error"
	switch {
	case errors.Is(err, providers.ErrDenied):
		outcome = "denied"
	case errors.Is(err, providers.ErrStateMismatch):
		outcome = "state_mismatch"
	case errors.Is(err, users.ErrDuplicateIdentity):
		outcome = "conflict"
	}
	metrics.Logins.WithLabelValues(provider, outcome).Inc()
	if outcome == "error" || outcome == "conflict" {
		logger.Errorf("%s authentication failed: %v", provider, err)
	} else {
		logger.Warnf("%s authentication failed: %v", provider, err)
	}
	c.Redirect(http.StatusFound, h.cfg.Client.FailureRedirect)
}

// callbackURL returns the absolute callback URL for provider. Without a
// configured base it is derived from the request, honouring X-Forwarded-*
// headers when the service runs behind a trusted proxy.
func (h *AuthHandler) callbackURL(c *gin.Context, provider string) string {
	path := "/auth/" + provider + "/callback"
	if base := h.cfg.Providers.CallbackBaseURL; base != "" {
		return base + path
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	host := c.Request.Host
	if h.cfg.Server.TrustProxy {
		if p := firstHeaderValue(c.GetHeader("X-Forwarded-Proto")); p != "" {
			scheme = p
		}
		if fh := firstHeaderValue(c.GetHeader("X-Forwarded-Host")); fh != "" {
			host = fh
		}
	}
	return scheme + "://" + host + path
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
