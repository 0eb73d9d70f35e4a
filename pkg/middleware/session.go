package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/socialsignin/auth-service/internal/models"
	"github.com/socialsignin/auth-service/internal/sessions"
	"github.com/socialsignin/auth-service/internal/tokens"
	"github.com/socialsignin/auth-service/pkg/logger"
)

const (
	sessionKey = "session"
	userKey    = "user"
)

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	// Rolling re-issues the cookie and pushes the expiry forward on every authenticated request.
	Rolling bool
}

// SessionManager binds server-side sessions to requests through a signed cookie.
type SessionManager struct {
	svc    *sessions.Service
	signer *tokens.Signer
	opts   CookieOptions
}

func NewSessionManager(svc *sessions.Service, signer *tokens.Signer, opts CookieOptions) *SessionManager {
	if opts.Name == "" {
		opts.Name = "sid"
	}
	return &SessionManager{svc: svc, signer: signer, opts: opts}
}

// Middleware loads the session named by the cookie and, when it is bound to
// an existing user, attaches that user to the request. Any failure leaves the
// request unauthenticated.
func (m *SessionManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.load(c)
		c.Next()
	}
}

func (m *SessionManager) load(c *gin.Context) {
	raw, err := c.Cookie(m.opts.Name)
	if err != nil || raw == "" {
		return
	}
	id, err := m.signer.Verify(raw)
	if err != nil {
		logger.Debugf("session cookie rejected: %v", err)
		return
	}
	ctx := c.Request.Context()
	sess, err := m.svc.Load(ctx, id)
	if err != nil {
		logger.Errorf("session load failed: %v", err)
		return
	}
	if sess == nil {
		return
	}
	c.Set(sessionKey, sess)

	u, err := m.svc.UserFor(ctx, sess)
	if err != nil {
		logger.Errorf("session user lookup failed: %v", err)
		return
	}
	if u == nil {
		return
	}
	c.Set(userKey, u)

	if m.opts.Rolling {
		if err := m.svc.Touch(ctx, sess); err != nil {
			logger.Warnf("session refresh failed: %v", err)
			return
		}
		m.SetCookie(c, sess.ID)
	}
}

// SetCookie writes the signed session cookie for sessionID.
func (m *SessionManager) SetCookie(c *gin.Context, sessionID string) {
	ttl := m.svc.TTL()
	value, err := m.signer.Sign(sessionID, ttl)
	if err != nil {
		logger.Errorf("sign session cookie: %v", err)
		return
	}
	c.SetSameSite(m.opts.SameSite)
	c.SetCookie(m.opts.Name, value, int(ttl/time.Second), "/", "", m.opts.Secure, true)
}

// ClearCookie expires the session cookie in the browser.
func (m *SessionManager) ClearCookie(c *gin.Context) {
	c.SetSameSite(m.opts.SameSite)
	c.SetCookie(m.opts.Name, "", -1, "/", "", m.opts.Secure, true)
}

// CurrentSession returns the session loaded for this request, if any.
func CurrentSession(c *gin.Context) *sessions.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*sessions.Session); ok {
			return s
		}
	}
	return nil
}

// CurrentUser returns the authenticated user bound to this request, if any.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
