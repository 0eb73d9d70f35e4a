package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/socialsignin/auth-service/internal/config"
	"github.com/socialsignin/auth-service/internal/providers"
	"github.com/socialsignin/auth-service/internal/sessions"
	"github.com/socialsignin/auth-service/internal/tokens"
	"github.com/socialsignin/auth-service/internal/users"
	"github.com/socialsignin/auth-service/pkg/logger"
	"github.com/socialsignin/auth-service/pkg/middleware"
)

// Deps is everything the HTTP layer needs; main builds it once at startup.
type Deps struct {
	Config    *config.Config
	Users     *users.Service
	Sessions  *sessions.Service
	Providers providers.Registry
}

// NewRouter wires middleware and routes into a gin engine.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	if !d.Config.Server.TrustProxy {
		if err := r.SetTrustedProxies(nil); err != nil {
			logger.Warnf("disable trusted proxies: %v", err)
		}
	}
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(d.Config.Client.Origin))

	cookies := middleware.NewSessionManager(d.Sessions, tokens.NewSigner(d.Config.Session.Secret), middleware.CookieOptions{
		Name:     d.Config.Session.CookieName,
		Secure:   d.Config.Session.CookieSecure,
		SameSite: d.Config.Session.SameSite,
		Rolling:  d.Config.Session.Rolling,
	})
	r.Use(cookies.Middleware())

	RegisterHealth(r, map[string]Pinger{"users": d.Users, "sessions": d.Sessions})
	NewAuthHandler(d.Config, d.Users, d.Sessions, d.Providers, cookies).Register(r.Group("/"))
	RegisterSwagger(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
