package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/socialsignin/auth-service/handlers"
	"github.com/socialsignin/auth-service/internal/config"
	"github.com/socialsignin/auth-service/internal/database"
	"github.com/socialsignin/auth-service/internal/providers"
	"github.com/socialsignin/auth-service/internal/sessions"
	"github.com/socialsignin/auth-service/internal/users"
	"github.com/socialsignin/auth-service/pkg/logger"
	"github.com/socialsignin/auth-service/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Infof("config loaded: env=%s log=%s redis=%v rolling=%v", cfg.Server.Environment, logger.LevelString(), cfg.Redis.Host != "", cfg.Session.Rolling)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MongoDB holds users (and sessions when Redis is not configured)
	client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
	if err != nil {
		logger.Fatalf("could not connect to MongoDB: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	logger.Infof("connected to MongoDB database %q", cfg.MongoDB.Database)

	db := client.Database(cfg.MongoDB.Database)
	usersCol := db.Collection("users")
	if err := database.EnsureUserIndexes(ctx, usersCol); err != nil {
		logger.Fatalf("%v", err)
	}
	userSvc := users.NewService(users.NewMongoUserRepository(usersCol))

	var srepo sessions.Repository
	if cfg.Redis.Host != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis %s:%s unavailable, falling back to MongoDB sessions: %v", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = rc.Close()
		} else {
			defer func() { _ = rc.Close() }()
			srepo = sessions.NewRedisRepository(rc, "session:")
			logger.Infof("using Redis for session storage")
		}
	}
	if srepo == nil {
		sessionsCol := db.Collection("sessions")
		if err := database.EnsureSessionIndexes(ctx, sessionsCol); err != nil {
			logger.Warnf("%v", err)
		}
		srepo = sessions.NewMongoRepository(sessionsCol)
		logger.Infof("using MongoDB for session storage")
	}
	sessionsSvc := sessions.NewService(srepo, userSvc, cfg.Session.TTL)

	reg := providers.FromConfig(cfg.Providers)
	names := reg.Names()
	sort.Strings(names)
	if len(names) == 0 {
		logger.Warnf("no identity provider configured; /auth/{provider} will return 404")
	} else {
		logger.Infof("identity providers: %v", names)
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := handlers.NewRouter(handlers.Deps{
		Config:    cfg,
		Users:     userSvc,
		Sessions:  sessionsSvc,
		Providers: reg,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Infof("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Errorf("server stopped: %v", err)
	}
}
