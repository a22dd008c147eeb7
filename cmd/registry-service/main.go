package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Olowonjaye/MediSecure-Chain/internal/access"
	"github.com/Olowonjaye/MediSecure-Chain/internal/api"
	"github.com/Olowonjaye/MediSecure-Chain/internal/audit"
	"github.com/Olowonjaye/MediSecure-Chain/internal/auth"
	"github.com/Olowonjaye/MediSecure-Chain/internal/ledger"
	"github.com/Olowonjaye/MediSecure-Chain/internal/records"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/monitoring"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithFields(map[string]interface{}{
		"backend": cfg.Store.Backend,
		"port":    cfg.Server.Port,
	}).Info("Starting registry service")

	var metrics *monitoring.MetricsCollector
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetricsCollector()
	}

	st, err := store.New(&cfg.Store, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	defer st.Close()

	if pg, ok := st.(*store.PostgresStore); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pg.CreateSchema(ctx); err != nil {
			cancel()
			log.WithError(err).Fatal("Failed to create database schema")
		}
		cancel()
	}

	ledgerClient := ledger.NewHTTPClient(&cfg.Ledger, log, metrics)
	cache := access.NewDecisionCache(&cfg.Redis, log)
	defer cache.Close()

	engine := access.NewEngine(st, cache, log, metrics)
	commandService := access.NewCommandService(st, ledgerClient, cache, log, metrics)
	recordService := records.NewService(st, ledgerClient, engine, log, metrics)

	tokens := auth.NewTokenManager(&cfg.JWT)
	passport := auth.NewPassportVerifier(&cfg.Passport, log)
	authService := auth.NewService(st, tokens, passport, log)

	auditService := audit.NewService(st)
	mirror := audit.NewMirror(&cfg.Ledger, st, ledgerClient, cache, log, metrics)

	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	mirrorDone := make(chan struct{})
	go func() {
		defer close(mirrorDone)
		mirror.Run(mirrorCtx)
	}()

	router := setupRouter(cfg, log, metrics, st, tokens,
		auth.NewHandler(authService),
		records.NewHandler(recordService),
		access.NewHandler(commandService),
		audit.NewHandler(auditService, mirror))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	stopMirror()
	<-mirrorDone

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}

	log.Info("Registry service stopped")
}

func setupRouter(
	cfg *config.Config,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
	st store.Store,
	tokens *auth.TokenManager,
	authHandler *auth.Handler,
	recordHandler *records.Handler,
	accessHandler *access.Handler,
	auditHandler *audit.Handler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if metrics != nil {
		router.Use(metrics.Middleware())
	}
	router.NoRoute(api.NotFound)

	router.GET(cfg.Monitoring.HealthPath, func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		storeStatus := "ok"
		if err := st.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			storeStatus = "unavailable"
			log.WithError(err).Warn("Health check store ping failed")
		}

		c.JSON(status, gin.H{
			"status": storeStatus,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	if metrics != nil {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(metrics.Handler()))
	}

	v1 := router.Group("/api/v1")

	authLimiter := api.NewLimiter(cfg.Server.AuthRateLimit, time.Minute)

	authGroup := v1.Group("/auth")
	authGroup.Use(authLimiter.Middleware())
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
		authGroup.GET("/verify", auth.Middleware(tokens), authHandler.Verify)
	}

	protected := v1.Group("")
	protected.Use(auth.Middleware(tokens))
	{
		protected.POST("/passport/verify", authHandler.PassportVerify)

		protected.POST("/records", recordHandler.Create)
		protected.GET("/records/:id", recordHandler.Get)

		protected.POST("/access/grant", accessHandler.Grant)
		protected.POST("/access/revoke", accessHandler.Revoke)

		protected.GET("/audit", auditHandler.List)
	}

	admin := v1.Group("/users")
	admin.Use(auth.Middleware(tokens), auth.RequireRoles(types.RoleAdmin))
	{
		admin.GET("", authHandler.ListUsers)
		admin.PATCH("/:id/role", authHandler.UpdateRole)
	}

	return router
}
