package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/GoAutonity/dripgate/internal/cdp"
	"github.com/GoAutonity/dripgate/internal/chain"
	"github.com/GoAutonity/dripgate/internal/config"
	"github.com/GoAutonity/dripgate/internal/faucet"
	"github.com/GoAutonity/dripgate/internal/handler"
	"github.com/GoAutonity/dripgate/internal/middleware"
	"github.com/GoAutonity/dripgate/internal/pkg/logger"
	"github.com/GoAutonity/dripgate/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	// Rate-limit store (Redis > Memory)
	var store faucet.LimiterStore
	if cfg.Redis.Addr != "" {
		redisStore, err := repository.NewRedisLimiterStore(cfg.Redis)
		if err == nil {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
			store = redisStore
		} else {
			logger.Error("redis unreachable, falling back to memory store", "error", err)
		}
	}
	if store == nil {
		store = faucet.NewMemoryLimiterStore()
	}
	limiter := faucet.NewRateLimiter(
		cfg.Faucet.DailyLimit,
		time.Duration(cfg.Faucet.CooldownMinutes)*time.Minute,
		store,
	)

	// Audit trail (Postgres, optional)
	var audit *repository.PostgresAuditRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("connected to postgres, audit trail enabled")
			audit = repository.NewPostgresAuditRepo(db)
		} else {
			logger.Error("postgres unreachable, audit trail disabled", "error", err)
		}
	}

	// Chain client + wallet
	wallet, err := chain.NewWallet(cfg.Wallet)
	if err != nil {
		log.Fatalf("Failed to load wallet: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	client, err := chain.NewClient(ctx, cfg.Chain, wallet)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to chain: %v", err)
	}
	network := chain.NetworkInfo{
		ChainID:          client.ChainID(),
		BlockExplorerURL: cfg.Chain.BlockExplorerURL,
	}
	logger.Info("connected to chain",
		"chain_id", client.ChainID().String(),
		"wallet", wallet.Address().Hex(),
	)

	// CDP tracker + controller
	mode, err := cdp.ParseMode(cfg.CDP.Mode)
	if err != nil {
		log.Fatalf("Invalid cdp mode: %v", err)
	}
	emergency, err := cdp.ParseEmergencyAction(cfg.CDP.EmergencyAction)
	if err != nil {
		log.Fatalf("Invalid emergency action: %v", err)
	}
	tracker := cdp.NewTracker(
		client,
		decimal.NewFromFloat(cfg.CDP.TargetCR),
		decimal.NewFromFloat(cfg.CDP.MinCR),
		decimal.NewFromFloat(cfg.CDP.MaxCR),
	)
	controller := cdp.NewController(
		tracker,
		mode,
		time.Duration(cfg.CDP.CheckIntervalMinutes)*time.Minute,
		emergency,
	)

	// Distributors + service
	native := faucet.NewNativeDistributor(client, controller, decimal.NewFromFloat(cfg.Faucet.MaxATN))
	token := faucet.NewTokenDistributor(client, decimal.NewFromFloat(cfg.Faucet.MaxNTN))
	svc := faucet.NewService(limiter, native, token, controller, audit)
	svc.Start()

	faucetHandler := handler.NewFaucetHandler(svc, cfg, network)
	adminHandler := handler.NewAdminHandler(svc, audit)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ThrottleMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "dripgate"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if !client.Connected(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "rpc unreachable"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/faucet/native", faucetHandler.RequestNative)
		v1.POST("/faucet/token", faucetHandler.RequestToken)
		v1.GET("/status", faucetHandler.GetStatus)
		v1.GET("/users/:id", faucetHandler.GetUserStatus)
		v1.GET("/alerts", faucetHandler.GetAlerts)
	}
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/users/:id/reset", adminHandler.ResetUser)
		admin.GET("/distributions", adminHandler.ListDistributions)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("dripgate started", "port", cfg.Server.Port, "cdp_mode", mode.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	svc.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("server exiting")
}
