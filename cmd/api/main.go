package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeras-mobility/aeras-backend/internal/config"
	"github.com/aeras-mobility/aeras-backend/internal/coordinator"
	"github.com/aeras-mobility/aeras-backend/internal/database"
	"github.com/aeras-mobility/aeras-backend/internal/handlers"
	"github.com/aeras-mobility/aeras-backend/internal/ledger"
	"github.com/aeras-mobility/aeras-backend/internal/logging"
	"github.com/aeras-mobility/aeras-backend/internal/middleware"
	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/notify"
	"github.com/aeras-mobility/aeras-backend/internal/services"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := services.InitRedis(); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}

	// Firebase is optional; without credentials device pushes are skipped.
	if err := services.InitFirebase(); err != nil {
		logger.Warn("firebase not configured, device pushes disabled", "error", err)
	}

	if err := services.InitStorage(); err != nil {
		log.Fatalf("Failed to initialize report storage: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core wiring. The change feed fans ride transitions out to the
	// websocket hub and the notification bridge; the coordinator only ever
	// writes through the guarded store.
	feed := store.NewRedisFeed(services.RedisClient, logger)
	rideStore := store.NewGormStore(db, feed, logger)
	accounts := store.NewGormAccounts(db)

	balances := ledger.NewGormBalances(db)
	txlog := ledger.NewGormLog(db)
	engine := ledger.NewEngine(balances, txlog, cfg.RewardPoints, logger)

	co := coordinator.New(rideStore, accounts, engine, coordinator.Options{
		RequestTimeout: cfg.RequestTimeout,
		AcceptTimeout:  cfg.AcceptTimeout,
		StorageTimeout: cfg.StorageTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBackoff:   cfg.RetryBackoff,
	}, logger)
	defer co.Shutdown()

	reconciler := ledger.NewReconciler(balances, txlog, cfg.ReconcileInterval,
		services.ArchiveReport, logger)
	go reconciler.Run(ctx)

	var broker notify.Broker
	switch cfg.BrokerDriver {
	case "kafka":
		kb := notify.NewKafkaBroker(cfg.KafkaBrokers)
		defer kb.Close()
		broker = kb
	default:
		broker = notify.NewRedisBroker(services.RedisClient)
	}

	bridge := notify.NewBridge(feed, broker, cfg.NotifyTransitions, logger)
	bridge.Push = func(ctx context.Context, passengerID uint, rideID, status string) {
		passenger, err := accounts.PassengerByID(ctx, passengerID)
		if err != nil || passenger.FCMToken == "" {
			return
		}
		if err := services.SendRideStatusNotification(ctx, passenger.FCMToken, rideID, status); err != nil {
			logger.Warn("fcm push failed", "rideId", rideID, "error", err)
		}
	}
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("notification bridge stopped", "error", err)
		}
	}()

	hub := services.NewHub()
	go hub.Run()
	go func() {
		if err := services.RunFeedForwarder(ctx, feed, hub); err != nil && ctx.Err() == nil {
			logger.Error("feed forwarder stopped", "error", err)
		}
	}()

	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db))
			auth.POST("/login", handlers.Login(db))
		}

		api.GET("/ws", middleware.AuthMiddleware(), handlers.WebSocketHandler(hub))

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			rides := protected.Group("/rides")
			{
				rides.POST("", middleware.RequireRole(models.RolePassenger), handlers.CreateRide(co))
				rides.POST("/simulate", handlers.SimulateRide(co))
				rides.GET("/open", middleware.RequireRole(models.RolePuller), handlers.GetOpenRides(db))
				rides.GET("/mine", handlers.GetMyRides(db))
				rides.GET("/:id", handlers.GetRide(db))
				rides.POST("/:id/cancel", handlers.CancelRide(co))
			}

			puller := protected.Group("/puller")
			puller.Use(middleware.RequireRole(models.RolePuller))
			{
				puller.POST("/rides/:id/accept", handlers.AcceptRide(co))
				puller.POST("/rides/:id/start", handlers.StartRide(co))
				puller.POST("/rides/:id/complete", handlers.CompleteRide(co))
				puller.GET("/points", handlers.GetPullerPoints(balances, txlog))
				puller.POST("/presence", handlers.UpdatePresence(db))
			}

			notifications := protected.Group("/notifications")
			{
				notifications.POST("/register-token",
					middleware.RequireRole(models.RolePassenger), handlers.UpdateFCMToken(db))
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole(models.RoleAdmin))
			{
				admin.GET("/stats", handlers.GetAdminStats(db))
				admin.GET("/rides", handlers.ListRides(db))
				admin.POST("/points/adjust", handlers.AdjustPoints(engine))
				admin.POST("/accounts/:role/:id/ban", handlers.BanAccount(db))
				admin.POST("/reconcile", handlers.RunReconciliation(reconciler))
			}
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
}
