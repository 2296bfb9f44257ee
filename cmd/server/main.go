package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-circulation/internal/api"
	"github.com/rongwang/library-circulation/internal/config"
	"github.com/rongwang/library-circulation/internal/repository"
	"github.com/rongwang/library-circulation/internal/service"
	"github.com/rongwang/library-circulation/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.NewLogger(utils.ParseLevel(cfg.Log.Level))

	// Create repository
	var repo repository.Repository
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("Using the in-memory store; data is lost on restart")
		repo = repository.NewMemoryRepository()
	} else {
		// Set up database connection
		db, err := config.SetupDatabase(cfg)
		if err != nil {
			log.Fatalf("Failed to set up database: %v", err)
		}
		defer db.Close()

		repo = repository.NewPostgresRepository(db)
	}

	// Create service
	svc := service.NewDefaultService(repo, nil, nil, service.Settings{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenDuration: cfg.Auth.TokenTTL(),
		Fines: service.FinePolicy{
			DailyRate:       cfg.Fines.DailyRate,
			DamageFee:       cfg.Fines.DamageFee,
			LossFee:         cfg.Fines.LossFee,
			GracePeriodDays: cfg.Fines.GracePeriodDays,
		},
	}, service.WithLogger(logger))

	if err := svc.EnsureAdmin(context.Background(), cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, cfg.Auth.AdminName); err != nil {
		log.Fatalf("Failed to create admin account: %v", err)
	}

	// Create API handler
	handler := api.NewHandler(svc, logger)

	// Set up Gin router
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger))

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Starting server on %s", serverAddr)
	if err := http.ListenAndServe(serverAddr, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
