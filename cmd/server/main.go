package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"borsa/internal/config"
	"borsa/internal/database"
	"borsa/internal/handlers"
	"borsa/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Load .env file if it exists, but don't fail if it's missing (e.g. in production)
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}

	db, err := initDB(cfg.Database.PostgresURL)
	if err != nil {
		logger.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := database.New(db, logger)
	analytics := service.NewAnalytics(repo, logger, service.Options{
		PerformanceDays: cfg.Analytics.PerformanceDays,
		CorrelationDays: cfg.Analytics.CorrelationDays,
		Index:           cfg.Analytics.Index,
		MinPairs:        cfg.Analytics.MinPairs,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := service.NewScheduler(analytics, logger)
	if err := scheduler.Register(ctx, cfg.Schedule.RefreshCron); err != nil {
		logger.Fatalf("scheduler setup failed: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	h := handlers.NewHandler(repo, analytics, logger)

	rg := gin.Default()
	rg.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	h.Register(rg)

	logger.Infof("server starting on :%s", cfg.Server.Port)
	rg.Run(fmt.Sprintf(":" + cfg.Server.Port))
}

func initDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}
