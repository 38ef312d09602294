package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"person-id-backend/cmd"
	"person-id-backend/internal/api"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core"
	"person-id-backend/internal/database"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type APIConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	APIPort     string `env:"API_PORT" envDefault:"8001"`
	BlobDir     string `env:"BLOB_DIR" envDefault:"./blobs"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	blobCfg, err := env.ParseAs[config.BlobConfig]()
	if err != nil {
		log.Fatalf("error parsing blob config: %v", err)
	}

	services := cmd.ParseServiceConfigs()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	blobs := cmd.CreateBlobStore(context.Background(), blobCfg, cfg.BlobDir)

	publisher, reciever := cmd.CreateQueue(cfg.RabbitMQURL)

	pipeline := cmd.NewPipeline(db, blobs, services)

	worker := core.NewTaskProcessor(db, blobs, pipeline.Trainer, publisher, reciever, services.Pipeline.ReadURLTTL)
	if err := worker.RequeuePendingJobs(context.Background()); err != nil {
		log.Fatalf("Failed to requeue pending training jobs: %v", err)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, blobs, pipeline.Faces, pipeline.Identifier, publisher, services.Pipeline)

	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	slog.Info("starting training worker")
	go worker.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down training worker")
		worker.Stop()
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
