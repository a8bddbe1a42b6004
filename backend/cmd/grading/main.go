// ============================================================================
// backend/cmd/grading/main.go
// Entry point for the Grading Service
// ============================================================================

package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shs_lms/backend/internal/gateway"
	"shs_lms/backend/internal/grade"
	"shs_lms/backend/internal/shared"
)

func main() {
	log.Println("INFO: Starting Grading Service...")

	// Load environment variables
	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("WARN: .env file not found, using system environment variables")
	}

	// Load and validate configuration
	config, err := shared.LoadServiceConfig("grading-service")
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if err := shared.ValidateServiceConfig(config); err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}
	if shared.IsDevelopment(config) {
		shared.PrintConfig(config)
	}

	// Connect to MongoDB
	mongoClient, db, err := shared.ConnectMongoDB(&config.MongoDB)
	if err != nil {
		log.Fatalf("FATAL: Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := shared.DisconnectMongoDB(mongoClient); err != nil {
			log.Printf("ERROR: Disconnecting from MongoDB: %v", err)
		}
	}()

	store := grade.NewMongoStore(db)
	if err := store.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("FATAL: Failed to create indexes: %v", err)
	}

	// Posted-grade notifications
	var notifier grade.Notifier = grade.LogNotifier{}
	if len(config.Kafka.Brokers) > 0 {
		kn, err := grade.NewKafkaNotifier(config.Kafka)
		if err != nil {
			log.Fatalf("FATAL: Failed to configure Kafka notifier: %v", err)
		}
		notifier = kn
		log.Printf("INFO: Publishing posted grades to %s via %v", config.Kafka.PostedGradeTopic, config.Kafka.Brokers)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			log.Printf("ERROR: Closing notifier: %v", err)
		}
	}()

	// Initialize the grading service
	metrics := grade.NewMetrics()
	svc := grade.NewGradeService(store, grade.NewMongoDirectory(db).Providers(), grade.Options{
		StagingTTL:   config.Upload.StagingTTL,
		MetadataRows: config.Upload.MetadataRows,
		Notifier:     notifier,
		Metrics:      metrics,
	})

	// gRPC health endpoint
	healthServer := shared.NewHealthServer("grading.GradingService", config.GRPC)
	listener, err := net.Listen("tcp", ":"+config.GRPC.HealthPort)
	if err != nil {
		log.Fatalf("FATAL: Failed to listen on port %s: %v", config.GRPC.HealthPort, err)
	}
	go func() {
		log.Printf("INFO: Health endpoint listening on port %s", config.GRPC.HealthPort)
		if err := healthServer.Serve(listener); err != nil {
			log.Fatalf("FATAL: Health server error: %v", err)
		}
	}()

	// HTTP API
	server := &http.Server{
		Addr:         ":" + config.HTTPPort,
		Handler:      gateway.SetupRoutes(svc, config, metrics),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("INFO: Grading API listening on port %s", config.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server error: %v", err)
		}
	}()
	healthServer.SetServing(true)

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("INFO: Shutting down Grading Service...")

	healthServer.SetServing(false)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("ERROR: HTTP shutdown: %v", err)
	}
	healthServer.Stop()

	log.Println("INFO: Grading Service stopped.")
}
