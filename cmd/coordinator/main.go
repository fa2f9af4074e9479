package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deliveryFieldOps/internal/config"
	"deliveryFieldOps/internal/coordinator"
	"deliveryFieldOps/internal/db"
	grpcserver "deliveryFieldOps/internal/grpc"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/repository"
)

func main() {
	dev := flag.Bool("dev", false, "use development defaults (JWT_SECRET not required)")
	flag.Parse()

	// Load configuration
	load := config.Load
	if *dev {
		load = config.LoadWithDefaults
	}
	cfg, err := load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("Configuration loaded: %v", cfg)
	logger := logging.New("coordinator", cfg.Log.Level)

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	}()

	drivers := repository.NewDriverRepository(d)
	deliveries := repository.NewDeliveryRepository(d)
	messages := repository.NewMessageRepository(d)

	coord := coordinator.New(drivers, deliveries, messages, cfg.Auth.JWTSecret,
		coordinator.WithLogger(logger),
		coordinator.WithSessionTTL(cfg.Coordinator.SessionTTL))

	// Start realtime channel endpoints
	httpSrv := &http.Server{
		Addr:              cfg.Coordinator.Address,
		Handler:           coord.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()
	log.Printf("channel endpoints listening on %s", cfg.Coordinator.Address)

	// Start gRPC
	shutdown, err := grpcserver.StartGRPC(cfg, &grpcserver.DispatchServer{
		Drivers:     drivers,
		Deliveries:  deliveries,
		Broadcaster: coord,
		Log:         logger.With("component", "dispatch"),
	})
	if err != nil {
		log.Fatalf("start grpc: %v", err)
	}
	log.Printf("gRPC server listening on %s", cfg.GRPC.Address)

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord.DropConnections()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
