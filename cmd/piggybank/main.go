package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"piggybank/internal/amqp"
	"piggybank/internal/cli"
	apphttp "piggybank/internal/http"
	applog "piggybank/internal/log"
	"piggybank/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// AMQP is optional: without it projection failures are repaired only
	// by the worker's periodic sweep.
	var reconciler services.ReconcilePublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, reconcile messages disabled", "error", err)
		} else {
			defer amqpClient.Close()
			reconciler = amqpClient
		}
	}

	projector := services.NewBalanceProjector(repo, repo)
	policies := services.NewPolicyService(repo)
	engine := services.NewTransactionEngine(repo, projector, policies, repo, reconciler)
	kids := services.NewKidService(repo, repo)
	queries := services.NewQueryService(repo, repo, repo)

	srv := apphttp.NewServer(":"+cfg.Port, logger, engine, policies, kids, queries)
	for _, cidr := range cfg.TrustedProxies {
		if err := srv.AddTrustedProxy(cidr); err != nil {
			logger.Error("Invalid trusted proxy network", "error", err, "cidr", cidr)
			os.Exit(1)
		}
	}

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting piggybank server", "port", cfg.Port, "db_path", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
