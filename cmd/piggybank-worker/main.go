package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"piggybank/internal/amqp"
	"piggybank/internal/cli"
	applog "piggybank/internal/log"
	"piggybank/internal/services"
	"piggybank/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)

	logger.Info("Starting piggybank-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	projector := services.NewBalanceProjector(repo, repo)
	reconcileWorker := worker.NewReconcileWorker(repo, projector, cfg.SweepBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume reconcile messages published by the API on projection
	// failures.
	go func() {
		handler := func(msg *amqp.BalanceReconcileMessage) error {
			return reconcileWorker.HandleReconcileMessage(ctx, msg)
		}
		if err := amqpClient.ConsumeBalanceReconcile(ctx, handler); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Periodic sweep catches drift from lost messages.
	go func() {
		if err := reconcileWorker.Run(ctx, cfg.SweepInterval); err != nil && err != context.Canceled {
			logger.Error("Consistency sweep loop failed", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	case <-ctx.Done():
	}

	logger.Info("Worker stopped gracefully")
}
