package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xdrshjr/ZImage-WebUI/internal/api"
	"github.com/xdrshjr/ZImage-WebUI/internal/artifact"
	"github.com/xdrshjr/ZImage-WebUI/internal/config"
	"github.com/xdrshjr/ZImage-WebUI/internal/model"
	"github.com/xdrshjr/ZImage-WebUI/internal/task"
	"github.com/xdrshjr/ZImage-WebUI/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("configuration invalid", zap.Error(err))
	}

	artifacts, err := artifact.NewFSStore(cfg.OutputDir)
	if err != nil {
		zap.L().Fatal("output directory unavailable", zap.Error(err))
	}

	generator := model.NewArkGenerator(cfg.ArkAPIKey, cfg.ModelName)
	if !generator.Ready() {
		zap.L().Warn("model backend not configured; submissions will be rejected until " + config.ArkAPIKeyKey + " is set")
	}

	store := task.NewStore()
	queue := task.NewAdmissionQueue(cfg.MaxQueueSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.New(queue, store, generator, artifacts, cfg.TaskTimeout).Run(ctx)
	}()

	handler := api.NewHandler(cfg, store, queue, generator, artifacts)
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, cfg.Port),
		Handler: api.NewRouter(handler),
	}

	go func() {
		zap.L().Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Int("max_queue_size", cfg.MaxQueueSize),
			zap.Duration("task_timeout", cfg.TaskTimeout))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	// Stop admitting and wake the worker; an in-flight generation is
	// cancelled through the shared context and recorded as failed.
	queue.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server shutdown incomplete", zap.Error(err))
	}
	wg.Wait()
}
