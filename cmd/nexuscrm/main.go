// Package main запускает HTTP-сервер CRM-сервиса Nexus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/nexus-crm/internal/config"
	"github.com/mmeshcher/nexus-crm/internal/handler"
	"github.com/mmeshcher/nexus-crm/internal/insight"
	"github.com/mmeshcher/nexus-crm/internal/repository"
	"github.com/mmeshcher/nexus-crm/internal/service"
	"github.com/mmeshcher/nexus-crm/internal/webhook"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	local := repository.NewFileStore(cfg.StoreFile)

	var remote service.RemoteRepository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			// Удалённое хранилище необязательно: сервис продолжает
			// работать на локальном снапшоте.
			sugar.Warnw("remote store initialization failed, using local snapshot only", "error", err.Error())
		} else {
			remote = pg
		}
	}

	dispatcher := webhook.NewClient()
	insightClient := insight.NewClient(cfg.GeminiAPIKey, cfg.GeminiAPIURL)

	svc := service.NewService(local, remote, dispatcher, insightClient, logger)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc.Load(ctx, cfg.WebhookURL)

	h := handler.NewHandler(svc, logger)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Одноразовый обход клиентов со сроком "сегодня"
	g.Go(func() error {
		svc.StartDueSweep(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting nexus-crm server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
