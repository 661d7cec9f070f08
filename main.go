package main

import (
	"bankledger/app"
	"bankledger/config"
	"bankledger/database"
	"bankledger/services"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Инициализируем конфигурацию
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inject := app.BootstrapServices(cfg)
	err = inject(func(
		logger *zap.Logger,
		db *database.Database,
		reconciler *services.ReconciliationService,
		router *mux.Router,
	) error {
		defer logger.Sync()
		defer db.Close()

		// Запускаем периодическую сверку балансов
		reconciler.Start(ctx)

		return serve(ctx, logger, router, cfg.Server.Port)
	})
	if err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}

// serve запускает HTTP-сервер и останавливает его при отмене ctx
func serve(ctx context.Context, logger *zap.Logger, handler http.Handler, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
