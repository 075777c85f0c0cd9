package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/config"
)

func NewHttpServer(logger hclog.Logger, cfg config.ServerConfig, defaultRouter http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      defaultRouter,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     logger.StandardLogger(&hclog.StandardLoggerOptions{}),
	}
}

// StartHttpServer serves until SIGINT or SIGTERM, then shuts down gracefully.
func StartHttpServer(logger hclog.Logger, cfg config.ServerConfig, defaultRouter http.Handler) error {
	server := NewHttpServer(logger, cfg, defaultRouter)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Starting server on port: %d", cfg.Port))

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// trap sigterm or interupt and gracefully shutdown the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		logger.Info("Got signal", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving on port %d: %w", cfg.Port, err)
		}
		return nil
	}

	// wait for current requests to complete
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
