// Package cli holds the start-up and terminal output code shared by the
// flusso binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flusso/internal/config"
	"flusso/internal/log"
)

// LoadEnvFile loads a .env file for local development. A missing file is
// not an error.
func LoadEnvFile(logger *log.Logger) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Ignoring unreadable .env file", log.FieldError, err.Error())
	}
}

// LoadAndValidateConfig loads configuration from path (or FLUSSO_CONFIG
// when path is empty) and validates it.
func LoadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from cfg, writing to out (stdout
// when nil), and installs it as the slog default. An unknown level falls
// back to info.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	lc := log.DefaultConfig()
	lc.Component = component
	if out != nil {
		lc.Output = out
	}
	if cfg != nil {
		if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
			lc.Level = level
		}
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM, or when
// the returned cancel function is called.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Shutdown runs each cleanup step with a shared deadline and returns every
// failure joined. Steps run in order, so list servers before the stores
// they use.
func Shutdown(logger *log.Logger, timeout time.Duration, steps ...func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i, step := range steps {
		if step == nil {
			continue
		}
		if err := step(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown step %d: %w", i+1, err))
		}
	}
	if ctx.Err() != nil {
		logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown)
	} else {
		logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
	}
	return errors.Join(errs...)
}
