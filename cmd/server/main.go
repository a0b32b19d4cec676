package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirasaad/microgive/infra/initializer"
	"github.com/amirasaad/microgive/pkg/app"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/webapi"
	log "github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	// Initialize all dependencies
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer initializer.Close(deps)

	a, err := app.New(deps, cfg)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	fiberApp := webapi.SetupApp(a)

	addr := Addr(cfg.Server)
	deps.Logger.Info("🚀 Starting server",
		"env", cfg.Env,
		"address", addr,
		"scheme", cfg.Server.Scheme,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, fiberApp, addr, deps.Logger)
}

// Addr is host:port for the listener.
func Addr(s *config.Server) string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func serve(ctx context.Context, fiberApp *fiber.App, addr string, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() { errc <- fiberApp.Listen(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logger.Info("🛑 Shutting down")
		return fiberApp.ShutdownWithTimeout(10 * time.Second)
	}
}
