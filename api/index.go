// Package handler is the serverless entry point: one fiber app per cold
// start, served through the net/http adaptor.
package handler

import (
	"log"
	"net/http"
	"sync"

	"github.com/amirasaad/microgive/infra/initializer"
	"github.com/amirasaad/microgive/pkg/app"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/webapi"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

var (
	once    sync.Once
	handler http.HandlerFunc
)

// Handler is the main entry point of the application.
func Handler(w http.ResponseWriter, r *http.Request) {
	// This is needed to set the proper request path in `*fiber.Ctx`
	r.RequestURI = r.URL.String()

	once.Do(func() { handler = build() })
	handler.ServeHTTP(w, r)
}

func build() http.HandlerFunc {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load application configuration: %v", err)
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		log.Fatalf("failed to initialize dependencies: %v", err)
	}
	a, err := app.New(deps, cfg)
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}
	return adaptor.FiberApp(webapi.SetupApp(a))
}
