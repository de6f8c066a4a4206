// Package server provides the public entry point for initializing the
// agent orchestration core server. It wires the transport client, model
// metadata cache, prompt assembler, and dispatcher behind one HTTP handler.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dashforge/dashforge/agent-core/internal/api"
	"github.com/dashforge/dashforge/agent-core/internal/api/handlers"
	"github.com/dashforge/dashforge/agent-core/internal/config"
	"github.com/dashforge/dashforge/agent-core/internal/dispatch"
	"github.com/dashforge/dashforge/agent-core/internal/modelcache"
	"github.com/dashforge/dashforge/agent-core/internal/preload"
	"github.com/dashforge/dashforge/agent-core/internal/prompt"
	"github.com/dashforge/dashforge/agent-core/internal/telemetry"
	"github.com/dashforge/dashforge/agent-core/internal/transport"
)

// Server holds the initialized orchestration core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the core with an explicit configuration.
func NewWithConfig(_ context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	client := transport.NewClient(cfg.DevLogging)

	lister := modelcache.NewHTTPLister(cfg.Provider.AppBaseURL + "/api/v1/models")
	pricing := modelcache.New(lister, cfg.Cache.TTL)

	assembler := prompt.NewAssembler(
		preload.NewHTTPFetcher(),
		prompt.DefaultStyleGuide(),
		cfg.Provider.AppBaseURL,
	)

	dispatcher := dispatch.New(cfg, client, pricing, assembler)
	log.Info().Msg("Agent dispatcher initialized")

	h := handlers.New(dispatcher, pricing)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
