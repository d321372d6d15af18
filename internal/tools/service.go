// Package tools exposes the bridge's operations as MCP tools. Repository
// reads go through an HTTP client with short-lived caches; engine
// operations open one session per call so no tool invocation can leak a
// socket or a document handle.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sensebridge/sensebridge/internal/cache"
	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/engine"
	"github.com/sensebridge/sensebridge/internal/repository"
)

// Service owns the clients and caches behind the tool handlers.
type Service struct {
	cfg  *config.Config
	repo *repository.Client

	engineOpts engine.Options // separated from cfg so tests can redirect

	appsCache    *cache.Cache[string, []repository.App]
	appCache     *cache.Cache[string, *repository.App]
	metaCache    *cache.Cache[string, json.RawMessage]
	streamsCache *cache.Cache[string, []repository.Stream]
}

// NewService wires a tool service from the loaded configuration.
func NewService(cfg *config.Config, repo *repository.Client) *Service {
	ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
	return &Service{
		cfg:          cfg,
		repo:         repo,
		engineOpts:   cfg.EngineOptions(),
		appsCache:    cache.New[string, []repository.App](ttl),
		appCache:     cache.New[string, *repository.App](ttl),
		metaCache:    cache.New[string, json.RawMessage](ttl),
		streamsCache: cache.New[string, []repository.Stream](ttl),
	}
}

// Caches returns the purgeable caches for janitor registration.
func (s *Service) Caches() []cache.Purger {
	return []cache.Purger{s.appsCache, s.appCache, s.metaCache, s.streamsCache}
}

// maxRows clamps a requested row count to the configured default.
func (s *Service) maxRows(requested int) int {
	if requested <= 0 {
		return s.cfg.Engine.MaxRows
	}
	return requested
}

// withApp runs fn against a freshly opened document and tears the session
// down afterwards, whatever fn does.
func (s *Service) withApp(ctx context.Context, appID string, fn func(c *engine.Client, h int) error) error {
	c, err := engine.Dial(ctx, s.engineOpts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			slog.Debug("tools: close session", "err", cerr)
		}
	}()

	h, err := c.OpenApp(ctx, appID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.CloseApp(ctx, h); cerr != nil {
			slog.Debug("tools: close app", "app", appID, "err", cerr)
		}
	}()
	return fn(c, h)
}
