package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zulandar/pressbox/internal/blueprint"
	"github.com/zulandar/pressbox/internal/cache"
	"github.com/zulandar/pressbox/internal/completion"
	"github.com/zulandar/pressbox/internal/config"
	"github.com/zulandar/pressbox/internal/pipeline"
	"github.com/zulandar/pressbox/internal/session"
	"github.com/zulandar/pressbox/internal/sportsdata"
	"github.com/zulandar/pressbox/internal/throttle"
)

// stack bundles the wired pipeline and the pieces commands interact with
// directly.
type stack struct {
	cache        *cache.Cache
	store        session.Store
	memStore     *session.MemoryStore // nil when the redis backend is configured
	orchestrator *pipeline.Orchestrator
}

// buildStack wires cache, throttle, data client, session store, completion
// service, and orchestrator from config plus environment secrets.
func buildStack(ctx context.Context, cfg *config.Config, onFinish func(context.Context, *session.Session)) (*stack, error) {
	sportsKey := os.Getenv("SPORTS_API_KEY")
	if sportsKey == "" {
		return nil, fmt.Errorf("SPORTS_API_KEY is required")
	}
	completionKey := os.Getenv("COMPLETION_API_KEY")
	if completionKey == "" {
		return nil, fmt.Errorf("COMPLETION_API_KEY is required")
	}

	bp, err := blueprint.FromConfig(cfg.Blueprint)
	if err != nil {
		return nil, err
	}

	responseCache := cache.New(cache.Opts{MaxEntries: cfg.Cache.MaxEntries})
	limiter := throttle.New(cfg.Sports.RequestsPerMinute)
	client := sportsdata.New(sportsdata.Opts{
		BaseURL:     cfg.Sports.BaseURL,
		APIKey:      sportsKey,
		Cache:       responseCache,
		Limiter:     limiter,
		MaxAttempts: cfg.Sports.MaxAttempts,
	})

	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	var store session.Store
	var memStore *session.MemoryStore
	switch cfg.Session.Backend {
	case "redis":
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis session backend")
		}
		redisStore, err := session.NewRedisStore(redisURL, ttl)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		memStore = session.NewMemoryStore(ttl)
		store = memStore
	}

	svc, err := completion.NewModelService(ctx, completion.Config{
		APIKey:      completionKey,
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
	})
	if err != nil {
		return nil, err
	}

	orchestrator := pipeline.New(pipeline.Opts{
		Store:          store,
		Data:           client,
		Completion:     svc,
		Blueprint:      bp,
		Workers:        cfg.Completion.Workers,
		FallbackSeason: cfg.Sports.FallbackSeason,
		OnFinish:       onFinish,
	})

	return &stack{
		cache:        responseCache,
		store:        store,
		memStore:     memStore,
		orchestrator: orchestrator,
	}, nil
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return config.Load(path)
}

const defaultConfigPath = "pressbox.yaml"
