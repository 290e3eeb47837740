package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"muse/internal/coalesce"
	"muse/internal/config"
	"muse/internal/generator"
	"muse/internal/library"
	"muse/internal/logging"
	"muse/internal/pipeline"
	"muse/internal/resultcache"
	"muse/internal/session"
	"muse/internal/speech"
	"muse/internal/stages"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg)
}

// sessionComponents bundles everything a generation run needs. Close
// releases the library store and waits for the session consumer.
type sessionComponents struct {
	store    *library.Store
	narrator *speech.Service
	sessions *session.Manager
}

func (s *sessionComponents) Close() {
	if s.sessions != nil {
		s.sessions.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

func (c *commandContext) buildSession(logger *slog.Logger) (*sessionComponents, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	store, err := library.Open(cfg)
	if err != nil {
		return nil, err
	}

	cache := resultcache.New(cfg.ArtifactCachePath(), logger)
	coalescer := coalesce.New(cache, logger)
	client := generator.NewClient(cfg.Generator)

	executor := pipeline.New(logger, []pipeline.Handler{
		stages.NewAnalyzer(client, coalescer, logger),
		stages.NewIllustrator(client, logger),
		stages.NewPersister(store, logger),
	}, pipeline.WithPreflight(func(ctx context.Context) error {
		return client.Ready()
	}))

	components := &sessionComponents{
		store:    store,
		sessions: session.NewManager(executor, logger),
	}
	if cfg.Speech.Enabled {
		synth := speech.NewHTTPSynthesizer(cfg.Speech, cfg.Generator.APIKey)
		components.narrator = speech.NewService(synth, coalescer, logger)
	}
	return components, nil
}
