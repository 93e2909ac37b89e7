package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/actions"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/engine"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/llm"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
)

// app wires the long-lived pieces a command needs: config (hot-reloaded),
// store, action library and chat engine.
type app struct {
	watcher *config.Watcher
	store   *store.Store
	lib     *actions.Library
	engine  *engine.Engine

	stopWatch context.CancelFunc
}

// openApp loads configuration and opens the registry. Commands that talk to
// the model pass needLLM; registry-only commands work without an API key.
func openApp(needLLM bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrIncomplete) {
			return nil, fmt.Errorf("la configuración en %s está incompleta; ejecuta \"escolar init\" primero", configPath)
		}
		return nil, err
	}
	applyEnvOverrides(cfg)

	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	a := &app{
		watcher: config.NewWatcher(configPath, cfg, logger),
		store:   st,
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	go func() {
		if err := a.watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	a.lib = actions.New(st, a.watcher.Current, logger)

	if needLLM {
		client, err := llm.NewFromConfig(cfg.LLM)
		if err != nil {
			st.Close()
			cancel()
			return nil, err
		}
		a.engine = engine.New(st, client, a.watcher.Current, logger)
	}
	return a, nil
}

func (a *app) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// applyEnvOverrides lets the environment supply the secrets the yaml file
// should not carry.
func applyEnvOverrides(cfg *config.Config) {
	if cfg.LLM.APIKey == "" {
		for _, key := range []string{"ESCOLAR_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
			if v := os.Getenv(key); v != "" {
				cfg.LLM.APIKey = v
				break
			}
		}
	}
	if env := os.Getenv("ESCOLAR_ENV"); env != "" {
		cfg.SystemInfo.Environment = env
	}
	if base := os.Getenv("ESCOLAR_LLM_BASE_URL"); base != "" {
		cfg.LLM.BaseURL = base
	}
}
