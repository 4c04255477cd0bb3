package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cropsense/farmops/internal/pipeline"
	"github.com/cropsense/farmops/internal/store"
	"github.com/cropsense/farmops/internal/weather"
	anthropicpkg "github.com/cropsense/farmops/pkg/anthropic"
	"github.com/cropsense/farmops/pkg/exa"
)

// pipelineEnv holds the initialized store, capability clients, and the
// diagnosis pipeline shared by the diagnose and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	AI       anthropicpkg.Client
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for the given mode, sets up the store and
// capability clients, and builds the diagnosis pipeline. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	synth, err := initSynthesizer()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	searchClient := exa.NewClient(cfg.Exa.Key, exa.WithBaseURL(cfg.Exa.BaseURL))
	if cfg.Exa.Key == "" {
		zap.L().Warn("FARMOPS_EXA_KEY not set, literature research will degrade to fallbacks")
	}

	p := pipeline.New(cfg, st, aiClient, searchClient, synth)

	return &pipelineEnv{Store: st, Pipeline: p, AI: aiClient}, nil
}

// initOfflinePipeline builds a pipeline with stub capability clients and a
// SQLite store so a diagnosis can run without any API keys.
func initOfflinePipeline(ctx context.Context) (*pipelineEnv, error) {
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver != "sqlite" || dsn == "" {
		dsn = "farmops.db"
	}
	st, err := store.NewSQLite(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "init sqlite store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	synth, err := initSynthesizer()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	aiClient := &pipeline.StubCompletionClient{}
	p := pipeline.New(cfg, st, aiClient, &pipeline.StubSearchClient{}, synth)

	return &pipelineEnv{Store: st, Pipeline: p, AI: aiClient}, nil
}

// initSynthesizer builds the weather synthesizer, applying the pattern
// override file when one is configured.
func initSynthesizer() (*weather.Synthesizer, error) {
	if cfg.Weather.PatternsFile == "" {
		return weather.NewSynthesizer(), nil
	}

	patterns, err := weather.LoadPatterns(cfg.Weather.PatternsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load weather patterns")
	}
	zap.L().Info("weather patterns loaded",
		zap.String("path", cfg.Weather.PatternsFile),
		zap.Int("regions", len(patterns)),
	)
	return weather.NewSynthesizer(weather.WithPatterns(patterns)), nil
}
