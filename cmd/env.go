package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/matcher"
	"github.com/sells-group/activity-cli/internal/processor"
	"github.com/sells-group/activity-cli/internal/resilience"
	"github.com/sells-group/activity-cli/internal/store"
	"github.com/sells-group/activity-cli/internal/tagger"
	"github.com/sells-group/activity-cli/internal/taxonomy"
	"github.com/sells-group/activity-cli/internal/textsim"
	anthropicpkg "github.com/sells-group/activity-cli/pkg/anthropic"
)

// appEnv holds the store and the processor wired from configuration.
type appEnv struct {
	Store     store.Store
	Taxonomy  *taxonomy.Store
	Processor *processor.Processor
}

// Close releases the store.
func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initStore opens the configured backend without migrating it.
func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		return store.NewSQLite(c.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{
			MaxConns: c.MaxConns,
			MinConns: c.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

// openStore opens and migrates the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func loadTaxonomy(c config.TaxonomyConfig) (*taxonomy.Store, error) {
	return taxonomy.LoadFiles(taxonomy.Paths{
		Taxonomy:    c.Path,
		Synonyms:    c.SynonymsPath,
		Calibration: c.CalibrationPath,
	})
}

// initApp builds everything process, regenerate and serve need.
func initApp(ctx context.Context) (*appEnv, error) {
	tax, err := loadTaxonomy(cfg.Taxonomy)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	var svc tagger.Service
	if cfg.Anthropic.Enabled {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
		svc = tagger.NewAnthropicService(client, tax, serviceConfig(cfg))
	} else {
		zap.L().Info("tag suggestion service disabled, using rules only")
	}

	zap.L().Info("taxonomy loaded",
		zap.Int("tags", tax.Len()),
		zap.String("version", tax.Version()),
	)
	return &appEnv{
		Store:     st,
		Taxonomy:  tax,
		Processor: newProcessor(st, tax, svc, cfg),
	}, nil
}

func newProcessor(st store.Store, tax *taxonomy.Store, svc tagger.Service, c *config.Config) *processor.Processor {
	opts := []tagger.Option{tagger.WithConcurrency(c.Tagger.Concurrency)}
	if svc != nil {
		opts = append(opts, tagger.WithService(svc))
	}
	gen := tagger.NewGenerator(tax, opts...)
	return processor.New(st, matcher.New(matcherConfig(c), tax), gen, processorConfig(c))
}

func matcherConfig(c *config.Config) matcher.Config {
	m := c.Matcher
	return matcher.Config{
		WindowDays: m.WindowDays,
		SessionGap: time.Duration(m.SessionGapMinutes) * time.Minute,
		Weights: matcher.Weights{
			Time:    m.Weights.Time,
			Content: m.Weights.Content,
			Keyword: m.Weights.Keyword,
			Prior:   m.Weights.Prior,
		},
		Similarity: textsim.Kind(m.Similarity),
		MinScore:   m.MinScore,
	}
}

func serviceConfig(c *config.Config) tagger.ServiceConfig {
	sc := tagger.DefaultServiceConfig()
	sc.Model = c.Anthropic.Model
	sc.MaxTokens = c.Anthropic.MaxTokens
	sc.Timeout = time.Duration(c.Tagger.TimeoutSecs) * time.Second
	sc.Retry = resilience.DefaultPolicy()
	sc.Retry.Attempts = c.Tagger.RetryAttempts
	sc.Retry.Initial = time.Duration(c.Tagger.RetryBackoffMs) * time.Millisecond
	sc.RatePerSec = c.Tagger.RatePerSec
	sc.Breaker = resilience.BreakerConfig{
		Threshold: c.Tagger.FailureThreshold,
		Cooldown:  time.Duration(c.Tagger.CooldownSecs) * time.Second,
	}
	return sc
}

func processorConfig(c *config.Config) processor.Config {
	p := c.Processor
	return processor.Config{
		ReviewThreshold:        p.ReviewThreshold,
		RelevanceFloor:         p.RelevanceFloor,
		DriftCeiling:           p.DriftCeiling,
		RegenerationWindowDays: p.RegenerationWindowDays,
		PriorWindowDays:        p.PriorWindowDays,
		PriorMinCount:          p.PriorMinCount,
		StaleSessionAfter:      time.Duration(p.StaleSessionMinutes) * time.Minute,
	}
}
