package waste

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/logging"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

const defaultFetchTimeout = 5 * time.Second

// Source provides the current waste rule configuration.
type Source interface {
	WasteRuleConfig(ctx context.Context) (Config, error)
}

type cachedConfig struct {
	generation uint64
	config     Config
}

// Evaluator evaluates sections against the configured rules, caching the
// configuration until Invalidate is called. It is safe for concurrent use.
type Evaluator struct {
	source       Source
	logger       *zap.Logger
	fetchTimeout time.Duration

	generation atomic.Uint64
	cache      atomic.Pointer[cachedConfig]
	loads      singleflight.Group
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFetchTimeout bounds each read of the rule source.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.fetchTimeout = d }
}

// NewEvaluator creates an evaluator reading rules from source.
func NewEvaluator(source Source, logger *zap.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		source:       source,
		logger:       logging.OrNop(logger),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invalidate drops the cached configuration. Loads already in flight when
// Invalidate runs are never served to later callers.
func (e *Evaluator) Invalidate() {
	e.generation.Add(1)
	e.cache.Store(nil)
}

// Config returns the active rule set and where it came from. When the source
// fails or returns an invalid rule set, the built-in defaults are returned
// with SourceDefault and nothing is cached, so the next call retries.
func (e *Evaluator) Config(ctx context.Context) (Config, ConfigSource) {
	gen := e.generation.Load()
	if c := e.cache.Load(); c != nil && c.generation == gen {
		return c.config, SourceStore
	}

	v, err, _ := e.loads.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.fetchTimeout)
		defer cancel()
		cfg, err := e.source.WasteRuleConfig(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		e.store(&cachedConfig{generation: gen, config: cfg})
		return cfg, nil
	})
	if err != nil {
		e.logger.Warn("waste rules unavailable, using built-in defaults", zap.Error(err))
		return DefaultConfig(), SourceDefault
	}
	return v.(Config), SourceStore
}

// store publishes c unless a newer generation is already cached.
func (e *Evaluator) store(c *cachedConfig) {
	for {
		cur := e.cache.Load()
		if cur != nil && cur.generation >= c.generation {
			return
		}
		if e.cache.CompareAndSwap(cur, c) {
			return
		}
	}
}

// Evaluate computes the waste for a section of areaSqFt surface area using the
// active rules. Results computed from the built-in defaults are flagged.
func (e *Evaluator) Evaluate(ctx context.Context, areaSqFt float64, complexity roof.Complexity) (Result, error) {
	cfg, src := e.Config(ctx)
	r, err := Evaluate(areaSqFt, complexity, cfg)
	if err != nil {
		return Result{}, err
	}
	r.ConfigSource = src
	r.Degraded = src == SourceDefault
	return r, nil
}
