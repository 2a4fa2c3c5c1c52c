// Package collector drives one collection pass over the configured registries:
// fetch each statistics file, parse it and hand the result to every sink.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"rirstats/internal/config"
	"rirstats/internal/delegation"
	"rirstats/internal/domain"
)

// Fetcher retrieves the full text behind a URL.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Sink receives every parsed batch, in source order.
type Sink interface {
	Emit(ctx context.Context, batch domain.AllocationBatch) error
}

// CountryChecker counts records whose country looks wrong; it never alters them.
type CountryChecker interface {
	CountMismatches(source string, records []domain.AllocationRecord) int
}

type Outcome struct {
	Sources           int
	Failed            int
	Records           int
	Dropped           int
	CountryMismatches int
}

type Collector struct {
	fetcher         Fetcher
	sources         []config.Registry
	sourceProvider  func() []config.Registry
	sinks           []Sink
	checker         CountryChecker
	continueOnError bool
	now             func() time.Time

	refreshOnce singleflight.Group
}

type Option func(*Collector)

func WithSinks(sinks ...Sink) Option {
	return func(c *Collector) {
		c.sinks = append(c.sinks, sinks...)
	}
}

func WithCountryChecker(checker CountryChecker) Option {
	return func(c *Collector) {
		c.checker = checker
	}
}

// WithContinueOnError makes a failed source a warning instead of ending the pass.
func WithContinueOnError(enabled bool) Option {
	return func(c *Collector) {
		c.continueOnError = enabled
	}
}

// WithSourceProvider makes every pass read its sources from provider, so that
// reloaded settings apply to the next pass. An empty result falls back to the
// sources given to New.
func WithSourceProvider(provider func() []config.Registry) Option {
	return func(c *Collector) {
		c.sourceProvider = provider
	}
}

func New(fetcher Fetcher, sources []config.Registry, opts ...Option) (*Collector, error) {
	if fetcher == nil {
		return nil, errors.New("collector: fetcher cannot be nil")
	}
	if len(sources) == 0 {
		return nil, config.ErrNoSources
	}

	c := &Collector{
		fetcher: fetcher,
		sources: append([]config.Registry(nil), sources...),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Collect processes every source in order. Unless continuing on error, the
// first failing fetch or sink ends the pass and is returned.
func (c *Collector) Collect(ctx context.Context) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sources := c.currentSources()
	outcome := &Outcome{Sources: len(sources)}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		err := c.collectSource(ctx, src, outcome)
		if err == nil {
			continue
		}
		if !c.continueOnError || errors.Is(err, context.Canceled) {
			return outcome, err
		}

		outcome.Failed++
		log.Warn("Registry collection failed", "source", src.Name, "error", err)
	}

	return outcome, nil
}

func (c *Collector) currentSources() []config.Registry {
	if c.sourceProvider != nil {
		if sources := c.sourceProvider(); len(sources) > 0 {
			return sources
		}
	}
	return c.sources
}

func (c *Collector) collectSource(ctx context.Context, src config.Registry, outcome *Outcome) error {
	started := c.now()

	text, err := c.fetcher.FetchText(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", src.Name, err)
	}

	report := delegation.Parse(text)
	batch := domain.AllocationBatch{
		Source:           src.Name,
		URL:              src.URL,
		FetchedAt:        started.UTC(),
		Records:          report.Records,
		Lines:            report.Lines,
		Dropped:          report.Dropped(),
		WrongFieldCount:  report.WrongFieldCount,
		InvalidBlockSize: report.InvalidBlockSize,
	}

	log.Debug("Registry parsed",
		"source", src.Name,
		"lines", report.Lines,
		"records", len(report.Records),
		"wrong_field_count", report.WrongFieldCount,
		"invalid_block_size", report.InvalidBlockSize,
	)

	mismatches := 0
	if c.checker != nil {
		mismatches = c.checker.CountMismatches(src.Name, batch.Records)
	}

	for _, sink := range c.sinks {
		if err := sink.Emit(ctx, batch); err != nil {
			return fmt.Errorf("emit %s: %w", src.Name, err)
		}
	}

	outcome.Records += len(batch.Records)
	outcome.Dropped += batch.Dropped
	outcome.CountryMismatches += mismatches

	log.Info("Registry collected",
		"source", src.Name,
		"records", len(batch.Records),
		"dropped", batch.Dropped,
		"elapsed", c.now().Sub(started).Round(time.Millisecond),
	)
	return nil
}

// Refresh runs Collect, sharing one pass between callers that overlap. It is
// the entry point for refreshes requested outside RunRefreshLoop; a call that
// arrives while the loop is mid-pass joins that pass instead of starting a
// second one.
func (c *Collector) Refresh(ctx context.Context, reason string) (*Outcome, error) {
	result, err, shared := c.refreshOnce.Do("refresh", func() (interface{}, error) {
		log.Debug("Registry refresh started", "reason", reason)
		return c.Collect(ctx)
	})
	if shared {
		log.Debug("Registry refresh joined a running pass", "reason", reason)
	}
	outcome, _ := result.(*Outcome)
	return outcome, err
}
