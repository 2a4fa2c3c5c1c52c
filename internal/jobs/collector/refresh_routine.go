package collector

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

const defaultRefreshInterval = 24 * time.Hour

// RunRefreshLoop refreshes immediately, then on every tick of interval and on
// every value received from trigger, until ctx is done.
func (c *Collector) RunRefreshLoop(ctx context.Context, interval time.Duration, trigger <-chan struct{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.triggerRefresh(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.triggerRefresh(ctx, "scheduled")
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			c.triggerRefresh(ctx, "signal")
			drainTicker(ticker)
			ticker.Reset(interval)
		}
	}
}

func (c *Collector) triggerRefresh(ctx context.Context, reason string) {
	outcome, err := c.Refresh(ctx, reason)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Registry refresh canceled", "reason", reason)
		} else {
			log.Error("Registry refresh failed", "reason", reason, "error", err)
		}
		return
	}
	if outcome == nil {
		return
	}

	log.Info("Registry refresh completed",
		"reason", reason,
		"sources", outcome.Sources,
		"failed", outcome.Failed,
		"records", outcome.Records,
		"dropped", outcome.Dropped,
		"country_mismatches", outcome.CountryMismatches,
	)
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}
