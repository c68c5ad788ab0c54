package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// migrator brings the schema up to date. The API serves from the local
// cache while the database is unreachable, so a failed attempt is retried
// in the background instead of stopping the process.
type migrator struct {
	apply      func(ctx context.Context) error
	timeout    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

func (m migrator) attempt(ctx context.Context) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.apply(attemptCtx)
}

// retry keeps attempting with exponential backoff until an attempt
// succeeds or ctx ends. It reports whether migrations were applied.
func (m migrator) retry(ctx context.Context) bool {
	backoff := m.minBackoff
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		backoff = min(backoff*2, m.maxBackoff)

		err := m.attempt(ctx)
		if err == nil {
			m.logger.Info("database reachable, migrations applied")
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		m.logger.Warn("database still unavailable", zap.Error(err), zap.Duration("retry_in", backoff))
	}
}
