package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const retryBaseDelay = 500 * time.Millisecond

// pingWithRetry calls ping until it succeeds, attempts run out or ctx ends.
// The delay doubles after each failure.
func pingWithRetry(ctx context.Context, what string, attempts int, log zerolog.Logger, ping func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryBaseDelay

	var err error
	for i := 1; i <= attempts; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn().Err(err).
			Str("target", what).
			Int("attempt", i).
			Dur("retry_in", delay).
			Msg("Connection not ready")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
