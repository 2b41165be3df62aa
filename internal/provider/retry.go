package provider

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// RetryStrategy bounds how often a transient provider error is retried at
// the same zoom level
type RetryStrategy struct {
	Intervals  []time.Duration // wait before retry n; the last one repeats
	MaxRetries int

	// Fatal surfaces provider errors once retries run out instead of
	// downgrading them to an unavailable tile
	Fatal bool
}

// DefaultRetryStrategy returns the default backoff
func DefaultRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		Intervals: []time.Duration{
			250 * time.Millisecond,
			time.Second,
			2 * time.Second,
		},
		MaxRetries: 3,
	}
}

func (s *RetryStrategy) wait(attempt int) time.Duration {
	if len(s.Intervals) == 0 {
		return 0
	}
	if attempt >= len(s.Intervals) {
		return s.Intervals[len(s.Intervals)-1]
	}
	return s.Intervals[attempt]
}

// Retry wraps p so provider errors are retried per the strategy. Unavailable
// tiles and context errors pass through untouched.
func Retry(p Provider, strategy *RetryStrategy, log logrus.FieldLogger) Provider {
	if strategy == nil {
		strategy = DefaultRetryStrategy()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return Func(func(ctx context.Context, key tile.QuadKey) (image.Image, error) {
		var lastErr error
		for attempt := 0; attempt <= strategy.MaxRetries; attempt++ {
			if attempt > 0 {
				delay := strategy.wait(attempt - 1)
				log.WithFields(logrus.Fields{
					"quadkey": key,
					"attempt": attempt,
					"delay":   delay,
				}).Warnf("retrying tile: %v", lastErr)

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}

			img, err := p.Fetch(ctx, key)
			if err == nil {
				return img, nil
			}
			if !errors.Is(err, ErrProvider) || errors.Is(err, ErrTileUnavailable) {
				return nil, err
			}
			lastErr = err
		}

		if strategy.Fatal {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: gave up after %d attempts: %w", ErrTileUnavailable, strategy.MaxRetries+1, lastErr)
	})
}
