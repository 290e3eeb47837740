// Package coalesce merges concurrent identical requests into a single
// underlying call and serves repeat requests from the artifact cache.
//
// The guarantee callers rely on: for a given key there is at most one
// in-flight fetch at a time, every concurrent caller shares its result, and
// a failed fetch never poisons the key: the next call simply fetches again.
package coalesce

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"muse/internal/logging"
	"muse/internal/services"
)

// Cache is the subset of the artifact cache the coalescer consults before
// and after a fetch.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
}

// FetchFunc produces the artifact for a key. It runs at most once per key
// across concurrent Do calls.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Coalescer deduplicates concurrent fetches per key and writes successful
// results through to the cache.
type Coalescer struct {
	cache  Cache
	logger *slog.Logger
	group  singleflight.Group
}

// New constructs a Coalescer. cache may be nil, in which case every Do call
// that is not joined to an in-flight fetch invokes its FetchFunc.
func New(cache Cache, logger *slog.Logger) *Coalescer {
	return &Coalescer{
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "coalesce"),
	}
}

// Do returns the artifact for key. A cache hit bypasses fetching entirely.
// Otherwise fetch runs at most once across concurrent callers with the same
// key; its result (or error) is shared by all of them, its successful
// output is written through to the cache, and the in-flight entry is
// dropped once the call settles regardless of outcome. fromCache reports
// whether the artifact was served from the cache.
//
// The fetch runs with the context of the caller that started the flight;
// later joiners share that call and therefore that context.
func (c *Coalescer) Do(ctx context.Context, key string, fetch FetchFunc) (data []byte, fromCache bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, services.Wrap(services.ErrValidation, "coalesce", "do", "request key must not be empty", nil)
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached, true, nil
		}
	}

	result, err, shared := c.group.Do(key, func() (any, error) {
		fetched, fetchErr := fetch(ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if c.cache != nil {
			if putErr := c.cache.Put(key, fetched); putErr != nil {
				// A cache write failure costs a future regeneration, never
				// the current result.
				c.logger.Warn("artifact cache write failed",
					logging.String(logging.FieldEventType, "coalesce_cache_write_failed"),
					logging.String("request_key", key),
					logging.Error(putErr))
			}
		}
		return fetched, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		c.logger.Debug("request joined in-flight call",
			logging.String("request_key", key))
	}
	return result.([]byte), false, nil
}
