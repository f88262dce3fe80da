// Package schema caches directory schema capability probes.
package schema

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Prober answers whether the directory schema defines an attribute. Probes
// are idempotent and their answers do not change for the life of the process.
type Prober interface {
	AttributeDefined(ctx context.Context, name string) (bool, error)
}

// Cache is a read-through, process-lifetime cache over a Prober. It is owned
// by the composition root and handed to services by reference, so the
// "check once per process" behavior is explicit rather than a hidden global.
// Concurrent probes for the same attribute are collapsed into one directory
// round trip; errors are not cached so a transient failure does not pin a
// wrong answer.
type Cache struct {
	prober Prober
	logger *slog.Logger

	group   singleflight.Group
	results sync.Map // attribute name -> bool
}

// NewCache wraps a prober with caching.
func NewCache(prober Prober, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		prober: prober,
		logger: logger.With("subsystem", "schema"),
	}
}

// HasAttribute reports whether the schema defines the named attribute,
// probing the directory at most once per name.
func (c *Cache) HasAttribute(ctx context.Context, name string) (bool, error) {
	if cached, ok := c.results.Load(name); ok {
		return cached.(bool), nil
	}

	value, err, _ := c.group.Do(name, func() (any, error) {
		if cached, ok := c.results.Load(name); ok {
			return cached.(bool), nil
		}

		defined, err := c.prober.AttributeDefined(ctx, name)
		if err != nil {
			return false, err
		}

		c.logger.Debug("schema attribute probed",
			"attribute", name,
			"defined", defined)
		c.results.Store(name, defined)
		return defined, nil
	})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}
