// Package cache provides the key-value gateway for per-location enrichment
// results, keyed by rounded coordinates plus an optional radius.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
)

// Kind distinguishes cache namespaces.
type Kind string

const (
	KindDemographicProfile   Kind = "demographic_profile"
	KindLocationIntelligence Kind = "location_intelligence"
	KindViability            Kind = "viability"
	KindCompetitive          Kind = "competitive"
	KindCompositeAnalysis    Kind = "composite_analysis"
)

// Gateway is a pure I/O abstraction; the only logic above it is key
// derivation. Concurrent writes to the same key are last-write-wins.
type Gateway interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMulti(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
}

// Key derives the cache key for a coordinate within a namespace.
func Key(kind Kind, lat, lng float64) string {
	return fmt.Sprintf("%s:%s", kind, domain.Coordinates{Lat: lat, Lng: lng}.Key())
}

// KeyWithRadius derives a key that also scopes the entry to a search radius.
func KeyWithRadius(kind Kind, lat, lng, radius float64) string {
	return fmt.Sprintf("%s:%s:r%.1f", kind, domain.Coordinates{Lat: lat, Lng: lng}.Key(), radius)
}

// GetTyped reads and JSON-decodes a single entry.
func GetTyped[T any](ctx context.Context, g Gateway, key string) (T, bool, error) {
	var v T
	raw, ok, err := g.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return v, true, nil
}

// SetTyped JSON-encodes and stores a single entry.
func SetTyped[T any](ctx context.Context, g Gateway, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return g.Set(ctx, key, raw, ttl)
}
