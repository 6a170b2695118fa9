// Package fx provides the currency conversion collaborator: live rate
// lookup with an optional Redis-backed cache in front of it.
package fx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"impegni/internal/core"
)

// RateSource returns the live conversion rate from an original currency
// to the base currency. Lookups are only performed for unpaid periods;
// settled payments keep the rate in force when they were recorded.
type RateSource interface {
	RateToBase(ctx context.Context, currency string) (float64, error)
}

// StaticRates is a fixed in-memory rate table. It backs local development
// and tests, and serves as the upstream source behind the Redis cache.
type StaticRates struct {
	mu    sync.RWMutex
	base  string
	rates map[string]float64
}

func NewStaticRates(base string, rates map[string]float64) *StaticRates {
	normalized := make(map[string]float64, len(rates))
	for code, rate := range rates {
		normalized[strings.ToUpper(code)] = rate
	}
	return &StaticRates{
		base:  strings.ToUpper(base),
		rates: normalized,
	}
}

func (s *StaticRates) RateToBase(_ context.Context, currency string) (float64, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == s.base {
		return 1.0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.rates[code]
	if !ok {
		return 0, fmt.Errorf("no rate for currency %s: %w", code, core.ErrNotFound)
	}
	return rate, nil
}

// SetRate updates or adds a rate. Safe for concurrent use.
func (s *StaticRates) SetRate(currency string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[strings.ToUpper(currency)] = rate
}
