package breaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	ProviderCoinGecko    = "coingecko"
	ProviderAlphaVantage = "alphavantage"
	ProviderCryptoPanic  = "cryptopanic"
	ProviderFinnhub      = "finnhub"
	ProviderFearGreed    = "feargreed"
	ProviderAltSeason    = "altseason"
	ProviderRSS          = "rss"
	ProviderOpenAI       = "openai"
	ProviderDiscord      = "discord"
)

const (
	baseBackoff = 2 * time.Second
	maxBackoff  = 120 * time.Second
)

var ErrCircuitOpen = errors.New("circuit open")

// OpenError names the provider whose circuit short-circuited the call.
type OpenError struct {
	Provider string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit_open:%s", e.Provider)
}

func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

type state struct {
	failures  int
	openUntil time.Time
}

type Snapshot struct {
	Failures  int       `json:"failures"`
	OpenUntil time.Time `json:"openUntil"`
}

// Registry tracks consecutive failures per upstream provider.
type Registry struct {
	mu     sync.Mutex
	states map[string]*state
	now    func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}

	r := &Registry{states: make(map[string]*state), now: now}
	for _, provider := range []string{
		ProviderCoinGecko,
		ProviderAlphaVantage,
		ProviderCryptoPanic,
		ProviderFinnhub,
		ProviderFearGreed,
		ProviderAltSeason,
	} {
		r.states[provider] = &state{}
	}

	return r
}

// Backoff is the open window after n consecutive failures.
func Backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	backoff := float64(baseBackoff) * math.Pow(2, float64(failures-1))
	if backoff > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(backoff)
}

func (r *Registry) stateFor(provider string) *state {
	st, ok := r.states[provider]
	if !ok {
		st = &state{}
		r.states[provider] = st
	}
	return st
}

func (r *Registry) IsOpen(provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.now().Before(r.stateFor(provider).openUntil)
}

func (r *Registry) RecordFailure(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.stateFor(provider)
	st.failures++
	st.openUntil = r.now().Add(Backoff(st.failures))
}

func (r *Registry) RecordSuccess(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.stateFor(provider)
	st.failures = 0
	st.openUntil = time.Time{}
}

func (r *Registry) Snapshot() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.states))
	for provider, st := range r.states {
		out[provider] = Snapshot{Failures: st.failures, OpenUntil: st.openUntil}
	}
	return out
}

// Call runs fn unless the provider circuit is open. On failure the
// fallback is returned when one is given, otherwise the error.
func Call[T any](ctx context.Context, r *Registry, provider string, fn func(ctx context.Context) (T, error), fallback *T) (T, error) {
	var zero T
	if r.IsOpen(provider) {
		return zero, &OpenError{Provider: provider}
	}

	result, err := fn(ctx)
	if err != nil {
		r.RecordFailure(provider)
		if fallback != nil {
			return *fallback, nil
		}
		return zero, err
	}

	r.RecordSuccess(provider)
	return result, nil
}

// Fallback is a small helper for passing literal fallbacks to Call.
func Fallback[T any](v T) *T {
	return &v
}
