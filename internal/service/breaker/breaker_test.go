package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 1, want: 2 * time.Second},
		{failures: 2, want: 4 * time.Second},
		{failures: 3, want: 8 * time.Second},
		{failures: 6, want: 64 * time.Second},
		{failures: 7, want: 120 * time.Second},
		{failures: 30, want: 120 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.failures), "failures=%d", tt.failures)
	}
}

func TestRegistry_ThreeFailuresOpenForEightSeconds(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	r := NewRegistry(c.Now)

	for i := 0; i < 3; i++ {
		r.RecordFailure(ProviderCoinGecko)
	}

	assert.True(t, r.IsOpen(ProviderCoinGecko))
	c.now = c.now.Add(7999 * time.Millisecond)
	assert.True(t, r.IsOpen(ProviderCoinGecko))
	c.now = c.now.Add(2 * time.Millisecond)
	assert.False(t, r.IsOpen(ProviderCoinGecko))
}

func TestRegistry_SuccessResets(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	r := NewRegistry(c.Now)

	r.RecordFailure(ProviderFinnhub)
	r.RecordFailure(ProviderFinnhub)
	r.RecordSuccess(ProviderFinnhub)

	assert.False(t, r.IsOpen(ProviderFinnhub))
	assert.Equal(t, 0, r.Snapshot()[ProviderFinnhub].Failures)

	r.RecordFailure(ProviderFinnhub)
	assert.Equal(t, c.now.Add(2*time.Second), r.Snapshot()[ProviderFinnhub].OpenUntil)
}

func TestCall_OpenCircuitNeverInvokes(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	r := NewRegistry(c.Now)
	r.RecordFailure(ProviderAlphaVantage)

	called := false
	_, err := Call(context.Background(), r, ProviderAlphaVantage, func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, "circuit_open:alphavantage", err.Error())
	assert.False(t, called)
}

func TestCall_FailureReturnsFallback(t *testing.T) {
	r := NewRegistry(nil)

	got, err := Call(context.Background(), r, ProviderCryptoPanic, func(ctx context.Context) ([]string, error) {
		return nil, errors.New("boom")
	}, Fallback([]string{}))

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, r.IsOpen(ProviderCryptoPanic))
}

func TestCall_UnknownProviderTrackedLazily(t *testing.T) {
	r := NewRegistry(nil)

	_, err := Call(context.Background(), r, "somewhere", func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	}, nil)

	require.Error(t, err)
	assert.True(t, r.IsOpen("somewhere"))
}
