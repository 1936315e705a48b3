package stream

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	cfg := DefaultConnectionConfig()

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{retry: 0, want: time.Second},
		{retry: 1, want: 2 * time.Second},
		{retry: 2, want: 4 * time.Second},
		{retry: 3, want: 8 * time.Second},
		{retry: 4, want: 16 * time.Second},
		{retry: 5, want: 32 * time.Second},
		{retry: -1, want: time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.BackoffDelay(tt.retry), "retry %d", tt.retry)
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.MaxBackoff = 10 * time.Second

	assert.Equal(t, 8*time.Second, cfg.BackoffDelay(3))
	assert.Equal(t, 10*time.Second, cfg.BackoffDelay(4))
	assert.Equal(t, 10*time.Second, cfg.BackoffDelay(30))
}

func TestBackoffDelay_DoesNotOverflow(t *testing.T) {
	cfg := DefaultConnectionConfig()
	assert.Equal(t, time.Duration(math.MaxInt64), cfg.BackoffDelay(200))
}

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig()

	assert.True(t, cfg.RetryEnabled)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Zero(t, cfg.MaxBackoff)
	assert.Zero(t, cfg.ReadTimeout)
}
