package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 32 * time.Second},
		{100, 32 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}
