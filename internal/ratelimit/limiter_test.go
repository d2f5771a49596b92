package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_Allow_WithinBurst(t *testing.T) {
	// Arrange
	l := NewLimiter(2)

	// Act
	first := l.Allow("tenant-1", 1)
	second := l.Allow("tenant-1", 1)

	// Assert
	assert.True(t, first)
	assert.True(t, second)
}

func TestLimiter_Allow_ExhaustsBucket(t *testing.T) {
	// Arrange
	l := NewLimiter(1)

	// Act
	results := make([]bool, 0, 3)
	for i := 0; i < 3; i++ {
		results = append(results, l.Allow("tenant-1", 1))
	}

	// Assert: burst of 1 allows the first call, the immediate follow-ups
	// exceed the token bucket before it has had time to refill.
	assert.True(t, results[0])
	assert.False(t, results[1])
	assert.False(t, results[2])
}

func TestLimiter_Allow_PerTenantBuckets(t *testing.T) {
	// Arrange
	l := NewLimiter(1)
	l.Allow("tenant-1", 1)

	// Act: tenant-2 has never been seen, so it gets its own fresh bucket
	// regardless of tenant-1 having exhausted its burst.
	allowed := l.Allow("tenant-2", 1)

	// Assert
	assert.True(t, allowed)
}

func TestLimiter_NewLimiter_NonPositiveMultiplierDefaultsToOne(t *testing.T) {
	// Arrange
	l := NewLimiter(0)

	// Assert
	assert.Equal(t, 1, l.burstMul)
}
