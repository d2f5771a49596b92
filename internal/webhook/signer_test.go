package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_IsDeterministic(t *testing.T) {
	// Arrange
	payload := []byte(`{"event":"message.sent"}`)

	// Act
	first := Sign("secret", 1700000000000, payload)
	second := Sign("secret", 1700000000000, payload)

	// Assert
	assert.Equal(t, first, second)
	assert.Contains(t, first, "v1=")
}

func TestSign_DifferentSecretsProduceDifferentSignatures(t *testing.T) {
	// Arrange
	payload := []byte(`{"event":"message.sent"}`)

	// Act
	a := Sign("secret-a", 1700000000000, payload)
	b := Sign("secret-b", 1700000000000, payload)

	// Assert
	assert.NotEqual(t, a, b)
}

func TestSign_DifferentTimestampsProduceDifferentSignatures(t *testing.T) {
	// Arrange
	payload := []byte(`{"event":"message.sent"}`)

	// Act
	a := Sign("secret", 1700000000000, payload)
	b := Sign("secret", 1700000000001, payload)

	// Assert
	assert.NotEqual(t, a, b)
}
