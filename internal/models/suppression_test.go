package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuppression_BeforeCreate_NormalizesEmail(t *testing.T) {
	// Arrange
	s := &Suppression{Email: "  Bounced@Example.COM  "}

	// Act
	err := s.BeforeCreate(nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "bounced@example.com", s.Email)
	assert.NotEmpty(t, s.ID)
}
