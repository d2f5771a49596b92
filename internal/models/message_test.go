package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postlane/mailengine/internal/enum"
)

func TestMessage_BeforeCreate_Defaults(t *testing.T) {
	// Arrange
	m := &Message{FromAddress: "Sender@Example.com", ToAddress: "Recipient@Example.com"}

	// Act
	err := m.BeforeCreate(nil)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Equal(t, enum.MessageTypeEmail, m.Type)
	assert.Equal(t, enum.MessageStatusQueued, m.Status)
}

func TestMessage_BeforeCreate_NormalizesAddresses(t *testing.T) {
	// Arrange
	m := &Message{FromAddress: "  Sender@Example.com  ", ToAddress: "Recipient@Example.COM"}

	// Act
	err := m.BeforeCreate(nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", m.FromAddress)
	assert.Equal(t, "recipient@example.com", m.ToAddress)
}

func TestMessage_BeforeCreate_PreservesExplicitID(t *testing.T) {
	// Arrange
	m := &Message{ID: "msg_explicit", FromAddress: "a@example.com", ToAddress: "b@example.com"}

	// Act
	err := m.BeforeCreate(nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "msg_explicit", m.ID)
}
