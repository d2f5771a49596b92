package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatus_IsTerminal(t *testing.T) {
	terminal := []MessageStatus{
		MessageStatusSent, MessageStatusDelivered, MessageStatusBounced,
		MessageStatusFailed, MessageStatusRejected,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "status=%s", s)
	}

	nonTerminal := []MessageStatus{MessageStatusQueued, MessageStatusProcessing}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "status=%s", s)
	}
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "email", MessageTypeEmail.String())
	assert.Equal(t, "sms", MessageTypeSMS.String())
}
