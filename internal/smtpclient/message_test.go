package smtpclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postlane/mailengine/internal/models"
)

func TestBuildRawMessage_PlainTextOnly(t *testing.T) {
	// Arrange
	msg := &models.Message{
		FromAddress: "sender@example.com",
		ToAddress:   "recipient@example.com",
		Subject:     "hello",
		BodyText:    "plain body",
	}

	// Act
	raw, err := BuildRawMessage(msg, "msg123@mailengine.local")

	// Assert
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "From: sender@example.com")
	assert.Contains(t, out, "To: recipient@example.com")
	assert.Contains(t, out, "Subject: hello")
	assert.Contains(t, out, "Message-ID: <msg123@mailengine.local>")
	assert.Contains(t, out, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, out, "plain body")
	assert.NotContains(t, out, "multipart/alternative")
}

func TestBuildRawMessage_HTMLOnly(t *testing.T) {
	// Arrange
	msg := &models.Message{
		FromAddress: "sender@example.com",
		ToAddress:   "recipient@example.com",
		Subject:     "hello",
		BodyHTML:    "<p>hi</p>",
	}

	// Act
	raw, err := BuildRawMessage(msg, "msg123@mailengine.local")

	// Assert
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, out, "<p>hi</p>")
}

func TestBuildRawMessage_MultipartAlternative(t *testing.T) {
	// Arrange
	msg := &models.Message{
		FromAddress: "sender@example.com",
		ToAddress:   "recipient@example.com",
		Subject:     "hello",
		BodyText:    "plain body",
		BodyHTML:    "<p>hi</p>",
	}

	// Act
	raw, err := BuildRawMessage(msg, "msg123@mailengine.local")

	// Assert
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "multipart/alternative; boundary=")
	assert.True(t, strings.Count(out, "Content-Type: text/plain; charset=UTF-8") >= 1)
	assert.True(t, strings.Count(out, "Content-Type: text/html; charset=UTF-8") >= 1)
}
