package dkim

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func TestNewSigner_ParsesPKCS1Key(t *testing.T) {
	// Arrange
	keyPEM := generateTestKeyPEM(t)

	// Act
	signer, err := NewSigner("example.com", "default", keyPEM)

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

func TestNewSigner_InvalidPEM(t *testing.T) {
	// Act
	signer, err := NewSigner("example.com", "default", "not a pem block")

	// Assert
	assert.Error(t, err)
	assert.Nil(t, signer)
}

func TestNewSigner_UnsupportedBlockType(t *testing.T) {
	// Arrange
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte("irrelevant")}
	keyPEM := string(pem.EncodeToMemory(block))

	// Act
	signer, err := NewSigner("example.com", "default", keyPEM)

	// Assert
	assert.Error(t, err)
	assert.Nil(t, signer)
}

func TestSigner_Sign_PrependsDKIMHeader(t *testing.T) {
	// Arrange
	keyPEM := generateTestKeyPEM(t)
	signer, err := NewSigner("example.com", "default", keyPEM)
	require.NoError(t, err)

	raw := []byte("From: sender@example.com\r\n" +
		"To: recipient@example.com\r\n" +
		"Subject: hello\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"Message-Id: <abc@example.com>\r\n" +
		"Content-Type: text/plain\r\n" +
		"MIME-Version: 1.0\r\n" +
		"\r\n" +
		"hello world\r\n")

	// Act
	signed, err := signer.Sign(raw)

	// Assert
	require.NoError(t, err)
	assert.Contains(t, string(signed), "DKIM-Signature:")
}
