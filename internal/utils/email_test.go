package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "bounced@example.com", NormalizeEmail("  Bounced@Example.COM  "))
}

func TestExtractDomainFromEmail(t *testing.T) {
	// Arrange
	cases := map[string]string{
		"sender@example.com":          "example.com",
		"Sender@Example.COM":          "example.com",
		"Name <sender@example.com>":   "example.com",
		"no-at-sign":                  "",
		"trailing@":                   "",
		"":                            "",
	}

	for input, want := range cases {
		// Act
		got := ExtractDomainFromEmail(input)

		// Assert
		assert.Equal(t, want, got, "input %q", input)
	}
}
