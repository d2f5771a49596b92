package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMTPErrorKind_ShouldRetry(t *testing.T) {
	tests := []struct {
		kind   SMTPErrorKind
		retry  bool
	}{
		{SMTPErrorTemporary, true},
		{SMTPErrorConnection, true},
		{SMTPErrorPermanent, false},
		{SMTPErrorUnknown, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.retry, tt.kind.ShouldRetry(), "kind=%s", tt.kind)
	}
}

func TestSMTPErrorKind_String(t *testing.T) {
	assert.Equal(t, "permanent", SMTPErrorPermanent.String())
}
