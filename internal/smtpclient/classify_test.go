package smtpclient

import (
	"errors"
	"net"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/postlane/mailengine/internal/enum"
)

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassify_PermanentHardBounce(t *testing.T) {
	// Arrange
	err := &textproto.Error{Code: 550, Msg: "mailbox unavailable"}

	// Act
	classified := Classify(err)

	// Assert
	assert.Equal(t, enum.SMTPErrorPermanent, classified.Kind)
	assert.Equal(t, 550, classified.Code)
	assert.True(t, classified.HardBounce)
	assert.False(t, classified.Kind.ShouldRetry())
}

func TestClassify_PermanentNotHardBounce(t *testing.T) {
	// Arrange: 501 is permanent but not in the hard-bounce code set.
	err := &textproto.Error{Code: 501, Msg: "syntax error in parameters"}

	// Act
	classified := Classify(err)

	// Assert
	assert.Equal(t, enum.SMTPErrorPermanent, classified.Kind)
	assert.False(t, classified.HardBounce)
}

func TestClassify_Temporary(t *testing.T) {
	// Arrange
	err := &textproto.Error{Code: 450, Msg: "mailbox busy"}

	// Act
	classified := Classify(err)

	// Assert
	assert.Equal(t, enum.SMTPErrorTemporary, classified.Kind)
	assert.True(t, classified.Kind.ShouldRetry())
	assert.False(t, classified.HardBounce)
}

func TestClassify_UnknownStatusCode(t *testing.T) {
	// Arrange: outside both the 4xx and 5xx ranges.
	err := &textproto.Error{Code: 250, Msg: "unexpected success-range code on an error path"}

	// Act
	classified := Classify(err)

	// Assert
	assert.Equal(t, enum.SMTPErrorUnknown, classified.Kind)
	assert.False(t, classified.Kind.ShouldRetry())
}

func TestClassify_NetworkError(t *testing.T) {
	// Arrange
	err := &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	// Act
	classified := Classify(err)

	// Assert
	assert.Equal(t, enum.SMTPErrorConnection, classified.Kind)
	assert.True(t, classified.Kind.ShouldRetry())
}

func TestClassify_ClosedConnection(t *testing.T) {
	// Act
	classified := Classify(net.ErrClosed)

	// Assert
	assert.Equal(t, enum.SMTPErrorConnection, classified.Kind)
}

func TestClassify_UnrecognizedError(t *testing.T) {
	// Arrange
	err := errors.New("something unrelated")

	// Act
	classified := Classify(err)

	// Assert
	assert.Equal(t, enum.SMTPErrorUnknown, classified.Kind)
	assert.Equal(t, err, classified.Err)
}

func TestClassified_ErrorAndUnwrap(t *testing.T) {
	// Arrange
	cause := errors.New("boom")
	classified := &Classified{Kind: enum.SMTPErrorUnknown, Err: cause}

	// Assert
	assert.Equal(t, "boom", classified.Error())
	assert.Equal(t, cause, classified.Unwrap())
}
