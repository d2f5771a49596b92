package smtpclient

import (
	"errors"
	"net"
	"net/textproto"

	"github.com/postlane/mailengine/internal/enum"
)

// Classified is a send failure tagged with a retryability kind and,
// where the transport provided one, the raw SMTP response code
// (spec.md §4.2).
type Classified struct {
	Kind       enum.SMTPErrorKind
	Code       int
	HardBounce bool
	Err        error
}

func (c *Classified) Error() string {
	return c.Err.Error()
}

func (c *Classified) Unwrap() error {
	return c.Err
}

var hardBounceCodes = map[int]struct{}{
	550: {}, 551: {}, 552: {}, 553: {}, 554: {},
}

// Classify tags a send error with the kind the Email Worker's retry and
// suppression logic switches on, per spec.md §4.2's table.
func Classify(err error) *Classified {
	if err == nil {
		return nil
	}

	var textErr *textproto.Error
	if errors.As(err, &textErr) {
		code := textErr.Code
		switch {
		case code >= 500 && code <= 599:
			_, hard := hardBounceCodes[code]
			return &Classified{Kind: enum.SMTPErrorPermanent, Code: code, HardBounce: hard, Err: err}
		case code >= 400 && code <= 499:
			return &Classified{Kind: enum.SMTPErrorTemporary, Code: code, Err: err}
		default:
			return &Classified{Kind: enum.SMTPErrorUnknown, Code: code, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Classified{Kind: enum.SMTPErrorConnection, Err: err}
	}
	if errors.Is(err, net.ErrClosed) {
		return &Classified{Kind: enum.SMTPErrorConnection, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Classified{Kind: enum.SMTPErrorConnection, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Classified{Kind: enum.SMTPErrorConnection, Err: err}
	}

	return &Classified{Kind: enum.SMTPErrorUnknown, Err: err}
}
