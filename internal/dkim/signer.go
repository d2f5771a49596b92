package dkim

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/emersion/go-msgauth/dkim"
)

// Signer signs a single domain's outbound mail with one DKIM key pair.
// Adapted from modfin-brev/smtpx/envelope/signer/dkim.go: a PEM-encoded
// RSA private key loaded into a crypto.Signer and handed to
// github.com/emersion/go-msgauth/dkim.
type Signer struct {
	options *dkim.SignOptions
}

// NewSigner builds a Signer for one domain/selector/private-key triple.
// The canonical header set matches spec.md §4.2: From, To, Subject, Date,
// Message-Id, plus the MIME headers.
func NewSigner(domain, selector, privateKeyPEM string) (*Signer, error) {
	signer, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	return &Signer{
		options: &dkim.SignOptions{
			Domain:                 domain,
			Selector:               selector,
			Signer:                 signer,
			Hash:                   crypto.SHA256,
			HeaderCanonicalization: dkim.CanonicalizationRelaxed,
			BodyCanonicalization:   dkim.CanonicalizationRelaxed,
			HeaderKeys: []string{
				"From", "To", "Subject", "Date", "Message-Id",
				"Content-Type", "MIME-Version",
			},
		},
	}, nil
}

// Sign returns raw with a DKIM-Signature header prepended. A failure here
// is never a send failure (spec.md §4.2: "the client must still attempt
// the send unsigned and surface the failure as a warning") — callers are
// expected to log the error and fall through to the unsigned raw bytes.
func (s *Signer) Sign(raw []byte) ([]byte, error) {
	out := &bytes.Buffer{}
	if err := dkim.Sign(out, bytes.NewReader(raw), s.options); err != nil {
		return nil, fmt.Errorf("dkim: sign failed: %w", err)
	}
	return out.Bytes(), nil
}

func parsePrivateKey(pemStr string) (crypto.Signer, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("dkim: could not decode PEM private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("dkim: could not parse PKCS1 private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("dkim: could not parse PKCS8 private key: %w", err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("dkim: PKCS8 key is not a crypto.Signer")
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("dkim: unsupported PEM block type %q", block.Type)
	}
}
