package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrTenantMissing     = errors.New("tenant is missing")
	ErrConnectionTimeout = errors.New("connection timeout")

	// domain errors
	ErrDomainNotFound     = errors.New("domain not found")
	ErrDomainNotVerified  = errors.New("domain not verified")
	ErrDomainAlreadyOwned = errors.New("domain already registered to another tenant")

	// message errors
	ErrMessageNotFound     = errors.New("message not found")
	ErrNoMessageReady      = errors.New("no message ready to claim")
	ErrRecipientSuppressed = errors.New("recipient suppressed")
	ErrInvalidMessageState = errors.New("invalid message state transition")
	ErrInvalidAddress      = errors.New("from or to address is not a syntactically valid email address")

	// webhook errors
	ErrWebhookNotFound  = errors.New("webhook not found")
	ErrWebhookInactive  = errors.New("webhook inactive")
	ErrNoDeliveryReady  = errors.New("no webhook delivery ready to claim")
	ErrDeliveryTerminal = errors.New("webhook delivery already terminal")

	// suppression errors
	ErrSuppressionNotFound = errors.New("suppression not found")

	// api key errors
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrRateLimited     = errors.New("rate limit exceeded")
)
