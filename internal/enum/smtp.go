package enum

// SMTPErrorKind classifies an SMTP send failure per the table in spec.md §4.2.
type SMTPErrorKind string

const (
	SMTPErrorPermanent  SMTPErrorKind = "permanent"
	SMTPErrorTemporary  SMTPErrorKind = "temporary"
	SMTPErrorConnection SMTPErrorKind = "connection"
	SMTPErrorUnknown    SMTPErrorKind = "unknown"
)

func (k SMTPErrorKind) String() string {
	return string(k)
}

// ShouldRetry reports whether a failure of this kind is eligible for a
// requeue. Permanent and unknown failures are not retried.
func (k SMTPErrorKind) ShouldRetry() bool {
	switch k {
	case SMTPErrorTemporary, SMTPErrorConnection:
		return true
	default:
		return false
	}
}
