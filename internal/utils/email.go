package utils

import (
	"strings"
)

// NormalizeEmail lowercases and trims an address. Suppression lookups,
// suppression inserts, and message inserts must all apply this same
// normalization or suppression can be silently bypassed (spec.md §9).
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomainFromEmail returns the lowercased domain part of an
// address, unwrapping a "Name <addr@domain>" form first. Used by the
// Email Worker to find the From domain to resolve a DKIM signer for
// (spec.md §4.3 step 2).
func ExtractDomainFromEmail(email string) string {
	if email == "" {
		return ""
	}

	// Remove any potential surrounding whitespace
	email = strings.TrimSpace(email)

	// Handle potential angle brackets in email (e.g., "Name <email@domain.com>")
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	domain := strings.TrimSpace(parts[1])

	domain = strings.ToLower(domain)

	return domain
}
