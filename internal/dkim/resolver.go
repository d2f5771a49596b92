package dkim

import (
	"context"
	"sync"
	"time"

	"github.com/postlane/mailengine/internal/repository"
)

// cacheEntry pairs a resolved Signer (nil if the domain isn't eligible to
// sign) with the time it was resolved, for TTL expiry.
type cacheEntry struct {
	signer     *Signer
	resolvedAt time.Time
}

// cacheKey scopes the cache by tenant, not just domain string: domains is
// unique only on (api_key_id, domain), so two tenants can hold a row for
// the same domain, and caching by domain alone would let one tenant's
// result leak into another's lookup.
type cacheKey struct {
	apiKeyID string
	domain   string
}

// Resolver looks up the DKIM signer for a message's tenant and From
// domain, caching the result for a short TTL so the Email Worker's claim
// loop doesn't hit the Store on every send (spec.md §3: "per-domain DKIM
// lookup may use a short TTL cache"). The lock-guarded map follows the
// same shape as modfin-brev/smtpx/pool's connections map.
type Resolver struct {
	domains repository.DomainRepository
	ttl     time.Duration

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

func NewResolver(domains repository.DomainRepository, ttl time.Duration) *Resolver {
	return &Resolver{
		domains: domains,
		ttl:     ttl,
		cache:   make(map[cacheKey]cacheEntry),
	}
}

// Resolve returns the Signer for apiKeyID's fromDomain, or nil if the
// domain is unverified, has no key on file, or the key failed to parse —
// in every one of those cases the caller sends unsigned (spec.md §4.3
// step 2, "look it up for the tenant").
func (r *Resolver) Resolve(ctx context.Context, apiKeyID, fromDomain string) *Signer {
	key := cacheKey{apiKeyID: apiKeyID, domain: fromDomain}

	if entry, ok := r.cached(key); ok {
		return entry.signer
	}

	signer := r.resolve(ctx, apiKeyID, fromDomain)
	r.store(key, signer)
	return signer
}

func (r *Resolver) cached(key cacheKey) (cacheEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[key]
	if !ok || time.Since(entry.resolvedAt) > r.ttl {
		return cacheEntry{}, false
	}
	return entry, true
}

func (r *Resolver) store(key cacheKey, signer *Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache[key] = cacheEntry{signer: signer, resolvedAt: time.Now()}
}

func (r *Resolver) resolve(ctx context.Context, apiKeyID, fromDomain string) *Signer {
	domain, err := r.domains.GetDomainForTenant(ctx, apiKeyID, fromDomain)
	if err != nil || domain == nil || !domain.CanSign() {
		return nil
	}

	signer, err := NewSigner(domain.Domain, domain.DkimSelector, domain.DkimPrivateKey)
	if err != nil {
		return nil
	}

	return signer
}
