package ledger

import "context"

// Guardrail is the per-user daily call-count limiter. It is independent of
// token accounting: a user can exhaust calls with budget left, and vice
// versa.
type Guardrail struct {
	store  CounterStore
	limits map[string]int64
	clock  Clock
}

// NewGuardrail builds a guardrail over the counter store. Limits map purpose
// buckets to maximum daily calls; a missing bucket or limit <= 0 means
// unlimited.
func NewGuardrail(store CounterStore, limits map[string]int64, clock Clock) *Guardrail {
	normalized := make(map[string]int64, len(limits))
	for p, l := range limits {
		b := NormalizePurpose(p)
		if l > normalized[b] {
			normalized[b] = l
		}
	}
	return &Guardrail{store: store, limits: normalized, clock: clock}
}

// Check reports whether the user may make another call for this purpose
// today.
func (g *Guardrail) Check(ctx context.Context, userID, purpose string) (bool, error) {
	bucket := NormalizePurpose(purpose)
	limit := g.limits[bucket]
	if limit <= 0 {
		return true, nil
	}
	n, err := g.store.Get(ctx, callKey(userID, dayOf(g.clock), bucket))
	if err != nil {
		return false, err
	}
	return n < limit, nil
}

// Increment records one successful call. Callers invoke it only after the
// generation succeeded, so failed attempts never consume quota.
func (g *Guardrail) Increment(ctx context.Context, userID, purpose string) error {
	bucket := NormalizePurpose(purpose)
	_, err := g.store.Add(ctx, callKey(userID, dayOf(g.clock), bucket), 1, ttlUntilMidnight(g.clock))
	return err
}
