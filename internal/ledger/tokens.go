package ledger

import (
	"context"
	"sort"

	"github.com/sakchai-t/doclens/models"
)

// TokenLedger is the per-user, per-purpose daily token-spend tracker. The
// admission check runs against a pre-call estimate; the spend uses actual
// usage once known. Check and spend are separate store operations, so two
// concurrent requests can both pass the check before either spends — the
// slack is accepted rather than serialized.
type TokenLedger struct {
	store   CounterStore
	budgets map[string]int64
	clock   Clock
}

// NewTokenLedger builds a token ledger. Budgets map purpose buckets to daily
// token budgets; overlapping aliases (chat and chat_stream both configured)
// merge by taking the larger budget.
func NewTokenLedger(store CounterStore, budgets map[string]int64, clock Clock) *TokenLedger {
	normalized := make(map[string]int64, len(budgets))
	for p, b := range budgets {
		bucket := NormalizePurpose(p)
		if b > normalized[bucket] {
			normalized[bucket] = b
		}
	}
	return &TokenLedger{store: store, budgets: normalized, clock: clock}
}

// Budget returns the configured daily budget for the purpose's bucket,
// 0 when the bucket has no budget (which means nothing may be spent).
func (t *TokenLedger) Budget(purpose string) int64 {
	return t.budgets[NormalizePurpose(purpose)]
}

// Spent returns today's spend for the purpose's bucket.
func (t *TokenLedger) Spent(ctx context.Context, userID, purpose string) (int64, error) {
	bucket := NormalizePurpose(purpose)
	return t.store.Get(ctx, tokenKey(userID, dayOf(t.clock), bucket))
}

// Remaining returns max(0, budget - spent) for the purpose's bucket.
func (t *TokenLedger) Remaining(ctx context.Context, userID, purpose string) (int64, error) {
	spent, err := t.Spent(ctx, userID, purpose)
	if err != nil {
		return 0, err
	}
	remaining := t.Budget(purpose) - spent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CanSpend is the pre-flight admission check: the remaining budget must
// cover the estimate, treating estimates below one token as one.
func (t *TokenLedger) CanSpend(ctx context.Context, userID, purpose string, estimatedTokens int64) (bool, error) {
	if estimatedTokens < 1 {
		estimatedTokens = 1
	}
	remaining, err := t.Remaining(ctx, userID, purpose)
	if err != nil {
		return false, err
	}
	return remaining >= estimatedTokens, nil
}

// Spend records actual usage after the call. Spending zero tokens leaves the
// counter untouched.
func (t *TokenLedger) Spend(ctx context.Context, userID, purpose string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	bucket := NormalizePurpose(purpose)
	_, err := t.store.Add(ctx, tokenKey(userID, dayOf(t.clock), bucket), tokens, ttlUntilMidnight(t.clock))
	return err
}

// Status reports budget/spent/remaining per bucket for client display,
// sorted by purpose name.
func (t *TokenLedger) Status(ctx context.Context, userID string) ([]models.PurposeStatus, error) {
	out := make([]models.PurposeStatus, 0, len(t.budgets))
	for bucket, budget := range t.budgets {
		spent, err := t.Spent(ctx, userID, bucket)
		if err != nil {
			return nil, err
		}
		remaining := budget - spent
		if remaining < 0 {
			remaining = 0
		}
		ratio := 0.0
		if budget > 0 {
			ratio = float64(remaining) / float64(budget)
		}
		out = append(out, models.PurposeStatus{
			Purpose:        bucket,
			Budget:         budget,
			Spent:          spent,
			Remaining:      remaining,
			RemainingRatio: ratio,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Purpose < out[j].Purpose })
	return out, nil
}
