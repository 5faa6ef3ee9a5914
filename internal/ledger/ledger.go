// Package ledger tracks per-user daily LLM usage: a call-count guardrail and
// a token budget, both keyed by purpose bucket and the local calendar day.
// Counters live in an injected TTL store so the day rollover is just key
// expiry.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Clock supplies the current time. Injected so day-rollover behavior is
// testable without waiting for midnight.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

func (c systemClock) Now() time.Time { return time.Now().In(c.loc) }

// SystemClock returns a Clock in the given IANA timezone, falling back to
// the local zone when the name does not resolve.
func SystemClock(timezone string) Clock {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.Local
	}
	return systemClock{loc: loc}
}

// NormalizePurpose folds related purposes into their shared budget bucket:
// streaming chat counts as chat, and the per-document analysis purposes
// (summarize, classify, title, combined) all share the upload bucket.
func NormalizePurpose(purpose string) string {
	switch p := strings.ToLower(strings.TrimSpace(purpose)); p {
	case "", "chat", "chat_stream":
		return "chat"
	case "summarize", "classify", "title", "combined", "upload":
		return "upload"
	default:
		return p
	}
}

func dayOf(clock Clock) string {
	return clock.Now().Format("2006-01-02")
}

// ttlUntilMidnight returns how long until the next local midnight, never
// less than one second so counters always expire.
func ttlUntilMidnight(clock Clock) time.Duration {
	now := clock.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	ttl := next.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func callKey(userID, day, bucket string) string {
	return fmt.Sprintf("llm_calls:%s:%s:%s", userID, day, bucket)
}

func tokenKey(userID, day, bucket string) string {
	return fmt.Sprintf("llm_tokens:%s:%s:%s:total", userID, day, bucket)
}
