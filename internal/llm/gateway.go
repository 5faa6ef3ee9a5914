// Package llm is the single entry point for text generation. Every call
// passes the same sequence: call-limit check, token budget pre-check,
// backend call, then ledger updates and an audit record. Nothing else in
// the codebase talks to a generation backend directly.
package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sakchai-t/doclens/internal/ledger"
	"github.com/sakchai-t/doclens/internal/telemetry"
	"github.com/sakchai-t/doclens/models"
	"github.com/sakchai-t/doclens/provider"
)

// CallLog persists one audit row per generation attempt, success or not.
type CallLog interface {
	AppendCallRecord(ctx context.Context, rec models.CallRecord) error
}

// Gateway mediates all generation calls through the usage ledgers.
type Gateway struct {
	provider  provider.Provider
	guardrail *ledger.Guardrail
	tokens    *ledger.TokenLedger
	callLog   CallLog
	logger    *log.Logger
}

// NewGateway wires the gateway. callLog may be nil when auditing is not
// configured.
func NewGateway(p provider.Provider, guardrail *ledger.Guardrail, tokens *ledger.TokenLedger, callLog CallLog, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{provider: p, guardrail: guardrail, tokens: tokens, callLog: callLog, logger: logger}
}

// Generate runs one blocking generation for the owner under the given
// purpose. The guardrail is incremented and tokens spent only after the
// backend call succeeds; failed attempts cost nothing but are still
// audited.
func (g *Gateway) Generate(ctx context.Context, ownerID, purpose, system, user string) (string, error) {
	if err := g.admit(ctx, ownerID, purpose, system, user); err != nil {
		return "", err
	}

	start := time.Now()
	res, err := g.provider.Generate(ctx, models.GenRequest{System: system, User: user})
	if err != nil {
		g.record(ctx, ownerID, purpose, false, err, models.GenUsage{}, time.Since(start))
		return "", &GenerationError{Cause: err}
	}

	g.settle(ctx, ownerID, purpose, res.Usage)
	g.record(ctx, ownerID, purpose, true, nil, res.Usage, time.Since(start))
	return res.Text, nil
}

// GenerateStream runs one streaming generation. Deltas are relayed as they
// arrive; ledger updates and the audit record happen once the backend's
// terminal event is seen. The returned channel closes after its terminal
// event.
func (g *Gateway) GenerateStream(ctx context.Context, ownerID, purpose, system, user string) (<-chan models.StreamEvent, error) {
	if err := g.admit(ctx, ownerID, purpose, system, user); err != nil {
		return nil, err
	}

	start := time.Now()
	upstream, err := g.provider.GenerateStream(ctx, models.GenRequest{System: system, User: user})
	if err != nil {
		g.record(ctx, ownerID, purpose, false, err, models.GenUsage{}, time.Since(start))
		return nil, &GenerationError{Cause: err}
	}

	events := make(chan models.StreamEvent)
	go func() {
		defer close(events)
		for ev := range upstream {
			if !ev.Done {
				events <- ev
				continue
			}
			if ev.Err != nil {
				g.record(ctx, ownerID, purpose, false, ev.Err, models.GenUsage{}, time.Since(start))
				events <- models.StreamEvent{Done: true, Err: &GenerationError{Cause: ev.Err}}
				return
			}
			g.settle(ctx, ownerID, purpose, ev.Usage)
			g.record(ctx, ownerID, purpose, true, nil, ev.Usage, time.Since(start))
			events <- ev
			return
		}
		// Upstream closed without a terminal event; treat as a failure.
		err := fmt.Errorf("stream ended without terminal event")
		g.record(ctx, ownerID, purpose, false, err, models.GenUsage{}, time.Since(start))
		events <- models.StreamEvent{Done: true, Err: &GenerationError{Cause: err}}
	}()
	return events, nil
}

// admit runs the pre-call checks. The token estimate and the later spend
// are separate store operations, so two concurrent requests can both pass
// before either spends.
func (g *Gateway) admit(ctx context.Context, ownerID, purpose, system, user string) error {
	ok, err := g.guardrail.Check(ctx, ownerID, purpose)
	if err != nil {
		return fmt.Errorf("guardrail check: %w", err)
	}
	if !ok {
		return ErrQuotaExceeded
	}

	est := models.EstimateTokens(system + "\n" + user)
	ok, err = g.tokens.CanSpend(ctx, ownerID, purpose, est)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if !ok {
		return ErrTokenBudgetExceeded
	}
	return nil
}

func (g *Gateway) settle(ctx context.Context, ownerID, purpose string, usage models.GenUsage) {
	if err := g.guardrail.Increment(ctx, ownerID, purpose); err != nil {
		g.logger.Printf("guardrail increment failed for %s: %v", ownerID, err)
	}
	if err := g.tokens.Spend(ctx, ownerID, purpose, usage.Total()); err != nil {
		g.logger.Printf("token spend failed for %s: %v", ownerID, err)
	}
}

func (g *Gateway) record(ctx context.Context, ownerID, purpose string, ok bool, callErr error, usage models.GenUsage, latency time.Duration) {
	telemetry.ObserveGeneration(g.provider.Name(), ledger.NormalizePurpose(purpose), ok, usage.InputTokens, usage.OutputTokens, latency)

	if g.callLog == nil {
		return
	}
	rec := models.CallRecord{
		OwnerID:      ownerID,
		Provider:     g.provider.Name(),
		Model:        g.provider.Model(),
		Purpose:      purpose,
		OK:           ok,
		Latency:      latency,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CreatedAt:    time.Now(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	if err := g.callLog.AppendCallRecord(ctx, rec); err != nil {
		g.logger.Printf("call log append failed: %v", err)
	}
}
