package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"payment-sentinel/internal/policy"
)

// tripAfter is the number of consecutive unusable proposals (across distinct
// clusters) before the oracle is cut off for the remainder of the run.
const tripAfter = 3

// Gateway applies the bounded retry protocol and the consecutive-failure
// circuit breaker on top of an inner proposer. A malformed or timed-out
// response is re-sent once with an explicit error note; a second failure for
// the same cluster surfaces as ErrProposalFormat without a third attempt.
type Gateway struct {
	inner  Proposer
	logger zerolog.Logger

	mu          sync.Mutex
	consecutive int
	tripped     bool
}

// NewGateway wraps a proposer with the retry and circuit-breaker policy.
func NewGateway(inner Proposer, logger zerolog.Logger) *Gateway {
	return &Gateway{
		inner:  inner,
		logger: logger.With().Str("component", "oracle_gateway").Logger(),
	}
}

// Propose invokes the oracle under the retry-once protocol. It returns
// ErrUnavailable without calling the oracle once the breaker has tripped.
func (g *Gateway) Propose(ctx context.Context, req Request) (policy.ProposedAction, error) {
	if g.Tripped() {
		return policy.ProposedAction{}, ErrUnavailable
	}

	proposal, err := g.inner.Propose(ctx, req)
	if err == nil {
		g.recordSuccess()
		return proposal, nil
	}
	if !retryable(err) {
		g.recordFailure(req)
		return policy.ProposedAction{}, err
	}

	retry := req
	retry.ErrorNote = err.Error()
	proposal, err = g.inner.Propose(ctx, retry)
	if err == nil {
		g.recordSuccess()
		return proposal, nil
	}

	g.recordFailure(req)
	return policy.ProposedAction{}, err
}

// Tripped reports whether the circuit breaker has opened.
func (g *Gateway) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped
}

func (g *Gateway) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutive = 0
}

func (g *Gateway) recordFailure(req Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutive++
	if g.consecutive >= tripAfter && !g.tripped {
		g.tripped = true
		// Fatal to the batch's oracle usage, never to the process: the run
		// continues on the deterministic rule-based fallback.
		g.logger.Error().
			Int("consecutive_failures", g.consecutive).
			Str("segment", req.Cluster.Key.String()).
			Msg("oracle circuit breaker tripped; remainder of run degrades to rule-based fallback")
	}
}

func retryable(err error) bool {
	// Timeouts and malformed responses share one retry budget; context
	// cancellation from above must not be retried.
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrProposalFormat) || errors.Is(err, context.DeadlineExceeded)
}

var _ Proposer = (*Gateway)(nil)
