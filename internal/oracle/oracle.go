// Package oracle is the boundary to the external reasoning oracle that turns
// a cluster summary into a proposed action. The oracle is untrusted: its
// output is parsed defensively, retried once on malformed responses, and cut
// off entirely by a circuit breaker after repeated failures.
package oracle

import (
	"context"
	"errors"

	"payment-sentinel/internal/policy"
	"payment-sentinel/internal/segment"
)

var (
	// ErrProposalFormat marks an unparseable or incomplete oracle response.
	// Timeouts are treated identically for retry purposes.
	ErrProposalFormat = errors.New("oracle: proposal unusable")
	// ErrUnavailable is returned once the circuit breaker has tripped for
	// the remainder of the run.
	ErrUnavailable = errors.New("oracle: circuit breaker open")
)

// Request bounds the information sent to the oracle: the current cluster's
// summary statistics and a small historical-context map. Raw
// transaction-level data never crosses this boundary.
type Request struct {
	Cluster           segment.FailureCluster
	HistoricalContext map[string]float64
	// ErrorNote carries the parse failure from the previous attempt on the
	// single permitted retry.
	ErrorNote string
}

// Proposer converts a cluster summary into a structured proposed action.
type Proposer interface {
	Propose(ctx context.Context, req Request) (policy.ProposedAction, error)
}
