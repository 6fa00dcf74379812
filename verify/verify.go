// Package verify checks payment proofs against the challenge they answer.
//
// A proof is accepted when the referenced transaction exists on the proof's
// network, moved at least the required amount of the right asset to the
// pay-to address, and has not been consumed by an earlier verification.
package verify

import (
	"context"

	"github.com/vitwit/databox/types"
)

// Reject reasons.
const (
	ReasonNotFound     = "not-found"
	ReasonInsufficient = "insufficient-payment"
	ReasonReplay       = "replay"
)

// Result of a verification. Accepted=false always carries a Reason.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Payer    string `json:"payer,omitempty"`
}

func Accept(payer string) *Result {
	return &Result{Accepted: true, Payer: payer}
}

func Reject(reason string) *Result {
	return &Result{Accepted: false, Reason: reason}
}

// Verifier is the contract the payment gate depends on. Implementations
// must be safe for concurrent calls on distinct transaction hashes and must
// atomically check-and-mark any single hash so the same payment can never
// be accepted twice.
type Verifier interface {
	Verify(ctx context.Context, proof *types.PaymentProof, option *types.PaymentOption) (*Result, error)
}
