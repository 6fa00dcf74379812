package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vitwit/databox/types"
)

// FacilitatorVerifier delegates verification to an external facilitator
// service over HTTP, which is how deployments run: the facilitator owns the
// chain readers and the replay ledger, and this client only depends on its
// accept/reject semantics.
type FacilitatorVerifier struct {
	baseURL string
	client  *http.Client
}

func NewFacilitatorVerifier(baseURL string, timeout time.Duration) *FacilitatorVerifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FacilitatorVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type facilitatorRequest struct {
	X402Version  int                  `json:"x402Version"`
	PaymentProof *types.PaymentProof  `json:"paymentProof"`
	Requirements *types.PaymentOption `json:"paymentRequirements"`
}

type facilitatorResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Verify implements Verifier by calling POST {baseURL}/verify.
func (f *FacilitatorVerifier) Verify(ctx context.Context, proof *types.PaymentProof, option *types.PaymentOption) (*Result, error) {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:  types.ProtocolVersion,
		PaymentProof: proof,
		Requirements: option,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facilitator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facilitator returned status %d", resp.StatusCode)
	}

	var out facilitatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("facilitator response unreadable: %w", err)
	}

	if !out.IsValid {
		reason := out.InvalidReason
		if reason == "" {
			reason = ReasonInsufficient
		}
		return Reject(reason), nil
	}
	return Accept(out.Payer), nil
}
