package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// ProtocolVersion is the x402 protocol version spoken by this module.
const ProtocolVersion = 1

// SchemeExact is the only payment scheme this module issues and accepts:
// a single on-chain transfer of at least the quoted amount.
const SchemeExact = "exact"

// PaymentHeader is the request header carrying the base64-encoded proof.
const PaymentHeader = "X-PAYMENT"

// PriceSpec describes what a route costs and where funds must land.
// Configured once per route at startup and read-only afterwards.
type PriceSpec struct {
	// Amount in atomic units of the asset, as a decimal string.
	// Token prices are pre-scaled by the caller (e.g. 6-decimal USDC units);
	// native prices are wei-equivalent.
	Amount string `json:"amount" validate:"required,number"`

	// AssetAddress is the token contract, empty for native-asset payment.
	AssetAddress string `json:"assetAddress,omitempty"`

	// Network the payment must be made on.
	Network Network `json:"network" validate:"required"`

	// PayToAddress receives the funds.
	PayToAddress string `json:"payToAddress" validate:"required"`
}

// PaymentOption is one way to satisfy a challenge.
type PaymentOption struct {
	Network Network `json:"network"`

	PayTo string `json:"payTo"`

	// MaxAmountRequired in atomic units, as a decimal string because Go has
	// no uint256.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address, empty for a native transfer.
	Asset string `json:"asset,omitempty"`
}

// AmountBig parses MaxAmountRequired into a big.Int.
func (o *PaymentOption) AmountBig() (*big.Int, error) {
	n, ok := new(big.Int).SetString(o.MaxAmountRequired, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid maxAmountRequired %q", o.MaxAmountRequired)
	}
	return n, nil
}

// PaymentChallenge is the body of a 402 response. Created fresh per unpaid
// request, never persisted.
type PaymentChallenge struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Accepts     []PaymentOption `json:"accepts"`
	Error       string          `json:"error,omitempty"`
}

// Validate checks a challenge the client received before acting on it.
func (c *PaymentChallenge) Validate() error {
	if len(c.Accepts) == 0 {
		return NewProtocolError("malformed-challenge: accepts is empty")
	}
	first := c.Accepts[0]
	if first.PayTo == "" || first.MaxAmountRequired == "" {
		return NewProtocolError("malformed-challenge: option lacks payTo or maxAmountRequired")
	}
	return nil
}

// ProofPayload is the chain linkage inside a PaymentProof.
type ProofPayload struct {
	TransactionHash string  `json:"transactionHash"`
	Network         Network `json:"network"`
}

// PaymentProof is the client-produced evidence that payment was submitted.
// It travels as a single base64(JSON) request header and is consumed once
// by the verifier.
type PaymentProof struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Payload     ProofPayload `json:"payload"`
}

// EncodeHeader serializes the proof for the X-PAYMENT header.
func (p *PaymentProof) EncodeHeader() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeProofHeader parses an X-PAYMENT header value back into a proof.
func DecodeProofHeader(header string) (*PaymentProof, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, NewProtocolError(fmt.Sprintf("payment header is not base64: %v", err))
	}
	var proof PaymentProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, NewProtocolError(fmt.Sprintf("payment header is not valid JSON: %v", err))
	}
	if err := proof.Validate(); err != nil {
		return nil, err
	}
	return &proof, nil
}

// Validate checks the structural invariants of a proof.
func (p *PaymentProof) Validate() error {
	if p.X402Version != ProtocolVersion {
		return NewProtocolError(fmt.Sprintf("unsupported x402Version %d", p.X402Version))
	}
	if p.Scheme != SchemeExact {
		return NewProtocolError(fmt.Sprintf("unsupported scheme %q", p.Scheme))
	}
	if p.Payload.TransactionHash == "" {
		return NewProtocolError("proof is missing transactionHash")
	}
	if p.Payload.Network == "" {
		return NewProtocolError("proof is missing network")
	}
	return nil
}

// StorageRecord is the durable reference to an uploaded blob. The storage
// network assigns the handle, not this system.
type StorageRecord struct {
	Handle     string `json:"handle"`
	ByteLength int    `json:"size"`
	MimeHint   string `json:"mimeHint,omitempty"`
}

// RetrievedContent is what the storage gateway hands back on download.
// Format classification is best effort and exposed to the caller.
type RetrievedContent struct {
	Handle  string `json:"handle"`
	Size    int    `json:"size"`
	Format  string `json:"format"` // "text" or "binary"
	Content string `json:"content"`
	Legacy  bool   `json:"legacy,omitempty"`
	Message string `json:"message,omitempty"`
}

// Dataset is one entry in the discovery index.
type Dataset struct {
	Handle      string `json:"handle"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Filetype    string `json:"filetype,omitempty"`
}
