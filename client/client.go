// Package client adds transparent x402 payment handling to an http.Client.
//
// Transport wraps a RoundTripper: when the upstream answers 402 with a
// payment challenge, it pays through the configured Submitter and retries
// the original request once with the proof header attached. Callers see
// either the paid-for 200 or a PAYMENT_REJECTED error, never the raw 402.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/metrics"
	"github.com/vitwit/databox/types"
)

const erc20TransferABI = `[{
	"inputs":[
	  {"name":"to","type":"address"},
	  {"name":"value","type":"uint256"}
	],
	"name":"transfer",
	"outputs":[{"name":"","type":"bool"}],
	"stateMutability":"nonpayable",
	"type":"function"
}]`

var transferABI = mustParseABI(erc20TransferABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader([]byte(s)))
	if err != nil {
		panic(err)
	}
	return parsed
}

// SelectOption picks which of the server's payment options to satisfy.
type SelectOption func(accepts []types.PaymentOption) (*types.PaymentOption, error)

// FirstOption is the default strategy: take the server's preferred option.
func FirstOption(accepts []types.PaymentOption) (*types.PaymentOption, error) {
	if len(accepts) == 0 {
		return nil, types.NewProtocolError("challenge carries no payment options")
	}
	return &accepts[0], nil
}

// Transport is an http.RoundTripper that settles 402 challenges.
type Transport struct {
	base      http.RoundTripper
	submitter Submitter
	selector  SelectOption
	log       logger.Logger
	metrics   metrics.Recorder
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

func WithBaseTransport(rt http.RoundTripper) TransportOption {
	return func(t *Transport) { t.base = rt }
}

func WithSelector(s SelectOption) TransportOption {
	return func(t *Transport) { t.selector = s }
}

func WithLogger(log logger.Logger) TransportOption {
	return func(t *Transport) { t.log = log }
}

func WithMetrics(rec metrics.Recorder) TransportOption {
	return func(t *Transport) { t.metrics = rec }
}

// NewTransport builds a payment-settling transport around the given
// submitter.
func NewTransport(submitter Submitter, opts ...TransportOption) *Transport {
	t := &Transport{
		base:      http.DefaultTransport,
		submitter: submitter,
		selector:  FirstOption,
		log:       logger.NoopLogger{},
		metrics:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewHTTPClient returns an http.Client whose requests pay their way through
// 402 challenges.
func NewHTTPClient(submitter Submitter, opts ...TransportOption) *http.Client {
	return &http.Client{Transport: NewTransport(submitter, opts...)}
}

// RoundTrip implements http.RoundTripper. At most one payment is made per
// logical request: a 402 after paying is surfaced as PAYMENT_REJECTED.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := readChallenge(resp)
	if err != nil {
		return nil, err
	}

	option, err := t.selector(challenge.Accepts)
	if err != nil {
		return nil, err
	}

	header, err := t.pay(req, option)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if body != nil {
		retry.Body = io.NopCloser(bytes.NewReader(body))
		retry.ContentLength = int64(len(body))
	}
	retry.Header.Set(types.PaymentHeader, header)

	resp, err = t.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		reason := readRejectReason(resp)
		t.metrics.IncCounter("payment_rejected", map[string]string{"network": option.Network.String()})
		return nil, types.NewPaymentRejected(
			fmt.Sprintf("payment rejected after settlement: %s", reason),
			map[string]any{"reason": reason},
		)
	}
	return resp, nil
}

// pay settles the selected option on chain and returns the encoded proof
// header.
func (t *Transport) pay(req *http.Request, option *types.PaymentOption) (string, error) {
	amount, err := option.AmountBig()
	if err != nil {
		return "", types.NewProtocolError(err.Error())
	}
	if option.PayTo == "" {
		return "", types.NewProtocolError("challenge option has no pay-to address")
	}

	chainID, err := types.ChainID(option.Network)
	if err != nil {
		return "", err
	}

	to := common.HexToAddress(option.PayTo)
	value := amount
	var data []byte

	if option.Asset != "" {
		data, err = transferABI.Pack("transfer", to, amount)
		if err != nil {
			return "", fmt.Errorf("pack transfer: %w", err)
		}
		to = common.HexToAddress(option.Asset)
		value = big.NewInt(0)
	}

	t.log.Info("settling payment challenge", map[string]any{
		"url":     req.URL.String(),
		"network": option.Network.String(),
		"amount":  amount.String(),
		"asset":   option.Asset,
	})

	txHash, err := t.submitter.Submit(req.Context(), to, value, data, chainID)
	if err != nil {
		return "", err
	}
	t.metrics.IncCounter("payment_sent", map[string]string{"network": option.Network.String()})

	proof := &types.PaymentProof{
		X402Version: types.ProtocolVersion,
		Scheme:      types.SchemeExact,
		Payload: types.ProofPayload{
			TransactionHash: txHash,
			Network:         option.Network,
		},
	}
	return proof.EncodeHeader()
}

// bufferBody drains the request body into memory so the request can be
// replayed after payment. GET bodies are nil and pass through untouched.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func readChallenge(resp *http.Response) (*types.PaymentChallenge, error) {
	defer resp.Body.Close()

	var challenge types.PaymentChallenge
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		return nil, types.NewProtocolError(fmt.Sprintf("unreadable payment challenge: %v", err))
	}
	if err := challenge.Validate(); err != nil {
		return nil, err
	}
	return &challenge, nil
}

func readRejectReason(resp *http.Response) string {
	defer resp.Body.Close()

	var body struct {
		Message string `json:"message"`
		Details struct {
			Reason string `json:"reason"`
		} `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "unknown"
	}
	if body.Details.Reason != "" {
		return body.Details.Reason
	}
	if body.Message != "" {
		return body.Message
	}
	return "unknown"
}
