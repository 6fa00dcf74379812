package verify

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/databox/logger"
	dbtypes "github.com/vitwit/databox/types"
)

// transferTopic is keccak256("Transfer(address,address,uint256)"), the
// ERC-20 Transfer event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ChainReader is what the verifier needs from a chain RPC endpoint.
// *ethclient.Client satisfies it.
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

var _ ChainReader = (*ethclient.Client)(nil)

// ChainVerifier validates proofs by reading the referenced transaction
// directly from the chain, one reader per supported network.
type ChainVerifier struct {
	readers map[dbtypes.Network]ChainReader
	guard   *ReplayGuard
	log     logger.Logger
}

// NewChainVerifier builds a verifier over the given per-network readers.
func NewChainVerifier(readers map[dbtypes.Network]ChainReader, log logger.Logger) *ChainVerifier {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &ChainVerifier{
		readers: readers,
		guard:   NewReplayGuard(),
		log:     log,
	}
}

// AddReader registers a reader for a network. Not safe to call after the
// verifier starts serving requests.
func (v *ChainVerifier) AddReader(network dbtypes.Network, reader ChainReader) {
	v.readers[network] = reader
}

// Verify implements Verifier. The chain facts are checked first; the hash
// is consumed only once everything else holds, so a rejected proof can be
// corrected and resubmitted.
func (v *ChainVerifier) Verify(ctx context.Context, proof *dbtypes.PaymentProof, option *dbtypes.PaymentOption) (*Result, error) {
	if err := proof.Validate(); err != nil {
		return nil, err
	}

	// A payment on the wrong network cannot satisfy the challenge.
	if proof.Payload.Network != option.Network {
		return Reject(ReasonNotFound), nil
	}

	reader, ok := v.readers[proof.Payload.Network]
	if !ok {
		return nil, dbtypes.NewProtocolError(fmt.Sprintf("no chain reader for network %q", proof.Payload.Network))
	}

	required, err := option.AmountBig()
	if err != nil {
		return nil, dbtypes.NewProtocolError(err.Error())
	}

	txHash := common.HexToHash(proof.Payload.TransactionHash)

	if v.guard.Seen(proof.Payload.TransactionHash) {
		return Reject(ReasonReplay), nil
	}

	receipt, err := reader.TransactionReceipt(ctx, txHash)
	if err != nil {
		v.log.Debug("receipt lookup failed", map[string]any{"tx": txHash.Hex(), "error": err.Error()})
		return Reject(ReasonNotFound), nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Reject(ReasonNotFound), nil
	}

	tx, pending, err := reader.TransactionByHash(ctx, txHash)
	if err != nil || pending || tx == nil {
		return Reject(ReasonNotFound), nil
	}

	payer := ""
	if sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		payer = sender.Hex()
	}

	if option.Asset != "" {
		if !tokenTransferCovers(receipt, option, required) {
			return Reject(ReasonInsufficient), nil
		}
	} else {
		if !nativeTransferCovers(tx, option, required) {
			return Reject(ReasonInsufficient), nil
		}
	}

	// Atomic check-and-mark: of two concurrent requests presenting the same
	// hash, exactly one passes.
	if !v.guard.CheckAndMark(proof.Payload.TransactionHash) {
		return Reject(ReasonReplay), nil
	}

	v.log.Info("payment accepted", map[string]any{
		"tx":      txHash.Hex(),
		"network": proof.Payload.Network.String(),
		"payer":   payer,
	})
	return Accept(payer), nil
}

func nativeTransferCovers(tx *types.Transaction, option *dbtypes.PaymentOption, required *big.Int) bool {
	to := tx.To()
	if to == nil {
		return false
	}
	if !strings.EqualFold(to.Hex(), option.PayTo) {
		return false
	}
	return tx.Value().Cmp(required) >= 0
}

// tokenTransferCovers scans the receipt for an ERC-20 Transfer on the
// required asset whose recipient is the pay-to address and whose value
// meets the quote.
func tokenTransferCovers(receipt *types.Receipt, option *dbtypes.PaymentOption, required *big.Int) bool {
	asset := common.HexToAddress(option.Asset)
	payTo := common.HexToAddress(option.PayTo)

	for _, lg := range receipt.Logs {
		if lg.Address != asset {
			continue
		}
		if len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
			continue
		}
		recipient := common.BytesToAddress(lg.Topics[2].Bytes())
		if recipient != payTo {
			continue
		}
		value := new(big.Int).SetBytes(lg.Data)
		if value.Cmp(required) >= 0 {
			return true
		}
	}
	return false
}
