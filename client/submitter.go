package client

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/databox/types"
)

// Submitter broadcasts a payment transaction and returns its hash once the
// transaction is mined. data is nil for native transfers and an ABI-encoded
// transfer call for token payments.
type Submitter interface {
	Submit(ctx context.Context, to common.Address, value *big.Int, data []byte, chainID uint64) (string, error)
}

// EVMSubmitter pays challenges from a locally held key over JSON-RPC.
type EVMSubmitter struct {
	eth          *ethclient.Client
	key          *ecdsa.PrivateKey
	from         common.Address
	pollInterval time.Duration
}

// NewEVMSubmitter dials the RPC endpoint and loads the payer key. The key is
// a hex-encoded secp256k1 private key, with or without the 0x prefix.
func NewEVMSubmitter(rpcURL, privKeyHex string) (*EVMSubmitter, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, types.NewConfigError(fmt.Sprintf("rpc dial: %v", err))
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		eth.Close()
		return nil, types.NewConfigError(fmt.Sprintf("invalid payer key: %v", err))
	}

	return &EVMSubmitter{
		eth:          eth,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		pollInterval: 2 * time.Second,
	}, nil
}

// From returns the payer address.
func (s *EVMSubmitter) From() common.Address { return s.from }

func (s *EVMSubmitter) Close() { s.eth.Close() }

// Submit signs, broadcasts, and waits for the payment to be mined. A mined
// but reverted payment is an error: its hash would never verify.
func (s *EVMSubmitter) Submit(ctx context.Context, to common.Address, value *big.Int, data []byte, chainID uint64) (string, error) {
	nonce, err := s.eth.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit, err := s.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(new(big.Int).SetUint64(chainID)), s.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return "", err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return "", fmt.Errorf("payment tx %s reverted", signed.Hash().Hex())
	}
	return signed.Hash().Hex(), nil
}

func (s *EVMSubmitter) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
