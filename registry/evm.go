package registry

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/types"
)

const registerUploadABI = `[{
	"inputs":[
	  {"name":"handle","type":"string"},
	  {"name":"description","type":"string"},
	  {"name":"price","type":"uint256"},
	  {"name":"payAddress","type":"address"},
	  {"name":"name","type":"string"},
	  {"name":"filetype","type":"string"}
	],
	"name":"registerUpload",
	"outputs":[],
	"stateMutability":"nonpayable",
	"type":"function"
}]`

// EVMRegistry writes upload records to the registry contract.
type EVMRegistry struct {
	eth      *ethclient.Client
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	parsed   abi.ABI
	log      logger.Logger
}

func NewEVMRegistry(rpcURL, contractAddr, privKeyHex string, chainID uint64, log logger.Logger) (*EVMRegistry, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, types.NewConfigError(fmt.Sprintf("registry rpc dial: %v", err))
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		eth.Close()
		return nil, types.NewConfigError(fmt.Sprintf("invalid registry key: %v", err))
	}

	parsed, err := abi.JSON(strings.NewReader(registerUploadABI))
	if err != nil {
		eth.Close()
		return nil, err
	}

	if log == nil {
		log = logger.NoopLogger{}
	}

	return &EVMRegistry{
		eth:      eth,
		contract: common.HexToAddress(contractAddr),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  new(big.Int).SetUint64(chainID),
		parsed:   parsed,
		log:      log,
	}, nil
}

func (r *EVMRegistry) Close() { r.eth.Close() }

// RegisterUpload packs and broadcasts a registerUpload call.
func (r *EVMRegistry) RegisterUpload(ctx context.Context, ds types.Dataset, payAddress string) (string, error) {
	price, ok := new(big.Int).SetString(ds.Price, 10)
	if !ok {
		return "", types.NewProtocolError(fmt.Sprintf("invalid price %q", ds.Price))
	}

	callData, err := r.parsed.Pack("registerUpload",
		ds.Handle, ds.Description, price, common.HexToAddress(payAddress), ds.Name, ds.Filetype)
	if err != nil {
		return "", fmt.Errorf("pack registerUpload: %w", err)
	}

	nonce, err := r.eth.PendingNonceAt(ctx, r.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := r.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := r.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: r.from,
		To:   &r.contract,
		Data: callData,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, r.contract, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(r.chainID), r.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := r.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	r.log.Info("registered upload on chain", map[string]any{
		"handle": ds.Handle,
		"name":   ds.Name,
		"tx":     signed.Hash().Hex(),
	})
	return signed.Hash().Hex(), nil
}
