// Package databox implements a payment-gated content exchange over the x402
// protocol: priced HTTP routes answer 402 with a payment challenge, clients
// settle on chain and retry with a proof header, and resource bytes are
// AES-256-GCM encrypted before they reach the storage network.
package databox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/databox/challenge"
	"github.com/vitwit/databox/codec"
	"github.com/vitwit/databox/config"
	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/metrics"
	"github.com/vitwit/databox/registry"
	"github.com/vitwit/databox/server"
	"github.com/vitwit/databox/storage"
	"github.com/vitwit/databox/types"
	"github.com/vitwit/databox/verify"
)

// USDCDecimals is the scale used when converting dollar prices to atomic
// units.
const USDCDecimals = 6

// Databox wires the codec, storage gateway, verifier, registry, and HTTP
// surface into one service.
type Databox struct {
	cfg     *config.Config
	log     logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	gateway  *storage.Gateway
	verifier verify.Verifier
	registry *registry.EVMRegistry
	srv      *server.Server
}

// New builds a Databox from validated configuration.
func New(cfg *config.Config, opts ...Option) (*Databox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Databox{
		cfg:     cfg,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}

	c, err := codec.New(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	d.gateway = storage.NewGateway(
		storage.NewHTTPClient(cfg.StorageEndpoint, d.timeout), c, d.log, d.metrics)

	if cfg.FacilitatorURL != "" {
		d.verifier = verify.NewFacilitatorVerifier(cfg.FacilitatorURL, d.timeout)
	} else {
		eth, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, types.NewConfigError(fmt.Sprintf("rpc dial: %v", err))
		}
		d.verifier = verify.NewChainVerifier(
			map[types.Network]verify.ChainReader{cfg.Network: eth}, d.log)
	}

	amount, err := challenge.ParsePrice(cfg.PriceUSDC, USDCDecimals)
	if err != nil {
		return nil, types.NewConfigError(err.Error())
	}
	price := types.PriceSpec{
		Amount:       amount,
		AssetAddress: cfg.Asset,
		Network:      cfg.Network,
		PayToAddress: cfg.PayTo,
	}

	serverOpts := []server.Option{
		server.WithLogger(d.log),
		server.WithMetrics(d.metrics),
	}
	if cfg.RegistryContract != "" {
		chainID, err := types.ChainID(cfg.Network)
		if err != nil {
			return nil, err
		}
		d.registry, err = registry.NewEVMRegistry(
			cfg.RPCURL, cfg.RegistryContract, cfg.SigningKey, chainID, d.log)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, server.WithRegistry(d.registry))
	}

	d.srv = server.New(d.gateway, d.verifier, price, serverOpts...)
	return d, nil
}

// Handler returns the HTTP surface: gated download/upload plus free
// discovery endpoints.
func (d *Databox) Handler() http.Handler {
	return d.srv.Router()
}

// Gateway exposes the storage gateway for direct embedding.
func (d *Databox) Gateway() *storage.Gateway {
	return d.gateway
}

// Verifier exposes the payment verifier for direct embedding.
func (d *Databox) Verifier() verify.Verifier {
	return d.verifier
}

// Serve runs the HTTP server until the context is canceled.
func (d *Databox) Serve(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              d.cfg.ListenAddr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		d.log.Info("listening", map[string]any{"addr": d.cfg.ListenAddr})
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// Close releases chain connections.
func (d *Databox) Close() {
	if d.registry != nil {
		d.registry.Close()
	}
}
