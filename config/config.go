// Package config loads and validates process configuration from the
// environment.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/databox/types"
)

// Config is everything the server binary needs. PriceUSDC is a dollar
// string like "$0.01"; it is converted to atomic units at wiring time.
type Config struct {
	ListenAddr string `validate:"required"`

	// SigningKey doubles as the storage encryption secret and, when set,
	// the registry signer. 32-byte hex, optional 0x prefix.
	SigningKey string `validate:"required"`

	PayTo     string        `validate:"required,startswith=0x"`
	PriceUSDC string        `validate:"required"`
	Asset     string        `validate:"omitempty,startswith=0x"`
	Network   types.Network `validate:"required"`

	RPCURL          string `validate:"required,url"`
	StorageEndpoint string `validate:"required,url"`

	// FacilitatorURL delegates verification when set; empty means verify
	// against the chain directly through RPCURL.
	FacilitatorURL string `validate:"omitempty,url"`

	// RegistryContract enables on-chain upload registration when set.
	RegistryContract string `validate:"omitempty,startswith=0x"`

	LogLevel string
}

// FromEnv reads configuration from DATABOX_* variables and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("DATABOX_LISTEN_ADDR", ":4021"),
		SigningKey:       os.Getenv("DATABOX_SIGNING_KEY"),
		PayTo:            os.Getenv("DATABOX_PAY_TO"),
		PriceUSDC:        envOr("DATABOX_PRICE_USDC", "$0.01"),
		Asset:            os.Getenv("DATABOX_ASSET"),
		Network:          types.Network(envOr("DATABOX_NETWORK", string(types.NetworkBaseSepolia))),
		RPCURL:           os.Getenv("DATABOX_RPC_URL"),
		StorageEndpoint:  os.Getenv("DATABOX_STORAGE_ENDPOINT"),
		FacilitatorURL:   os.Getenv("DATABOX_FACILITATOR_URL"),
		RegistryContract: os.Getenv("DATABOX_REGISTRY_CONTRACT"),
		LogLevel:         envOr("DATABOX_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags plus the network table.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return types.NewConfigError(fmt.Sprintf("invalid configuration: %v", err))
	}
	if !types.Supported(c.Network) {
		return types.NewConfigError(fmt.Sprintf("unsupported network %q", c.Network))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
