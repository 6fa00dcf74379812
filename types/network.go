package types

import "fmt"

// Network names follow the x402 convention (e.g. "base-sepolia").
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia"
	NetworkEthereum    Network = "ethereum"
	NetworkSepolia     Network = "sepolia"
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy"
)

var chainIDs = map[Network]uint64{
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
	NetworkEthereum:    1,
	NetworkSepolia:     11155111,
	NetworkPolygon:     137,
	NetworkPolygonAmoy: 80002,
}

// ChainID resolves a network name to its numeric chain identifier.
// Unknown networks are an error rather than a default chain: silently
// falling back could route funds to the wrong network.
func ChainID(n Network) (uint64, error) {
	id, ok := chainIDs[n]
	if !ok {
		return 0, NewProtocolError(fmt.Sprintf("unknown network %q", n))
	}
	return id, nil
}

// Supported reports whether the network has a chain-id mapping.
func Supported(n Network) bool {
	_, ok := chainIDs[n]
	return ok
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkSepolia || n == NetworkPolygonAmoy
}

func (n Network) String() string {
	return string(n)
}
