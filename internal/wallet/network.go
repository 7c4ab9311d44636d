package wallet

import (
	"errors"
	"fmt"
	"strings"
)

type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Sepolia Network = "sepolia"
	Custom  Network = "custom"
)

var ErrInvalidNetwork = errors.New("invalid network")

// NetworkInfo is descriptive metadata only; nothing here talks to a node.
type NetworkInfo struct {
	Name     string
	ChainID  uint64
	Explorer string
}

var networks = map[Network]NetworkInfo{
	Mainnet: {Name: "Ethereum Mainnet", ChainID: 1, Explorer: "https://etherscan.io"},
	Testnet: {Name: "Ethereum Testnet (Goerli)", ChainID: 5, Explorer: "https://goerli.etherscan.io"},
	Sepolia: {Name: "Ethereum Sepolia", ChainID: 11155111, Explorer: "https://sepolia.etherscan.io"},
	Custom:  {Name: "Custom EVM network"},
}

// Networks returns the known networks in a stable order.
func Networks() []Network {
	return []Network{Mainnet, Testnet, Sepolia, Custom}
}

func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := networks[n]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, s)
	}
	return n, nil
}

func (n Network) Valid() bool {
	_, ok := networks[n]
	return ok
}

func (n Network) Info() NetworkInfo { return networks[n] }

func (n Network) String() string { return string(n) }
