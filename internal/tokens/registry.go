// Package tokens maps (symbol, chain) pairs to contract addresses and decimal precision.
package tokens

import (
	"errors"
	"fmt"
	"sort"

	"transfer-backend/internal/config"
	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

// NativeDecimals precision of every chain's gas currency
const NativeDecimals uint8 = 18

// ErrNotAvailable the symbol is not supported on the requested chain
var ErrNotAvailable = errors.New("token not available on chain")

// Descriptor resolved token on a single chain. Address is empty for native tokens.
type Descriptor struct {
	Symbol   string         `json:"symbol"`
	ChainID  uint64         `json:"chain_id"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Native   bool           `json:"native"`
}

type tokenEntry struct {
	decimals  uint8
	addresses map[uint64]common.Address
}

// Registry is read-only after NewRegistry returns.
type Registry struct {
	chains  *utils.ChainRegistry
	entries map[string]tokenEntry
}

// builtinTokens contract tokens known without configuration
var builtinTokens = []config.TokenConfig{
	{
		Symbol:   "USDT",
		Decimals: 6,
		Addresses: map[uint64]string{
			1:        "0xdac17f958d2ee523a2206206994597c13d831ec7",
			8453:     "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2",
			11155111: "0x7169D38820dfd117C3FA1f22a697dBA58d90BA06",
		},
	},
	{
		Symbol:   "USDC",
		Decimals: 6,
		Addresses: map[uint64]string{
			1:        "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			8453:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			11155111: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		},
	},
	{
		Symbol:   "cUSD",
		Decimals: 18,
		Addresses: map[uint64]string{
			42220:    "0x765DE816845861e75A25fCA122bb6898B8B1282a",
			44787:    "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
			11142220: "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
		},
	},
}

// NewRegistry builds a registry from the built-in catalog, then applies overrides.
// An override with the same symbol replaces decimals and merges addresses per chain.
func NewRegistry(chains *utils.ChainRegistry, overrides []config.TokenConfig) (*Registry, error) {
	if chains == nil {
		chains = utils.GlobalChainRegistry
	}
	r := &Registry{
		chains:  chains,
		entries: make(map[string]tokenEntry),
	}
	for _, tc := range builtinTokens {
		if err := r.add(tc); err != nil {
			return nil, err
		}
	}
	for _, tc := range overrides {
		if err := r.add(tc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(tc config.TokenConfig) error {
	if tc.Symbol == "" {
		return fmt.Errorf("token entry without symbol")
	}
	entry, ok := r.entries[tc.Symbol]
	if !ok {
		entry = tokenEntry{addresses: make(map[uint64]common.Address)}
	}
	if tc.Decimals > 0 || !ok {
		entry.decimals = tc.Decimals
	}
	for chainID, addr := range tc.Addresses {
		if !utils.IsEvmAddress(addr) {
			return fmt.Errorf("token %s: invalid address %q for chain %d", tc.Symbol, addr, chainID)
		}
		entry.addresses[chainID] = common.HexToAddress(addr)
	}
	r.entries[tc.Symbol] = entry
	return nil
}

// IsNative reports whether symbol is the gas currency of chainID
func (r *Registry) IsNative(symbol string, chainID uint64) bool {
	chain, ok := r.chains.Get(chainID)
	return ok && chain.NativeSymbol == symbol
}

// Resolve looks up symbol on chainID
func (r *Registry) Resolve(symbol string, chainID uint64) (Descriptor, error) {
	if r.IsNative(symbol, chainID) {
		return Descriptor{Symbol: symbol, ChainID: chainID, Decimals: NativeDecimals, Native: true}, nil
	}
	entry, ok := r.entries[symbol]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s on chain %d", ErrNotAvailable, symbol, chainID)
	}
	addr, ok := entry.addresses[chainID]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s on chain %d", ErrNotAvailable, symbol, chainID)
	}
	return Descriptor{Symbol: symbol, ChainID: chainID, Address: addr, Decimals: entry.decimals}, nil
}

// ListForChain returns the native token followed by the contract tokens available on chainID
func (r *Registry) ListForChain(chainID uint64) []Descriptor {
	var out []Descriptor
	if chain, ok := r.chains.Get(chainID); ok {
		out = append(out, Descriptor{Symbol: chain.NativeSymbol, ChainID: chainID, Decimals: NativeDecimals, Native: true})
	}

	var contracts []Descriptor
	for symbol, entry := range r.entries {
		if addr, ok := entry.addresses[chainID]; ok {
			contracts = append(contracts, Descriptor{Symbol: symbol, ChainID: chainID, Address: addr, Decimals: entry.decimals})
		}
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].Symbol < contracts[j].Symbol })
	return append(out, contracts...)
}
