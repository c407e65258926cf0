package utils

import (
	"fmt"
	"sort"
	"strings"
)

// ChainInfo chain catalog entry
type ChainInfo struct {
	ChainID      uint64   `json:"chain_id" yaml:"chainId"`
	Name         string   `json:"name" yaml:"name"`
	Key          string   `json:"key" yaml:"key"`                   // short config key, e.g. "base"
	NativeSymbol string   `json:"native_symbol" yaml:"nativeSymbol"` // gas currency
	ExplorerURL  string   `json:"explorer_url" yaml:"explorerUrl"`
	RPCEndpoints []string `json:"rpc_endpoints,omitempty" yaml:"rpcEndpoints"`
	Testnet      bool     `json:"testnet" yaml:"testnet"`
}

// TxURL returns the explorer link for a transaction hash, or "" when the chain has no explorer.
func (c *ChainInfo) TxURL(hash string) string {
	if c == nil || c.ExplorerURL == "" || hash == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash
}

// AddressURL returns the explorer link for an address.
func (c *ChainInfo) AddressURL(address string) string {
	if c == nil || c.ExplorerURL == "" || address == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/address/" + address
}

// ChainRegistry chain catalog indexed by EVM chain id and config key
type ChainRegistry struct {
	byID  map[uint64]*ChainInfo
	byKey map[string]*ChainInfo
}

// GlobalChainRegistry built-in catalog
var GlobalChainRegistry *ChainRegistry

func init() {
	GlobalChainRegistry = NewChainRegistry(DefaultChains())
}

// DefaultChains returns the chains the wallet UI ships with.
func DefaultChains() []*ChainInfo {
	return []*ChainInfo{
		{
			ChainID:      1,
			Name:         "Ethereum",
			Key:          "mainnet",
			NativeSymbol: "ETH",
			ExplorerURL:  "https://etherscan.io",
			RPCEndpoints: []string{"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
		},
		{
			ChainID:      8453,
			Name:         "Base",
			Key:          "base",
			NativeSymbol: "ETH",
			ExplorerURL:  "https://basescan.org",
			RPCEndpoints: []string{"https://mainnet.base.org", "https://base.llamarpc.com"},
		},
		{
			ChainID:      42220,
			Name:         "Celo",
			Key:          "celo",
			NativeSymbol: "CELO",
			ExplorerURL:  "https://celoscan.io",
			RPCEndpoints: []string{"https://forno.celo.org"},
		},
		{
			ChainID:      11155111,
			Name:         "Sepolia",
			Key:          "sepolia",
			NativeSymbol: "ETH",
			ExplorerURL:  "https://sepolia.etherscan.io",
			RPCEndpoints: []string{"https://rpc.sepolia.org"},
			Testnet:      true,
		},
		{
			ChainID:      44787,
			Name:         "Celo Alfajores",
			Key:          "alfajores",
			NativeSymbol: "CELO",
			ExplorerURL:  "https://alfajores.celoscan.io",
			RPCEndpoints: []string{"https://alfajores-forno.celo-testnet.org"},
			Testnet:      true,
		},
		{
			ChainID:      11142220,
			Name:         "Celo Sepolia Testnet",
			Key:          "celoSepolia",
			NativeSymbol: "CELO",
			ExplorerURL:  "https://celo-sepolia.blockscout.com",
			RPCEndpoints: []string{"https://forno.celo-sepolia.celo-testnet.org"},
			Testnet:      true,
		},
		{
			ChainID:      42101,
			Name:         "Push Chain Donut Testnet",
			Key:          "pushChain",
			NativeSymbol: "PC",
			ExplorerURL:  "https://donut.push.network",
			RPCEndpoints: []string{"https://evm.rpc-testnet-donut-node1.push.org"},
			Testnet:      true,
		},
		{
			ChainID:      50311,
			Name:         "Somnia Testnet",
			Key:          "somniaTestnet",
			NativeSymbol: "STT",
			ExplorerURL:  "https://somnia-devnet.socialscan.io",
			RPCEndpoints: []string{"https://dream-rpc.somnia.network"},
			Testnet:      true,
		},
	}
}

// NewChainRegistry builds a registry; later entries with the same chain id replace earlier ones.
func NewChainRegistry(chains []*ChainInfo) *ChainRegistry {
	r := &ChainRegistry{
		byID:  make(map[uint64]*ChainInfo),
		byKey: make(map[string]*ChainInfo),
	}
	for _, chain := range chains {
		r.Register(chain)
	}
	return r
}

// Register adds or replaces a chain. Not safe for use once the registry is shared.
func (r *ChainRegistry) Register(chain *ChainInfo) {
	if chain == nil {
		return
	}
	if old, ok := r.byID[chain.ChainID]; ok && old.Key != "" {
		delete(r.byKey, strings.ToLower(old.Key))
	}
	r.byID[chain.ChainID] = chain
	if chain.Key != "" {
		r.byKey[strings.ToLower(chain.Key)] = chain
	}
}

// Get looks a chain up by EVM chain id
func (r *ChainRegistry) Get(chainID uint64) (*ChainInfo, bool) {
	info, ok := r.byID[chainID]
	return info, ok
}

// GetByKey looks a chain up by its config key (case-insensitive)
func (r *ChainRegistry) GetByKey(key string) (*ChainInfo, bool) {
	info, ok := r.byKey[strings.ToLower(key)]
	return info, ok
}

// MustGet returns the chain or an error naming the unknown id
func (r *ChainRegistry) MustGet(chainID uint64) (*ChainInfo, error) {
	info, ok := r.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("unsupported chain ID: %d", chainID)
	}
	return info, nil
}

// GetAllChains returns all chains ordered by chain id
func (r *ChainRegistry) GetAllChains() []*ChainInfo {
	chains := make([]*ChainInfo, 0, len(r.byID))
	for _, chain := range r.byID {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ChainID < chains[j].ChainID })
	return chains
}
