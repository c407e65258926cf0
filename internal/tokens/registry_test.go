package tokens

import (
	"errors"
	"testing"

	"transfer-backend/internal/config"
	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r, err := NewRegistry(nil, nil)
	require.NoError(t, err)

	usdc, err := r.Resolve("USDC", 8453)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), usdc.Decimals)
	assert.False(t, usdc.Native)
	assert.Equal(t, common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), usdc.Address)

	eth, err := r.Resolve("ETH", 8453)
	require.NoError(t, err)
	assert.True(t, eth.Native)
	assert.Equal(t, NativeDecimals, eth.Decimals)
	assert.Equal(t, common.Address{}, eth.Address)

	celo, err := r.Resolve("CELO", 42220)
	require.NoError(t, err)
	assert.True(t, celo.Native)

	cusd, err := r.Resolve("cUSD", 44787)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), cusd.Decimals)
}

func TestResolveNotAvailable(t *testing.T) {
	r, err := NewRegistry(nil, nil)
	require.NoError(t, err)

	for _, tc := range []struct {
		symbol  string
		chainID uint64
	}{
		{"cUSD", 8453},
		{"USDT", 42220},
		{"DOGE", 1},
		{"CELO", 8453},
		{"ETH", 999999},
	} {
		_, err := r.Resolve(tc.symbol, tc.chainID)
		assert.True(t, errors.Is(err, ErrNotAvailable), "%s on %d", tc.symbol, tc.chainID)
	}
}

func TestOverrides(t *testing.T) {
	r, err := NewRegistry(utils.GlobalChainRegistry, []config.TokenConfig{
		{Symbol: "DAI", Decimals: 18, Addresses: map[uint64]string{8453: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb"}},
		{Symbol: "USDC", Addresses: map[uint64]string{42220: "0xcebA9300f2b948710d2653dD7B07f33A8B32118C"}},
	})
	require.NoError(t, err)

	dai, err := r.Resolve("DAI", 8453)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dai.Decimals)

	usdc, err := r.Resolve("USDC", 42220)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), usdc.Decimals, "decimals survive an address-only override")

	_, err = r.Resolve("USDC", 8453)
	assert.NoError(t, err, "built-in addresses are merged, not replaced")
}

func TestInvalidOverride(t *testing.T) {
	_, err := NewRegistry(nil, []config.TokenConfig{{Symbol: "BAD", Decimals: 6, Addresses: map[uint64]string{1: "0x123"}}})
	assert.Error(t, err)
}

func TestListForChain(t *testing.T) {
	r, err := NewRegistry(nil, nil)
	require.NoError(t, err)

	list := r.ListForChain(1)
	require.Len(t, list, 3)
	assert.Equal(t, "ETH", list[0].Symbol)
	assert.True(t, list[0].Native)
	assert.Equal(t, "USDC", list[1].Symbol)
	assert.Equal(t, "USDT", list[2].Symbol)

	push := r.ListForChain(42101)
	require.Len(t, push, 1)
	assert.Equal(t, "PC", push[0].Symbol)
}
