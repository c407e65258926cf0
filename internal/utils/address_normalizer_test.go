package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsEvmAddress(t *testing.T) {
	require.True(t, IsEvmAddress("0xABCDEF0123456789abcdef0123456789ABCDEF01"))
	require.True(t, IsEvmAddress("0x0000000000000000000000000000000000000000"))

	for _, bad := range []string{
		"",
		"ABCDEF0123456789abcdef0123456789ABCDEF01",
		"0xABCDEF0123456789abcdef0123456789ABCDEF0",
		"0xABCDEF0123456789abcdef0123456789ABCDEF012",
		"0xGBCDEF0123456789abcdef0123456789ABCDEF01",
		"0XABCDEF0123456789abcdef0123456789ABCDEF01",
		" 0xABCDEF0123456789abcdef0123456789ABCDEF01",
	} {
		require.False(t, IsEvmAddress(bad), bad)
	}
}

func TestNormalizeAddress(t *testing.T) {
	require.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", NormalizeAddress(" 0xABCDEF0123456789abcdef0123456789ABCDEF01 "))
	require.True(t, SameAddress("0xAbC", "0xabc"))
	require.False(t, SameAddress("", ""))
}

func TestChainRegistry(t *testing.T) {
	base, ok := GlobalChainRegistry.Get(8453)
	require.True(t, ok)
	require.Equal(t, "ETH", base.NativeSymbol)
	require.Equal(t, "https://basescan.org/tx/0xabc", base.TxURL("0xabc"))

	celo, ok := GlobalChainRegistry.GetByKey("CELO")
	require.True(t, ok)
	require.Equal(t, uint64(42220), celo.ChainID)

	_, err := GlobalChainRegistry.MustGet(999)
	require.Error(t, err)

	chains := GlobalChainRegistry.GetAllChains()
	require.Len(t, chains, 8)
	require.Equal(t, uint64(1), chains[0].ChainID)
}
