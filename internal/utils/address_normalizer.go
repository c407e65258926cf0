package utils

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsEvmAddress reports whether address is 0x followed by exactly 40 hex chars.
// Checksum casing is not enforced.
func IsEvmAddress(address string) bool {
	return evmAddressPattern.MatchString(address)
}

// NormalizeAddress lower-cases an EVM address for storage and comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress compares two EVM addresses case-insensitively
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ToChecksumAddress returns the EIP-55 form, or the input unchanged when it is not an EVM address.
func ToChecksumAddress(address string) string {
	if !IsEvmAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}

// ShortAddress renders 0x1234...abcd for log lines
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
