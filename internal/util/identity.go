package util

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	didPkhEthPrefix    = "did:pkh:eth:"
	didPkhEip155Prefix = "did:pkh:eip155:"
)

// NormalizeAddress trims and lower-cases an address for comparison.
func NormalizeAddress(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ExtractAddress returns the chain address embedded in a did:pkh identity,
// or "" when none can be extracted.
//
//	did:pkh:eth:<address>
//	did:pkh:eip155:<chainId>:<address>
func ExtractAddress(identity string) string {
	lower := NormalizeAddress(identity)
	if lower == "" {
		return ""
	}
	if strings.HasPrefix(lower, didPkhEthPrefix) {
		return strings.TrimPrefix(lower, didPkhEthPrefix)
	}
	if strings.HasPrefix(lower, didPkhEip155Prefix) {
		parts := strings.Split(lower, ":")
		if len(parts) > 4 {
			return parts[4]
		}
	}
	return ""
}

// IdentityMatches reports whether identity either embeds no address or
// embeds one equal to actor.
func IdentityMatches(identity, actor string) bool {
	address := ExtractAddress(identity)
	return address == "" || NormalizeAddress(address) == NormalizeAddress(actor)
}

// ActorHasAccess applies the session read rule: access is open when no
// identity yields an address, otherwise actor must match one of them.
func ActorHasAccess(identities []string, actor string) bool {
	normalized := NormalizeAddress(actor)
	found := false
	for _, identity := range identities {
		address := ExtractAddress(identity)
		if address == "" {
			continue
		}
		found = true
		if NormalizeAddress(address) == normalized {
			return true
		}
	}
	return !found
}

// IsAddress reports whether s is a 0x-prefixed or bare 20-byte hex address.
func IsAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}
