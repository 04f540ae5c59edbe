package chains

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical function signatures whose calls mark a transaction scan-worthy.
// Selectors are derived at init so the hex constants can never drift from
// the signatures.
var (
	poolCreationSigs = []string{
		"createPair(address,address)",
		"createPool(address,address,uint24)",
	}
	mintInitSigs = []string{
		"initialize(address,address,uint24,uint160)",
		"mint(address,uint256)",
	}
	transferWatchSigs = []string{
		"transfer(address,uint256)",
		"transferFrom(address,address,uint256)",
		"addLiquidity(address,address,uint256,uint256,uint256,uint256,address,uint256)",
		"addLiquidityETH(address,uint256,uint256,uint256,address,uint256)",
	}
)

// selectorKinds maps a 4-byte selector (lowercase hex, no 0x) to the
// activity kind it implies.
var selectorKinds = buildSelectorKinds()

func buildSelectorKinds() map[string]ActivityKind {
	m := make(map[string]ActivityKind)
	add := func(sigs []string, kind ActivityKind) {
		for _, sig := range sigs {
			sel := hex.EncodeToString(crypto.Keccak256([]byte(sig))[:4])
			m[sel] = kind
		}
	}
	add(poolCreationSigs, ActivityPoolCreation)
	add(mintInitSigs, ActivityMintInit)
	add(transferWatchSigs, ActivityTransfer)
	return m
}

// classifyCalldata returns the activity kind implied by transaction input
// data, or false when the selector is not on the watch list.
func classifyCalldata(input string) (ActivityKind, bool) {
	if len(input) < 10 { // "0x" + 8 hex chars
		return "", false
	}
	kind, ok := selectorKinds[input[2:10]]
	return kind, ok
}
