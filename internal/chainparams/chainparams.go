// Package chainparams holds the compiled-in network parameters the SPV
// back-end (C9) trusts without verification: network id, genesis hash, and
// a hard-coded checkpoint header to sync forward from. See §9's "Checkpoint
// trust" design note — this is a deliberate weakening of light-client
// trust, not an oversight.
package chainparams

import (
	"encoding/hex"

	"github.com/holiman/uint256"
)

// Header is the minimal subset of a block header the SPV header-chain
// verifier needs: identity, linkage, and cumulative work. TotalDifficulty
// uses uint256, matching go-ethereum's own representation of that field
// rather than an unbounded big.Int.
type Header struct {
	Number          uint64
	Hash            [32]byte
	ParentHash      [32]byte
	StateRoot       [32]byte
	TotalDifficulty *uint256.Int
}

// Params describes one preconfigured network.
type Params struct {
	Name       string
	NetworkID  uint64
	GenesisHash [32]byte
	Checkpoint Header
}

func mustHash(s string) [32]byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("chainparams: bad hex constant: " + err.Error())
	}
	var out [32]byte
	// left-pad / keep the last 32 bytes defensively; all constants below are
	// expected to be exactly 32 bytes.
	if len(b) >= 32 {
		copy(out[:], b[len(b)-32:])
	} else {
		copy(out[32-len(b):], b)
	}
	return out
}

// Mainnet is networkId=1.
var Mainnet = Params{
	Name:        "mainnet",
	NetworkID:   1,
	GenesisHash: mustHash("d4e56740f876aef8c010b86a40d5f56745a118d0906a34e69aec8c0db1cb8fa3"),
	Checkpoint: Header{
		Number:          15537394,
		Hash:            mustHash("56a9bb0302da44b8c0b3df540781424684c3af04d0b7a38d72842b762076a058"),
		TotalDifficulty: mustUint256("58750003716598352816469"),
	},
}

// Ropsten is networkId=3, the network the spec's end-to-end scenario 1
// exercises against the API back-end and which the SPV back-end's default
// checkpoint targets.
var Ropsten = Params{
	Name:        "ropsten",
	NetworkID:   3,
	GenesisHash: mustHash("41941023680923e0fe4d74a34bdac8141f2540e3ae90623718e47d66d1ca4a2d"),
	Checkpoint: Header{
		Number:          5194692,
		Hash:            mustHash("195689d41b2670de679673b2e98d6eb8d5d1d6bfd13f04b3f5550e2d5c006e8b"),
		TotalDifficulty: mustUint256("18529791467262594"),
	},
}

func mustUint256(s string) *uint256.Int {
	n, err := uint256.FromDecimal(s)
	if err != nil {
		panic("chainparams: bad decimal constant: " + s)
	}
	return n
}

// ByName resolves a network by its config name ("mainnet", "ropsten").
func ByName(name string) (Params, bool) {
	switch name {
	case Mainnet.Name:
		return Mainnet, true
	case Ropsten.Name:
		return Ropsten, true
	default:
		return Params{}, false
	}
}
