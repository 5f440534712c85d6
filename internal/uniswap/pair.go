// Package uniswap implements the Uniswap V2 trade planner (C11): CREATE2
// pair-address derivation, constant-product reserve math, bounded-hop
// depth-first path search, and swap calldata assembly. Grounded on the
// teacher's core/amm.go + core/liquidity_pools.go (pool graph, bestPath,
// Quote, SwapExactIn), specialized from its Dijkstra router to an
// enumerate-then-select DFS: Uniswap V2 quotes are path-dependent (each hop's
// output depends on that hop's reserves, not a fixed edge weight), which
// breaks Dijkstra's optimal-substructure assumption.
package uniswap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"evmwalletkit/internal/addr"
)

// Caller is the one operation the trade planner needs from whichever
// back-end the sync controller (C10) is driving — spec.md's "the trade
// planner sits above the controller, using only its read/send operations."
// walletsync.Controller and both concrete back-ends already satisfy this
// structurally; the planner only depends on the one method it calls.
type Caller interface {
	Call(ctx context.Context, to addr.Address, data []byte) ([]byte, error)
}

// Native is the sentinel token address representing the chain's native
// asset (ETH) in a trade request, as opposed to an ERC-20 token address.
// Uniswap V2 has no token contract for ETH; callers route through the
// router's ETH-specific entry points instead, selected by comparing against
// this sentinel.
var Native = addr.Address{}

// PairAddress derives a Uniswap V2 pair's address deterministically via
// CREATE2, without any contract call: keccak(0xff ‖ factory ‖
// keccak(token0 ‖ token1) ‖ initCodeHash)[12:], with token0 < token1 by
// address ordering.
func PairAddress(factory addr.Address, tokenA, tokenB addr.Address, initCodeHash [32]byte) addr.Address {
	token0, token1 := tokenA, tokenB
	if tokenB.Less(tokenA) {
		token0, token1 = tokenB, tokenA
	}

	salt := crypto.Keccak256(append(append([]byte{}, token0[:]...), token1[:]...))

	buf := make([]byte, 0, 1+20+32+32)
	buf = append(buf, 0xff)
	buf = append(buf, factory[:]...)
	buf = append(buf, salt...)
	buf = append(buf, initCodeHash[:]...)

	digest := crypto.Keccak256(buf)
	var out addr.Address
	copy(out[:], digest[12:])
	return out
}

// getReservesSelector is the first four bytes of keccak256("getReserves()").
var getReservesSelector = [4]byte{0x09, 0x02, 0xf1, 0xac}

// FetchReserves calls getReserves() on pair and parses the three 32-byte
// return words (reserve0, reserve1, blockTimestampLast). A reply whose
// length isn't exactly 96 bytes reports zero reserves rather than an error,
// matching an uninitialized or nonexistent pair.
func FetchReserves(ctx context.Context, backend Caller, pair addr.Address) (reserve0, reserve1 *big.Int, err error) {
	reply, err := backend.Call(ctx, pair, getReservesSelector[:])
	if err != nil {
		return nil, nil, err
	}
	if len(reply) != 96 {
		return new(big.Int), new(big.Int), nil
	}
	reserve0 = new(big.Int).SetBytes(reply[0:32])
	reserve1 = new(big.Int).SetBytes(reply[32:64])
	return reserve0, reserve1, nil
}

// Pair is one pool's current reserves, oriented token0 < token1.
type Pair struct {
	Address        addr.Address
	Token0, Token1 addr.Address
	Reserve0       *big.Int
	Reserve1       *big.Int
}

// NewPair orders tokenA/tokenB into token0/token1 and fetches their
// reserves, returning a Pair ready for path search.
func NewPair(ctx context.Context, backend Caller, factory addr.Address, tokenA, tokenB addr.Address, initCodeHash [32]byte) (Pair, error) {
	token0, token1 := tokenA, tokenB
	if tokenB.Less(tokenA) {
		token0, token1 = tokenB, tokenA
	}
	pairAddr := PairAddress(factory, tokenA, tokenB, initCodeHash)
	r0, r1, err := FetchReserves(ctx, backend, pairAddr)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Address: pairAddr, Token0: token0, Token1: token1, Reserve0: r0, Reserve1: r1}, nil
}

// other returns the token on the far side of token, and whether p involves
// token at all.
func (p Pair) other(token addr.Address) (addr.Address, bool) {
	switch token {
	case p.Token0:
		return p.Token1, true
	case p.Token1:
		return p.Token0, true
	default:
		return addr.Address{}, false
	}
}

// reservesFor returns (rIn, rOut) for a swap where tokenIn is the side being
// sold, and whether p involves tokenIn at all.
func (p Pair) reservesFor(tokenIn addr.Address) (rIn, rOut *big.Int, ok bool) {
	switch tokenIn {
	case p.Token0:
		return p.Reserve0, p.Reserve1, true
	case p.Token1:
		return p.Reserve1, p.Reserve0, true
	default:
		return nil, nil, false
	}
}
