package uniswap

import (
	"math/big"

	"evmwalletkit/internal/addr"
)

// DefaultMaxHops bounds the depth-first path search when the caller doesn't
// specify one.
const DefaultMaxHops = 3

// Trade is one candidate route through a sequence of pairs, priced under
// either exact-in or exact-out semantics.
type Trade struct {
	Path      []Pair
	AmountIn  *big.Int
	AmountOut *big.Int
}

// TradeExactIn enumerates every route from inToken to outToken across pairs
// of at most maxHops hops, depth-first: at each step it tries every pair
// touching the current token, prices the forward swap against that pair's
// reserves, and either closes the trade (if the pair's far side is
// outToken) or recurses one hop deeper over the remaining pairs. This
// enumerate-then-select shape (rather than a shortest-path search) is
// required because a V2 quote is a function of the specific reserves
// consumed at each hop, not a fixed per-edge cost.
func TradeExactIn(pairs []Pair, inToken addr.Address, inAmount *big.Int, outToken addr.Address, maxHops int) []Trade {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	var trades []Trade

	var recurse func(remaining []Pair, curToken addr.Address, curAmount *big.Int, hopsLeft int, acc []Pair)
	recurse = func(remaining []Pair, curToken addr.Address, curAmount *big.Int, hopsLeft int, acc []Pair) {
		for i, p := range remaining {
			other, ok := p.other(curToken)
			if !ok {
				continue
			}
			rIn, rOut, _ := p.reservesFor(curToken)
			out := AmountOut(curAmount, rIn, rOut)

			path := make([]Pair, len(acc)+1)
			copy(path, acc)
			path[len(acc)] = p

			if other == outToken {
				trades = append(trades, Trade{Path: path, AmountIn: inAmount, AmountOut: out})
				continue
			}
			if hopsLeft > 1 && len(remaining) > 1 {
				rest := make([]Pair, 0, len(remaining)-1)
				rest = append(rest, remaining[:i]...)
				rest = append(rest, remaining[i+1:]...)
				recurse(rest, other, out, hopsLeft-1, path)
			}
		}
	}
	recurse(pairs, inToken, inAmount, maxHops, nil)
	return trades
}

// TradeExactOut enumerates every route from inToken to outToken producing
// exactly outAmount at outToken. It mirrors TradeExactIn but walks backward
// from outToken, since AmountIn inverts AmountOut: at each step it tries
// every pair touching the current (output-side) token, computes the input
// amount that pair requires to produce the amount already needed downstream,
// and either closes the trade (if the pair's far side is inToken) or
// recurses one hop further back over the remaining pairs. The accumulated
// path is built tail-first and reversed before being returned, so the final
// Trade.Path still reads inToken -> ... -> outToken.
func TradeExactOut(pairs []Pair, inToken addr.Address, outToken addr.Address, outAmount *big.Int, maxHops int) []Trade {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	var trades []Trade

	var recurse func(remaining []Pair, curToken addr.Address, curAmount *big.Int, hopsLeft int, acc []Pair)
	recurse = func(remaining []Pair, curToken addr.Address, curAmount *big.Int, hopsLeft int, acc []Pair) {
		for i, p := range remaining {
			other, ok := p.other(curToken)
			if !ok {
				continue
			}
			// other is the token being sold into this pair to receive
			// curAmount of curToken, so the reserves run other->curToken.
			rIn, rOut, _ := p.reservesFor(other)
			in := AmountIn(curAmount, rIn, rOut)
			if in == nil {
				continue
			}

			path := make([]Pair, len(acc)+1)
			copy(path, acc)
			path[len(acc)] = p

			if other == inToken {
				trades = append(trades, Trade{Path: reversePairs(path), AmountIn: in, AmountOut: outAmount})
				continue
			}
			if hopsLeft > 1 && len(remaining) > 1 {
				rest := make([]Pair, 0, len(remaining)-1)
				rest = append(rest, remaining[:i]...)
				rest = append(rest, remaining[i+1:]...)
				recurse(rest, other, in, hopsLeft-1, path)
			}
		}
	}
	recurse(pairs, outToken, outAmount, maxHops, nil)
	return trades
}

func reversePairs(p []Pair) []Pair {
	out := make([]Pair, len(p))
	for i, v := range p {
		out[len(p)-1-i] = v
	}
	return out
}

// SelectBestExactIn picks the trade with the largest AmountOut, breaking
// ties by shorter path. Returns false if trades is empty.
func SelectBestExactIn(trades []Trade) (Trade, bool) {
	return selectBest(trades, func(best, candidate Trade) bool {
		cmp := candidate.AmountOut.Cmp(best.AmountOut)
		if cmp != 0 {
			return cmp > 0
		}
		return len(candidate.Path) < len(best.Path)
	})
}

// SelectBestExactOut picks the trade with the smallest AmountIn, breaking
// ties by shorter path. Returns false if trades is empty.
func SelectBestExactOut(trades []Trade) (Trade, bool) {
	return selectBest(trades, func(best, candidate Trade) bool {
		cmp := candidate.AmountIn.Cmp(best.AmountIn)
		if cmp != 0 {
			return cmp < 0
		}
		return len(candidate.Path) < len(best.Path)
	})
}

func selectBest(trades []Trade, better func(best, candidate Trade) bool) (Trade, bool) {
	if len(trades) == 0 {
		return Trade{}, false
	}
	best := trades[0]
	for _, t := range trades[1:] {
		if better(best, t) {
			best = t
		}
	}
	return best, true
}
