package uniswap

import "math/big"

var (
	fee997  = big.NewInt(997)
	fee1000 = big.NewInt(1000)
)

// AmountOut computes the output amount a Uniswap V2 swap yields for
// amountIn against reserves (rIn, rOut), net of the 0.3% pool fee:
// (amountIn*997*rOut) / (rIn*1000 + amountIn*997).
func AmountOut(amountIn, rIn, rOut *big.Int) *big.Int {
	amountInWithFee := new(big.Int).Mul(amountIn, fee997)
	numerator := new(big.Int).Mul(amountInWithFee, rOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(rIn, fee1000), amountInWithFee)
	if denominator.Sign() == 0 {
		return new(big.Int)
	}
	return numerator.Div(numerator, denominator)
}

// AmountIn computes the input amount required to receive exactly amountOut
// from reserves (rIn, rOut): (rIn*amountOut*1000) / ((rOut-amountOut)*997) + 1,
// the "+1" rounding up so the pool is never left short.
func AmountIn(amountOut, rIn, rOut *big.Int) *big.Int {
	remaining := new(big.Int).Sub(rOut, amountOut)
	if remaining.Sign() <= 0 {
		return nil // amountOut exceeds the pool's liquidity on that side
	}
	numerator := new(big.Int).Mul(new(big.Int).Mul(rIn, amountOut), fee1000)
	denominator := new(big.Int).Mul(remaining, fee997)
	result := new(big.Int).Div(numerator, denominator)
	return result.Add(result, big.NewInt(1))
}
