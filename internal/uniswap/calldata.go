package uniswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/werr"
)

// selector returns the first four bytes of keccak256(signature), the
// standard Solidity function selector.
func selector(signature string) [4]byte {
	hash := crypto.Keccak256([]byte(signature))
	var out [4]byte
	copy(out[:], hash[:4])
	return out
}

func pad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func encodeUint(n *big.Int) []byte {
	return pad32(n.Bytes())
}

func encodeAddress(a addr.Address) []byte {
	return pad32(a[:])
}

// encodeRouterSwapCall ABI-encodes a call to any of the Uniswap V2 router's
// swap*(leadingUints..., address[] path, address to, uint256 deadline)
// functions. Every one of those functions has the same tail shape (a
// dynamic address[] followed by two static params), so the head/tail layout
// is identical regardless of how many leading uint256 params precede the
// path: head = leadingUints, then the path's byte offset, then `to`, then
// `deadline`; tail = the path's length followed by its elements.
func encodeRouterSwapCall(sig [4]byte, leadingUints []*big.Int, path []addr.Address, to addr.Address, deadline uint64) []byte {
	headWords := len(leadingUints) + 3 // + offset + to + deadline
	offset := big.NewInt(int64(32 * headWords))

	out := make([]byte, 0, 4+32*headWords+32*(1+len(path)))
	out = append(out, sig[:]...)
	for _, u := range leadingUints {
		out = append(out, encodeUint(u)...)
	}
	out = append(out, encodeUint(offset)...)
	out = append(out, encodeAddress(to)...)
	out = append(out, encodeUint(new(big.Int).SetUint64(deadline))...)

	out = append(out, encodeUint(big.NewInt(int64(len(path))))...)
	for _, token := range path {
		out = append(out, encodeAddress(token)...)
	}
	return out
}

var (
	selSwapExactETHForTokens                 = selector("swapExactETHForTokens(uint256,address[],address,uint256)")
	selSwapExactETHForTokensSupportingFee    = selector("swapExactETHForTokensSupportingFeeOnTransferTokens(uint256,address[],address,uint256)")
	selSwapETHForExactTokens                 = selector("swapETHForExactTokens(uint256,address[],address,uint256)")
	selSwapExactTokensForETH                 = selector("swapExactTokensForETH(uint256,uint256,address[],address,uint256)")
	selSwapExactTokensForETHSupportingFee    = selector("swapExactTokensForETHSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)")
	selSwapTokensForExactETH                 = selector("swapTokensForExactETH(uint256,uint256,address[],address,uint256)")
	selSwapExactTokensForTokens              = selector("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)")
	selSwapExactTokensForTokensSupportingFee = selector("swapExactTokensForTokensSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)")
	selSwapTokensForExactTokens              = selector("swapTokensForExactTokens(uint256,uint256,address[],address,uint256)")
	selApprove                               = selector("approve(address,uint256)")
)

// BuildApprove encodes an ERC-20 approve(spender, amount) call.
func BuildApprove(spender addr.Address, amount *big.Int) []byte {
	out := make([]byte, 0, 4+64)
	out = append(out, selApprove[:]...)
	out = append(out, encodeAddress(spender)...)
	out = append(out, encodeUint(amount)...)
	return out
}

// SwapRequest describes one trade's execution parameters, independent of
// which router method it compiles to.
type SwapRequest struct {
	TokenIn, TokenOut addr.Address // Native for the chain's native asset
	Path              []addr.Address
	AmountIn          *big.Int // exact-in: the amount sold
	AmountOut         *big.Int // exact-out: the amount to receive
	AmountInMax       *big.Int // exact-out: slippage ceiling on AmountIn
	AmountOutMin      *big.Int // exact-in: slippage floor on AmountOut
	To                addr.Address
	Deadline          uint64
	ExactOut          bool
	SupportingFee     bool // exact-in only; ignored for exact-out
}

// BuildSwapCalldata assembles the calldata sequence for req's router call,
// choosing the method by (tokenIn/tokenOut direction, exact-in/exact-out,
// feeOnTransfer) per the router's method table, and prepending an
// approve(router, amountIn) call when tokenIn is an ERC-20 (ETH carries no
// allowance and needs none). The last element is always the swap call
// itself; the router address to send calls to is the caller's concern, not
// this package's.
func BuildSwapCalldata(req SwapRequest, router addr.Address) ([][]byte, error) {
	ethIn := req.TokenIn == Native
	ethOut := req.TokenOut == Native
	if ethIn && ethOut {
		return nil, werr.New(werr.Validation, "uniswap: both tokenIn and tokenOut are native")
	}

	var swapCall []byte
	switch {
	case ethIn && !req.ExactOut:
		sig := selSwapExactETHForTokens
		if req.SupportingFee {
			sig = selSwapExactETHForTokensSupportingFee
		}
		swapCall = encodeRouterSwapCall(sig, []*big.Int{req.AmountOutMin}, req.Path, req.To, req.Deadline)
	case ethIn && req.ExactOut:
		swapCall = encodeRouterSwapCall(selSwapETHForExactTokens, []*big.Int{req.AmountOut}, req.Path, req.To, req.Deadline)
	case ethOut && !req.ExactOut:
		sig := selSwapExactTokensForETH
		if req.SupportingFee {
			sig = selSwapExactTokensForETHSupportingFee
		}
		swapCall = encodeRouterSwapCall(sig, []*big.Int{req.AmountIn, req.AmountOutMin}, req.Path, req.To, req.Deadline)
	case ethOut && req.ExactOut:
		swapCall = encodeRouterSwapCall(selSwapTokensForExactETH, []*big.Int{req.AmountOut, req.AmountInMax}, req.Path, req.To, req.Deadline)
	case !req.ExactOut:
		sig := selSwapExactTokensForTokens
		if req.SupportingFee {
			sig = selSwapExactTokensForTokensSupportingFee
		}
		swapCall = encodeRouterSwapCall(sig, []*big.Int{req.AmountIn, req.AmountOutMin}, req.Path, req.To, req.Deadline)
	default:
		swapCall = encodeRouterSwapCall(selSwapTokensForExactTokens, []*big.Int{req.AmountOut, req.AmountInMax}, req.Path, req.To, req.Deadline)
	}

	if ethIn {
		return [][]byte{swapCall}, nil
	}

	approveAmount := req.AmountIn
	if req.ExactOut {
		approveAmount = req.AmountInMax
	}
	return [][]byte{BuildApprove(router, approveAmount), swapCall}, nil
}
