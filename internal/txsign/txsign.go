// Package txsign builds and signs legacy Ethereum transactions: canonical
// RLP encoding, secp256k1 signing, and EIP-155 replay-protected v/r/s
// assembly. Grounded on the teacher's core/wallet.go transaction-signing
// flow, generalized from Synnergy's native transaction shape to the
// standard Ethereum (nonce, gasPrice, gasLimit, to, value, data) tuple.
package txsign

import (
	"crypto/ecdsa"
	"math/big"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/cryptoprim"
	"evmwalletkit/internal/rlp"
	"evmwalletkit/internal/werr"
)

// RawTransaction is user-provided transaction intent, pending nonce
// assignment by whichever back-end is driving the Sync Controller.
type RawTransaction struct {
	GasPrice *big.Int
	GasLimit uint64
	To       addr.Address
	Value    *big.Int
	Data     []byte
}

// Build returns a RawTransaction without validating it, substituting an
// empty slice for nil data; it exists mainly as the
// named construction step spec.md's builder/signer calls out, keeping the
// zero-value-vs-intentional-empty-data distinction explicit at call sites.
func Build(gasPrice *big.Int, gasLimit uint64, to addr.Address, value *big.Int, data []byte) RawTransaction {
	if data == nil {
		data = []byte{}
	}
	return RawTransaction{GasPrice: gasPrice, GasLimit: gasLimit, To: to, Value: value, Data: data}
}

// Transaction is a fully signed, ready-to-broadcast transaction.
type Transaction struct {
	Hash      [32]byte
	Nonce     uint64
	GasPrice  *big.Int
	GasLimit  uint64
	To        addr.Address
	Value     *big.Int
	Data      []byte
	ChainID   uint64
	Signature cryptoprim.Signature
}

// Sign assigns nonce to raw, encodes the EIP-155 signing payload, signs it
// with priv, and returns the Transaction plus its canonical signed RLP.
//
// Steps (§4.4):
//  1. RLP(nonce, gasPrice, gasLimit, to, value, data, chainId, 0, 0); hash.
//  2. ECDSA-sign the digest; cryptoprim.Sign already returns canonical low-S.
//  3. v = recId + 35 + 2*chainId.
//  4. RLP(nonce, gasPrice, gasLimit, to, value, data, v, r, s); hash = tx hash.
func Sign(raw RawTransaction, nonce uint64, chainID uint64, priv *ecdsa.PrivateKey) (Transaction, []byte, error) {
	signingPayload := encodeBody(nonce, raw, rlp.EncodeUint64(chainID), rlp.EncodeBytes(nil), rlp.EncodeBytes(nil))
	digest := cryptoprim.Keccak256(signingPayload)

	sig, err := cryptoprim.Sign(priv, digest)
	if err != nil {
		return Transaction{}, nil, werr.Wrap(werr.Validation, "txsign: sign", err)
	}

	v := uint64(sig.V) + 35 + 2*chainID

	signedPayload := encodeBody(nonce, raw, rlp.EncodeUint64(v), rlp.EncodeBigInt(new(big.Int).SetBytes(sig.R[:])), rlp.EncodeBigInt(new(big.Int).SetBytes(sig.S[:])))
	txHash := cryptoprim.Keccak256(signedPayload)

	out := Transaction{
		Hash:     txHash,
		Nonce:    nonce,
		GasPrice: raw.GasPrice,
		GasLimit: raw.GasLimit,
		To:       raw.To,
		Value:    raw.Value,
		Data:     raw.Data,
		ChainID:  chainID,
		Signature: cryptoprim.Signature{
			V: byte(v),
			R: sig.R,
			S: sig.S,
		},
	}
	return out, signedPayload, nil
}

// encodeBody builds RLP(nonce, gasPrice, gasLimit, to, value, data, f1, f2,
// f3), where f1/f2/f3 are already-RLP-encoded items — the shared shape
// between the EIP-155 signing payload (chainId, 0, 0) and the final signed
// payload (v, r, s).
func encodeBody(nonce uint64, raw RawTransaction, f1, f2, f3 []byte) []byte {
	items := [][]byte{
		rlp.EncodeUint64(nonce),
		rlp.EncodeBigInt(raw.GasPrice),
		rlp.EncodeUint64(raw.GasLimit),
		rlp.EncodeBytes(raw.To[:]),
		rlp.EncodeBigInt(raw.Value),
		rlp.EncodeBytes(raw.Data),
		f1,
		f2,
		f3,
	}
	return rlp.EncodeList(items...)
}
