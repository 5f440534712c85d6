// Package cryptoprim provides the pure cryptographic primitives the rest of
// the kit is built on: Keccak-256, secp256k1 sign/recover, ECDH, ECIES, and
// the AES-CTR + HMAC-SHA256 building blocks RLPx framing needs. Every
// function here is pure — no global state, no I/O.
package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"golang.org/x/crypto/sha3"
)

// Signature is the {v, r, s} triple spec.md's data model names. v encodes
// the recovery id, optionally XORed with an EIP-155 chain-id shift by the
// caller (internal/txsign does that mixing).
type Signature struct {
	V byte
	R [32]byte
	S [32]byte
}

// Keccak256 returns the 32-byte Keccak-256 digest of the concatenation of
// all the given byte slices.
func Keccak256(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data...))
	return out
}

// NewKeccakState returns a resettable Keccak-256 hash.Hash whose Sum can be
// read without finalizing — the MAC discipline in §4.7 requires peeking at
// a running digest without disturbing it.
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256()
}

// KeccakState is the subset of hash.Hash the rolling RLPx MAC needs: Write
// to mutate, Sum(nil) to peek the current digest without resetting.
type KeccakState interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
	Reset()
	Size() int
}

// GeneratePrivateKey returns a fresh secp256k1 key pair.
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// PrivateKeyFromHex parses a hex-encoded secp256k1 private key, with or
// without a "0x" prefix — the CLI and daemon front-ends' only entry point
// for loading a user's key.
func PrivateKeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	priv, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: parse private key: %w", err)
	}
	return priv, nil
}

// PublicKeyFromHex parses a hex-encoded uncompressed secp256k1 public key
// (the 65-byte 0x04‖X‖Y form), used to pin an SPV peer's static node key.
func PublicKeyFromHex(s string) (*ecdsa.PublicKey, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: decode public key: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: parse public key: %w", err)
	}
	return pub, nil
}

// Sign produces a low-S canonical signature over digest (which must be 32
// bytes) using priv.
func Sign(priv *ecdsa.PrivateKey, digest [32]byte) (Signature, error) {
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return Signature{}, fmt.Errorf("cryptoprim: sign: %w", err)
	}
	var out Signature
	copy(out.R[:], sig[0:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64]
	return out, nil
}

// Recover recovers the public key that produced sig over digest.
func Recover(digest [32]byte, sig Signature) (*ecdsa.PublicKey, error) {
	raw := make([]byte, 65)
	copy(raw[0:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V
	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: recover: %w", err)
	}
	return pub, nil
}

// ECDH computes the raw X9.62 shared secret (the x-coordinate of
// priv·pub) as 32 bytes — the S term in §4.7's secret derivation, distinct
// from the KDF'd shared key ECIES itself produces.
func ECDH(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([32]byte, error) {
	if priv == nil || pub == nil {
		return [32]byte{}, fmt.Errorf("cryptoprim: ecdh: nil key")
	}
	curve := crypto.S256()
	x, _ := curve.ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	var out [32]byte
	xb := x.Bytes()
	copy(out[32-len(xb):], xb)
	return out, nil
}

// EciesEncrypt encrypts m to pub per SEC-1: Concatenation KDF over SHA-256,
// HMAC-SHA256 MAC, AES-128-CTR cipher — go-ethereum's ecies package already
// implements exactly this parameter set, which is what the RLPx auth/ack
// messages (§4.7) are encrypted with.
func EciesEncrypt(pub *ecdsa.PublicKey, m, s1, s2 []byte) ([]byte, error) {
	eciesPub := ecies.ImportECDSAPublic(pub)
	ct, err := ecies.Encrypt(rand.Reader, eciesPub, m, s1, s2)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ecies encrypt: %w", err)
	}
	return ct, nil
}

// EciesDecrypt decrypts ct, previously produced by EciesEncrypt to priv's
// public key.
func EciesDecrypt(priv *ecdsa.PrivateKey, ct, s1, s2 []byte) ([]byte, error) {
	eciesPriv := ecies.ImportECDSA(priv)
	pt, err := eciesPriv.Decrypt(ct, s1, s2)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ecies decrypt: %w", err)
	}
	return pt, nil
}

// AESCTRXOR runs AES-CTR over data in place semantics (returns a new slice)
// using the given key and 16-byte IV. Encryption and decryption are the
// same operation for a stream cipher.
func AESCTRXOR(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: aes cipher: %w", err)
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key []byte, data ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// AESECBEncryptBlock encrypts exactly one 16-byte block with AES in ECB
// mode — used only inside the RLPx MAC update function (§4.7), which
// applies AES one block at a time and never chains across blocks.
func AESECBEncryptBlock(key, block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("cryptoprim: ecb block must be %d bytes", aes.BlockSize)
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: aes cipher: %w", err)
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out, nil
}

// Ensure our curve matches go-ethereum's expectations (secp256k1), guarding
// against accidental mismatch if ECDH's caller constructs keys by hand.
var _ elliptic.Curve = crypto.S256()
