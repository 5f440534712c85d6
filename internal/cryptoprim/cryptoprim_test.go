package cryptoprim

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestKeccak256MatchesLibrary(t *testing.T) {
	got := Keccak256([]byte("hello"))
	want := crypto.Keccak256Hash([]byte("hello"))
	if !bytes.Equal(got[:], want.Bytes()) {
		t.Fatalf("Keccak256 mismatch: got %x want %x", got, want)
	}
}

func TestSignRecoverRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := Keccak256([]byte("hello world"))
	sig, err := Sign(priv, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub, err := Recover(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !equalPub(pub, &priv.PublicKey) {
		t.Fatalf("recovered key does not match signer")
	}
}

func equalPub(a, b *ecdsa.PublicKey) bool {
	return a.X.Cmp(b.X) == 0 && a.Y.Cmp(b.Y) == 0
}

func TestPrivateKeyFromHexAcceptsWithAndWithoutPrefix(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hexKey := fmt.Sprintf("%064x", priv.D)

	got, err := PrivateKeyFromHex("0x" + hexKey)
	if err != nil {
		t.Fatalf("PrivateKeyFromHex(with prefix): %v", err)
	}
	if !equalPub(&got.PublicKey, &priv.PublicKey) {
		t.Fatalf("PrivateKeyFromHex(with prefix) produced a different key")
	}

	got, err = PrivateKeyFromHex(hexKey)
	if err != nil {
		t.Fatalf("PrivateKeyFromHex(without prefix): %v", err)
	}
	if !equalPub(&got.PublicKey, &priv.PublicKey) {
		t.Fatalf("PrivateKeyFromHex(without prefix) produced a different key")
	}
}

func TestPublicKeyFromHexRoundTripsUncompressedForm(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	uncompressed := crypto.FromECDSAPub(&priv.PublicKey)

	got, err := PublicKeyFromHex(hex.EncodeToString(uncompressed))
	if err != nil {
		t.Fatalf("PublicKeyFromHex: %v", err)
	}
	if !equalPub(got, &priv.PublicKey) {
		t.Fatalf("PublicKeyFromHex produced a different key")
	}
}

// FuzzSignRecover is property P2: ecRecover(d, ecSign(k, d)) == pub(k).
func FuzzSignRecover(f *testing.F) {
	f.Add([]byte("seed message one"))
	f.Add([]byte(""))
	f.Fuzz(func(t *testing.T, msg []byte) {
		priv, err := GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		digest := Keccak256(msg)
		sig, err := Sign(priv, digest)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		pub, err := Recover(digest, sig)
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if !equalPub(pub, &priv.PublicKey) {
			t.Fatalf("recovered pubkey mismatch")
		}
	})
}

func TestECDHSymmetric(t *testing.T) {
	a, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("gen a: %v", err)
	}
	b, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("gen b: %v", err)
	}
	s1, err := ECDH(a, &b.PublicKey)
	if err != nil {
		t.Fatalf("ecdh a->b: %v", err)
	}
	s2, err := ECDH(b, &a.PublicKey)
	if err != nil {
		t.Fatalf("ecdh b->a: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("ECDH not symmetric: %x != %x", s1, s2)
	}
}

func TestEciesEncryptDecryptRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("gen: %v", err)
	}
	msg := []byte("auth message payload")
	ct, err := EciesEncrypt(&priv.PublicKey, msg, nil, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := EciesDecrypt(priv, ct, nil, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, msg) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, msg)
	}
}

func TestAESCTRXORSymmetric(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	plain := []byte("0123456789abcdef0123456789abcdef")
	ct, err := AESCTRXOR(key, iv, plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := AESCTRXOR(key, iv, ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, plain) {
		t.Fatalf("AES-CTR not symmetric: got %q want %q", pt, plain)
	}
}

func TestKeccakStatePeekWithoutReset(t *testing.T) {
	st := NewKeccakState()
	st.Write([]byte("abc"))
	d1 := st.Sum(nil)
	d2 := st.Sum(nil)
	if !bytes.Equal(d1, d2) {
		t.Fatalf("Sum should be idempotent without Write in between")
	}
	st.Write([]byte("def"))
	d3 := st.Sum(nil)
	if bytes.Equal(d1, d3) {
		t.Fatalf("Sum should change after further Write")
	}
}
