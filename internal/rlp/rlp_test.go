package rlp

import (
	"bytes"
	"math/big"
	"testing"
)

func TestEncodeBytesShortAndLong(t *testing.T) {
	cases := []struct {
		in   []byte
		want []byte
	}{
		{nil, []byte{0x80}},
		{[]byte{0x00}, []byte{0x00}},
		{[]byte("dog"), append([]byte{0x83}, []byte("dog")...)},
		{bytes.Repeat([]byte("a"), 56), nil}, // checked separately below
	}
	for _, c := range cases[:3] {
		got := EncodeBytes(c.in)
		if !bytes.Equal(got, c.want) {
			t.Fatalf("EncodeBytes(%v) = %x, want %x", c.in, got, c.want)
		}
	}
	long := bytes.Repeat([]byte("a"), 56)
	got := EncodeBytes(long)
	if got[0] != 0xb8 || got[1] != 56 {
		t.Fatalf("long string prefix wrong: %x", got[:2])
	}
}

func TestEncodeUint64Minimal(t *testing.T) {
	if got := EncodeUint64(0); !bytes.Equal(got, []byte{0x80}) {
		t.Fatalf("zero should encode as empty string, got %x", got)
	}
	if got := EncodeUint64(15); !bytes.Equal(got, []byte{0x0f}) {
		t.Fatalf("15 should encode as single byte 0x0f, got %x", got)
	}
	if got := EncodeUint64(1024); !bytes.Equal(got, []byte{0x82, 0x04, 0x00}) {
		t.Fatalf("1024 encoding wrong: %x", got)
	}
}

func TestDecodeRoundTripBytes(t *testing.T) {
	inputs := [][]byte{nil, {0x00}, {0x7f}, []byte("dog"), bytes.Repeat([]byte("x"), 60), bytes.Repeat([]byte("y"), 500)}
	for _, in := range inputs {
		enc := EncodeBytes(in)
		v, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode(%x) error: %v", enc, err)
		}
		if n != len(enc) {
			t.Fatalf("consumed %d, want %d", n, len(enc))
		}
		if !bytes.Equal(v.Str(), in) {
			t.Fatalf("round trip mismatch: got %x want %x", v.Str(), in)
		}
	}
}

func TestDecodeRoundTripUint64(t *testing.T) {
	for _, n := range []uint64{0, 1, 127, 128, 255, 256, 1 << 20, 1<<64 - 1} {
		enc := EncodeUint64(n)
		v, consumed, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode error for %d: %v", n, err)
		}
		if consumed != len(enc) {
			t.Fatalf("consumed mismatch for %d", n)
		}
		got, err := DecodeUint64(v)
		if err != nil {
			t.Fatalf("DecodeUint64(%d) error: %v", n, err)
		}
		if got != n {
			t.Fatalf("DecodeUint64 = %d, want %d", got, n)
		}
	}
}

func TestEncodeDecodeList(t *testing.T) {
	list := EncodeList(EncodeBytes([]byte("cat")), EncodeBytes([]byte("dog")))
	v, n, err := Decode(list)
	if err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if n != len(list) || !v.IsList || len(v.List) != 2 {
		t.Fatalf("unexpected decode result: %+v", v)
	}
	if string(v.List[0].Str()) != "cat" || string(v.List[1].Str()) != "dog" {
		t.Fatalf("list contents mismatch: %v", v.List)
	}
}

func TestEncodeNestedList(t *testing.T) {
	enc, err := Encode([]any{uint64(1), []any{[]byte("a"), []byte("b")}, []byte("c")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, _, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.IsList || len(v.List) != 3 {
		t.Fatalf("expected 3-element list, got %+v", v)
	}
	if !v.List[1].IsList || len(v.List[1].List) != 2 {
		t.Fatalf("expected nested 2-element list, got %+v", v.List[1])
	}
}

func TestDecodeRejectsNonCanonicalSingleByte(t *testing.T) {
	if _, _, err := Decode([]byte{0x81, 0x00}); err == nil {
		t.Fatalf("expected rejection of non-canonical single-byte string")
	}
}

func TestEncodeBigIntZeroIsEmptyString(t *testing.T) {
	if got := EncodeBigInt(big.NewInt(0)); !bytes.Equal(got, []byte{0x80}) {
		t.Fatalf("zero big.Int should encode as empty string, got %x", got)
	}
}

// FuzzRoundTripBytes is property P1: rlpDecode(rlpEncode(b)) == b for any
// byte string.
func FuzzRoundTripBytes(f *testing.F) {
	seeds := [][]byte{nil, {0}, {1, 2, 3}, []byte("hello world"), bytes.Repeat([]byte{0xaa}, 200)}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, b []byte) {
		enc := EncodeBytes(b)
		v, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if n != len(enc) {
			t.Fatalf("consumed %d of %d", n, len(enc))
		}
		if !bytes.Equal(v.Str(), b) {
			t.Fatalf("round trip mismatch: got %x want %x", v.Str(), b)
		}
	})
}

// FuzzRoundTripUint64 is property P1 for integers, including minimality.
func FuzzRoundTripUint64(f *testing.F) {
	for _, n := range []uint64{0, 1, 55, 56, 1000, 1 << 32} {
		f.Add(n)
	}
	f.Fuzz(func(t *testing.T, n uint64) {
		enc := EncodeUint64(n)
		if len(enc) > 1 && enc[0] >= 0x80 && enc[0] <= 0xb7 {
			strLen := int(enc[0] - 0x80)
			if strLen > 0 && enc[1] == 0 {
				t.Fatalf("non-minimal encoding for %d: %x", n, enc)
			}
		}
		v, _, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		got, err := DecodeUint64(v)
		if err != nil {
			t.Fatalf("DecodeUint64 error: %v", err)
		}
		if got != n {
			t.Fatalf("got %d want %d", got, n)
		}
	})
}
