// Package rlp implements canonical Recursive Length Prefix encoding and
// decoding per the Ethereum yellow paper: the wire format every other
// component (transaction signing, header hashing, RLPx framing) builds on.
package rlp

import (
	"fmt"
	"math/big"
)

// Value is a decoded RLP item: either a byte string (IsList == false) or an
// ordered list of further Values.
type Value struct {
	IsList bool
	Bytes  []byte
	List   []*Value
}

// Str wraps a decoded byte string for convenience at call sites.
func (v *Value) Str() []byte {
	if v == nil || v.IsList {
		return nil
	}
	return v.Bytes
}

// minimalBigEndian strips leading zero bytes, per I1: the canonical encoding
// of an integer has no leading 0x00 and zero itself encodes as the empty
// string.
func minimalBigEndian(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// EncodeUint64 returns the canonical RLP string encoding of n.
func EncodeUint64(n uint64) []byte {
	if n == 0 {
		return EncodeBytes(nil)
	}
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(n)
		n >>= 8
	}
	return EncodeBytes(minimalBigEndian(buf))
}

// EncodeBigInt returns the canonical RLP string encoding of n. n must be
// non-negative; RLP has no representation for negative integers.
func EncodeBigInt(n *big.Int) []byte {
	if n == nil || n.Sign() == 0 {
		return EncodeBytes(nil)
	}
	if n.Sign() < 0 {
		panic("rlp: cannot encode negative integer")
	}
	return EncodeBytes(n.Bytes())
}

// EncodeBytes returns the canonical RLP string encoding of b.
func EncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(encodeLength(len(b), 0x80, 0xb7), b...)
}

// EncodeList wraps already RLP-encoded items into a list encoding.
func EncodeList(items ...[]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	return append(encodeLength(len(payload), 0xc0, 0xf7), payload...)
}

// encodeLength builds the length prefix for a string (offset=0x80/0xb7) or
// list (offset=0xc0/0xf7) payload of the given length.
func encodeLength(n int, shortBase, longBase byte) []byte {
	if n <= 55 {
		return []byte{shortBase + byte(n)}
	}
	lenBytes := minimalBigEndian(uint64ToBytes(uint64(n)))
	out := make([]byte, 0, 1+len(lenBytes))
	out = append(out, longBase+byte(len(lenBytes)))
	return append(out, lenBytes...)
}

func uint64ToBytes(n uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(n)
		n >>= 8
	}
	return buf
}

// Encode recursively encodes v, which must be built from []byte, string,
// uint64, *big.Int, or []any (nested lists of the same).
func Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return EncodeBytes(x), nil
	case string:
		return EncodeBytes([]byte(x)), nil
	case uint64:
		return EncodeUint64(x), nil
	case int:
		if x < 0 {
			return nil, fmt.Errorf("rlp: cannot encode negative int")
		}
		return EncodeUint64(uint64(x)), nil
	case *big.Int:
		return EncodeBigInt(x), nil
	case []any:
		items := make([][]byte, len(x))
		for i, e := range x {
			enc, err := Encode(e)
			if err != nil {
				return nil, err
			}
			items[i] = enc
		}
		return EncodeList(items...), nil
	default:
		return nil, fmt.Errorf("rlp: unsupported type %T", v)
	}
}

// Decode decodes exactly one top-level item from data, returning the decoded
// value and the number of bytes consumed. Decoding is recursive: a decoded
// list's elements are themselves fully decoded Values.
//
// Non-canonical length prefixes are rejected, but leading zero bytes inside
// an integer-typed string are tolerated on decode, matching peer
// implementations that are loose here.
func Decode(data []byte) (*Value, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("rlp: empty input")
	}
	b0 := data[0]
	switch {
	case b0 < 0x80:
		return &Value{Bytes: []byte{b0}}, 1, nil

	case b0 < 0xb8:
		strLen := int(b0 - 0x80)
		if strLen == 1 && len(data) > 1 && data[1] < 0x80 {
			return nil, 0, fmt.Errorf("rlp: non-canonical single-byte string encoding")
		}
		if len(data) < 1+strLen {
			return nil, 0, fmt.Errorf("rlp: truncated short string")
		}
		return &Value{Bytes: cloneBytes(data[1 : 1+strLen])}, 1 + strLen, nil

	case b0 < 0xc0:
		lenOfLen := int(b0 - 0xb7)
		if len(data) < 1+lenOfLen {
			return nil, 0, fmt.Errorf("rlp: truncated long string length")
		}
		lenBytes := data[1 : 1+lenOfLen]
		if lenBytes[0] == 0 {
			return nil, 0, fmt.Errorf("rlp: non-canonical long string length prefix")
		}
		strLen := bytesToUint(lenBytes)
		if strLen <= 55 {
			return nil, 0, fmt.Errorf("rlp: long string encoding used for short length")
		}
		start := 1 + lenOfLen
		if uint64(len(data)-start) < strLen {
			return nil, 0, fmt.Errorf("rlp: truncated long string")
		}
		return &Value{Bytes: cloneBytes(data[start : uint64(start)+strLen])}, start + int(strLen), nil

	case b0 < 0xf8:
		listLen := int(b0 - 0xc0)
		if len(data) < 1+listLen {
			return nil, 0, fmt.Errorf("rlp: truncated short list")
		}
		items, err := decodeItems(data[1 : 1+listLen])
		if err != nil {
			return nil, 0, err
		}
		return &Value{IsList: true, List: items}, 1 + listLen, nil

	default:
		lenOfLen := int(b0 - 0xf7)
		if len(data) < 1+lenOfLen {
			return nil, 0, fmt.Errorf("rlp: truncated long list length")
		}
		lenBytes := data[1 : 1+lenOfLen]
		if lenBytes[0] == 0 {
			return nil, 0, fmt.Errorf("rlp: non-canonical long list length prefix")
		}
		listLen := bytesToUint(lenBytes)
		if listLen <= 55 {
			return nil, 0, fmt.Errorf("rlp: long list encoding used for short length")
		}
		start := 1 + lenOfLen
		if uint64(len(data)-start) < listLen {
			return nil, 0, fmt.Errorf("rlp: truncated long list")
		}
		items, err := decodeItems(data[start : uint64(start)+listLen])
		if err != nil {
			return nil, 0, err
		}
		return &Value{IsList: true, List: items}, start + int(listLen), nil
	}
}

func decodeItems(payload []byte) ([]*Value, error) {
	var items []*Value
	for len(payload) > 0 {
		v, n, err := Decode(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		payload = payload[n:]
	}
	return items, nil
}

func bytesToUint(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// DecodeUint64 interprets a decoded byte-string Value as a big-endian
// unsigned integer (the empty string decodes to zero).
func DecodeUint64(v *Value) (uint64, error) {
	if v == nil || v.IsList {
		return 0, fmt.Errorf("rlp: expected string, got list")
	}
	if len(v.Bytes) > 8 {
		return 0, fmt.Errorf("rlp: integer too large for uint64")
	}
	return bytesToUint(v.Bytes), nil
}

// DecodeBigInt interprets a decoded byte-string Value as a big-endian
// unsigned integer of arbitrary size.
func DecodeBigInt(v *Value) (*big.Int, error) {
	if v == nil || v.IsList {
		return nil, fmt.Errorf("rlp: expected string, got list")
	}
	return new(big.Int).SetBytes(v.Bytes), nil
}
