// Package addr implements the 20-byte Ethereum address type plus EIP-55
// checksum validation (C3). Every address entering the kit from outside
// (CLI flags, send() destinations, contract addresses) runs through
// Validate.
package addr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"evmwalletkit/internal/werr"
)

// Address is a 20-byte account address. Equality is byte-wise.
type Address [20]byte

// Reason classifies why an address string failed validation.
type Reason int

const (
	ReasonLength Reason = iota
	ReasonHex
	ReasonChecksum
)

func (r Reason) String() string {
	switch r {
	case ReasonLength:
		return "Length"
	case ReasonHex:
		return "Hex"
	case ReasonChecksum:
		return "Checksum"
	default:
		return "Unknown"
	}
}

// InvalidAddressError reports why a candidate address string was rejected.
type InvalidAddressError struct {
	Reason Reason
	Input  string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address (%s): %q", e.Reason, e.Input)
}

// Validate checks s is 40 hex digits (optional "0x" prefix). If the digits
// are not uniformly lower- or upper-case, the EIP-55 mixed-case checksum is
// enforced: for each nibble i, the hex digit is uppercase iff
// keccak(lowercaseHex)[i] >= 8.
func Validate(s string) (Address, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	trimmed = strings.TrimPrefix(trimmed, "0X")
	if len(trimmed) != 40 {
		return Address{}, werr.Wrap(werr.Validation, "address", &InvalidAddressError{Reason: ReasonLength, Input: s})
	}

	raw, err := hex.DecodeString(strings.ToLower(trimmed))
	if err != nil {
		return Address{}, werr.Wrap(werr.Validation, "address", &InvalidAddressError{Reason: ReasonHex, Input: s})
	}

	isAllLower := trimmed == strings.ToLower(trimmed)
	isAllUpper := trimmed == strings.ToUpper(trimmed)
	if !isAllLower && !isAllUpper {
		if !isChecksumValid(trimmed) {
			return Address{}, werr.Wrap(werr.Validation, "address", &InvalidAddressError{Reason: ReasonChecksum, Input: s})
		}
	}

	var out Address
	copy(out[:], raw)
	return out, nil
}

// isChecksumValid implements EIP-55: hash the lowercase hex string, then
// require each alphabetic nibble's case to match the corresponding nibble
// of the hash.
func isChecksumValid(mixedCase string) bool {
	lower := strings.ToLower(mixedCase)
	hash := crypto.Keccak256([]byte(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c < 'a' || c > 'f' {
			continue // digits carry no case information
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		wantUpper := nibble >= 8
		gotUpper := mixedCase[i] >= 'A' && mixedCase[i] <= 'F'
		if wantUpper != gotUpper {
			return false
		}
	}
	return true
}

// Hex returns the EIP-55 checksummed "0x"-prefixed representation.
func (a Address) Hex() string {
	lower := hex.EncodeToString(a[:])
	hash := crypto.Keccak256([]byte(lower))
	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			} else {
				nibble &= 0x0f
			}
			if nibble >= 8 {
				c -= 'a' - 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Less orders addresses byte-wise, used to determine Uniswap token0/token1.
func (a Address) Less(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
