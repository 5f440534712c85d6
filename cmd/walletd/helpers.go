package main

import (
	"encoding/hex"
	"strings"

	"evmwalletkit/internal/addr"
	"evmwalletkit/internal/werr"
)

func addrValidateQuery(s string) (addr.Address, error) {
	return addr.Validate(s)
}

// parseTxHash decodes a 32-byte hex transaction hash, with or without a
// "0x" prefix, as found in the "from" pagination query parameter.
func parseTxHash(s string) ([32]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, werr.New(werr.Validation, "walletd: invalid tx hash")
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
