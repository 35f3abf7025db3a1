package types

import (
	"encoding/hex"
	"fmt"
)

// decodeHex decodes s, with or without a 0x prefix, into exactly size
// bytes. A size of -1 accepts any length.
func decodeHex(s string, size int) ([]byte, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if size >= 0 && len(b) != size {
		return nil, fmt.Errorf("want %d bytes, got %d", size, len(b))
	}
	return b, nil
}

// HexBytes is a byte slice that encodes to JSON as a hex string. Public
// keys and signatures travel this way.
type HexBytes []byte

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *HexBytes) UnmarshalText(text []byte) error {
	raw, err := decodeHex(string(text), -1)
	if err != nil {
		return err
	}
	*b = raw
	return nil
}
