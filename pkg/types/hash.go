// Package types defines the primitive identifiers used by the ticket engine:
// digests, account addresses and asset references.
package types

import (
	"encoding/hex"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash is a BLAKE3-256 digest. Signed operation digests and the genesis
// fingerprint are Hashes.
type Hash [HashSize]byte

// IsZero reports whether h is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first eight hex characters, for logs.
func (h Hash) Short() string {
	return h.String()[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text is the
// zero hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes 64 hex characters, optionally 0x-prefixed.
func ParseHash(s string) (Hash, error) {
	b, err := decodeHex(s, HashSize)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}
