package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// Bech32 prefixes of the two networks.
const (
	MainnetHRP = "tbx"
	TestnetHRP = "ttbx"
)

// activeHRP is set once at startup by SetAddressHRP.
var activeHRP = MainnetHRP

// SetAddressHRP selects the bech32 prefix used when formatting addresses.
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// Address identifies an account, a program, a campaign record or an asset.
// Key-owned accounts are BLAKE3(pubkey)[:20]; everything else is derived
// with pkg/derive and has no private key.
type Address [AddressSize]byte

// IsZero reports whether a is all zeros. The zero address is the native
// asset reference.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the bech32 form under the active prefix.
func (a Address) String() string {
	s, err := Bech32Encode(activeHRP, a[:])
	if err != nil {
		return activeHRP + ":" + hex.EncodeToString(a[:])
	}
	return s
}

// Hex returns the raw hex-encoded address without prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler with the bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts anything
// ParseAddress does; empty text is the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 address of either network ("tbx1...",
// "ttbx1...") or 40 hex characters with an optional 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	switch {
	case s == "":
		return a, fmt.Errorf("empty address")
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") || len(s) == 2*AddressSize:
		b, err := decodeHex(s, AddressSize)
		if err != nil {
			return a, fmt.Errorf("invalid hex address: %w", err)
		}
		copy(a[:], b)
		return a, nil
	}

	hrp, data, err := Bech32Decode(s)
	if err != nil {
		return a, fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != MainnetHRP && hrp != TestnetHRP {
		return a, fmt.Errorf("unknown address prefix %q", hrp)
	}
	if len(data) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(data))
	}
	copy(a[:], data)
	return a, nil
}
