package types

import (
	"errors"
	"fmt"
	"strings"
)

// BIP-173 bech32 alphabet.
const bech32Alphabet = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var bech32Generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

// Bech32Encode encodes a human-readable part and data bytes into a bech32 string.
func Bech32Encode(hrp string, data []byte) (string, error) {
	if hrp == "" {
		return "", errors.New("bech32: empty HRP")
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", fmt.Errorf("bech32: invalid HRP character %q", c)
		}
	}
	values, err := regroup(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32: %w", err)
	}

	mod := polymod(append(append(expandHRP(hrp), values...), 0, 0, 0, 0, 0, 0)) ^ 1

	var sb strings.Builder
	sb.Grow(len(hrp) + 1 + len(values) + 6)
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, v := range values {
		sb.WriteByte(bech32Alphabet[v])
	}
	for i := 0; i < 6; i++ {
		sb.WriteByte(bech32Alphabet[(mod>>uint(5*(5-i)))&31])
	}
	return sb.String(), nil
}

// Bech32Decode splits a bech32 string into its human-readable part and data bytes,
// verifying the checksum.
func Bech32Decode(s string) (string, []byte, error) {
	if s == "" {
		return "", nil, errors.New("bech32: empty string")
	}
	if strings.ToLower(s) != s && strings.ToUpper(s) != s {
		return "", nil, errors.New("bech32: mixed case")
	}
	s = strings.ToLower(s)

	sep := strings.LastIndexByte(s, '1')
	if sep < 1 {
		return "", nil, errors.New("bech32: missing separator")
	}
	if sep+7 > len(s) {
		return "", nil, errors.New("bech32: too short")
	}

	hrp := s[:sep]
	values := make([]byte, 0, len(s)-sep-1)
	for _, c := range s[sep+1:] {
		idx := strings.IndexRune(bech32Alphabet, c)
		if idx < 0 {
			return "", nil, fmt.Errorf("bech32: invalid character %q", c)
		}
		values = append(values, byte(idx))
	}

	if polymod(append(expandHRP(hrp), values...)) != 1 {
		return "", nil, errors.New("bech32: invalid checksum")
	}

	data, err := regroup(values[:len(values)-6], 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("bech32: %w", err)
	}
	return hrp, data, nil
}

func polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i, g := range bech32Generator {
			if (top>>uint(i))&1 == 1 {
				chk ^= g
			}
		}
	}
	return chk
}

func expandHRP(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

// regroup converts a byte slice between bit-group sizes (8 <-> 5).
func regroup(data []byte, from, to uint, pad bool) ([]byte, error) {
	var (
		acc  uint32
		bits uint
		out  []byte
	)
	maxv := uint32(1)<<to - 1
	for _, b := range data {
		if uint32(b)>>from != 0 {
			return nil, fmt.Errorf("invalid data byte %d", b)
		}
		acc = acc<<from | uint32(b)
		bits += from
		for bits >= to {
			bits -= to
			out = append(out, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(to-bits)&maxv))
		}
		return out, nil
	}
	if bits >= from || acc<<(to-bits)&maxv != 0 {
		return nil, errors.New("non-zero padding")
	}
	return out, nil
}
