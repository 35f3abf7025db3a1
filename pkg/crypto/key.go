package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Signer authorizes operation digests. A *PrivateKey is the only
// implementation in this module; wallets and HSMs can provide others.
type Signer interface {
	Sign(digest types.Hash) ([]byte, error)
	PublicKey() []byte
}

// PrivateKey is a secp256k1 secret used for BIP-340 style Schnorr
// signatures.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey returns a fresh random key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes wraps a 32-byte scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// ParsePrivateKey decodes a hex scalar. Surrounding whitespace, as left by
// key files, is ignored.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return PrivateKeyFromBytes(b)
}

// Sign signs digest.
func (pk *PrivateKey) Sign(digest types.Hash) ([]byte, error) {
	sig, err := schnorr.Sign(pk.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey returns the 33-byte compressed public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Address returns the account controlled by this key.
func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns the 32-byte scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Hex returns the scalar hex-encoded, the format of key files.
func (pk *PrivateKey) Hex() string {
	return hex.EncodeToString(pk.key.Serialize())
}

// Zero wipes the scalar from memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// Verify reports whether signature is a valid signature over digest by
// the compressed publicKey. Malformed input is simply invalid.
func Verify(digest types.Hash, signature, publicKey []byte) bool {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(digest[:], pub)
}

// IsOnCurve reports whether x is the x-coordinate of a secp256k1 point.
// Derived addresses must be off the curve so that no key can sign for them.
func IsOnCurve(x types.Hash) bool {
	var compressed [33]byte
	compressed[0] = secp256k1.PubKeyFormatCompressedEven
	copy(compressed[1:], x[:])
	_, err := secp256k1.ParsePubKey(compressed[:])
	return err == nil
}
