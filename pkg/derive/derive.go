// Package derive computes deterministic program-owned addresses.
//
// A derived address is BLAKE3(tag || seeds... || bump || owner || marker)
// truncated to 20 bytes, where bump is the highest value in [0, 255] whose
// full 32-byte digest is not the x-coordinate of a secp256k1 point. Such an
// address has no private key; only the owning program can act for it.
package derive

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/ticketbox/pkg/crypto"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

const (
	// MaxSeedLen is the longest accepted tag or seed.
	MaxSeedLen = 32
	// MaxSeeds is the most seeds accepted after the tag.
	MaxSeeds = 16
)

// Seed tags used by the ticket engine.
const (
	TagCampaign   = "ticket_box"
	TagMetadata   = "metadata"
	TagEdition    = "edition"
	TagCollection = "collection"
	TagTicket     = "ticket"
)

var marker = []byte("ProgramDerivedAddress")

var (
	ErrDerivationExhausted = errors.New("no valid derivation bump")
	ErrSeedTooLong         = errors.New("derivation seed too long")
	ErrTooManySeeds        = errors.New("too many derivation seeds")
	ErrOnCurve             = errors.New("derived address is on curve")
)

// Derive searches bumps from 255 downward and returns the first valid
// address together with its bump.
func Derive(tag []byte, seeds [][]byte, owner types.Address) (types.Address, uint8, error) {
	if err := checkSeeds(tag, seeds); err != nil {
		return types.Address{}, 0, err
	}
	for b := 255; b >= 0; b-- {
		bump := uint8(b)
		if addr, ok := candidate(tag, seeds, bump, owner); ok {
			return addr, bump, nil
		}
	}
	return types.Address{}, 0, ErrDerivationExhausted
}

// CreateWithBump recomputes the address for a known bump. It fails with
// ErrOnCurve when the bump does not produce a valid address.
func CreateWithBump(tag []byte, seeds [][]byte, bump uint8, owner types.Address) (types.Address, error) {
	if err := checkSeeds(tag, seeds); err != nil {
		return types.Address{}, err
	}
	addr, ok := candidate(tag, seeds, bump, owner)
	if !ok {
		return types.Address{}, ErrOnCurve
	}
	return addr, nil
}

// Verify reports whether addr is the derivation of the inputs under bump.
func Verify(addr types.Address, tag []byte, seeds [][]byte, bump uint8, owner types.Address) bool {
	got, err := CreateWithBump(tag, seeds, bump, owner)
	return err == nil && got == addr
}

func checkSeeds(tag []byte, seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}
	if len(tag) > MaxSeedLen {
		return fmt.Errorf("%w: tag is %d bytes", ErrSeedTooLong, len(tag))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return fmt.Errorf("%w: seed %d is %d bytes", ErrSeedTooLong, i, len(s))
		}
	}
	return nil
}

func candidate(tag []byte, seeds [][]byte, bump uint8, owner types.Address) (types.Address, bool) {
	parts := make([][]byte, 0, len(seeds)+4)
	parts = append(parts, tag)
	parts = append(parts, seeds...)
	parts = append(parts, []byte{bump}, owner[:], marker)
	h := crypto.HashParts(parts...)
	if crypto.IsOnCurve(h) {
		return types.Address{}, false
	}
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr, true
}

// CampaignAddress derives the campaign record address for (campaignID, creator).
func CampaignAddress(program types.Address, campaignID string, creator types.Address) (types.Address, uint8, error) {
	return Derive([]byte(TagCampaign), [][]byte{[]byte(campaignID), creator[:]}, program)
}

// CollectionAsset derives the collection certificate asset id for a campaign.
func CollectionAsset(program, campaign types.Address) (types.Address, uint8, error) {
	return Derive([]byte(TagCollection), [][]byte{campaign[:]}, program)
}

// TicketAsset derives the asset id of the seq-th ticket of a campaign.
// Sequences start at 1.
func TicketAsset(program, campaign types.Address, seq uint64) (types.Address, uint8, error) {
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	return Derive([]byte(TagTicket), [][]byte{campaign[:], s[:]}, program)
}

// MetadataAddress derives the metadata record address of an asset.
func MetadataAddress(metadataProgram, asset types.Address) (types.Address, uint8, error) {
	return Derive([]byte(TagMetadata), [][]byte{metadataProgram[:], asset[:]}, metadataProgram)
}

// EditionAddress derives the edition record address of an asset.
func EditionAddress(metadataProgram, asset types.Address) (types.Address, uint8, error) {
	return Derive([]byte(TagMetadata), [][]byte{metadataProgram[:], asset[:], []byte(TagEdition)}, metadataProgram)
}
