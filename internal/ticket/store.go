package ticket

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/codec"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

var (
	prefixEngine   = []byte("k/")
	prefixCampaign = []byte("c/") // c/<campaign(20)> -> Campaign CBOR
	prefixCreator  = []byte("i/") // i/<creator(20)><campaign(20)> -> empty
	prefixUsed     = []byte("u/") // u/<digest(32)> -> empty
)

// records reads and writes engine state inside one transaction.
type records struct {
	txn storage.Txn
}

func newRecords(txn storage.Txn) records {
	return records{txn: storage.NewPrefixTxn(txn, prefixEngine)}
}

func (r records) load(addr types.Address) (*Campaign, error) {
	data, err := r.txn.Get(campaignKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	var c Campaign
	if err := codec.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode campaign %s: %w", addr, err)
	}
	return &c, nil
}

func (r records) exists(addr types.Address) (bool, error) {
	return r.txn.Has(campaignKey(addr))
}

func (r records) save(c *Campaign) error {
	data, err := codec.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode campaign: %w", err)
	}
	return r.txn.Put(campaignKey(c.Address), data)
}

func (r records) index(c *Campaign) error {
	return r.txn.Put(creatorKey(c.Creator, c.Address), []byte{})
}

func (r records) byCreator(creator types.Address) ([]*Campaign, error) {
	var addrs []types.Address
	err := r.txn.ForEach(creatorKey(creator, types.Address{})[:len(prefixCreator)+types.AddressSize],
		func(key, _ []byte) error {
			var a types.Address
			copy(a[:], key[len(prefixCreator)+types.AddressSize:])
			addrs = append(addrs, a)
			return nil
		})
	if err != nil {
		return nil, err
	}
	out := make([]*Campaign, 0, len(addrs))
	for _, a := range addrs {
		c, err := r.load(a)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r records) all() ([]*Campaign, error) {
	var out []*Campaign
	err := r.txn.ForEach(prefixCampaign, func(key, value []byte) error {
		var c Campaign
		if err := codec.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("decode campaign %x: %w", key[len(prefixCampaign):], err)
		}
		out = append(out, &c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// consume marks an authorization digest as spent. A second use of the same
// signed operation fails with ErrUnauthorized.
func (r records) consume(digest types.Hash) error {
	key := append(append([]byte{}, prefixUsed...), digest[:]...)
	used, err := r.txn.Has(key)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: authorization already used", ErrUnauthorized)
	}
	return r.txn.Put(key, []byte{})
}

func campaignKey(addr types.Address) []byte {
	key := make([]byte, len(prefixCampaign)+types.AddressSize)
	copy(key, prefixCampaign)
	copy(key[len(prefixCampaign):], addr[:])
	return key
}

func creatorKey(creator, campaign types.Address) []byte {
	key := make([]byte, len(prefixCreator)+2*types.AddressSize)
	off := copy(key, prefixCreator)
	off += copy(key[off:], creator[:])
	copy(key[off:], campaign[:])
	return key
}
