package ticket

import (
	"fmt"

	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// collect runs the currency gate and moves the price from buyer to the
// campaign wallet. It returns the amount paid.
func (e *Engine) collect(txn storage.Txn, c *Campaign, buyer types.Address, presented *types.AssetRef) (uint64, error) {
	if !c.Currency.IsNative() {
		if presented == nil {
			return 0, fmt.Errorf("%w: campaign takes %s, none presented", ErrCurrencyMismatch, c.Currency.Asset)
		}
		if *presented != c.Currency.Asset {
			return 0, fmt.Errorf("%w: campaign takes %s, presented %s", ErrCurrencyMismatch, c.Currency.Asset, *presented)
		}
	}
	if c.Price == 0 {
		return 0, nil
	}

	asset := c.Currency.AssetRef()
	bal, err := e.ledger.Balance(txn, asset, buyer)
	if err != nil {
		return 0, collaboratorErr("balance", err)
	}
	if bal < c.Price {
		return 0, fmt.Errorf("%w: balance %d, price %d", ErrInsufficientFunds, bal, c.Price)
	}
	if err := e.ledger.Transfer(txn, asset, buyer, c.Wallet, c.Price); err != nil {
		return 0, collaboratorErr("payment", err)
	}
	return c.Price, nil
}
