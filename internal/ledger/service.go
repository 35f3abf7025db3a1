package ledger

import (
	"context"

	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Service binds a Ledger to a store for standalone reads and genesis
// writes. Engine operations use the Ledger directly inside their own
// transactions.
type Service struct {
	db     storage.Transactional
	ledger *Ledger
}

// NewService creates a Service over db.
func NewService(db storage.Transactional, l *Ledger) *Service {
	return &Service{db: db, ledger: l}
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Assets lists the native unit and every registered asset.
func (s *Service) Assets(ctx context.Context) ([]Asset, error) {
	var out []Asset
	err := s.db.View(ctx, func(txn storage.Txn) error {
		var err error
		out, err = s.ledger.Assets(txn)
		return err
	})
	return out, err
}

// Balance returns owner's holding of asset.
func (s *Service) Balance(ctx context.Context, asset types.AssetRef, owner types.Address) (uint64, error) {
	var bal uint64
	err := s.db.View(ctx, func(txn storage.Txn) error {
		var err error
		bal, err = s.ledger.Balance(txn, asset, owner)
		return err
	})
	return bal, err
}

// Holdings returns every non-zero balance of owner.
func (s *Service) Holdings(ctx context.Context, owner types.Address) ([]Holding, error) {
	var out []Holding
	err := s.db.View(ctx, func(txn storage.Txn) error {
		var err error
		out, err = s.ledger.Holdings(txn, owner)
		return err
	})
	return out, err
}
