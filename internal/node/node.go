// Package node wires a ticket sale engine to its store, genesis and RPC
// server so it can be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ticketbox/config"
	"github.com/Klingon-tech/ticketbox/internal/certificate"
	"github.com/Klingon-tech/ticketbox/internal/ledger"
	klog "github.com/Klingon-tech/ticketbox/internal/log"
	"github.com/Klingon-tech/ticketbox/internal/rpc"
	"github.com/Klingon-tech/ticketbox/internal/storage"
	"github.com/Klingon-tech/ticketbox/internal/ticket"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

// Node is a fully-initialized ticket engine process.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db      storage.Store
	ledger  *ledger.Service
	issuer  *certificate.Issuer
	engine  *ticket.Engine
	program types.Address

	rpcServer *rpc.Server
}

// Options overrides parts of the node that are normally derived from cfg.
type Options struct {
	// Clock defaults to ticket.SystemClock.
	Clock ticket.Clock
	// Store, when set, is used instead of opening cfg.Storage.
	Store storage.Store
}

// New creates and initializes a Node: it opens storage, applies genesis
// and builds the engine and RPC server. The RPC server does not listen
// until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Node, error) {
	logger := klog.Node

	genesis, err := loadGenesis(cfg)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	program, err := genesis.Program()
	if err != nil {
		return nil, err
	}
	metaProgram, err := genesis.MetadataProgram()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("program", program.String()).
		Str("metadata_program", metaProgram.String()).
		Msg("Starting ticketd")

	// ── Storage ─────────────────────────────────────────────────────
	db := opts.Store
	if db == nil {
		if db, err = openStore(ctx, cfg, klog.Storage); err != nil {
			return nil, err
		}
	}
	// An injected store belongs to the caller.
	closeOwned := func() {
		if opts.Store == nil {
			db.Close()
		}
	}

	// ── Genesis ─────────────────────────────────────────────────────
	l := ledger.New()
	var applied bool
	err = db.Update(ctx, func(txn storage.Txn) error {
		var err error
		applied, err = applyGenesis(txn, l, genesis)
		return err
	})
	if err != nil {
		closeOwned()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info().Int("assets", len(genesis.Assets)).Int("allocs", len(genesis.Alloc)).Msg("Store initialized from genesis")
	} else {
		logger.Info().Msg("Store resumed")
	}

	// ── Engine ──────────────────────────────────────────────────────
	clock := opts.Clock
	if clock == nil {
		clock = ticket.SystemClock{}
	}
	issuer := certificate.NewIssuer(metaProgram)
	engine, err := ticket.New(ticket.Config{
		ProgramID:   program,
		Clock:       clock,
		MaxAttempts: cfg.Engine.MaxAttempts,
	}, db, l, issuer)
	if err != nil {
		closeOwned()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
		db:      db,
		ledger:  ledger.NewService(db, l),
		issuer:  issuer,
		engine:  engine,
		program: program,
	}

	// ── RPC ─────────────────────────────────────────────────────────
	if cfg.RPC.Enabled {
		addr := net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
		n.rpcServer = rpc.New(addr, rpc.Backend{
			Engine:          engine,
			Ledger:          n.ledger,
			MetadataProgram: metaProgram,
		}, cfg.RPC)
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("Using in-memory store; state is lost on exit")
		return storage.NewMemory(), nil

	case config.BackendPostgres:
		if cfg.Storage.Migrate {
			if err := storage.Migrate(cfg.Storage.PostgresURL); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info().Msg("Postgres schema up to date")
		}
		db, err := storage.NewPostgres(ctx, cfg.Storage.PostgresURL, cfg.Storage.MaxConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Int32("max_conns", cfg.Storage.MaxConns).Msg("Postgres store opened")
		return db, nil

	default:
		dir := cfg.StoreDir()
		if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		db, err := storage.NewBadger(dir)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", dir).Msg("Badger store opened")
		return db, nil
	}
}

// Start begins serving RPC.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return err
		}
	}
	n.logger.Info().Bool("rpc", n.rpcServer != nil).Msg("Node started")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Store close")
		}
	}
	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Engine returns the ticket engine.
func (n *Node) Engine() *ticket.Engine { return n.engine }

// Ledger returns the ledger service.
func (n *Node) Ledger() *ledger.Service { return n.ledger }

// Genesis returns the genesis the node was started with.
func (n *Node) Genesis() *config.Genesis { return n.genesis }
