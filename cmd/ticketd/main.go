// Ticket sale engine daemon.
//
// Usage:
//
//	ticketd [--testnet] [--storage=badger|postgres|memory]  Run node
//	ticketd --help                                          Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Klingon-tech/ticketbox/config"
	klog "github.com/Klingon-tech/ticketbox/internal/log"
	"github.com/Klingon-tech/ticketbox/internal/node"
	"github.com/Klingon-tech/ticketbox/pkg/types"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, flags, err := config.Load(args)
	if err != nil {
		return err
	}
	if cfg == nil {
		if flags.Version {
			fmt.Printf("ticketd %s\n", config.Version)
		} else {
			flags.PrintUsage(os.Stdout)
		}
		return nil
	}

	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.LogsDir(), "ticketd.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg, node.Options{})
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		n.Stop()
		return err
	}

	<-ctx.Done()
	n.Stop()
	return nil
}
