// Command mediacat runs the catalog orchestrator: it loads configuration
// from the environment, waits for a leader, rebuilds the virtual
// filesystem from persisted metadata, and then streams filesystem events
// through the three-stage pipeline until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediacat/mediacat/internal/config"
	"github.com/mediacat/mediacat/internal/errs"
	"github.com/mediacat/mediacat/internal/orchestrator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("mediacat: config: %v", err)
	}

	o, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("mediacat: startup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := o.Run(ctx); err != nil {
		var noLeader *errs.NoLeader
		var invalidCfg *errs.InvalidConfig
		switch {
		case errors.As(err, &noLeader):
			log.Fatalf("mediacat: no leader became available: %v", err)
		case errors.As(err, &invalidCfg):
			log.Fatalf("mediacat: invalid configuration: %v", err)
		default:
			log.Fatalf("mediacat: %v", err)
		}
	}
}
