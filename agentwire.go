// Package agentwire wires the runtime together for embedding: one call
// loads a launcher configuration, brings up observability, and runs every
// configured agent project until the context ends or a fail policy stops
// the run.
package agentwire

import (
	"context"
	"fmt"
	"log"
	"time"

	_ "github.com/agentwire-dev/agentwire/connection/filecon"
	"github.com/agentwire-dev/agentwire/pkg/config"
	"github.com/agentwire-dev/agentwire/pkg/observability"
	"github.com/agentwire-dev/agentwire/runner"
)

const shutdownTimeout = 30 * time.Second

// Run loads the configuration at configPath and runs its agent projects
// until ctx is cancelled or the executor's fail policy ends the run.
func Run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	return RunConfig(ctx, cfg)
}

// RunConfig runs an already loaded configuration.
func RunConfig(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.AgentDirs) == 0 {
		return fmt.Errorf("no agent directories configured")
	}

	observability.InitMetrics()
	if cfg.Metrics.Enabled {
		obsServer := observability.NewServer(cfg.Metrics.Port)
		go func() {
			log.Printf("Starting observability server on :%d", cfg.Metrics.Port)
			if err := obsServer.Start(); err != nil {
				log.Printf("ERROR: observability server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := obsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("WARNING: observability server shutdown: %v", err)
			}
		}()
	}

	l, err := runner.NewLauncher(cfg.AgentDirs, cfg.Executor.Mode, cfg.Executor.FailPolicy)
	if err != nil {
		return err
	}
	r, err := l.Runner()
	if err != nil {
		return err
	}

	log.Printf("Launching %d agent project(s), mode=%s, fail_policy=%s",
		len(cfg.AgentDirs), cfg.Executor.Mode, cfg.Executor.FailPolicy)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(false) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Shutting down agents...")
		if err := r.Stop(shutdownTimeout); err != nil {
			return err
		}
		return nil
	}
}
