package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentwire-dev/agentwire"
	"github.com/agentwire-dev/agentwire/pkg/config"
)

func newLaunchCmd() *cobra.Command {
	var (
		configFile  string
		mode        string
		failPolicy  string
		metricsPort int
		metrics     bool
	)

	cmd := &cobra.Command{
		Use:   "launch [agent-dir...]",
		Short: "Run agent projects until interrupted",
		Long: `Launch runs one or more agent project directories under a single
executor. Each directory must contain an ` + config.AgentFileName + ` project file.
Directories may come from the command line, from a launcher config file,
or both; command-line directories are appended to the configured ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := config.DefaultConfig()
			if configFile != "" {
				loaded, err := config.LoadConfig(configFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			cfg.AgentDirs = append(cfg.AgentDirs, args...)
			if len(cfg.AgentDirs) == 0 {
				return fmt.Errorf("no agent directories: pass them as arguments or via --config")
			}

			if cmd.Flags().Changed("mode") {
				cfg.Executor.Mode = mode
			}
			if cmd.Flags().Changed("fail-policy") {
				cfg.Executor.FailPolicy = failPolicy
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Metrics.Enabled = metrics
			}
			if cmd.Flags().Changed("metrics-port") {
				cfg.Metrics.Port = metricsPort
			}

			return agentwire.RunConfig(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Launcher configuration file")
	cmd.Flags().StringVar(&mode, "mode", "thread", "Execution mode: thread|cooperative|process")
	cmd.Flags().StringVar(&failPolicy, "fail-policy", "propagate", "Fail policy: propagate|stop_all|log_only")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Expose Prometheus metrics")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 9090, "Metrics endpoint port")

	return cmd
}
