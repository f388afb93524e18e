// Gray Logic Agent - device-side MQTT session manager
//
// The agent keeps one broker session open for a device, announces it
// online, publishes periodic telemetry and executes commands sent to
// device/{id}/command, replying on device/{id}/reply.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-agent/internal/command"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/agent.yaml"
	configEnvVar      = "GRAYLOGIC_AGENT_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	if errors.Is(err, command.ErrRestartRequested) {
		cancel()
		err = reexec()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "graylogic-agent",
		Short:         "Device-side MQTT session manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("config file (default $%s or %s)", configEnvVar, defaultConfigPath))

	root.AddCommand(
		newJournalCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "graylogic-agent %s (commit %s, built %s)\n", version, commit, date)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Load and validate the configuration, then exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := resolveConfigPath(configPath)
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (device %s, broker %s, mqtt %s)\n",
					path, cfg.Device.ID, cfg.MQTT.Broker.URI, cfg.MQTT.Broker.ProtocolVersion)
				return nil
			},
		},
	)
	return root
}

// resolveConfigPath picks the --config flag, then $GRAYLOGIC_AGENT_CONFIG,
// then the default path.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
