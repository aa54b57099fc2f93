package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-hardhat/internal/app"
	"github.com/trebuchet-org/treb-hardhat/internal/cli/render"
	"github.com/trebuchet-org/treb-hardhat/internal/metrics"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// NewNodeCmd creates the node command with subcommands
func NewNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage the Hardhat node",
		Long:  `Start, inspect and configure the Hardhat node used by treb.`,
	}

	cmd.AddCommand(newNodeStartCmd())
	cmd.AddCommand(newNodeStatusCmd())
	cmd.AddCommand(newNodeConfigCmd())

	return cmd
}

// nodeFlags holds common flags for node commands
type nodeFlags struct {
	host string
}

func addNodeFlags(cmd *cobra.Command, flags *nodeFlags) {
	cmd.Flags().StringVar(&flags.host, "host", "", "Host of the node, a URL, host:port or 'auto'")
}

// nodeStartFlags holds flags for node start
type nodeStartFlags struct {
	nodeFlags
	metricsAddr string
}

func newNodeStartCmd() *cobra.Command {
	flags := &nodeStartFlags{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start or attach to a Hardhat node",
		Long: `Start a Hardhat node, or attach to one already listening on the configured
host, and keep it running until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			return runNodeStart(cmd, app, flags)
		},
	}

	addNodeFlags(cmd, &flags.nodeFlags)
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	return cmd
}

func newNodeStatusCmd() *cobra.Command {
	flags := &nodeFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Hardhat node status",
		Long:  `Probe the configured host and report the node it finds. Never starts a node.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodeCommand(cmd, "status", flags)
		},
	}

	addNodeFlags(cmd, flags)
	return cmd
}

func newNodeConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Write the managed hardhat.config.js",
		Long: `Write the hardhat.config.js the node is started with, or validate the user
config file named by hardhat_config_file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodeCommand(cmd, "config", &nodeFlags{})
		},
	}
}

// runNodeCommand executes a short-lived node operation
func runNodeCommand(cmd *cobra.Command, operation string, flags *nodeFlags) error {
	app, err := getApp(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if app.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.Config.Timeout)
		defer cancel()
	}

	result, err := app.ManageNode.Execute(ctx, usecase.ManageNodeParams{
		Operation: operation,
		Host:      flags.host,
	})
	if err != nil {
		return err
	}

	return render.NewNodeRenderer(cmd.OutOrStdout(), app.Config.JSON).Render(result)
}

// runNodeStart owns the termination signals for the lifetime of the node
func runNodeStart(cmd *cobra.Command, app *app.App, flags *nodeStartFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.metricsAddr != "" {
		server := metrics.NewServer(flags.metricsAddr, app.Metrics, app.Log)
		go func() {
			if err := server.Run(ctx); err != nil {
				app.Log.Error("metrics server failed", "addr", flags.metricsAddr, "error", err)
			}
		}()
	}

	result, err := app.ManageNode.Execute(ctx, usecase.ManageNodeParams{
		Operation: "start",
		Host:      flags.host,
	})
	if err != nil {
		return err
	}

	provider := result.Provider
	defer func() {
		if err := provider.Disconnect(context.WithoutCancel(ctx)); err != nil {
			app.Log.Error("failed to stop hardhat node", "error", err)
		}
	}()

	if err := render.NewNodeRenderer(cmd.OutOrStdout(), app.Config.JSON).Render(result); err != nil {
		return err
	}

	var exited <-chan struct{}
	proc := provider.Process()
	if proc != nil {
		exited = proc.Done()
	}

	select {
	case <-ctx.Done():
		app.Log.Info("stopping hardhat node", "endpoint", provider.Endpoint().CleanURI())
		return nil
	case <-exited:
		return fmt.Errorf("hardhat node exited unexpectedly, see %s: %w", proc.LogFile(), processExitError(proc))
	}
}

func processExitError(proc usecase.NodeProcess) error {
	if err := proc.ExitErr(); err != nil {
		return err
	}
	return fmt.Errorf("exit status 0")
}
