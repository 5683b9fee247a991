package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	govmcp "github.com/ppiankov/governor/internal/mcp"
	"github.com/ppiankov/governor/internal/risk"
)

var mcpRiskConfig string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpRiskConfig, "risk-config", "", "Path to risk threshold YAML (default ~/.governor/risk.yaml)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP governance server for agent integration",
	Long: "Runs governor as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes governance tools: assess, approve, create_plan, execute_step,\n" +
		"check_status, abort, log_action, get_history.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := govmcp.New(govmcp.Config{RiskConfigPath: mcpRiskConfig})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	// Hot-reload thresholds when the config file changes.
	watchPath := risk.ResolvePath(mcpRiskConfig)
	reloader, err := risk.NewReloader(watchPath, srv.ReloadRiskConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config watch disabled: %v\n", err)
	} else {
		go reloader.Run(ctx)
	}

	fmt.Fprintln(os.Stderr, "governor MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "risk config: %s\n", srv.ConfigHash())
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
