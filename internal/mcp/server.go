// Package mcp exposes the governor over the Model Context Protocol. Each
// tool is a thin adapter over the core packages: it assesses, drives the
// plan state machine, and records every decision in the audit log.
package mcp

import (
	"context"
	"fmt"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/governor/internal/audit"
	"github.com/ppiankov/governor/internal/planctl"
	"github.com/ppiankov/governor/internal/risk"
	"github.com/ppiankov/governor/internal/session"
)

// Config holds MCP server configuration.
type Config struct {
	RiskConfigPath string
}

// Server wraps the MCP SDK server with the governance core. All state is
// in-memory and scoped to the process lifetime.
type Server struct {
	mcpServer  *mcpsdk.Server
	store      *session.Store
	auditLog   *audit.Log
	controller *planctl.Controller

	mu       sync.Mutex
	assessor *risk.Assessor
	cfgPath  string
	cfgHash  string
}

// New creates an MCP server with loaded risk config and registered tools.
func New(cfg Config) (*Server, error) {
	riskCfg, hash, err := risk.LoadConfigWithHash(cfg.RiskConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk config: %w", err)
	}

	store := session.New()
	s := &Server{
		store:      store,
		auditLog:   audit.NewLog(),
		controller: planctl.New(store),
		assessor:   risk.NewAssessor(riskCfg),
		cfgPath:    cfg.RiskConfigPath,
		cfgHash:    hash,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "governor",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// ReloadRiskConfig re-reads the risk config from disk and swaps in a fresh
// assessor. Called by the file watcher on config changes.
func (s *Server) ReloadRiskConfig() error {
	cfg, hash, err := risk.LoadConfigWithHash(s.cfgPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.assessor = risk.NewAssessor(cfg)
	s.cfgHash = hash
	s.mu.Unlock()
	return nil
}

// ConfigHash returns the hash of the currently loaded risk config.
func (s *Server) ConfigHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfgHash
}

func (s *Server) currentAssessor() *risk.Assessor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessor
}

// registerTools adds all governor tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_assess",
		Description: "Assess the risk level of an operation before execution. Low risk proceeds freely, medium requires confirmation, high requires a structured plan.",
	}, s.handleAssess)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_approve",
		Description: "Record user approval or denial for an assessment, plan, or step.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_log_action",
		Description: "Log an action to the audit trail. Use for medium-risk operations that do not need a full plan but should be tracked.",
	}, s.handleLogAction)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_create_plan",
		Description: "Create a structured execution plan for a high-risk operation. Each step can be individually approved and executed.",
	}, s.handleCreatePlan)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_execute_step",
		Description: "Record execution of an approved plan step with deviation detection. Critical deviations fail the step and the plan.",
	}, s.handleExecuteStep)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_check_status",
		Description: "Query the status of a plan, an assessment, or the whole session.",
	}, s.handleCheckStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_abort",
		Description: "Abort a plan, skip its remaining steps, and get rollback suggestions for completed work in reverse order.",
	}, s.handleAbort)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_get_history",
		Description: "Retrieve the audit trail with filters and pagination, optionally with aggregate statistics.",
	}, s.handleGetHistory)
}
