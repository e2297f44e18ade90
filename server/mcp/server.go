package mcp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kasuganosora/sparqlexec/pkg/config"
	"github.com/kasuganosora/sparqlexec/pkg/logger"
	"github.com/kasuganosora/sparqlexec/pkg/security"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "sparqlexec"
	ServerVersion = "1.0.0"

	// EndpointPath is where the Streamable HTTP transport is mounted.
	EndpointPath = "/mcp"

	shutdownTimeout = 10 * time.Second
)

// ToolRegistrar is the host-side registration point for tools.
// *mcpserver.MCPServer satisfies it.
type ToolRegistrar interface {
	AddTool(tool mcp.Tool, handler mcpserver.ToolHandlerFunc)
}

// Register adds execute_sparql to r.
func Register(r ToolRegistrar, deps *ToolDeps) {
	r.AddTool(NewExecuteSPARQLTool(), deps.HandleExecuteSPARQL)
}

// Server is the MCP protocol server
type Server struct {
	cfg    *config.Config
	deps   *ToolDeps
	logger logger.Logger
	mcpSrv *mcpserver.MCPServer
}

// NewServer creates a new MCP server with execute_sparql registered.
func NewServer(cfg *config.Config, executor QueryExecutor, log logger.Logger, auditLogger *security.AuditLogger) *Server {
	if log == nil {
		log = logger.NewNoOp()
	}

	deps := &ToolDeps{
		Endpoint:    cfg.Endpoint,
		Executor:    executor,
		Logger:      log,
		AuditLogger: auditLogger,
		RequireAuth: cfg.MCP.Transport == config.TransportHTTP && cfg.MCP.APIKey != "",
	}

	mcpSrv := mcpserver.NewMCPServer(
		ServerName,
		ServerVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	Register(mcpSrv, deps)

	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log,
		mcpSrv: mcpSrv,
	}
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpSrv
}

// Start serves on the configured transport until ctx is done (blocking).
func (s *Server) Start(ctx context.Context) error {
	defer s.dumpAudit()

	switch s.cfg.MCP.Transport {
	case config.TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return s.serveStdio(ctx)
	}
}

// dumpAudit writes the buffered audit events to the log at debug level.
func (s *Server) dumpAudit() {
	if s.deps.AuditLogger == nil || s.logger.GetLevel() < logger.LevelDebug {
		return
	}
	out, err := s.deps.AuditLogger.Export()
	if err != nil {
		s.logger.Warn("[MCP] 导出审计日志失败: %v", err)
		return
	}
	s.logger.Debug("[MCP] audit log:\n%s", out)
}

func (s *Server) serveStdio(ctx context.Context) error {
	s.logger.Info("[MCP] serving %s on stdio", ToolName)
	stdio := mcpserver.NewStdioServer(s.mcpSrv)
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

func (s *Server) serveHTTP(ctx context.Context) error {
	addr := s.cfg.MCP.Address()
	httpServer := mcpserver.NewStreamableHTTPServer(
		s.mcpSrv,
		mcpserver.WithEndpointPath(EndpointPath),
		mcpserver.WithHTTPContextFunc(s.authContextFunc()),
	)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[MCP] 启动 MCP 服务器: http://%s%s", addr, EndpointPath)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http transport: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("[MCP] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// authContextFunc stores the HTTP request in context for IP extraction and
// marks the caller authenticated when it presents the configured API key.
func (s *Server) authContextFunc() mcpserver.HTTPContextFunc {
	apiKey := s.cfg.MCP.APIKey
	return func(ctx context.Context, r *http.Request) context.Context {
		ctx = context.WithValue(ctx, ctxKeyMCPRequest, r)

		if apiKey == "" {
			return context.WithValue(ctx, ctxKeyMCPClient, &Client{Name: "anonymous"})
		}

		// Expect "Bearer <api_key>"
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return ctx
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
			return ctx
		}
		return context.WithValue(ctx, ctxKeyMCPClient, &Client{Name: "api_key"})
	}
}
