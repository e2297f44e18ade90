package mcp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/sparqlexec/pkg/config"
	"github.com/kasuganosora/sparqlexec/pkg/logger"
	"github.com/kasuganosora/sparqlexec/pkg/security"
	"github.com/kasuganosora/sparqlexec/pkg/sparql"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolName is the name callers use to invoke the query tool.
const ToolName = "execute_sparql"

type contextKey string

const (
	ctxKeyMCPClient  contextKey = "mcp_client"
	ctxKeyMCPRequest contextKey = "mcp_request"
)

// Client is an authenticated HTTP caller.
type Client struct {
	Name string
}

// QueryExecutor runs one query against an endpoint. *sparql.Executor
// implements it.
type QueryExecutor interface {
	Execute(ctx context.Context, endpoint config.Endpoint, query string) (sparql.Outcome, error)
}

// ToolDeps holds shared dependencies for MCP tool handlers
type ToolDeps struct {
	Endpoint    config.Endpoint
	Executor    QueryExecutor
	Logger      logger.Logger
	AuditLogger *security.AuditLogger
	// RequireAuth rejects calls whose context carries no authenticated Client.
	RequireAuth bool
}

// NewExecuteSPARQLTool describes the execute_sparql tool.
func NewExecuteSPARQLTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Executes a SPARQL query against the configured SPARQL endpoint. Returns the SPARQL results JSON document unchanged, or an object with a single \"error\" field describing what went wrong."),
		mcp.WithString("query", mcp.Description("The SPARQL query string to execute"), mcp.Required()),
	)
}

// HandleExecuteSPARQL forwards the query and returns the endpoint's JSON or
// {"error": message}. Only cancellation of ctx is returned as an error.
func (d *ToolDeps) HandleExecuteSPARQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	traceID := uuid.NewString()
	ip := getClientIP(ctx)

	clientName := ""
	if client := getClient(ctx); client != nil {
		clientName = client.Name
	} else if d.RequireAuth {
		d.log().Warn("[%s] rejected unauthenticated %s call from %s", traceID, ToolName, ip)
		if d.AuditLogger != nil {
			d.AuditLogger.LogAuthFailure(traceID, ip, ToolName)
		}
		return errorResult("unauthorized"), nil
	}

	// The query is forwarded as-is; only a missing or empty value is refused.
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query parameter is required"), nil
	}

	d.log().Info("Executing SPARQL query on %s", d.Endpoint.URL)
	d.log().Debug("[%s] query: %s", traceID, query)

	start := time.Now()
	outcome, err := d.Executor.Execute(ctx, d.Endpoint, query)
	elapsed := time.Since(start)

	call := security.ToolCall{
		TraceID:  traceID,
		Client:   clientName,
		IP:       ip,
		Tool:     ToolName,
		Query:    query,
		Duration: elapsed,
	}

	if err != nil {
		d.log().Warn("[%s] %s cancelled after %s: %v", traceID, ToolName, elapsed, err)
		call.Level = security.AuditLevelWarning
		call.Metadata = map[string]interface{}{"outcome": "cancelled"}
		d.logToolCall(call)
		return nil, err
	}

	call.Success = outcome.OK()
	call.Level = auditLevel(outcome)
	call.Metadata = outcomeMetadata(outcome)
	d.logToolCall(call)

	if !outcome.OK() {
		d.log().Error("%s", outcome.Message)
		return errorResult(outcome.Message), nil
	}

	d.log().Debug("[%s] %s succeeded in %s", traceID, ToolName, elapsed)
	text, err := outcome.JSON()
	if err != nil {
		return errorResult("failed to encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(text)), nil
}

// errorResult returns {"error": message} flagged as a tool error.
func errorResult(message string) *mcp.CallToolResult {
	text, err := sparql.ErrorJSON(message)
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultError(string(text))
}

func auditLevel(o sparql.Outcome) security.AuditLevel {
	switch o.Kind {
	case sparql.KindSuccess:
		return security.AuditLevelInfo
	case sparql.KindTransport:
		return security.AuditLevelError
	default:
		return security.AuditLevelWarning
	}
}

func outcomeMetadata(o sparql.Outcome) map[string]interface{} {
	md := map[string]interface{}{"outcome": o.Kind.String()}
	if o.StatusCode != 0 {
		md["status_code"] = o.StatusCode
	}
	if o.Cause != sparql.CauseNone {
		md["transport_cause"] = string(o.Cause)
	}
	return md
}

func (d *ToolDeps) logToolCall(call security.ToolCall) {
	if d.AuditLogger != nil {
		d.AuditLogger.LogToolCall(call)
	}
}

func (d *ToolDeps) log() logger.Logger {
	if d.Logger == nil {
		return logger.NewNoOp()
	}
	return d.Logger
}

func getClient(ctx context.Context) *Client {
	client, _ := ctx.Value(ctxKeyMCPClient).(*Client)
	return client
}

// getClientIP extracts the caller IP from the HTTP request stored in ctx.
// It is empty on stdio.
func getClientIP(ctx context.Context) string {
	r, ok := ctx.Value(ctxKeyMCPRequest).(*http.Request)
	if !ok || r == nil {
		return ""
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// RemoteAddr is "IP:port"
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
