/*
Package mcp implements the MCP server that exposes the optimizer.

The server uses stdio transport and exposes 7 tools:
  - optimize_tools: Select and route the tools for an agent task
  - route_tool: Pick the server for one tool call
  - record_execution: Report the outcome of a tool call
  - get_tool_metrics: Read success rate and latency of a tool
  - optimization_report: Merged report of every component
  - update_pattern: Replace the integration pattern of an agent type
  - search_tools: Rank catalog tools for a free-text query
*/
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/optimizer"
	"github.com/khanglvm/tool-optimizer-mcp/internal/patterns"
	"github.com/khanglvm/tool-optimizer-mcp/internal/search"
	"github.com/khanglvm/tool-optimizer-mcp/internal/version"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "mcp")

// ProtocolVersion is the MCP revision the server speaks.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeToolError      = -32000
)

// maxLineSize bounds one JSON-RPC message.
const maxLineSize = 4 * 1024 * 1024

// Optimizer is the set of operations the server exposes.
type Optimizer interface {
	Optimize(ctx context.Context, agentType string, tc *model.AgentTaskContext) (*model.OptimizationResult, error)
	RouteRequest(ctx context.Context, tool string, tc *model.AgentTaskContext) (model.RoutingDecision, error)
	RecordExecution(tool, server string, success bool, responseTimeMs float64, execCtx map[string]any)
	GetToolMetrics(tool, server string) (model.ToolMetrics, bool)
	AllMetrics() []model.ToolMetrics
	GetOptimizationReport() optimizer.SystemReport
	UpdatePattern(agentType string, p patterns.IntegrationPattern) error
	Pattern(agentType string) (patterns.IntegrationPattern, error)
	SearchTools(ctx context.Context, query string, limit int) ([]search.SearchResult, error)
}

// Server represents the tool-optimizer MCP server.
type Server struct {
	opt   Optimizer
	tools []ToolDefinition

	// handlers by tool name
	handlers map[string]toolHandler

	mu  sync.Mutex
	out io.Writer
}

// NewServer creates a new MCP server backed by opt.
func NewServer(opt Optimizer) *Server {
	s := &Server{
		opt: opt,
		out: os.Stdout,
	}
	s.registerTools()
	return s
}

// Serve reads one JSON-RPC message per line from r and writes responses
// to w. It blocks until r is exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.out = w
	s.mu.Unlock()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		response, err := s.handleRequest(ctx, line)
		if err != nil {
			s.sendError(err)
			continue
		}
		if response != nil {
			s.sendResponse(response)
		}
	}
	return errors.Wrap(scanner.Err(), "failed to read request")
}

// MCPRequest represents an incoming MCP JSON-RPC request.
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing MCP JSON-RPC response.
type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

// MCPError represents an MCP error.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TextContent is one item of a tool call result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content []TextContent `json:"content"`
}

func errorResponse(id any, code int, msg string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: msg},
	}
}

// handleRequest processes an incoming MCP request. Notifications get no
// response.
func (s *Server) handleRequest(ctx context.Context, data []byte) (*MCPResponse, error) {
	var req MCPRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.Wrap(err, "invalid JSON-RPC request")
	}

	if strings.HasPrefix(req.Method, "notifications/") {
		logger.KV(xlog.DEBUG, "notification", req.Method)
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(&req), nil
	case "ping":
		return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}, nil
	case "tools/list":
		return s.handleToolsList(&req), nil
	case "tools/call":
		return s.handleToolsCall(ctx, &req), nil
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found"), nil
	}
}

// handleInitialize handles the MCP initialize request.
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "tool-optimizer",
				"version": version.Version,
			},
		},
	}
}

// handleToolsList returns the tool definitions.
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": s.tools,
		},
	}
}

// handleToolsCall runs one tool and wraps its JSON output as text content.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}

	handler, ok := s.handlers[params.Name]
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, "Unknown tool: "+params.Name)
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	result, err := handler(ctx, args)
	if err != nil {
		code := CodeToolError
		if errors.Is(err, errInvalidArguments) {
			code = CodeInvalidParams
		}
		logger.KV(xlog.DEBUG, "tool", params.Name, "err", err.Error())
		return errorResponse(req.ID, code, err.Error())
	}

	text, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, CodeToolError, "failed to encode result: "+err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallResult{
			Content: []TextContent{{Type: "text", Text: string(text)}},
		},
	}
}

// sendResponse writes a JSON-RPC response as one line.
func (s *Server) sendResponse(resp *MCPResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.KV(xlog.ERROR, "reason", "marshal_response", "err", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		logger.KV(xlog.ERROR, "reason", "write_response", "err", err.Error())
	}
}

// sendError writes a parse error response.
func (s *Server) sendError(err error) {
	s.sendResponse(errorResponse(nil, CodeParseError, err.Error()))
}
