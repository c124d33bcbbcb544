// Package mcp serves the gatekeeper tools over the Model Context Protocol
// using line-delimited JSON-RPC 2.0 on a pair of streams (normally stdio).
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
)

const (
	protocolVersion = "2024-11-05"
	maxLineBytes    = 4 << 20
)

// ToolSet is the tool surface served over MCP.
type ToolSet interface {
	Infos(ctx context.Context) ([]*schema.ToolInfo, error)
	Execute(ctx context.Context, name, argsJSON string) (string, error)
}

// Server answers MCP requests one at a time.
type Server struct {
	tools   ToolSet
	name    string
	version string
	logger  *slog.Logger
	maxLine int

	mu sync.Mutex
}

// NewServer creates a server exposing tools under the given implementation name and version.
func NewServer(tools ToolSet, name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tools:   tools,
		name:    name,
		version: version,
		logger:  logger,
		maxLine: maxLineBytes,
	}
}

// inbound is one line read from the client. Oversized lines are drained and
// arrive with tooLarge set and no payload.
type inbound struct {
	line     []byte
	tooLarge bool
}

// Serve reads requests from r and writes responses to w until r is exhausted
// or ctx is canceled. A clean EOF returns nil.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	out := bufio.NewWriter(w)

	lines := make(chan inbound)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for {
			msg, err := readLine(reader, s.maxLine)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case lines <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("read mcp request: %w", err)
				default:
				}
				return nil
			}
			var (
				resp  rpcResponse
				reply bool
			)
			if msg.tooLarge {
				s.logger.Warn("mcp request dropped", "reason", "line exceeds limit", "limit_bytes", s.maxLine)
				resp, reply = errorResponse(nil, newRPCError(codeInvalidRequest, "request too large")), true
			} else {
				resp, reply = s.handleLine(ctx, msg.line)
			}
			if !reply {
				continue
			}
			if err := writeLine(out, resp); err != nil {
				return err
			}
		}
	}
}

// readLine returns the next newline-terminated line without its terminator.
// A line longer than limit is consumed to its end and reported as tooLarge.
// A final line without a trailing newline is returned before io.EOF.
func readLine(r *bufio.Reader, limit int) (inbound, error) {
	var (
		buf      []byte
		tooLarge bool
		read     bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
		}
		if !tooLarge {
			if len(buf)+len(bytes.TrimRight(chunk, "\r\n")) > limit {
				tooLarge = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
		case errors.Is(err, io.EOF) && read:
		default:
			return inbound{}, err
		}
		if tooLarge {
			return inbound{tooLarge: true}, nil
		}
		return inbound{line: bytes.TrimRight(buf, "\r\n")}, nil
	}
}

func writeLine(w *bufio.Writer, resp rpcResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode json-rpc response: %w", err)
	}
	if _, err := w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write mcp response: %w", err)
	}
	return w.Flush()
}

// handleLine processes one raw JSON-RPC message. The boolean is false for
// notifications and blank lines, which get no reply.
func (s *Server) handleLine(ctx context.Context, line []byte) (rpcResponse, bool) {
	if strings.TrimSpace(string(line)) == "" {
		return rpcResponse{}, false
	}

	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(nil, newRPCError(codeParseError, "parse error: %v", err)), true
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		if req.isNotification() {
			return rpcResponse{}, false
		}
		return errorResponse(req.ID, newRPCError(codeInvalidRequest, "invalid request")), true
	}

	s.mu.Lock()
	result, rpcErr := s.dispatch(ctx, req)
	s.mu.Unlock()

	if req.isNotification() {
		if rpcErr != nil {
			s.logger.Debug("mcp notification ignored", "method", req.Method, "error", rpcErr.Message)
		}
		return rpcResponse{}, false
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr), true
	}
	return resultResponse(req.ID, result), true
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return s.initialize(), nil
	case "notifications/initialized", "notifications/cancelled":
		return nil, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.listTools(ctx)
	case "tools/call":
		return s.callTool(ctx, req.Params)
	default:
		return nil, newRPCError(codeMethodNotFound, "method not found: %s", req.Method)
	}
}

func (s *Server) initialize() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	}
}

func (s *Server) listTools(ctx context.Context) (any, *rpcError) {
	infos, err := s.tools.Infos(ctx)
	if err != nil {
		return nil, newRPCError(codeInternalError, "list tools: %v", err)
	}

	tools := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		inputSchema, err := inputSchemaOf(info)
		if err != nil {
			return nil, newRPCError(codeInternalError, "tool %s schema: %v", info.Name, err)
		}
		tools = append(tools, map[string]any{
			"name":        info.Name,
			"description": info.Desc,
			"inputSchema": inputSchema,
		})
	}
	return map[string]any{"tools": tools}, nil
}

func inputSchemaOf(info *schema.ToolInfo) (any, error) {
	empty := map[string]any{"type": "object", "properties": map[string]any{}}
	if info.ParamsOneOf == nil {
		return empty, nil
	}
	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		return nil, err
	}
	if js == nil {
		return empty, nil
	}
	return js, nil
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *rpcError) {
	var params callParams
	if len(raw) == 0 {
		return nil, newRPCError(codeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, newRPCError(codeInvalidParams, "invalid params: %v", err)
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, newRPCError(codeInvalidParams, "missing tool name")
	}

	text, err := s.tools.Execute(ctx, name, compactJSONOrRaw(params.Arguments))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, newRPCError(codeInternalError, "tool %s canceled", name)
		}
		s.logger.Warn("mcp tool call failed", "tool", name, "error", err)
		return textResult(err.Error(), true), nil
	}
	return textResult(text, false), nil
}
