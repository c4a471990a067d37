// Package mcpserver exposes snapshot and compare as Model Context Protocol
// tools.
//
// Tool results are the same JSON documents the CLI prints. An operation that
// fails still answers with its error envelope as text; only arguments that
// cannot be decoded produce a tool error.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danieljhkim/treesnap/internal/engine"
	"github.com/danieljhkim/treesnap/internal/scanner"
)

// Tool names.
const (
	SnapshotToolName = "take_filesystem_snapshot"
	CompareToolName  = "compare_snapshots"
)

const instructions = "Filesystem snapshot and diff service. Use take_filesystem_snapshot to inventory a directory " +
	"and compare_snapshots to diff two filesystem states (saved snapshots or live directories). " +
	"Every result carries a $envelope with status, semantic metadata and coded errors."

// Server wires engine operations to MCP tools.
type Server struct {
	eng      *engine.Engine
	defaults engine.ScanOptions
}

// New creates a Server. defaults fill in scan settings a tool call omits.
func New(eng *engine.Engine, defaults engine.ScanOptions) *Server {
	return &Server{eng: eng, defaults: defaults}
}

// NewMCPServer creates an MCP server with both tools registered.
func (s *Server) NewMCPServer(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "treesnap", Version: version}, &mcp.ServerOptions{
		Instructions: instructions,
	})
	s.Register(srv)
	return srv
}

// Register adds the tools to srv.
func (s *Server) Register(srv *mcp.Server) {
	s.registerSnapshotTool(srv)
	s.registerCompareTool(srv)
}

// Run serves srv over stdin and stdout until ctx ends or the client
// disconnects.
func Run(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// scanProperties are the schema properties shared by both tools.
func scanProperties() map[string]any {
	return map[string]any{
		"exclude_patterns": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Glob patterns of files and directories to leave out of live scans",
		},
		"timeout_ms": map[string]any{
			"type": "integer", "minimum": 0, "maximum": maxTimeoutMS, "description": "Timeout in milliseconds",
		},
		"follow_symlinks": map[string]any{
			"type": "boolean", "description": "Follow symbolic links when scanning live directories",
		},
		"max_depth": map[string]any{
			"type": "integer", "minimum": 0, "description": "Maximum recursion depth for live scans (0 is unbounded)",
		},
		"normalize_paths": map[string]any{
			"type": "boolean", "description": "Use '/' as the path separator in entries",
		},
	}
}

// scanArgs are the arguments shared by both tools.
type scanArgs struct {
	ExcludePatterns []string `json:"exclude_patterns"`
	TimeoutMS       *int64   `json:"timeout_ms"`
	FollowSymlinks  *bool    `json:"follow_symlinks"`
	MaxDepth        *int     `json:"max_depth"`
	NormalizePaths  *bool    `json:"normalize_paths"`
	Threads         *int     `json:"threads"`
	Checksum        string   `json:"checksum"`
}

func (a *scanArgs) options(defaults engine.ScanOptions) engine.ScanOptions {
	opts := defaults
	opts.Patterns = append([]string(nil), defaults.Patterns...)
	for _, p := range a.ExcludePatterns {
		opts.Patterns = append(opts.Patterns, "!"+strings.TrimPrefix(p, "!"))
	}
	if a.FollowSymlinks != nil {
		opts.FollowSymlinks = *a.FollowSymlinks
	}
	if a.MaxDepth != nil {
		opts.MaxDepth = *a.MaxDepth
	}
	if a.NormalizePaths != nil {
		opts.NormalizePaths = *a.NormalizePaths
	}
	if a.Threads != nil {
		opts.Threads = *a.Threads
	}
	if a.Checksum != "" {
		opts.Checksum = a.Checksum
	}
	return opts
}

// maxTimeoutMS is the largest timeout_ms that fits in a time.Duration.
const maxTimeoutMS = int64(math.MaxInt64 / time.Millisecond)

func (a *scanArgs) timeout() (time.Duration, error) {
	if a.TimeoutMS == nil {
		return 0, nil
	}
	ms := *a.TimeoutMS
	if ms < 0 || ms > maxTimeoutMS {
		return 0, fmt.Errorf("%w: timeout_ms must be between 0 and %d, got %d", engine.ErrInvalidArgument, maxTimeoutMS, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// --- take_filesystem_snapshot ---

type snapshotArgs struct {
	scanArgs
	Path   string `json:"path"`
	Format string `json:"format"`
}

func (s *Server) registerSnapshotTool(srv *mcp.Server) {
	props := scanProperties()
	props["path"] = map[string]any{"type": "string", "description": "Directory to snapshot"}
	props["format"] = map[string]any{
		"type":        "string",
		"enum":        []string{"json", "jsonl"},
		"description": "Output format: 'json' (default) or 'jsonl' (one entry per line, for large trees)",
	}
	props["threads"] = map[string]any{
		"type": "integer", "minimum": 0, "maximum": scanner.MaxThreads,
		"description": "Scanner worker count (0 selects the CPU count)",
	}
	props["checksum"] = map[string]any{
		"type":        "string",
		"enum":        []string{"xxh3_64", "sha256", "blake3"},
		"description": "Checksum algorithm for regular files",
	}

	tool := &mcp.Tool{
		Name: SnapshotToolName,
		Description: "Take a snapshot of a directory: every file, directory and symlink with size, mode, " +
			"modification time, checksum and link target. Use format 'jsonl' for directories with thousands of files.",
		InputSchema: inputSchema(props, []string{"path"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args snapshotArgs
		if err := decodeArgs(req, &args); err != nil {
			return toolError(err), nil
		}
		if args.Path == "" {
			return toolError(fmt.Errorf("path is required")), nil
		}
		timeout, err := args.timeout()
		if err != nil {
			return toolError(err), nil
		}
		s.eng.Logger().Debug("tool call", "tool", SnapshotToolName, "path", args.Path, "format", args.Format)

		snapReq := &engine.SnapshotRequest{
			Root:    args.Path,
			Scan:    args.options(s.defaults),
			Timeout: timeout,
		}

		switch args.Format {
		case "", "json":
			return jsonResult(s.eng.Snapshot(ctx, snapReq))
		case "jsonl":
			var buf bytes.Buffer
			res, err := s.eng.SnapshotStream(ctx, snapReq, &buf)
			if err != nil {
				return toolError(err), nil
			}
			if res.Failure != nil {
				return jsonResult(res.Failure)
			}
			return textResult(buf.String()), nil
		default:
			return toolError(fmt.Errorf("unknown format %q, want json or jsonl", args.Format)), nil
		}
	})
}

// --- compare_snapshots ---

type compareArgs struct {
	scanArgs
	Source        string `json:"source"`
	Target        string `json:"target"`
	IgnoreTime    bool   `json:"ignore_time"`
	IgnoreMode    bool   `json:"ignore_mode"`
	StructureOnly bool   `json:"structure_only"`
}

func (s *Server) registerCompareTool(srv *mcp.Server) {
	props := scanProperties()
	props["source"] = map[string]any{"type": "string", "description": "Source snapshot (.json or .jsonl file) or live directory"}
	props["target"] = map[string]any{"type": "string", "description": "Target snapshot (.json or .jsonl file) or live directory"}
	props["ignore_time"] = map[string]any{"type": "boolean", "description": "Ignore modification time differences"}
	props["ignore_mode"] = map[string]any{"type": "boolean", "description": "Ignore permission differences"}
	props["structure_only"] = map[string]any{"type": "boolean", "description": "Compare only paths and entry types"}

	tool := &mcp.Tool{
		Name: CompareToolName,
		Description: "Compare two filesystem states and report added, removed and modified paths with the " +
			"attributes that changed (content, mode, mtime, type, size, target).",
		InputSchema: inputSchema(props, []string{"source", "target"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args compareArgs
		if err := decodeArgs(req, &args); err != nil {
			return toolError(err), nil
		}
		if args.Source == "-" || args.Target == "-" {
			return toolError(fmt.Errorf("standard input is not available to tool calls")), nil
		}
		timeout, err := args.timeout()
		if err != nil {
			return toolError(err), nil
		}
		s.eng.Logger().Debug("tool call", "tool", CompareToolName, "source", args.Source, "target", args.Target)

		return jsonResult(s.eng.Compare(ctx, &engine.CompareRequest{
			Source:        args.Source,
			Target:        args.Target,
			Scan:          args.options(s.defaults),
			IgnoreTime:    args.IgnoreTime,
			IgnoreMode:    args.IgnoreMode,
			StructureOnly: args.StructureOnly,
			Timeout:       timeout,
		}))
	})
}

func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Errorf("marshal: %w", err)), nil
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
