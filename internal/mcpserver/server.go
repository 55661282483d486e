// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the curator's capture, filing, and undo tools via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/filing"
)

// Server wraps the MCP server with curator tools.
type Server struct {
	mcp *server.MCPServer
	svc *curator.Service
}

// New creates an MCP server with all curator tools registered.
func New(svc *curator.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("capture_note",
		mcp.WithDescription("Capture chat text as a new inbox note. Returns the note path."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Raw text to capture")),
		mcp.WithString("source", mcp.Description("Capture source label (defaults to \"mcp\")")),
	), s.captureNote)

	s.mcp.AddTool(mcp.NewTool("file_inbox",
		mcp.WithDescription("File analyzed inbox notes into their suggested folders. "+
			"Low-confidence notes go to the review queue. Returns the batch result "+
			"including the session id for undo."),
		mcp.WithNumber("limit", mcp.Description("Max notes to process (default 10)")),
		mcp.WithNumber("min_confidence", mcp.Description("Confidence threshold 0..1 (default 0.7)")),
		mcp.WithBoolean("dry_run", mcp.Description("Report the plan without moving anything")),
	), s.fileInbox)

	s.mcp.AddTool(mcp.NewTool("undo_session",
		mcp.WithDescription("Undo a filing session, restoring every note to its pre-filing "+
			"path and content. Omit session_id to undo the most recent session."),
		mcp.WithString("session_id", mcp.Description("Session to undo (empty for latest)")),
	), s.undoSession)

	s.mcp.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recent filing sessions, newest first."),
	), s.listSessions)

	s.mcp.AddTool(mcp.NewTool("curator_stats",
		mcp.WithDescription("Vault statistics: note counts, inbox backlog, sessions, learning state."),
	), s.curatorStats)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) captureNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source := req.GetString("source", "mcp")

	path, err := s.svc.Capture(ctx, text, source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("captured: " + path), nil
}

func (s *Server) fileInbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := filing.Options{
		Limit:         req.GetInt("limit", 0),
		MinConfidence: req.GetFloat("min_confidence", 0),
		DryRun:        req.GetBool("dry_run", false),
	}
	res, err := s.svc.FileInbox(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) undoSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")

	res, err := s.svc.Undo(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrSessionNotFound):
			return mcp.NewToolResultError("session not found"), nil
		case errors.Is(err, apperr.ErrSessionUndone):
			return mcp.NewToolResultError("session already undone"), nil
		default:
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.svc.Sessions(20)
	if len(sessions) == 0 {
		return mcp.NewToolResultText("no filing sessions"), nil
	}
	out, _ := json.MarshalIndent(sessions, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) curatorStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
