// Package mcp exposes the task operations as MCP tools over stdio or SSE.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Wulnut/lark-agent/internal/service"
)

const serverName = "lark-agent"

// Server wraps an MCP server around the task service.
type Server struct {
	mcpServer *server.MCPServer
	sseServer *server.SSEServer
	svc       *service.Service
	logger    *slog.Logger
	version   string
}

// NewServer creates the MCP server and registers every tool.
func NewServer(svc *service.Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		svc:     svc,
		logger:  logger,
		version: version,
	}
	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// ServeStdio blocks serving the stdio transport until the client hangs up.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio", "version", s.version)
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE blocks serving the SSE transport on addr.
func (s *Server) ServeSSE(addr string) error {
	s.logger.Info("serving MCP over SSE", "address", addr, "version", s.version)
	s.sseServer = server.NewSSEServer(s.mcpServer)
	return s.sseServer.Start(addr)
}

// Shutdown stops the SSE transport, if one is running.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sseServer == nil {
		return nil
	}
	return s.sseServer.Shutdown(ctx)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List the project spaces the credential can access, with their names and keys"),
	), s.handleListProjects)

	s.mcpServer.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. Fields are given by display name with human-readable values; option labels, user names, and booleans are translated automatically"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("project", mcp.Description("Project name or key, defaults to the configured project")),
		mcp.WithString("type", mcp.Description("Work item type name, defaults to the configured type")),
		mcp.WithObject("fields", mcp.Description("Field values keyed by field display name")),
		mcp.WithString("related_to", mcp.Description("ID or exact name of a work item to link")),
	), s.handleCreateTask)

	s.mcpServer.AddTool(mcp.NewTool("get_tasks",
		mcp.WithDescription("List tasks condensed to id, name, status, priority, and owner"),
		mcp.WithString("project", mcp.Description("Project name or key")),
		mcp.WithString("type", mcp.Description("Work item type name")),
		mcp.WithString("name", mcp.Description("Filter by task name")),
		mcp.WithString("owner", mcp.Description("Filter by owner name or email")),
		mcp.WithString("status", mcp.Description("Filter by status labels, comma-separated")),
		mcp.WithString("priority", mcp.Description("Filter by priority labels, comma-separated")),
		mcp.WithString("related_to", mcp.Description("Filter by a related work item, given as ID or exact name")),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1")),
		mcp.WithNumber("page_size", mcp.Description("Page size, default 20")),
	), s.handleGetTasks)

	s.mcpServer.AddTool(mcp.NewTool("get_task_detail",
		mcp.WithDescription("Fetch one task with every field translated to readable names and values. Without a type the task is searched across all types"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Work item ID")),
		mcp.WithString("project", mcp.Description("Project name or key")),
		mcp.WithString("type", mcp.Description("Work item type name")),
	), s.handleGetTaskDetail)

	s.mcpServer.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update fields on one task. Field names and option labels are translated the same way as create_task"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Work item ID")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Field values keyed by field display name")),
		mcp.WithString("project", mcp.Description("Project name or key")),
		mcp.WithString("type", mcp.Description("Work item type name")),
	), s.handleUpdateTask)

	s.mcpServer.AddTool(mcp.NewTool("batch_update_tasks",
		mcp.WithDescription("Apply field updates to several tasks and report each outcome individually"),
		mcp.WithArray("updates", mcp.Required(), mcp.Description("Array of {id, fields} objects")),
		mcp.WithString("project", mcp.Description("Project name or key")),
		mcp.WithString("type", mcp.Description("Work item type name")),
	), s.handleBatchUpdateTasks)

	s.mcpServer.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete one task"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Work item ID")),
		mcp.WithString("project", mcp.Description("Project name or key")),
		mcp.WithString("type", mcp.Description("Work item type name")),
	), s.handleDeleteTask)

	s.mcpServer.AddTool(mcp.NewTool("get_task_options",
		mcp.WithDescription("List the selectable option labels of a field, to discover valid values before creating or updating"),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field display name")),
		mcp.WithString("project", mcp.Description("Project name or key")),
		mcp.WithString("type", mcp.Description("Work item type name")),
	), s.handleGetTaskOptions)
}

// ToolNames returns the registered tool names. Used by the HTTP surface.
func ToolNames() []string {
	return []string{
		"list_projects",
		"create_task",
		"get_tasks",
		"get_task_detail",
		"update_task",
		"batch_update_tasks",
		"delete_task",
		"get_task_options",
	}
}

func errResult(format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...))
}
