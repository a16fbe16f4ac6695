package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Wulnut/lark-agent/internal/service"
)

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.svc.ListProjects(ctx)
	if err != nil {
		return errResult("list projects: %v", err), nil
	}
	return jsonResult(projects)
}

func (s *Server) handleCreateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return errResult("%v", err), nil
	}

	input := service.CreateTaskInput{
		Project: req.GetString("project", ""),
		Type:    req.GetString("type", ""),
		Name:    name,
	}
	args := req.GetArguments()
	if fields, ok := args["fields"].(map[string]any); ok {
		input.Fields = fields
	}
	if related, ok := args["related_to"]; ok && related != nil {
		input.RelatedTo = related
	}

	id, err := s.svc.CreateTask(ctx, input)
	if err != nil {
		return errResult("create task: %v", err), nil
	}
	return jsonResult(map[string]any{"id": id, "name": name})
}

func (s *Server) handleGetTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	input := service.ListTasksInput{
		Project:  req.GetString("project", ""),
		Type:     req.GetString("type", ""),
		Name:     req.GetString("name", ""),
		Owner:    req.GetString("owner", ""),
		Status:   service.SplitList(args["status"]),
		Priority: service.SplitList(args["priority"]),
		Page:     req.GetInt("page", 0),
		PageSize: req.GetInt("page_size", 0),
	}
	if related, ok := args["related_to"]; ok && related != nil {
		input.RelatedTo = related
	}
	list, err := s.svc.GetTasks(ctx, input)
	if err != nil {
		return errResult("get tasks: %v", err), nil
	}
	return jsonResult(list)
}

func (s *Server) handleGetTaskDetail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id == 0 {
		return errResult("id is required"), nil
	}
	detail, err := s.svc.GetTaskDetail(ctx, req.GetString("project", ""), req.GetString("type", ""), int64(id))
	if err != nil {
		return errResult("get task detail: %v", err), nil
	}
	return jsonResult(detail)
}

func (s *Server) handleUpdateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id == 0 {
		return errResult("id is required"), nil
	}
	fields, ok := req.GetArguments()["fields"].(map[string]any)
	if !ok || len(fields) == 0 {
		return errResult("fields is required"), nil
	}

	err := s.svc.UpdateTask(ctx, service.UpdateTaskInput{
		Project: req.GetString("project", ""),
		Type:    req.GetString("type", ""),
		ID:      int64(id),
		Fields:  fields,
	})
	if err != nil {
		return errResult("update task: %v", err), nil
	}
	return jsonResult(map[string]any{"id": id, "updated": true})
}

func (s *Server) handleBatchUpdateTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawUpdates, ok := req.GetArguments()["updates"].([]any)
	if !ok || len(rawUpdates) == 0 {
		return errResult("updates is required"), nil
	}

	updates := make([]service.BatchUpdateItem, 0, len(rawUpdates))
	for i, raw := range rawUpdates {
		obj, ok := raw.(map[string]any)
		if !ok {
			return errResult("updates[%d] must be an object with id and fields", i), nil
		}
		item := service.BatchUpdateItem{}
		switch id := obj["id"].(type) {
		case float64:
			item.ID = int64(id)
		case string:
			if _, err := fmt.Sscan(id, &item.ID); err != nil {
				return errResult("updates[%d].id is not a number", i), nil
			}
		default:
			return errResult("updates[%d].id is required", i), nil
		}
		if fields, ok := obj["fields"].(map[string]any); ok {
			item.Fields = fields
		}
		updates = append(updates, item)
	}

	results, err := s.svc.BatchUpdateTasks(ctx,
		req.GetString("project", ""),
		req.GetString("type", ""),
		updates)
	if err != nil {
		return errResult("batch update: %v", err), nil
	}
	return jsonResult(results)
}

func (s *Server) handleDeleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id == 0 {
		return errResult("id is required"), nil
	}
	err := s.svc.DeleteTask(ctx, req.GetString("project", ""), req.GetString("type", ""), int64(id))
	if err != nil {
		return errResult("delete task: %v", err), nil
	}
	return jsonResult(map[string]any{"id": id, "deleted": true})
}

func (s *Server) handleGetTaskOptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	field, err := req.RequireString("field")
	if err != nil {
		return errResult("%v", err), nil
	}
	options, err := s.svc.ListOptions(ctx, req.GetString("project", ""), req.GetString("type", ""), field)
	if err != nil {
		return errResult("get task options: %v", err), nil
	}
	return jsonResult(options)
}
