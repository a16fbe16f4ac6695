package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Wulnut/lark-agent/internal/mcp"
	"github.com/Wulnut/lark-agent/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": mcp.ToolNames()})
}

type callToolRequest struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.ToolName == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("tool_name is required"))
		return
	}

	result, err := s.callTool(r.Context(), req.ToolName, req.Parameters)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// callTool dispatches one tool invocation onto the service. The argument
// shapes mirror the MCP tool schemas.
func (s *Server) callTool(ctx context.Context, name string, args map[string]any) (any, error) {
	get := func(key string) string {
		v, _ := args[key].(string)
		return v
	}
	getInt := func(key string) int64 {
		switch v := args[key].(type) {
		case float64:
			return int64(v)
		case json.Number:
			n, _ := v.Int64()
			return n
		}
		return 0
	}

	switch name {
	case "list_projects":
		return s.svc.ListProjects(ctx)

	case "create_task":
		input := service.CreateTaskInput{
			Project: get("project"),
			Type:    get("type"),
			Name:    get("name"),
		}
		if fields, ok := args["fields"].(map[string]any); ok {
			input.Fields = fields
		}
		if related, ok := args["related_to"]; ok && related != nil {
			input.RelatedTo = related
		}
		id, err := s.svc.CreateTask(ctx, input)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case "get_tasks":
		input := service.ListTasksInput{
			Project:  get("project"),
			Type:     get("type"),
			Name:     get("name"),
			Owner:    get("owner"),
			Status:   service.SplitList(args["status"]),
			Priority: service.SplitList(args["priority"]),
			Page:     int(getInt("page")),
			PageSize: int(getInt("page_size")),
		}
		if related, ok := args["related_to"]; ok && related != nil {
			input.RelatedTo = related
		}
		return s.svc.GetTasks(ctx, input)

	case "get_task_detail":
		id := getInt("id")
		if id == 0 {
			return nil, &badRequestError{"id is required"}
		}
		return s.svc.GetTaskDetail(ctx, get("project"), get("type"), id)

	case "update_task":
		id := getInt("id")
		if id == 0 {
			return nil, &badRequestError{"id is required"}
		}
		fields, ok := args["fields"].(map[string]any)
		if !ok || len(fields) == 0 {
			return nil, &badRequestError{"fields is required"}
		}
		if err := s.svc.UpdateTask(ctx, service.UpdateTaskInput{
			Project: get("project"),
			Type:    get("type"),
			ID:      id,
			Fields:  fields,
		}); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "updated": true}, nil

	case "batch_update_tasks":
		raw, ok := args["updates"].([]any)
		if !ok || len(raw) == 0 {
			return nil, &badRequestError{"updates is required"}
		}
		updates := make([]service.BatchUpdateItem, 0, len(raw))
		for i, entry := range raw {
			obj, ok := entry.(map[string]any)
			if !ok {
				return nil, &badRequestError{fmt.Sprintf("updates[%d] must be an object", i)}
			}
			id, _ := obj["id"].(float64)
			if id == 0 {
				return nil, &badRequestError{fmt.Sprintf("updates[%d].id is required", i)}
			}
			fields, _ := obj["fields"].(map[string]any)
			updates = append(updates, service.BatchUpdateItem{ID: int64(id), Fields: fields})
		}
		return s.svc.BatchUpdateTasks(ctx, get("project"), get("type"), updates)

	case "delete_task":
		id := getInt("id")
		if id == 0 {
			return nil, &badRequestError{"id is required"}
		}
		if err := s.svc.DeleteTask(ctx, get("project"), get("type"), id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "deleted": true}, nil

	case "get_task_options":
		field := get("field")
		if field == "" {
			return nil, &badRequestError{"field is required"}
		}
		return s.svc.ListOptions(ctx, get("project"), get("type"), field)

	default:
		return nil, &badRequestError{fmt.Sprintf("unknown tool %q", name)}
	}
}
