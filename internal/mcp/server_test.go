package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/Wulnut/lark-agent/internal/lark"
	"github.com/Wulnut/lark-agent/internal/resolver"
	"github.com/Wulnut/lark-agent/internal/service"
)

type fakeBackend struct {
	createdNames []string
	updatedIDs   []int64
	deletedIDs   []int64
	searchGroups []lark.SearchGroup
}

func (f *fakeBackend) ListProjects(_ context.Context) ([]string, error) {
	return []string{"proj_pay"}, nil
}

func (f *fakeBackend) GetProjectDetails(_ context.Context, _ []string) (map[string]lark.ProjectDetail, error) {
	return map[string]lark.ProjectDetail{"proj_pay": {Name: "支付平台"}}, nil
}

func (f *fakeBackend) ListWorkItemTypes(_ context.Context, _ string) ([]lark.WorkItemType, error) {
	return []lark.WorkItemType{{TypeKey: "type_issue", Name: "问题管理"}}, nil
}

func (f *fakeBackend) ListFields(_ context.Context, _, _ string) ([]lark.FieldDef, error) {
	return []lark.FieldDef{
		{FieldKey: "priority", FieldName: "优先级", FieldTypeKey: "select", Options: []lark.FieldOption{
			{Label: "P0", Value: "opt_p0"},
		}},
	}, nil
}

func (f *fakeBackend) SearchUsers(_ context.Context, _ string) ([]lark.UserInfo, error) {
	return nil, nil
}

func (f *fakeBackend) QueryUsers(_ context.Context, _ []string) ([]lark.UserInfo, error) {
	return nil, nil
}

func (f *fakeBackend) CreateWorkItem(_ context.Context, _, _, name string, _ []lark.FieldValuePair) (int64, error) {
	f.createdNames = append(f.createdNames, name)
	return 555, nil
}

func (f *fakeBackend) QueryWorkItems(_ context.Context, _, _ string, ids []int64, _ *lark.Expand) ([]lark.WorkItem, error) {
	return []lark.WorkItem{{ID: ids[0], Name: "支付超时", WorkItemTypeKey: "type_issue"}}, nil
}

func (f *fakeBackend) UpdateWorkItem(_ context.Context, _, _ string, id int64, _ []lark.FieldValuePair) error {
	f.updatedIDs = append(f.updatedIDs, id)
	return nil
}

func (f *fakeBackend) DeleteWorkItem(_ context.Context, _, _ string, id int64) error {
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func (f *fakeBackend) FilterWorkItems(_ context.Context, _ string, _ lark.FilterRequest) (lark.ListResult, error) {
	return lark.ListResult{
		Items:      []lark.WorkItem{{ID: 1, Name: "支付超时"}},
		Pagination: lark.Pagination{Total: 1},
	}, nil
}

func (f *fakeBackend) SearchWorkItems(_ context.Context, _, _ string, group lark.SearchGroup, _, _ int) (lark.ListResult, error) {
	f.searchGroups = append(f.searchGroups, group)
	return lark.ListResult{
		Items:      []lark.WorkItem{{ID: 2, Name: "支付失败"}},
		Pagination: lark.Pagination{Total: 1},
	}, nil
}

func newTestServer(fb *fakeBackend) *Server {
	meta := resolver.New(fb, resolver.DefaultConfig(), slog.Default())
	svc := service.New(fb, meta, service.Config{DefaultProject: "支付平台"}, slog.Default())
	return NewServer(svc, "test", slog.Default())
}

func callReq(args map[string]any) mcpgo.CallToolRequest {
	var req mcpgo.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcpgo.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return text.Text
}

func TestHandleListProjects(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	result, err := s.handleListProjects(context.Background(), callReq(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var projects []service.ProjectSummary
	if err := json.Unmarshal([]byte(resultText(t, result)), &projects); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(projects) != 1 || projects[0].Key != "proj_pay" {
		t.Errorf("projects = %+v", projects)
	}
}

func TestHandleCreateTask(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestServer(fb)

	result, err := s.handleCreateTask(context.Background(), callReq(map[string]any{
		"name":   "修复支付超时",
		"fields": map[string]any{"优先级": "P0"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if len(fb.createdNames) != 1 || fb.createdNames[0] != "修复支付超时" {
		t.Errorf("created = %v", fb.createdNames)
	}
	if !strings.Contains(resultText(t, result), "555") {
		t.Errorf("result should carry the new id: %s", resultText(t, result))
	}
}

func TestHandleCreateTaskMissingName(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	result, err := s.handleCreateTask(context.Background(), callReq(map[string]any{}))
	if err != nil {
		t.Fatalf("handler errors surface as tool results, got %v", err)
	}
	if !result.IsError {
		t.Error("expected a tool error for missing name")
	}
}

func TestHandleGetTasks(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	result, err := s.handleGetTasks(context.Background(), callReq(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list service.TaskList
	if err := json.Unmarshal([]byte(resultText(t, result)), &list); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if list.Total != 1 || list.Items[0].Name != "支付超时" {
		t.Errorf("list = %+v", list)
	}
}

func TestHandleGetTasksPredicates(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestServer(fb)

	result, err := s.handleGetTasks(context.Background(), callReq(map[string]any{
		"priority": "P0",
		"status":   "进行中,已完成",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if len(fb.searchGroups) != 1 {
		t.Fatalf("expected 1 search, got %d", len(fb.searchGroups))
	}
	byKey := map[string]any{}
	for _, c := range fb.searchGroups[0].SearchParams {
		byKey[c.ParamKey] = c.Value
	}
	if !reflect.DeepEqual(byKey["priority"], []string{"opt_p0"}) {
		t.Errorf("priority condition = %v", byKey["priority"])
	}
	// Status labels the catalog does not know pass through verbatim.
	if !reflect.DeepEqual(byKey["work_item_status"], []string{"进行中", "已完成"}) {
		t.Errorf("status condition = %v", byKey["work_item_status"])
	}
}

func TestHandleGetTaskDetail(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	result, err := s.handleGetTaskDetail(context.Background(), callReq(map[string]any{
		"id": float64(42),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var detail service.TaskDetail
	if err := json.Unmarshal([]byte(resultText(t, result)), &detail); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if detail.ID != 42 || detail.Name != "支付超时" {
		t.Errorf("detail = %+v", detail)
	}
}

func TestHandleUpdateTaskRequiresFields(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	result, _ := s.handleUpdateTask(context.Background(), callReq(map[string]any{
		"id": float64(7),
	}))
	if !result.IsError {
		t.Error("expected a tool error for missing fields")
	}
}

func TestHandleBatchUpdateTasks(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestServer(fb)

	result, err := s.handleBatchUpdateTasks(context.Background(), callReq(map[string]any{
		"updates": []any{
			map[string]any{"id": float64(1), "fields": map[string]any{"优先级": "P0"}},
			map[string]any{"id": float64(2), "fields": map[string]any{"优先级": "P0"}},
		},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if len(fb.updatedIDs) != 2 {
		t.Errorf("updated = %v", fb.updatedIDs)
	}

	var results []service.BatchUpdateResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &results); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(results) != 2 || !results[0].OK || !results[1].OK {
		t.Errorf("results = %+v", results)
	}
}

func TestHandleDeleteTask(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestServer(fb)

	result, err := s.handleDeleteTask(context.Background(), callReq(map[string]any{
		"id": float64(9),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if len(fb.deletedIDs) != 1 || fb.deletedIDs[0] != 9 {
		t.Errorf("deleted = %v", fb.deletedIDs)
	}
}

func TestHandleGetTaskOptions(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	result, err := s.handleGetTaskOptions(context.Background(), callReq(map[string]any{
		"field": "优先级",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var options map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &options); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if options["P0"] != "opt_p0" {
		t.Errorf("options = %v", options)
	}
}

func TestToolNamesCoverRegistrations(t *testing.T) {
	names := ToolNames()
	if len(names) != 8 {
		t.Errorf("expected 8 tools, got %d", len(names))
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate tool name %s", n)
		}
		seen[n] = true
	}
}
