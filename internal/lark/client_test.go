package lark

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL: srv.URL,
		UserKey: "user-abc",
		Tokens:  NewStaticTokenProvider("tok-123"),
		Timeout: 5 * time.Second,
		Retry:   testRetryConfig(3),
		Logger:  slog.Default(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestClientHeaders(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-PLUGIN-TOKEN"); got != "tok-123" {
			t.Errorf("X-PLUGIN-TOKEN = %q", got)
		}
		if got := r.Header.Get("X-USER-KEY"); got != "user-abc" {
			t.Errorf("X-USER-KEY = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		_, _ = w.Write([]byte(`{"err_code":0,"data":["proj_a"]}`))
	}))

	if _, err := client.ListProjects(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientEnvelopeVariants(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"err_code zero", `{"err_code":0,"err_msg":"","data":["p"]}`, nil},
		{"code zero", `{"code":0,"msg":"","data":["p"]}`, nil},
		{"err_code nonzero", `{"err_code":10001,"err_msg":"invalid field"}`, ErrValidation},
		{"code nonzero", `{"code":500123,"msg":"internal"}`, ErrValidation},
		{"no code key", `{"data":["p"]}`, ErrProtocol},
		{"not json", `<html>gateway error</html>`, ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := client.ListProjects(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"err_code":0,"data":["proj_a"]}`))
	}))

	keys, err := client.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "proj_a" {
		t.Errorf("unexpected keys: %v", keys)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"err_code":401,"err_msg":"token expired"}`))
	}))

	_, err := client.ListProjects(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantItems int
		wantTotal int
		wantErr   bool
	}{
		{"bare array", `[{"id":1,"name":"a"},{"id":2,"name":"b"}]`, 2, 2, false},
		{"empty array", `[]`, 0, 0, false},
		{"null data", `null`, 0, 0, false},
		{"work_items with pagination", `{"work_items":[{"id":1}],"pagination":{"total":42,"page_num":1,"page_size":20}}`, 1, 42, false},
		{"data with total", `{"data":[{"id":1},{"id":2}],"total":7}`, 2, 7, false},
		{"object without list", `{"something":"else"}`, 0, 0, false},
		{"pagination only", `{"pagination":{"total":0,"page_num":1,"page_size":20}}`, 0, 0, false},
		{"total only", `{"total":9}`, 0, 9, false},
		{"scalar", `12`, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := normalizeList(json.RawMessage(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Fatalf("expected ErrProtocol, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(result.Items), tt.wantItems)
			}
			if result.Pagination.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", result.Pagination.Total, tt.wantTotal)
			}
		})
	}
}

func TestCreateWorkItemResponseShapes(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		wantID int64
	}{
		{"bare id", `12345`, 12345},
		{"object id", `{"id":678}`, 678},
		{"array of objects", `[{"id":90}]`, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode request: %v", err)
				}
				if body["work_item_type_key"] != "type_bug" {
					t.Errorf("work_item_type_key = %v", body["work_item_type_key"])
				}
				if body["name"] != "fix login" {
					t.Errorf("name = %v", body["name"])
				}
				_, _ = w.Write([]byte(`{"err_code":0,"data":` + tt.data + `}`))
			}))

			id, err := client.CreateWorkItem(context.Background(), "proj_a", "type_bug", "fix login", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestFilterWorkItems(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open_api/proj_a/work_item/filter" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var filter FilterRequest
		if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
			t.Errorf("decode filter: %v", err)
		}
		if len(filter.WorkItemTypeKeys) != 1 || filter.WorkItemTypeKeys[0] != "type_bug" {
			t.Errorf("type keys = %v", filter.WorkItemTypeKeys)
		}
		_, _ = w.Write([]byte(`{"err_code":0,"data":{"work_items":[{"id":1,"name":"bug one"}],"pagination":{"total":1}}}`))
	}))

	result, err := client.FilterWorkItems(context.Background(), "proj_a", FilterRequest{
		WorkItemTypeKeys: []string{"type_bug"},
		PageNum:          1,
		PageSize:         20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Name != "bug one" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSearchWorkItems(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open_api/proj_a/work_item/type_bug/search/params" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload struct {
			SearchGroup SearchGroup `json:"search_group"`
			PageNum     int         `json:"page_num"`
			PageSize    int         `json:"page_size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.SearchGroup.Conjunction != "AND" || len(payload.SearchGroup.SearchParams) != 1 {
			t.Errorf("search group = %+v", payload.SearchGroup)
		}
		if payload.PageNum != 2 || payload.PageSize != 10 {
			t.Errorf("paging = %d/%d", payload.PageNum, payload.PageSize)
		}
		_, _ = w.Write([]byte(`{"err_code":0,"data":{"work_items":[{"id":5,"name":"p0 bug"}],"pagination":{"total":31}}}`))
	}))

	group := SearchGroup{
		Conjunction: "AND",
		SearchParams: []SearchCondition{
			{ParamKey: "priority", Operator: "in", Value: []string{"opt_p0"}},
		},
	}
	result, err := client.SearchWorkItems(context.Background(), "proj_a", "type_bug", group, 2, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pagination.Total != 31 || len(result.Items) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestQueryWorkItemsSendsExpand(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			WorkItemIDs []int64 `json:"work_item_ids"`
			Expand      *Expand `json:"expand"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if len(payload.WorkItemIDs) != 1 || payload.WorkItemIDs[0] != 7 {
			t.Errorf("ids = %v", payload.WorkItemIDs)
		}
		if payload.Expand == nil || !payload.Expand.NeedMultiText {
			t.Errorf("expand = %+v", payload.Expand)
		}
		_, _ = w.Write([]byte(`{"err_code":0,"data":[{"id":7,"name":"x"}]}`))
	}))

	items, err := client.QueryWorkItems(context.Background(), "proj_a", "type_bug", []int64{7},
		&Expand{NeedMultiText: true, RelationFieldsDetail: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != 7 {
		t.Errorf("items = %+v", items)
	}
}

func TestQueryWorkItemsOmitsExpandWhenNil(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if _, ok := payload["expand"]; ok {
			t.Error("expand should be absent when not requested")
		}
		_, _ = w.Write([]byte(`{"err_code":0,"data":[]}`))
	}))

	if _, err := client.QueryWorkItems(context.Background(), "proj_a", "type_bug", []int64{1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetProjectDetails(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"err_code":0,"data":{"proj_a":{"name":"支付平台","simple_name":"pay"}}}`))
	}))

	details, err := client.GetProjectDetails(context.Background(), []string{"proj_a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details["proj_a"].Name != "支付平台" {
		t.Errorf("unexpected details: %+v", details)
	}
}

func TestDecodeUsers(t *testing.T) {
	bare := json.RawMessage(`[{"user_key":"u1","name_cn":"张三"}]`)
	users, err := decodeUsers(bare)
	if err != nil || len(users) != 1 || users[0].UserKey != "u1" {
		t.Fatalf("bare array: users=%v err=%v", users, err)
	}

	wrapped := json.RawMessage(`{"users":[{"user_key":"u2","name_en":"Bob"}]}`)
	users, err = decodeUsers(wrapped)
	if err != nil || len(users) != 1 || users[0].Name() != "Bob" {
		t.Fatalf("wrapped: users=%v err=%v", users, err)
	}
}
