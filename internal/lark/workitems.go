package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CreateWorkItem creates a work item and returns its ID. The create
// endpoint has returned the ID in several shapes across API versions, all
// of which are accepted here.
func (c *Client) CreateWorkItem(ctx context.Context, projectKey, typeKey, name string, fields []FieldValuePair) (int64, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/create", projectKey)
	payload := map[string]any{
		"work_item_type_key": typeKey,
		"name":               name,
		"field_value_pairs":  fields,
	}
	data, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var obj struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.ID != 0 {
		return obj.ID, nil
	}
	var list []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 && list[0].ID != 0 {
		return list[0].ID, nil
	}
	return 0, fmt.Errorf("create response carries no work item id: %w", ErrProtocol)
}

// QueryWorkItems fetches work items by ID within one type. A non-nil
// expand asks the API to inline workflow, multi-line text and relation
// field payloads.
func (c *Client) QueryWorkItems(ctx context.Context, projectKey, typeKey string, ids []int64, expand *Expand) ([]WorkItem, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/query", projectKey, typeKey)
	payload := map[string]any{"work_item_ids": ids}
	if expand != nil {
		payload["expand"] = expand
	}
	data, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	result, err := normalizeList(data)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// UpdateWorkItem applies field updates to one work item.
func (c *Client) UpdateWorkItem(ctx context.Context, projectKey, typeKey string, id int64, fields []FieldValuePair) error {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/%d", projectKey, typeKey, id)
	payload := map[string]any{"update_fields": fields}
	_, err := c.do(ctx, http.MethodPut, path, payload)
	return err
}

// DeleteWorkItem removes one work item.
func (c *Client) DeleteWorkItem(ctx context.Context, projectKey, typeKey string, id int64) error {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/%d", projectKey, typeKey, id)
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// FilterWorkItems lists work items in one project matching the filter.
func (c *Client) FilterWorkItems(ctx context.Context, projectKey string, filter FilterRequest) (ListResult, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/filter", projectKey)
	data, err := c.do(ctx, http.MethodPost, path, filter)
	if err != nil {
		return ListResult{}, err
	}
	return normalizeList(data)
}

// SearchWorkItems runs a complex predicate search within one type.
func (c *Client) SearchWorkItems(ctx context.Context, projectKey, typeKey string, group SearchGroup, pageNum, pageSize int) (ListResult, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/search/params", projectKey, typeKey)
	payload := map[string]any{
		"search_group": group,
		"page_num":     pageNum,
		"page_size":    pageSize,
	}
	data, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return ListResult{}, err
	}
	return normalizeList(data)
}
