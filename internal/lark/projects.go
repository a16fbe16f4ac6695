package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ListProjects returns the keys of every project the credential can see.
func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	payload := map[string]any{
		"user_key":        c.userKey,
		"tenant_group_id": 0,
	}
	data, err := c.do(ctx, http.MethodPost, "/open_api/projects", payload)
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode project keys: %v: %w", err, ErrProtocol)
	}
	return keys, nil
}

// GetProjectDetails resolves project keys to their display names.
func (c *Client) GetProjectDetails(ctx context.Context, projectKeys []string) (map[string]ProjectDetail, error) {
	payload := map[string]any{
		"project_keys": projectKeys,
		"user_key":     c.userKey,
	}
	data, err := c.do(ctx, http.MethodPost, "/open_api/projects/detail", payload)
	if err != nil {
		return nil, err
	}

	details := make(map[string]ProjectDetail)
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("decode project details: %v: %w", err, ErrProtocol)
	}
	return details, nil
}

// ListWorkItemTypes returns the work item types registered in a project.
func (c *Client) ListWorkItemTypes(ctx context.Context, projectKey string) ([]WorkItemType, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/all-types", projectKey)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var types []WorkItemType
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, fmt.Errorf("decode work item types: %v: %w", err, ErrProtocol)
	}
	return types, nil
}

// ListFields returns the field definitions of a work item type.
func (c *Client) ListFields(ctx context.Context, projectKey, typeKey string) ([]FieldDef, error) {
	path := fmt.Sprintf("/open_api/%s/field/all", projectKey)
	payload := map[string]any{"work_item_type_key": typeKey}
	data, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var fields []FieldDef
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode field definitions: %v: %w", err, ErrProtocol)
	}
	return fields, nil
}
