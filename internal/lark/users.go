package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SearchUsers finds tenant users by name or email fragment.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]UserInfo, error) {
	payload := map[string]any{"query": query}
	data, err := c.do(ctx, http.MethodPost, "/open_api/user/search", payload)
	if err != nil {
		return nil, err
	}
	return decodeUsers(data)
}

// QueryUsers fetches user profiles by their keys.
func (c *Client) QueryUsers(ctx context.Context, userKeys []string) ([]UserInfo, error) {
	payload := map[string]any{"user_keys": userKeys}
	data, err := c.do(ctx, http.MethodPost, "/open_api/user/query", payload)
	if err != nil {
		return nil, err
	}
	return decodeUsers(data)
}

// decodeUsers accepts either a bare user array or one wrapped in a users key.
func decodeUsers(data json.RawMessage) ([]UserInfo, error) {
	var users []UserInfo
	if err := json.Unmarshal(data, &users); err == nil {
		return users, nil
	}
	var obj struct {
		Users []UserInfo `json:"users"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode users: %v: %w", err, ErrProtocol)
	}
	return obj.Users, nil
}
