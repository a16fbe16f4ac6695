package service

import (
	"context"
	"fmt"

	"github.com/Wulnut/lark-agent/internal/lark"
)

// Well-known field keys carried by every work item type.
const (
	statusFieldKey   = "work_item_status"
	priorityFieldKey = "priority"
	ownerFieldKey    = "owner"
)

// summarize condenses work items to the fields agents act on. Option values
// are translated back to labels and owner keys to display names; failures
// degrade to the raw value rather than dropping the item.
func (s *Service) summarize(ctx context.Context, projectKey, typeKey string, items []lark.WorkItem) ([]TaskSummary, error) {
	ownerKeys := make([]string, 0, len(items))
	for i := range items {
		if key, ok := stringField(&items[i], ownerFieldKey); ok {
			ownerKeys = append(ownerKeys, key)
		}
	}
	ownerNames := map[string]string{}
	if len(ownerKeys) > 0 {
		names, err := s.meta.UserNames(ctx, ownerKeys)
		if err != nil {
			s.logger.Warn("owner name lookup failed", "error", err)
		} else {
			ownerNames = names
		}
	}

	out := make([]TaskSummary, 0, len(items))
	for i := range items {
		item := &items[i]
		summary := TaskSummary{ID: item.ID, Name: item.Name}
		summary.Status = s.statusLabel(ctx, projectKey, typeKey, item)
		if raw, ok := stringField(item, priorityFieldKey); ok {
			summary.Priority = s.optionLabel(ctx, projectKey, typeKey, priorityFieldKey, raw)
		}
		if key, ok := stringField(item, ownerFieldKey); ok {
			if name, ok := ownerNames[key]; ok {
				summary.Owner = name
			} else {
				summary.Owner = key
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// detailOf expands one work item into a fully translated view.
func (s *Service) detailOf(ctx context.Context, projectKey, typeKey string, item *lark.WorkItem) (TaskDetail, error) {
	detail := TaskDetail{
		ID:      item.ID,
		Name:    item.Name,
		TypeKey: item.WorkItemTypeKey,
		Fields:  make([]TaskField, 0, len(item.Fields)),
	}
	if detail.TypeKey == "" {
		detail.TypeKey = typeKey
	}

	for _, pair := range item.Fields {
		name, err := s.meta.FieldName(ctx, projectKey, typeKey, pair.FieldKey)
		if err != nil {
			return TaskDetail{}, err
		}
		detail.Fields = append(detail.Fields, TaskField{
			Key:   pair.FieldKey,
			Name:  name,
			Value: s.readableValue(ctx, projectKey, typeKey, pair.FieldKey, pair.FieldValue),
		})
	}
	return detail, nil
}

// readableValue translates a raw field value back into labels and names
// according to the field's type. Unknown shapes come back untouched.
func (s *Service) readableValue(ctx context.Context, projectKey, typeKey, fieldKey string, value any) any {
	fieldType, err := s.meta.FieldType(ctx, projectKey, typeKey, fieldKey)
	if err != nil {
		return value
	}
	switch fieldType {
	case "select", "radio":
		if raw, ok := value.(string); ok {
			return s.optionLabel(ctx, projectKey, typeKey, fieldKey, raw)
		}
	case "multi_select":
		if list, ok := value.([]any); ok {
			out := make([]any, 0, len(list))
			for _, e := range list {
				if raw, ok := e.(string); ok {
					out = append(out, s.optionLabel(ctx, projectKey, typeKey, fieldKey, raw))
				} else {
					out = append(out, e)
				}
			}
			return out
		}
	case "user":
		if key, ok := value.(string); ok && key != "" {
			if names, err := s.meta.UserNames(ctx, []string{key}); err == nil {
				return names[key]
			}
		}
	case "multi_user":
		if list, ok := value.([]any); ok {
			keys := make([]string, 0, len(list))
			for _, e := range list {
				if key, ok := e.(string); ok {
					keys = append(keys, key)
				}
			}
			if names, err := s.meta.UserNames(ctx, keys); err == nil {
				out := make([]any, 0, len(keys))
				for _, key := range keys {
					out = append(out, names[key])
				}
				return out
			}
		}
	}
	return value
}

// optionLabel maps an option value back to its label, falling back to the
// raw value when unknown.
func (s *Service) optionLabel(ctx context.Context, projectKey, typeKey, fieldKey, value string) string {
	options, err := s.meta.Options(ctx, projectKey, typeKey, fieldKey)
	if err != nil {
		return value
	}
	for label, v := range options {
		if v == value {
			return label
		}
	}
	return value
}

// statusLabel extracts a displayable status. The status field arrives
// either as a plain value or as an object carrying a state key.
func (s *Service) statusLabel(ctx context.Context, projectKey, typeKey string, item *lark.WorkItem) string {
	value, ok := item.Field(statusFieldKey)
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return s.optionLabel(ctx, projectKey, typeKey, statusFieldKey, v)
	case map[string]any:
		for _, key := range []string{"state_key", "status_key", "label", "name"} {
			if raw, ok := v[key].(string); ok && raw != "" {
				return s.optionLabel(ctx, projectKey, typeKey, statusFieldKey, raw)
			}
		}
	}
	return fmt.Sprint(value)
}

// stringField returns a field's value when it is a non-empty string.
func stringField(item *lark.WorkItem, key string) (string, bool) {
	value, ok := item.Field(key)
	if !ok {
		return "", false
	}
	raw, ok := value.(string)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
