package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Wulnut/lark-agent/internal/lark"
	"github.com/Wulnut/lark-agent/internal/resolver"
)

// multiValueSeparators split a single string into multi-select entries.
var multiValueSeparators = []string{"/", ",", ";", "|", "、"}

// translateFields converts name-keyed, label-valued input into the wire
// field pairs the API expects. Update payloads wrap option values as
// label/value objects, which is what the update endpoint requires.
func (s *Service) translateFields(ctx context.Context, projectKey, typeKey string, fields map[string]any, forUpdate bool) ([]lark.FieldValuePair, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]lark.FieldValuePair, 0, len(fields))
	for _, name := range names {
		fieldKey, err := s.fieldKey(ctx, projectKey, typeKey, name)
		if err != nil {
			return nil, err
		}
		value, err := s.translateValue(ctx, projectKey, typeKey, fieldKey, fields[name], forUpdate)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		pairs = append(pairs, lark.FieldValuePair{FieldKey: fieldKey, FieldValue: value})
	}
	return pairs, nil
}

func (s *Service) translateValue(ctx context.Context, projectKey, typeKey, fieldKey string, value any, forUpdate bool) (any, error) {
	fieldType, err := s.meta.FieldType(ctx, projectKey, typeKey, fieldKey)
	if err != nil {
		return nil, err
	}

	// The operator role field wants role keys, not its raw option values.
	if fieldKey == resolver.RoleFieldKey {
		if name, ok := value.(string); ok {
			return s.meta.RoleKey(ctx, projectKey, typeKey, name)
		}
		return value, nil
	}

	switch fieldType {
	case "select", "radio":
		label, ok := value.(string)
		if !ok {
			return value, nil
		}
		optValue, err := s.optionValue(ctx, projectKey, typeKey, fieldKey, label)
		if err != nil {
			return nil, err
		}
		if forUpdate {
			return optionObject(ctx, s, projectKey, typeKey, fieldKey, optValue), nil
		}
		return optValue, nil

	case "multi_select":
		labels := toStringList(value)
		if labels == nil {
			return []any{}, nil
		}
		out := make([]any, 0, len(labels))
		for _, label := range labels {
			optValue, err := s.optionValue(ctx, projectKey, typeKey, fieldKey, label)
			if err != nil {
				return nil, err
			}
			if forUpdate {
				out = append(out, optionObject(ctx, s, projectKey, typeKey, fieldKey, optValue))
			} else {
				out = append(out, optValue)
			}
		}
		return out, nil

	case "bool", "checkbox":
		return coerceBool(value), nil

	case "user":
		if identifier, ok := value.(string); ok {
			return s.meta.UserKey(ctx, identifier)
		}
		return value, nil

	case "multi_user":
		identifiers := toStringList(value)
		out := make([]any, 0, len(identifiers))
		for _, identifier := range identifiers {
			key, err := s.meta.UserKey(ctx, identifier)
			if err != nil {
				return nil, err
			}
			out = append(out, key)
		}
		return out, nil

	default:
		return value, nil
	}
}

// optionValue resolves an option label with a fuzzy fallback over the
// field's labels.
func (s *Service) optionValue(ctx context.Context, projectKey, typeKey, fieldKey, label string) (string, error) {
	value, err := s.meta.OptionValue(ctx, projectKey, typeKey, fieldKey, label)
	if err == nil {
		return value, nil
	}
	options, oerr := s.meta.Options(ctx, projectKey, typeKey, fieldKey)
	if oerr != nil {
		return "", err
	}
	if match, ok := fuzzyMatch(label, options); ok {
		return match, nil
	}
	return "", err
}

// optionList resolves option labels to wire values for listing predicates.
// Entries the catalog does not know pass through unchanged, so callers
// already holding raw option values keep working.
func (s *Service) optionList(ctx context.Context, projectKey, typeKey, fieldKey string, labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		value, err := s.optionValue(ctx, projectKey, typeKey, fieldKey, label)
		if err != nil {
			value = label
		}
		out = append(out, value)
	}
	return out
}

// SplitList exposes the multi-value parsing used for field values, so tool
// frontends accept either arrays or delimited strings for list parameters.
func SplitList(value any) []string {
	return toStringList(value)
}

// optionObject wraps an option value with its label for update payloads.
// The label lookup is best-effort; the value alone is still accepted.
func optionObject(ctx context.Context, s *Service, projectKey, typeKey, fieldKey, optValue string) map[string]any {
	label := optValue
	if options, err := s.meta.Options(ctx, projectKey, typeKey, fieldKey); err == nil {
		for l, v := range options {
			if v == optValue {
				label = l
				break
			}
		}
	}
	return map[string]any{"label": label, "value": optValue}
}

// toStringList accepts a list of strings or one delimited string. Nil and
// empty inputs yield nil.
func toStringList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		for _, sep := range multiValueSeparators {
			if strings.Contains(v, sep) {
				parts := strings.Split(v, sep)
				out := make([]string, 0, len(parts))
				for _, p := range parts {
					if trimmed := strings.TrimSpace(p); trimmed != "" {
						out = append(out, trimmed)
					}
				}
				return out
			}
		}
		return []string{strings.TrimSpace(v)}
	default:
		return []string{fmt.Sprint(value)}
	}
}

// coerceBool maps common truthy spellings onto a real boolean. Anything
// unrecognized is false.
func coerceBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true
		}
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}
