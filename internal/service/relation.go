package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Wulnut/lark-agent/internal/lark"
)

// relationCandidateTypes are the type names searched when a relation is
// given by name instead of ID.
var relationCandidateTypes = []string{"需求", "问题管理", "任务"}

// resolveRelation turns a relation reference into a work item ID. Numbers
// and numeric strings are taken as IDs directly; anything else is searched
// by exact name across the candidate types. One match wins, several is an
// error that lists them.
func (s *Service) resolveRelation(ctx context.Context, projectKey string, ref any) (int64, error) {
	switch v := ref.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return id, nil
		}
		return s.searchRelation(ctx, projectKey, trimmed)
	default:
		return 0, fmt.Errorf("unsupported relation reference type %T", ref)
	}
}

func (s *Service) searchRelation(ctx context.Context, projectKey, name string) (int64, error) {
	var matches []RelationMatch
	for _, typeName := range relationCandidateTypes {
		typeKey, err := s.meta.TypeKey(ctx, projectKey, typeName)
		if err != nil {
			// A project is not required to register every candidate type.
			continue
		}
		result, err := s.api.FilterWorkItems(ctx, projectKey, relationFilter(typeKey, name))
		if err != nil {
			return 0, fmt.Errorf("search relation %q in %s: %w", name, typeName, err)
		}
		for _, item := range result.Items {
			if item.Name == name {
				matches = append(matches, RelationMatch{ID: item.ID, TypeName: typeName, Name: item.Name})
			}
		}
	}

	switch len(matches) {
	case 0:
		return 0, &RelationNotFoundError{Reference: name}
	case 1:
		s.logger.Debug("relation resolved", "name", name, "id", matches[0].ID, "type", matches[0].TypeName)
		return matches[0].ID, nil
	default:
		return 0, &AmbiguousRelationError{Reference: name, Matches: matches}
	}
}

func relationFilter(typeKey, name string) lark.FilterRequest {
	return lark.FilterRequest{
		WorkItemTypeKeys: []string{typeKey},
		WorkItemName:     name,
		PageNum:          1,
		PageSize:         50,
	}
}
