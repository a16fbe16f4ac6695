// Package service implements the agent-facing task operations on top of the
// raw API client and the metadata resolver. It accepts human-readable
// project, type, field, and option names and translates them before
// anything reaches the wire.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Wulnut/lark-agent/internal/cache"
	"github.com/Wulnut/lark-agent/internal/lark"
	"github.com/Wulnut/lark-agent/internal/resolver"
)

// API is the work item surface of the client the service depends on.
type API interface {
	CreateWorkItem(ctx context.Context, projectKey, typeKey, name string, fields []lark.FieldValuePair) (int64, error)
	QueryWorkItems(ctx context.Context, projectKey, typeKey string, ids []int64, expand *lark.Expand) ([]lark.WorkItem, error)
	UpdateWorkItem(ctx context.Context, projectKey, typeKey string, id int64, fields []lark.FieldValuePair) error
	DeleteWorkItem(ctx context.Context, projectKey, typeKey string, id int64) error
	FilterWorkItems(ctx context.Context, projectKey string, filter lark.FilterRequest) (lark.ListResult, error)
	SearchWorkItems(ctx context.Context, projectKey, typeKey string, group lark.SearchGroup, pageNum, pageSize int) (lark.ListResult, error)
}

// Config holds service defaults.
type Config struct {
	DefaultProject string
	DefaultType    string
}

// Service is safe for concurrent use.
type Service struct {
	api    API
	meta   *resolver.Resolver
	logger *slog.Logger
	cfg    Config

	// Recently fetched work items, keyed project/type/id.
	items *cache.Cache[lark.WorkItem]
}

// New creates a service. An empty DefaultType falls back to 问题管理.
func New(api API, meta *resolver.Resolver, cfg Config, logger *slog.Logger) *Service {
	if cfg.DefaultType == "" {
		cfg.DefaultType = "问题管理"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:    api,
		meta:   meta,
		logger: logger,
		cfg:    cfg,
		items:  cache.New[lark.WorkItem](5 * time.Minute),
	}
}

// ListProjects returns the projects the credential can address, sorted by
// name.
func (s *Service) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	projects, err := s.meta.Projects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectSummary, 0, len(projects))
	for name, key := range projects {
		out = append(out, ProjectSummary{Name: name, Key: key})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListOptions returns the selectable labels of a field, for agents to
// discover before writing.
func (s *Service) ListOptions(ctx context.Context, project, typ, field string) (map[string]string, error) {
	projectKey, typeKey, err := s.resolveScope(ctx, project, typ)
	if err != nil {
		return nil, err
	}
	fieldKey, err := s.fieldKey(ctx, projectKey, typeKey, field)
	if err != nil {
		return nil, err
	}
	return s.meta.Options(ctx, projectKey, typeKey, fieldKey)
}

// resolveScope turns a project and type name into keys, applying configured
// defaults. An unknown default type falls back to the first type the project
// registers.
func (s *Service) resolveScope(ctx context.Context, project, typ string) (projectKey, typeKey string, err error) {
	if project == "" {
		project = s.cfg.DefaultProject
	}
	if project == "" {
		return "", "", fmt.Errorf("no project given and no default configured")
	}
	projectKey, err = s.meta.ProjectKey(ctx, project)
	if err != nil {
		return "", "", err
	}

	typeName := typ
	usedDefault := false
	if typeName == "" {
		typeName = s.cfg.DefaultType
		usedDefault = true
	}
	typeKey, err = s.meta.TypeKey(ctx, projectKey, typeName)
	if err != nil && usedDefault {
		typeKey, err = s.firstTypeKey(ctx, projectKey)
	}
	if err != nil {
		return "", "", err
	}
	return projectKey, typeKey, nil
}

func (s *Service) firstTypeKey(ctx context.Context, projectKey string) (string, error) {
	types, err := s.meta.Types(ctx, projectKey)
	if err != nil {
		return "", err
	}
	if len(types) == 0 {
		return "", fmt.Errorf("project %s has no work item types", projectKey)
	}
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	key := types[names[0]]
	s.logger.Debug("default type unavailable, using first type", "project", projectKey, "type", names[0])
	return key, nil
}

// fieldKey resolves a field name with a fuzzy fallback on top of the exact
// resolver semantics.
func (s *Service) fieldKey(ctx context.Context, projectKey, typeKey, name string) (string, error) {
	key, err := s.meta.FieldKey(ctx, projectKey, typeKey, name)
	if err == nil {
		return key, nil
	}
	fields, ferr := s.meta.Fields(ctx, projectKey, typeKey)
	if ferr != nil {
		return "", err
	}
	if match, ok := fuzzyMatch(name, fields); ok {
		return match, nil
	}
	return "", err
}

// fuzzyMatch finds the single candidate whose name contains (or is contained
// by) the target, ignoring case and spaces. Zero or multiple hits fail.
func fuzzyMatch(target string, candidates map[string]string) (string, bool) {
	norm := normalize(target)
	if norm == "" {
		return "", false
	}
	var hit string
	hits := 0
	for name, value := range candidates {
		n := normalize(name)
		if strings.Contains(n, norm) || strings.Contains(norm, n) {
			hits++
			hit = value
		}
	}
	if hits == 1 {
		return hit, true
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

func itemCacheKey(projectKey, typeKey string, id int64) string {
	return fmt.Sprintf("%s/%s/%d", projectKey, typeKey, id)
}
