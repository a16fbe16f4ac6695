// Package resolver translates human-readable names into API identifiers.
//
// Metadata lives in tiered lazy caches: projects, work item types per
// project, and a per-type field catalog carrying field keys, aliases,
// option values, and roles. Each tier loads its whole collection on first
// use and answers from memory until the TTL lapses. A miss after a live
// load is definitive and reported with the available names.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Wulnut/lark-agent/internal/cache"
	"github.com/Wulnut/lark-agent/internal/lark"
)

// RoleFieldKey is the field whose options enumerate workflow roles. Writes
// to it carry role keys, so callers translate role names before sending.
const RoleFieldKey = "current_status_operator_role"

// Client is the metadata surface of the API the resolver depends on.
type Client interface {
	ListProjects(ctx context.Context) ([]string, error)
	GetProjectDetails(ctx context.Context, projectKeys []string) (map[string]lark.ProjectDetail, error)
	ListWorkItemTypes(ctx context.Context, projectKey string) ([]lark.WorkItemType, error)
	ListFields(ctx context.Context, projectKey, typeKey string) ([]lark.FieldDef, error)
	SearchUsers(ctx context.Context, query string) ([]lark.UserInfo, error)
	QueryUsers(ctx context.Context, userKeys []string) ([]lark.UserInfo, error)
}

// Config sets per-tier cache lifetimes.
type Config struct {
	ProjectTTL time.Duration
	TypeTTL    time.Duration
	FieldTTL   time.Duration
	UserTTL    time.Duration
}

// DefaultConfig returns the standard tier lifetimes.
func DefaultConfig() Config {
	return Config{
		ProjectTTL: time.Hour,
		TypeTTL:    30 * time.Minute,
		FieldTTL:   30 * time.Minute,
		UserTTL:    30 * time.Minute,
	}
}

// fieldCatalog is everything known about one work item type's fields.
type fieldCatalog struct {
	nameToKey map[string]string            // field names and aliases
	keyToName map[string]string            // reverse lookup for display
	keyToType map[string]string            // field_key to field_type_key
	options   map[string]map[string]string // field_key to label to value
	roles     map[string]string            // role name to role key
}

// Resolver is safe for concurrent use. Concurrent loads of the same tier
// entry collapse into a single upstream fetch.
type Resolver struct {
	client Client
	logger *slog.Logger

	projects  *cache.Cache[map[string]string]
	types     *cache.Cache[map[string]string]
	fields    *cache.Cache[*fieldCatalog]
	userKeys  *cache.Cache[string]
	userNames *cache.Cache[string]

	group singleflight.Group
}

// New creates a resolver over the given client.
func New(client Client, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:    client,
		logger:    logger,
		projects:  cache.New[map[string]string](cfg.ProjectTTL),
		types:     cache.New[map[string]string](cfg.TypeTTL),
		fields:    cache.New[*fieldCatalog](cfg.FieldTTL),
		userKeys:  cache.New[string](cfg.UserTTL),
		userNames: cache.New[string](cfg.UserTTL),
	}
}

// Option adjusts a single resolve call.
type Option func(*resolveOptions)

type resolveOptions struct {
	force bool
}

// Force bypasses the cache and reloads the tier entry before resolving.
func Force() Option {
	return func(o *resolveOptions) { o.force = true }
}

func applyOptions(opts []Option) resolveOptions {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Projects returns the project name to key map.
func (r *Resolver) Projects(ctx context.Context, opts ...Option) (map[string]string, error) {
	o := applyOptions(opts)
	return loadTier(r, r.projects, "projects", o.force, func() (map[string]string, error) {
		return r.loadProjects(ctx)
	})
}

// ProjectKey resolves a project name to its key. A value that already is a
// known key passes through unchanged.
func (r *Resolver) ProjectKey(ctx context.Context, name string, opts ...Option) (string, error) {
	projects, err := r.Projects(ctx, opts...)
	if err != nil {
		return "", err
	}
	if key, ok := projects[name]; ok {
		return key, nil
	}
	for _, key := range projects {
		if key == name {
			return name, nil
		}
	}
	return "", &ProjectNotFoundError{Name: name, Available: mapKeys(projects)}
}

// Types returns the work item type name to key map of a project.
func (r *Resolver) Types(ctx context.Context, projectKey string, opts ...Option) (map[string]string, error) {
	o := applyOptions(opts)
	return loadTier(r, r.types, "types/"+projectKey, o.force, func() (map[string]string, error) {
		return r.loadTypes(ctx, projectKey)
	})
}

// TypeKey resolves a work item type name to its key within a project.
func (r *Resolver) TypeKey(ctx context.Context, projectKey, name string, opts ...Option) (string, error) {
	types, err := r.Types(ctx, projectKey, opts...)
	if err != nil {
		return "", err
	}
	if key, ok := types[name]; ok {
		return key, nil
	}
	for _, key := range types {
		if key == name {
			return name, nil
		}
	}
	return "", &TypeNotFoundError{Name: name, ProjectKey: projectKey, Available: mapKeys(types)}
}

// Fields returns the field name-and-alias to key map of a work item type.
func (r *Resolver) Fields(ctx context.Context, projectKey, typeKey string, opts ...Option) (map[string]string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(catalog.nameToKey))
	for name, key := range catalog.nameToKey {
		out[name] = key
	}
	return out, nil
}

// FieldKey resolves a field name or alias to its key.
func (r *Resolver) FieldKey(ctx context.Context, projectKey, typeKey, name string, opts ...Option) (string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey, opts...)
	if err != nil {
		return "", err
	}
	if key, ok := catalog.nameToKey[name]; ok {
		return key, nil
	}
	if _, ok := catalog.keyToName[name]; ok {
		return name, nil
	}
	return "", &FieldNotFoundError{
		Name:       name,
		ProjectKey: projectKey,
		TypeKey:    typeKey,
		Available:  mapKeys(catalog.nameToKey),
	}
}

// FieldName returns the display name of a field key, or the key itself when
// it is unknown.
func (r *Resolver) FieldName(ctx context.Context, projectKey, typeKey, fieldKey string) (string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey)
	if err != nil {
		return "", err
	}
	if name, ok := catalog.keyToName[fieldKey]; ok {
		return name, nil
	}
	return fieldKey, nil
}

// FieldType returns the field_type_key of a field, or empty when unknown.
func (r *Resolver) FieldType(ctx context.Context, projectKey, typeKey, fieldKey string) (string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey)
	if err != nil {
		return "", err
	}
	return catalog.keyToType[fieldKey], nil
}

// Options returns the label to value map of an option-typed field.
func (r *Resolver) Options(ctx context.Context, projectKey, typeKey, fieldKey string, opts ...Option) (map[string]string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(catalog.options[fieldKey]))
	for label, value := range catalog.options[fieldKey] {
		out[label] = value
	}
	return out, nil
}

// OptionValue resolves an option label to its stored value. A value that
// already is a known option value passes through unchanged.
func (r *Resolver) OptionValue(ctx context.Context, projectKey, typeKey, fieldKey, label string, opts ...Option) (string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey, opts...)
	if err != nil {
		return "", err
	}
	options := catalog.options[fieldKey]
	if value, ok := options[label]; ok {
		return value, nil
	}
	for _, value := range options {
		if value == label {
			return label, nil
		}
	}
	fieldName := fieldKey
	if name, ok := catalog.keyToName[fieldKey]; ok {
		fieldName = name
	}
	return "", &OptionNotFoundError{Label: label, FieldName: fieldName, Available: mapKeys(options)}
}

// Roles returns the role name to key map of a work item type.
func (r *Resolver) Roles(ctx context.Context, projectKey, typeKey string, opts ...Option) (map[string]string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(catalog.roles))
	for name, key := range catalog.roles {
		out[name] = key
	}
	return out, nil
}

// RoleKey resolves a role name to its key. Values already shaped like role
// keys pass through unchanged.
func (r *Resolver) RoleKey(ctx context.Context, projectKey, typeKey, name string, opts ...Option) (string, error) {
	catalog, err := r.catalog(ctx, projectKey, typeKey, opts...)
	if err != nil {
		return "", err
	}
	if key, ok := catalog.roles[name]; ok {
		return key, nil
	}
	if strings.HasPrefix(name, "role_") {
		return name, nil
	}
	return "", &RoleNotFoundError{Name: name, Available: mapKeys(catalog.roles)}
}

// UserKey resolves a user name or email to the tenant user key. Values that
// already look like user keys pass through unchanged.
func (r *Resolver) UserKey(ctx context.Context, identifier string) (string, error) {
	if looksLikeUserKey(identifier) {
		return identifier, nil
	}
	if key, ok := r.userKeys.Get(identifier); ok {
		return key, nil
	}

	v, err, _ := r.group.Do("user/"+identifier, func() (any, error) {
		if key, ok := r.userKeys.Get(identifier); ok {
			return key, nil
		}
		users, err := r.client.SearchUsers(ctx, identifier)
		if err != nil {
			return nil, err
		}
		key := pickUser(users, identifier)
		if key == "" {
			return nil, &UserNotFoundError{Identifier: identifier}
		}
		r.userKeys.Set(identifier, key)
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// UserNames resolves user keys to displayable names. Unknown keys map to
// themselves so callers always get a usable value.
func (r *Resolver) UserNames(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		if name, ok := r.userNames.Get(key); ok {
			out[key] = name
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	users, err := r.client.QueryUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range users {
		name := users[i].Name()
		out[users[i].UserKey] = name
		r.userNames.Set(users[i].UserKey, name)
	}
	for _, key := range missing {
		if _, ok := out[key]; !ok {
			out[key] = key
		}
	}
	return out, nil
}

// Invalidate drops every cached tier, forcing fresh loads on next use.
func (r *Resolver) Invalidate() {
	r.projects.Clear()
	r.types.Clear()
	r.fields.Clear()
	r.userKeys.Clear()
	r.userNames.Clear()
}

func (r *Resolver) catalog(ctx context.Context, projectKey, typeKey string, opts ...Option) (*fieldCatalog, error) {
	o := applyOptions(opts)
	return loadTier(r, r.fields, "fields/"+projectKey+"/"+typeKey, o.force, func() (*fieldCatalog, error) {
		return r.loadCatalog(ctx, projectKey, typeKey)
	})
}

// loadTier serves a tier entry from cache or loads it once, collapsing
// concurrent loads of the same key.
func loadTier[T any](r *Resolver, c *cache.Cache[T], key string, force bool, load func() (T, error)) (T, error) {
	if !force {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		if !force {
			if v, ok := c.Get(key); ok {
				return v, nil
			}
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (r *Resolver) loadProjects(ctx context.Context) (map[string]string, error) {
	keys, err := r.client.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	details, err := r.client.GetProjectDetails(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load project details: %w", err)
	}

	projects := make(map[string]string, len(details))
	for key, detail := range details {
		if detail.Name != "" {
			projects[detail.Name] = key
		}
		if detail.SimpleName != "" && detail.SimpleName != detail.Name {
			projects[detail.SimpleName] = key
		}
	}
	r.logger.Debug("project tier loaded", "projects", len(projects))
	return projects, nil
}

func (r *Resolver) loadTypes(ctx context.Context, projectKey string) (map[string]string, error) {
	items, err := r.client.ListWorkItemTypes(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("load work item types for %s: %w", projectKey, err)
	}
	types := make(map[string]string, len(items))
	for _, it := range items {
		types[it.Name] = it.TypeKey
	}
	r.logger.Debug("type tier loaded", "project", projectKey, "types", len(types))
	return types, nil
}

func (r *Resolver) loadCatalog(ctx context.Context, projectKey, typeKey string) (*fieldCatalog, error) {
	defs, err := r.client.ListFields(ctx, projectKey, typeKey)
	if err != nil {
		return nil, fmt.Errorf("load fields for %s/%s: %w", projectKey, typeKey, err)
	}

	catalog := &fieldCatalog{
		nameToKey: make(map[string]string, len(defs)*2),
		keyToName: make(map[string]string, len(defs)),
		keyToType: make(map[string]string, len(defs)),
		options:   make(map[string]map[string]string),
		roles:     make(map[string]string),
	}

	for _, def := range defs {
		catalog.nameToKey[def.FieldName] = def.FieldKey
		if def.FieldAlias != "" {
			catalog.nameToKey[def.FieldAlias] = def.FieldKey
		}
		catalog.keyToName[def.FieldKey] = def.FieldName
		catalog.keyToType[def.FieldKey] = def.FieldTypeKey

		if len(def.Options) > 0 {
			flat := make(map[string]string)
			r.flattenOptions(def.FieldKey, def.Options, flat)
			catalog.options[def.FieldKey] = flat
		}

		if def.FieldKey == RoleFieldKey {
			for _, opt := range def.Options {
				catalog.roles[opt.Label] = roleKeyFromValue(opt.Value)
			}
		}
	}

	r.logger.Debug("field tier loaded",
		"project", projectKey,
		"type", typeKey,
		"fields", len(catalog.keyToName),
		"roles", len(catalog.roles))
	return catalog, nil
}

// flattenOptions walks a possibly nested option tree into label to value
// pairs. A repeated label keeps its first value.
func (r *Resolver) flattenOptions(fieldKey string, opts []lark.FieldOption, out map[string]string) {
	for _, opt := range opts {
		if existing, ok := out[opt.Label]; ok && existing != opt.Value {
			r.logger.Warn("option label collision",
				"field", fieldKey,
				"label", opt.Label,
				"kept", existing,
				"dropped", opt.Value)
		} else {
			out[opt.Label] = opt.Value
		}
		if len(opt.Children) > 0 {
			r.flattenOptions(fieldKey, opt.Children, out)
		}
	}
}

// roleKeyFromValue extracts the trailing role key from an option value.
// Values arrive as either plain keys or compound strings ending in one.
func roleKeyFromValue(value string) string {
	if idx := strings.LastIndex(value, "role_"); idx > 0 {
		return value[idx:]
	}
	return value
}

// looksLikeUserKey reports whether an identifier is already a user key: a
// long run of hex digits rather than a human name or email.
func looksLikeUserKey(s string) bool {
	if len(s) < 12 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// pickUser chooses a user key from search results: an exact name or email
// match wins, a single result stands on its own.
func pickUser(users []lark.UserInfo, identifier string) string {
	for i := range users {
		u := &users[i]
		if u.NameCN == identifier || u.NameEN == identifier || u.Email == identifier {
			return u.UserKey
		}
	}
	if len(users) == 1 {
		return users[0].UserKey
	}
	return ""
}

func mapKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
