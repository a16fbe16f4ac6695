package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// availableLimit caps how many candidate names a not-found error lists.
const availableLimit = 15

func formatAvailable(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	if len(sorted) > availableLimit {
		rest := len(sorted) - availableLimit
		sorted = sorted[:availableLimit]
		return strings.Join(sorted, ", ") + fmt.Sprintf(" ... and %d more", rest)
	}
	return strings.Join(sorted, ", ")
}

// ProjectNotFoundError reports a project name that matched nothing after a
// fresh catalog load.
type ProjectNotFoundError struct {
	Name      string
	Available []string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project %q not found, available projects: %s", e.Name, formatAvailable(e.Available))
}

// TypeNotFoundError reports a work item type name unknown to a project.
type TypeNotFoundError struct {
	Name       string
	ProjectKey string
	Available  []string
}

func (e *TypeNotFoundError) Error() string {
	return fmt.Sprintf("work item type %q not found in project %s, available types: %s",
		e.Name, e.ProjectKey, formatAvailable(e.Available))
}

// FieldNotFoundError reports a field name or alias unknown to a work item type.
type FieldNotFoundError struct {
	Name       string
	ProjectKey string
	TypeKey    string
	Available  []string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found on type %s in project %s, available fields: %s",
		e.Name, e.TypeKey, e.ProjectKey, formatAvailable(e.Available))
}

// OptionNotFoundError reports an option label unknown to a field.
type OptionNotFoundError struct {
	Label     string
	FieldName string
	Available []string
}

func (e *OptionNotFoundError) Error() string {
	return fmt.Sprintf("option %q not found on field %q, available options: %s",
		e.Label, e.FieldName, formatAvailable(e.Available))
}

// RoleNotFoundError reports a role name unknown to a work item type.
type RoleNotFoundError struct {
	Name      string
	Available []string
}

func (e *RoleNotFoundError) Error() string {
	return fmt.Sprintf("role %q not found, available roles: %s", e.Name, formatAvailable(e.Available))
}

// UserNotFoundError reports an identifier that matched no tenant user.
type UserNotFoundError struct {
	Identifier string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %q not found", e.Identifier)
}
