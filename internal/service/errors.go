package service

import (
	"fmt"
	"strings"
)

// RelationMatch is one work item that matched a relation reference.
type RelationMatch struct {
	ID       int64  `json:"id"`
	TypeName string `json:"type_name"`
	Name     string `json:"name"`
}

// AmbiguousRelationError reports a relation reference that matched more than
// one work item. The matches are listed so the caller can retry with an ID.
type AmbiguousRelationError struct {
	Reference string
	Matches   []RelationMatch
}

func (e *AmbiguousRelationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "relation %q matches %d work items:", e.Reference, len(e.Matches))
	for _, m := range e.Matches {
		fmt.Fprintf(&b, " [%s] %s (id %d)", m.TypeName, m.Name, m.ID)
	}
	b.WriteString("; retry with an explicit id")
	return b.String()
}

// RelationNotFoundError reports a relation reference that matched nothing.
type RelationNotFoundError struct {
	Reference string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation %q matched no work item", e.Reference)
}
