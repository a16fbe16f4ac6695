package service

// ProjectSummary is one project an agent can address by name.
type ProjectSummary struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// TaskSummary is the condensed view of a work item.
type TaskSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// TaskList is a page of task summaries.
type TaskList struct {
	Items []TaskSummary `json:"items"`
	Total int           `json:"total"`
}

// TaskField is one field of a task detail, with identifiers translated back
// to readable values.
type TaskField struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// TaskDetail is the full view of a work item.
type TaskDetail struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	TypeKey string      `json:"type_key"`
	Fields  []TaskField `json:"fields"`
}

// CreateTaskInput describes a task to create. Project and Type accept
// display names or raw keys; empty values fall back to configured defaults.
type CreateTaskInput struct {
	Project   string
	Type      string
	Name      string
	Fields    map[string]any
	RelatedTo any
}

// ListTasksInput filters the task listing. Status and Priority carry
// option labels (raw option values pass through unchanged); RelatedTo
// accepts a work item ID or name like CreateTaskInput.RelatedTo.
type ListTasksInput struct {
	Project   string
	Type      string
	Name      string
	Owner     string
	Status    []string
	Priority  []string
	RelatedTo any
	Page      int
	PageSize  int
}

// UpdateTaskInput describes field changes to one task.
type UpdateTaskInput struct {
	Project string
	Type    string
	ID      int64
	Fields  map[string]any
}

// BatchUpdateItem is one update within a batch.
type BatchUpdateItem struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields"`
}

// BatchUpdateResult reports the outcome of one update in a batch.
type BatchUpdateResult struct {
	ID    int64  `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
