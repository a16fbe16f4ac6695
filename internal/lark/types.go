package lark

import "encoding/json"

// envelope is the common response wrapper. The API is inconsistent about
// which pair of code/message keys it uses, so both are accepted.
type envelope struct {
	Code    *int            `json:"code"`
	ErrCode *int            `json:"err_code"`
	Msg     string          `json:"msg"`
	ErrMsg  string          `json:"err_msg"`
	Data    json.RawMessage `json:"data"`
}

// code returns the envelope code regardless of which key carried it, and
// whether any code key was present at all.
func (e *envelope) code() (int, bool) {
	if e.ErrCode != nil {
		return *e.ErrCode, true
	}
	if e.Code != nil {
		return *e.Code, true
	}
	return 0, false
}

func (e *envelope) message() string {
	if e.ErrMsg != "" {
		return e.ErrMsg
	}
	return e.Msg
}

// ProjectDetail describes one project space.
type ProjectDetail struct {
	Name       string `json:"name"`
	SimpleName string `json:"simple_name"`
}

// WorkItemType is one work item type registered in a project.
type WorkItemType struct {
	TypeKey string `json:"type_key"`
	Name    string `json:"name"`
}

// FieldOption is one selectable value of an option-typed field. Children
// carries nested levels for tree-shaped option sets.
type FieldOption struct {
	Label    string        `json:"label"`
	Value    string        `json:"value"`
	Children []FieldOption `json:"children,omitempty"`
}

// FieldDef describes one field of a work item type.
type FieldDef struct {
	FieldKey     string        `json:"field_key"`
	FieldName    string        `json:"field_name"`
	FieldAlias   string        `json:"field_alias,omitempty"`
	FieldTypeKey string        `json:"field_type_key"`
	Options      []FieldOption `json:"options,omitempty"`
}

// FieldValuePair is a single field assignment on a work item.
type FieldValuePair struct {
	FieldKey   string `json:"field_key"`
	FieldValue any    `json:"field_value"`
}

// WorkItem is a work item as returned by query and filter endpoints.
type WorkItem struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	WorkItemTypeKey string           `json:"work_item_type_key"`
	ProjectKey      string           `json:"project_key,omitempty"`
	CreatedAt       int64            `json:"created_at,omitempty"`
	UpdatedAt       int64            `json:"updated_at,omitempty"`
	Fields          []FieldValuePair `json:"fields"`
}

// Field returns the value of the named field key and whether it was present.
func (w *WorkItem) Field(key string) (any, bool) {
	for _, f := range w.Fields {
		if f.FieldKey == key {
			return f.FieldValue, true
		}
	}
	return nil, false
}

// Pagination describes the paging state of a list response.
type Pagination struct {
	Total    int `json:"total"`
	PageNum  int `json:"page_num,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// ListResult is the normalized form of every list-shaped response.
type ListResult struct {
	Items      []WorkItem `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// UserInfo describes one tenant user.
type UserInfo struct {
	UserKey string `json:"user_key"`
	NameCN  string `json:"name_cn,omitempty"`
	NameEN  string `json:"name_en,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Name returns the best displayable name for the user.
func (u *UserInfo) Name() string {
	if u.NameCN != "" {
		return u.NameCN
	}
	if u.NameEN != "" {
		return u.NameEN
	}
	return u.UserKey
}

// FilterRequest is the body of the per-project work item filter endpoint.
type FilterRequest struct {
	WorkItemTypeKeys []string `json:"work_item_type_keys,omitempty"`
	WorkItemName     string   `json:"work_item_name,omitempty"`
	UserKeys         []string `json:"user_keys,omitempty"`
	PageNum          int      `json:"page_num,omitempty"`
	PageSize         int      `json:"page_size,omitempty"`
	Expand           *Expand  `json:"expand,omitempty"`
}

// Expand opts in to extra payload sections on filter and query responses.
type Expand struct {
	NeedWorkflow         bool `json:"need_workflow"`
	NeedMultiText        bool `json:"need_multi_text"`
	RelationFieldsDetail bool `json:"relation_fields_detail"`
}

// SearchCondition is one predicate of a complex search.
type SearchCondition struct {
	ParamKey string `json:"param_key"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// SearchGroup joins conditions with a conjunction.
type SearchGroup struct {
	Conjunction  string            `json:"conjunction"`
	SearchParams []SearchCondition `json:"search_params"`
}
