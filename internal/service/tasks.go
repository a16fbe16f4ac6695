package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/Wulnut/lark-agent/internal/lark"
)

// relatedFieldName is the field a relation reference is written to when the
// work item type does not expose a matching field by name.
const relatedFieldName = "related_to"

// CreateTask creates a work item from readable input and returns its ID.
func (s *Service) CreateTask(ctx context.Context, input CreateTaskInput) (int64, error) {
	if input.Name == "" {
		return 0, fmt.Errorf("task name is required")
	}
	projectKey, typeKey, err := s.resolveScope(ctx, input.Project, input.Type)
	if err != nil {
		return 0, err
	}

	pairs, err := s.translateFields(ctx, projectKey, typeKey, input.Fields, false)
	if err != nil {
		return 0, err
	}

	if input.RelatedTo != nil {
		relatedID, err := s.resolveRelation(ctx, projectKey, input.RelatedTo)
		if err != nil {
			return 0, err
		}
		fieldKey, err := s.fieldKey(ctx, projectKey, typeKey, relatedFieldName)
		if err != nil {
			fieldKey = relatedFieldName
		}
		pairs = append(pairs, lark.FieldValuePair{FieldKey: fieldKey, FieldValue: []any{relatedID}})
	}

	id, err := s.api.CreateWorkItem(ctx, projectKey, typeKey, input.Name, pairs)
	if err != nil {
		return 0, err
	}
	s.logger.Info("task created", "project", projectKey, "type", typeKey, "id", id, "name", input.Name)
	return id, nil
}

// GetTasks lists tasks matching the input filter, condensed to summaries.
// Status, priority, and relation predicates go through the search endpoint;
// plain name and owner listings stay on the cheaper filter endpoint.
func (s *Service) GetTasks(ctx context.Context, input ListTasksInput) (TaskList, error) {
	projectKey, typeKey, err := s.resolveScope(ctx, input.Project, input.Type)
	if err != nil {
		return TaskList{}, err
	}

	page := input.Page
	if page <= 0 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	var ownerKey string
	if input.Owner != "" {
		ownerKey, err = s.meta.UserKey(ctx, input.Owner)
		if err != nil {
			return TaskList{}, err
		}
	}
	statusValues := s.optionList(ctx, projectKey, typeKey, statusFieldKey, input.Status)
	priorityValues := s.optionList(ctx, projectKey, typeKey, priorityFieldKey, input.Priority)
	var relatedID int64
	if input.RelatedTo != nil {
		relatedID, err = s.resolveRelation(ctx, projectKey, input.RelatedTo)
		if err != nil {
			return TaskList{}, err
		}
	}

	var result lark.ListResult
	if len(statusValues) > 0 || len(priorityValues) > 0 || relatedID != 0 {
		group := searchGroup(input.Name, ownerKey, statusValues, priorityValues, relatedID)
		result, err = s.api.SearchWorkItems(ctx, projectKey, typeKey, group, page, pageSize)
	} else {
		filter := lark.FilterRequest{
			WorkItemTypeKeys: []string{typeKey},
			WorkItemName:     input.Name,
			PageNum:          page,
			PageSize:         pageSize,
		}
		if ownerKey != "" {
			filter.UserKeys = []string{ownerKey}
		}
		result, err = s.api.FilterWorkItems(ctx, projectKey, filter)
	}
	if err != nil {
		return TaskList{}, err
	}
	items, err := s.summarize(ctx, projectKey, typeKey, result.Items)
	if err != nil {
		return TaskList{}, err
	}
	return TaskList{Items: items, Total: result.Pagination.Total}, nil
}

// searchGroup assembles the AND conjunction for a predicate listing. Status
// and priority carry resolved option values, related the resolved item ID.
func searchGroup(name, ownerKey string, statusValues, priorityValues []string, relatedID int64) lark.SearchGroup {
	var conditions []lark.SearchCondition
	if name != "" {
		conditions = append(conditions, lark.SearchCondition{ParamKey: "name", Operator: "LIKE", Value: name})
	}
	if ownerKey != "" {
		conditions = append(conditions, lark.SearchCondition{ParamKey: ownerFieldKey, Operator: "in", Value: []string{ownerKey}})
	}
	if len(statusValues) > 0 {
		conditions = append(conditions, lark.SearchCondition{ParamKey: statusFieldKey, Operator: "in", Value: statusValues})
	}
	if len(priorityValues) > 0 {
		conditions = append(conditions, lark.SearchCondition{ParamKey: priorityFieldKey, Operator: "in", Value: priorityValues})
	}
	if relatedID != 0 {
		conditions = append(conditions, lark.SearchCondition{ParamKey: relatedFieldName, Operator: "in", Value: []int64{relatedID}})
	}
	return lark.SearchGroup{Conjunction: "AND", SearchParams: conditions}
}

// GetTaskDetail fetches one task with all fields translated. With an empty
// type the task is looked for across every type the project registers,
// starting with the default.
func (s *Service) GetTaskDetail(ctx context.Context, project, typ string, id int64) (TaskDetail, error) {
	if typ != "" {
		projectKey, typeKey, err := s.resolveScope(ctx, project, typ)
		if err != nil {
			return TaskDetail{}, err
		}
		item, err := s.fetchItem(ctx, projectKey, typeKey, id)
		if err != nil {
			return TaskDetail{}, err
		}
		return s.detailOf(ctx, projectKey, typeKey, item)
	}

	projectKey, defaultTypeKey, err := s.resolveScope(ctx, project, "")
	if err != nil {
		return TaskDetail{}, err
	}
	for _, typeKey := range s.discoveryOrder(ctx, projectKey, defaultTypeKey) {
		item, err := s.fetchItem(ctx, projectKey, typeKey, id)
		if err != nil {
			continue
		}
		return s.detailOf(ctx, projectKey, typeKey, item)
	}
	return TaskDetail{}, fmt.Errorf("work item %d not found in project %s", id, projectKey)
}

// discoveryOrder yields the project's type keys with the preferred one first.
func (s *Service) discoveryOrder(ctx context.Context, projectKey, preferred string) []string {
	order := []string{preferred}
	types, err := s.meta.Types(ctx, projectKey)
	if err != nil {
		return order
	}
	rest := make([]string, 0, len(types))
	for _, key := range types {
		if key != preferred {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// detailExpand asks for the full payload when fetching single items, so
// multi-line text and relation fields come back readable.
var detailExpand = &lark.Expand{NeedMultiText: true, RelationFieldsDetail: true}

func (s *Service) fetchItem(ctx context.Context, projectKey, typeKey string, id int64) (*lark.WorkItem, error) {
	cacheKey := itemCacheKey(projectKey, typeKey, id)
	if item, ok := s.items.Get(cacheKey); ok {
		return &item, nil
	}
	items, err := s.api.QueryWorkItems(ctx, projectKey, typeKey, []int64{id}, detailExpand)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("work item %d not found in %s/%s", id, projectKey, typeKey)
	}
	s.items.Set(cacheKey, items[0])
	return &items[0], nil
}

// UpdateTask applies readable field changes to one task.
func (s *Service) UpdateTask(ctx context.Context, input UpdateTaskInput) error {
	projectKey, typeKey, err := s.resolveScope(ctx, input.Project, input.Type)
	if err != nil {
		return err
	}
	if len(input.Fields) == 0 {
		return fmt.Errorf("no fields to update")
	}

	pairs, err := s.translateFields(ctx, projectKey, typeKey, input.Fields, true)
	if err != nil {
		return err
	}
	if err := s.api.UpdateWorkItem(ctx, projectKey, typeKey, input.ID, pairs); err != nil {
		return err
	}
	s.items.Delete(itemCacheKey(projectKey, typeKey, input.ID))
	s.logger.Info("task updated", "project", projectKey, "type", typeKey, "id", input.ID)
	return nil
}

// BatchUpdateTasks applies updates one by one and reports each outcome. A
// failing item never aborts the rest of the batch.
func (s *Service) BatchUpdateTasks(ctx context.Context, project, typ string, updates []BatchUpdateItem) ([]BatchUpdateResult, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no updates given")
	}
	results := make([]BatchUpdateResult, 0, len(updates))
	for _, u := range updates {
		err := s.UpdateTask(ctx, UpdateTaskInput{Project: project, Type: typ, ID: u.ID, Fields: u.Fields})
		result := BatchUpdateResult{ID: u.ID, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

// DeleteTask removes one task.
func (s *Service) DeleteTask(ctx context.Context, project, typ string, id int64) error {
	projectKey, typeKey, err := s.resolveScope(ctx, project, typ)
	if err != nil {
		return err
	}
	if err := s.api.DeleteWorkItem(ctx, projectKey, typeKey, id); err != nil {
		return err
	}
	s.items.Delete(itemCacheKey(projectKey, typeKey, id))
	s.logger.Info("task deleted", "project", projectKey, "type", typeKey, "id", id)
	return nil
}
