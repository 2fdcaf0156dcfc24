package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"clearline/internal/domain"
	"clearline/internal/engine"
	"clearline/internal/engine/auth"
	"clearline/internal/repo"
)

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Status    string `query:"status"`
		Category  string `query:"category"`
		Assignee  string `query:"assignee"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermTaskRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			ProjectID:  input.ProjectID,
			Status:     input.Status,
			Category:   input.Category,
			AssigneeID: input.Assignee,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks for a project",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status"`
		Category  string `query:"category"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermTaskRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			ProjectID: input.ProjectID,
			Status:    input.Status,
			Category:  input.Category,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermTaskRead); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermTaskUpdate)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.UpdateTask(ctx, principal.ActorID, input.TaskID, engine.TaskPatch{
			Title:      input.Body.Title,
			Status:     input.Body.Status,
			Priority:   input.Body.Priority,
			AssignedTo: input.Body.AssignedTo,
			DueDate:    input.Body.DueDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stage-catalog",
		Method:      http.MethodGet,
		Path:        "/catalog/{shipment_type}",
		Summary:     "Clearance stage catalog",
		Description: "Suggested task names per clearance stage for a shipment type. Useful when composing a project's activities list.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ShipmentType string `path:"shipment_type" enum:"IMPORT,EXPORT"`
	}) (*struct {
		Body map[string][]string `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermTaskRead); err != nil {
			return nil, handleError(err)
		}
		catalog, ok := engine.StageCatalog[input.ShipmentType]
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown shipment type", nil)
		}
		return &struct {
			Body map[string][]string `json:"body"`
		}{Body: catalog}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-project-tasks",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/sync",
		Summary:     "Regenerate auto-generated tasks",
		Description: "Deletes auto-generated tasks linked to this project and recreates them from the current activities. Idempotent.",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.SyncResult `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermTaskSync)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.SyncTasks(ctx, principal.ActorID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SyncResult `json:"body"`
		}{Body: res}, nil
	})
}
