package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"clearline/internal/domain"
	"clearline/internal/engine"
	"clearline/internal/engine/auth"
)

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project and run cascade",
		Description:   "Creates the project and, unless skip_cascade is set, its shipment, tracking stages and auto-assigned tasks in one transaction.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body CreateProjectResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermProjectCreate)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.CustomerName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "customer_name is required", nil)
		}
		activities, err := parseActivities(input.Body.Activities)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid activities: "+err.Error(), nil)
		}
		opts := engine.ProjectCreateOptions{
			CustomerName: input.Body.CustomerName,
			Systems:      input.Body.Systems,
			Activities:   activities,
			Team:         input.Body.Team,
			TeamLeadID:   input.Body.TeamLeadID,
			StartDate:    input.Body.StartDate,
			EndDate:      input.Body.EndDate,
			CustomerID:   input.Body.CustomerID,
			SkipCascade:  input.Body.SkipCascade,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.BLAWBNumber != nil {
			opts.BLAWBNumber = *input.Body.BLAWBNumber
		}
		if input.Body.OriginPort != nil {
			opts.OriginPort = *input.Body.OriginPort
		}
		if input.Body.DestinationPort != nil {
			opts.DestinationPort = *input.Body.DestinationPort
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		res, err := e.CreateProject(ctx, principal.ActorID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateProjectResponse `json:"body"`
		}{Body: CreateProjectResponse{Project: res.Project, Cascade: res.Cascade}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermProjectList); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project status summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectStatusResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectStatusResponse `json:"body"`
		}{Body: ProjectStatusResponse{
			ProjectID:  p.ID,
			Status:     p.Status,
			Priority:   p.Priority,
			TaskCounts: counts,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project status or priority",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermProjectUpdate)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.UpdateProject(ctx, principal.ActorID, input.ProjectID, input.Body.Status, input.Body.Priority)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermProjectDelete)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteProject(ctx, principal.ActorID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}
