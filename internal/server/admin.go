package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"clearline/internal/domain"
	"clearline/internal/engine"
	"clearline/internal/engine/auth"
)

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/rules",
		Summary:       "Create assignment rule",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateRuleRequest `json:"body"`
	}) (*struct {
		Body domain.AssignmentRule `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermRuleManage)
		if err != nil {
			return nil, handleError(err)
		}
		rule, err := e.CreateRule(ctx, principal.ActorID, engine.RuleCreateOptions{
			Category:   input.Body.Category,
			UserID:     input.Body.UserID,
			RoleTarget: input.Body.RoleTarget,
			Priority:   input.Body.Priority,
			Active:     input.Body.Active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AssignmentRule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/rules",
		Summary:     "List assignment rules",
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
	}) (*struct {
		Body []domain.AssignmentRule `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermRuleManage); err != nil {
			return nil, handleError(err)
		}
		rules, err := e.Repo.ListRules(ctx, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AssignmentRule `json:"body"`
		}{Body: rules}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-rule",
		Method:      http.MethodPatch,
		Path:        "/rules/{rule_id}",
		Summary:     "Update assignment rule priority or active flag",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RuleID string            `path:"rule_id"`
		Body   UpdateRuleRequest `json:"body"`
	}) (*struct {
		Body domain.AssignmentRule `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermRuleManage)
		if err != nil {
			return nil, handleError(err)
		}
		rule, err := e.UpdateRule(ctx, principal.ActorID, input.RuleID, engine.RulePatch{
			Priority: input.Body.Priority,
			Active:   input.Body.Active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AssignmentRule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-rule",
		Method:      http.MethodDelete,
		Path:        "/rules/{rule_id}",
		Summary:     "Delete assignment rule",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RuleID string `path:"rule_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermRuleManage)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteRule(ctx, principal.ActorID, input.RuleID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermUserManage)
		if err != nil {
			return nil, handleError(err)
		}
		id := ""
		if input.Body.ID != nil {
			id = *input.Body.ID
		}
		u, err := e.CreateUser(ctx, principal.ActorID, id, input.Body.Name, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, input *struct {
		Role string `query:"role"`
	}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermUserManage); err != nil {
			return nil, handleError(err)
		}
		users, err := e.Repo.ListUsers(ctx, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-loads",
		Method:      http.MethodGet,
		Path:        "/users/loads",
		Summary:     "Open task count per user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.UserLoad `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermUserManage); err != nil {
			return nil, handleError(err)
		}
		loads, err := e.Repo.UserLoads(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.UserLoad `json:"body"`
		}{Body: loads}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/users/{user_id}",
		Summary:     "Delete user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermUserManage)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteUser(ctx, principal.ActorID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key",
		Description:   "Returns the raw key once. Only the hash is stored.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermUserManage)
		if err != nil {
			return nil, handleError(err)
		}
		forActor := ""
		if input.Body.ActorID != nil {
			forActor = *input.Body.ActorID
		}
		name := ""
		if input.Body.Name != nil {
			name = *input.Body.Name
		}
		k, raw, err := e.CreateAPIKey(ctx, principal.ActorID, forActor, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, Key: raw, CreatedAt: k.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermUserManage); err != nil {
			return nil, handleError(err)
		}
		keys, err := e.Repo.ListAPIKeys(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{key_id}",
		Summary:     "Revoke API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermUserManage); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "revoked"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermEventRead); err != nil {
			return nil, handleError(err)
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Cursor, input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List audit events for a project",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit"`
		Cursor    int64  `query:"cursor"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermEventRead); err != nil {
			return nil, handleError(err)
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Cursor, input.ProjectID, "", "", "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
