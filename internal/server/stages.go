package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"clearline/internal/domain"
	"clearline/internal/engine"
	"clearline/internal/engine/auth"
)

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-project-shipment",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/shipment",
		Summary:     "Get project shipment and stages",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ShipmentResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetShipmentByProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		stages, err := e.Repo.ListStagesByShipment(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShipmentResponse `json:"body"`
		}{Body: ShipmentResponse{Shipment: s, Stages: stages}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-stages",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stages",
		Summary:     "List tracking stages for a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.TrackingStage `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetShipmentByProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		stages, err := e.Repo.ListStagesByShipment(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TrackingStage `json:"body"`
		}{Body: stages}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage",
		Method:      http.MethodPatch,
		Path:        "/stages/{stage_id}",
		Summary:     "Update tracking stage",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		StageID string             `path:"stage_id"`
		Body    UpdateStageRequest `json:"body"`
	}) (*struct {
		Body domain.TrackingStage `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, e, auth.PermStageUpdate)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.UpdateStage(ctx, principal.ActorID, input.StageID, engine.StagePatch{
			Status:           input.Body.Status,
			PaymentCompleted: input.Body.PaymentCompleted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TrackingStage `json:"body"`
		}{Body: st}, nil
	})
}

// registerTracking exposes the unauthenticated public tracking page.
func registerTracking(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "track-shipment",
		Method:      http.MethodGet,
		Path:        "/tracking/{slug}",
		Summary:     "Public shipment tracking by slug",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug string `path:"slug"`
	}) (*struct {
		Body TrackingResponse `json:"body"`
	}, error) {
		s, err := e.Repo.GetShipmentBySlug(ctx, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		stages, err := e.Repo.ListStagesByShipment(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TrackingResponse `json:"body"`
		}{Body: trackingResponse(s, stages)}, nil
	})
}
