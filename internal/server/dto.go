package server

import (
	"encoding/json"

	"clearline/internal/domain"
	"clearline/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID              *string           `json:"id,omitempty"`
	CustomerName    string            `json:"customer_name"`
	BLAWBNumber     *string           `json:"bl_awb_number,omitempty"`
	Systems         []string          `json:"systems,omitempty"`
	Activities      []json.RawMessage `json:"activities,omitempty"`
	Team            []string          `json:"team,omitempty"`
	TeamLeadID      *string           `json:"team_lead_id,omitempty"`
	OriginPort      *string           `json:"origin_port,omitempty"`
	DestinationPort *string           `json:"destination_port,omitempty"`
	StartDate       *string           `json:"start_date,omitempty" format:"date-time"`
	EndDate         *string           `json:"end_date,omitempty" format:"date-time"`
	Status          *string           `json:"status,omitempty"`
	Priority        *string           `json:"priority,omitempty"`
	CustomerID      *string           `json:"customer_id,omitempty"`
	SkipCascade     bool              `json:"skip_cascade,omitempty"`
}

type UpdateProjectRequest struct {
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

type UpdateStageRequest struct {
	Status           *string `json:"status,omitempty" enum:"PENDING,IN_PROGRESS,COMPLETED,ON_HOLD,CANCELLED"`
	PaymentCompleted *bool   `json:"payment_completed,omitempty"`
}

type UpdateTaskRequest struct {
	Title      *string  `json:"title,omitempty"`
	Status     *string  `json:"status,omitempty"`
	Priority   *string  `json:"priority,omitempty"`
	AssignedTo []string `json:"assigned_to,omitempty"`
	DueDate    *string  `json:"due_date,omitempty" format:"date-time"`
}

type CreateRuleRequest struct {
	Category   string  `json:"category" enum:"DOCUMENTATION,CUSTOMS_DECLARATION,PAYMENT,INSPECTION,RELEASE,DELIVERY,GENERAL"`
	UserID     *string `json:"user_id,omitempty"`
	RoleTarget *string `json:"role_target,omitempty" enum:"ADMIN,MANAGER,CLERK,AGENT,ACCOUNTANT"`
	Priority   int     `json:"priority,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type UpdateRuleRequest struct {
	Priority *int  `json:"priority,omitempty"`
	Active   *bool `json:"active,omitempty"`
}

type CreateUserRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name"`
	Role string  `json:"role" enum:"ADMIN,MANAGER,CLERK,AGENT,ACCOUNTANT"`
}

type CreateAPIKeyRequest struct {
	ActorID *string `json:"actor_id,omitempty"`
	Name    *string `json:"name,omitempty"`
}

// Response payloads

type CreateProjectResponse struct {
	Project domain.Project       `json:"project"`
	Cascade engine.CascadeResult `json:"cascade"`
}

type ShipmentResponse struct {
	Shipment domain.Shipment        `json:"shipment"`
	Stages   []domain.TrackingStage `json:"stages"`
}

// TrackingResponse is the public tracking-page view, keyed by slug. It hides
// project internals.
type TrackingResponse struct {
	TrackingNumber string                `json:"tracking_number"`
	ShipmentNumber string                `json:"shipment_number"`
	Type           string                `json:"type"`
	Status         string                `json:"status"`
	Stages         []TrackingStagePublic `json:"stages"`
}

type TrackingStagePublic struct {
	StageType           string  `json:"stage_type"`
	Status              string  `json:"status"`
	EstimatedCompletion *string `json:"estimated_completion,omitempty" format:"date-time"`
	CompletedAt         *string `json:"completed_at,omitempty" format:"date-time"`
}

type ProjectStatusResponse struct {
	ProjectID  string         `json:"project_id"`
	Status     string         `json:"status"`
	Priority   string         `json:"priority"`
	TaskCounts map[string]int `json:"task_counts"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MeResponse struct {
	ActorID     string   `json:"actor_id"`
	Source      string   `json:"source"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// parseActivities decodes raw activity payloads, accepting both field-name
// schemes.
func parseActivities(raw []json.RawMessage) ([]engine.Activity, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	acts := make([]engine.Activity, 0, len(raw))
	for _, r := range raw {
		var a engine.Activity
		if err := json.Unmarshal(r, &a); err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, nil
}

func trackingResponse(s domain.Shipment, stages []domain.TrackingStage) TrackingResponse {
	pub := make([]TrackingStagePublic, 0, len(stages))
	for _, st := range stages {
		pub = append(pub, TrackingStagePublic{
			StageType:           st.StageType,
			Status:              st.Status,
			EstimatedCompletion: st.EstimatedCompletion,
			CompletedAt:         st.CompletedAt,
		})
	}
	return TrackingResponse{
		TrackingNumber: s.TrackingNumber,
		ShipmentNumber: s.ShipmentNumber,
		Type:           s.Type,
		Status:         s.Status,
		Stages:         pub,
	}
}
