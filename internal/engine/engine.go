// Package engine implements the project cascade. Creating a clearance
// project fans out, inside one transaction, into a tracked shipment, its
// fixed stage lifecycle, materialized tasks and resolved assignees.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clearline/internal/config"
	"clearline/internal/domain"
	"clearline/internal/events"
	"clearline/internal/repo"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = repo.ErrNotFound
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

// New wires an Engine over an open database.
func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// configFor prefers a stored per-project config, then the engine-level one,
// then built-in defaults.
func (e Engine) configFor(ctx context.Context, projectID string) *config.Config {
	if cfg, err := e.Repo.GetProjectConfig(ctx, projectID); err == nil {
		return cfg
	}
	if e.Config != nil {
		return e.Config
	}
	return config.Default(projectID)
}

type ProjectCreateOptions struct {
	ID              string
	CustomerName    string
	BLAWBNumber     string
	Systems         []string
	Activities      []Activity
	Team            []string
	TeamLeadID      *string
	OriginPort      string
	DestinationPort string
	StartDate       *string
	EndDate         *string
	Status          string
	Priority        string
	CustomerID      *string
	SkipCascade     bool
}

// CascadeResult summarizes what one cascade run produced.
type CascadeResult struct {
	Shipment      *domain.Shipment    `json:"shipment,omitempty"`
	StagesCreated int                 `json:"stages_created"`
	TasksCreated  int                 `json:"tasks_created"`
	TasksAssigned int                 `json:"tasks_assigned"`
	Assignments   []domain.Assignment `json:"assignments,omitempty"`
	Message       string              `json:"message,omitempty"`
}

type CreateProjectResult struct {
	Project domain.Project `json:"project"`
	Cascade CascadeResult  `json:"cascade"`
}

// CreateProject inserts the project and, unless skipCascade is set, runs the
// full cascade. Everything happens in one all-or-nothing transaction.
func (e Engine) CreateProject(ctx context.Context, actorID string, opts ProjectCreateOptions) (CreateProjectResult, error) {
	var res CreateProjectResult
	if opts.CustomerName == "" {
		return res, fmt.Errorf("%w: customer_name is required", ErrValidation)
	}
	if opts.StartDate != nil && opts.EndDate != nil {
		start, err1 := time.Parse(time.RFC3339, *opts.StartDate)
		end, err2 := time.Parse(time.RFC3339, *opts.EndDate)
		if err1 == nil && err2 == nil && end.Before(start) {
			return res, fmt.Errorf("%w: end_date before start_date", ErrValidation)
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:              opts.ID,
		CustomerName:    opts.CustomerName,
		BLAWBNumber:     opts.BLAWBNumber,
		Systems:         opts.Systems,
		Team:            opts.Team,
		TeamLeadID:      opts.TeamLeadID,
		OriginPort:      opts.OriginPort,
		DestinationPort: opts.DestinationPort,
		StartDate:       opts.StartDate,
		EndDate:         opts.EndDate,
		Status:          domain.ParseStatus(opts.Status),
		Priority:        domain.ParsePriority(opts.Priority),
		CustomerID:      opts.CustomerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if len(opts.Activities) > 0 {
		raw, err := json.Marshal(opts.Activities)
		if err != nil {
			return res, err
		}
		s := string(raw)
		p.ActivitiesJSON = &s
	}

	cfg := e.configFor(ctx, p.ID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectCreated, p.ID, "project", p.ID, actorID, events.Payload{
		"customer_name": p.CustomerName,
		"skip_cascade":  opts.SkipCascade,
	}); err != nil {
		return res, err
	}

	res.Project = p
	if opts.SkipCascade {
		res.Cascade.Message = "Cascade skipped"
		return res, tx.Commit()
	}

	cascade, err := e.runCascadeTx(ctx, tx, p, cfg, actorID, opts.Activities)
	if err != nil {
		return res, err
	}
	res.Cascade = cascade
	return res, tx.Commit()
}

// runCascadeTx sequences shipment creation, task materialization and
// assignment resolution. Any error aborts the whole transaction.
func (e Engine) runCascadeTx(ctx context.Context, tx *sql.Tx, p domain.Project, cfg *config.Config, actorID string, activities []Activity) (CascadeResult, error) {
	var res CascadeResult

	shipment, stageCount, err := e.createShipmentTx(ctx, tx, p, cfg)
	if err != nil {
		return res, err
	}
	res.Shipment = &shipment
	res.StagesCreated = stageCount
	if err := e.Events.Append(ctx, tx, events.TypeShipmentCreated, p.ID, "shipment", shipment.ID, actorID, events.Payload{
		"tracking_number": shipment.TrackingNumber,
		"type":            shipment.Type,
	}); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeStagesCreated, p.ID, "shipment", shipment.ID, actorID, events.Payload{
		"count": stageCount,
	}); err != nil {
		return res, err
	}

	tasks := e.materializeTasks(p, activities)
	for _, t := range tasks {
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return res, err
		}
	}
	res.TasksCreated = len(tasks)
	if len(tasks) == 0 {
		res.Message = "No tasks generated"
		return res, nil
	}
	if err := e.Events.Append(ctx, tx, events.TypeTasksGenerated, p.ID, "project", p.ID, actorID, events.Payload{
		"count": len(tasks),
	}); err != nil {
		return res, err
	}

	assignments, assigned, err := e.resolveAssignmentsTx(ctx, tx, p, tasks, cfg)
	if err != nil {
		return res, err
	}
	res.Assignments = assignments
	res.TasksAssigned = assigned
	if err := e.Events.Append(ctx, tx, events.TypeTasksAssigned, p.ID, "project", p.ID, actorID, events.Payload{
		"assigned": assigned,
		"of":       len(tasks),
	}); err != nil {
		return res, err
	}
	return res, nil
}

// SyncResult summarizes one task regeneration run.
type SyncResult struct {
	TasksDeleted  int                 `json:"tasks_deleted"`
	TasksCreated  int                 `json:"tasks_created"`
	TasksAssigned int                 `json:"tasks_assigned"`
	Assignments   []domain.Assignment `json:"assignments,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// SyncTasks deletes every auto-generated task whose provenance points at the
// project and rebuilds them from the current activities. Running it twice
// back to back lands on the same task set.
func (e Engine) SyncTasks(ctx context.Context, actorID, projectID string) (SyncResult, error) {
	var res SyncResult

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return res, err
	}
	activities, err := ParseActivities(p.ActivitiesJSON)
	if err != nil {
		return res, fmt.Errorf("%w: activities: %v", ErrValidation, err)
	}

	deleted, err := e.Repo.DeleteGeneratedTasksTx(ctx, tx, projectID)
	if err != nil {
		return res, err
	}
	res.TasksDeleted = deleted

	cfg := e.configFor(ctx, projectID)
	tasks := e.materializeTasks(p, activities)
	for _, t := range tasks {
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return res, err
		}
	}
	res.TasksCreated = len(tasks)

	if len(tasks) > 0 {
		assignments, assigned, err := e.resolveAssignmentsTx(ctx, tx, p, tasks, cfg)
		if err != nil {
			return res, err
		}
		res.Assignments = assignments
		res.TasksAssigned = assigned
	} else {
		res.Message = "No tasks generated"
	}

	if err := e.Events.Append(ctx, tx, events.TypeTasksSynced, projectID, "project", projectID, actorID, events.Payload{
		"deleted": deleted,
		"created": len(tasks),
	}); err != nil {
		return res, err
	}
	return res, tx.Commit()
}

// UpdateProject patches status and priority. Unknown values fall back to the
// defaults rather than erroring.
func (e Engine) UpdateProject(ctx context.Context, actorID, id string, status, priority *string) (domain.Project, error) {
	if status != nil {
		s := domain.ParseStatus(*status)
		status = &s
	}
	if priority != nil {
		pr := domain.ParsePriority(*priority)
		priority = &pr
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, id, status, priority, now); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	err = e.Events.Append(ctx, nil, events.TypeProjectUpdated, id, "project", id, actorID, events.Payload{
		"status":   p.Status,
		"priority": p.Priority,
	})
	return p, err
}

// DeleteProject removes the project row. Shipments, stages and tasks go with
// it through foreign keys; this is the only deletion cascade in the system.
func (e Engine) DeleteProject(ctx context.Context, actorID, id string) error {
	if err := e.Repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	return e.Events.Append(ctx, nil, events.TypeProjectDeleted, id, "project", id, actorID, nil)
}

type StagePatch struct {
	Status           *string
	PaymentCompleted *bool
}

// UpdateStage moves a tracking stage through its lifecycle, stamping
// started/completed times on the matching transitions.
func (e Engine) UpdateStage(ctx context.Context, actorID, stageID string, patch StagePatch) (domain.TrackingStage, error) {
	var out domain.TrackingStage

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	st, err := e.Repo.GetStage(ctx, stageID)
	if err != nil {
		return out, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if patch.Status != nil {
		next := domain.ParseStatus(*patch.Status)
		if next == domain.StatusInProgress && st.StartedAt == nil {
			st.StartedAt = &now
		}
		if next == domain.StatusCompleted && st.CompletedAt == nil {
			st.CompletedAt = &now
		}
		st.Status = next
	}
	if patch.PaymentCompleted != nil {
		if !st.PaymentRequired && *patch.PaymentCompleted {
			return out, fmt.Errorf("%w: stage requires no payment", ErrValidation)
		}
		st.PaymentCompleted = *patch.PaymentCompleted
	}
	if err := e.Repo.UpdateStageTx(ctx, tx, st); err != nil {
		return out, err
	}

	shipment, err := e.shipmentProjectTx(ctx, tx, st.ShipmentID)
	if err != nil {
		return out, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeStageUpdated, shipment, "stage", st.ID, actorID, events.Payload{
		"stage_type": st.StageType,
		"status":     st.Status,
	}); err != nil {
		return out, err
	}
	return st, tx.Commit()
}

func (e Engine) shipmentProjectTx(ctx context.Context, tx *sql.Tx, shipmentID string) (string, error) {
	var projectID string
	err := tx.QueryRowContext(ctx, `SELECT project_id FROM shipments WHERE id=?`, shipmentID).Scan(&projectID)
	return projectID, err
}

type TaskPatch struct {
	Title      *string
	Status     *string
	Priority   *string
	AssignedTo []string
	DueDate    *string
}

func (e Engine) UpdateTask(ctx context.Context, actorID, taskID string, patch TaskPatch) (domain.Task, error) {
	var out domain.Task

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return out, err
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Status != nil {
		t.Status = domain.ParseStatus(*patch.Status)
	}
	if patch.Priority != nil {
		t.Priority = domain.ParsePriority(*patch.Priority)
	}
	if patch.AssignedTo != nil {
		t.AssignedTo = patch.AssignedTo
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return out, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskUpdated, t.ProjectID, "task", t.ID, actorID, events.Payload{
		"status": t.Status,
	}); err != nil {
		return out, err
	}
	return t, tx.Commit()
}

type RuleCreateOptions struct {
	Category   string
	UserID     *string
	RoleTarget *string
	Priority   int
	Active     *bool
}

func (e Engine) CreateRule(ctx context.Context, actorID string, opts RuleCreateOptions) (domain.AssignmentRule, error) {
	var rule domain.AssignmentRule
	valid := false
	for _, c := range domain.Categories {
		if opts.Category == c {
			valid = true
			break
		}
	}
	if !valid {
		return rule, fmt.Errorf("%w: unknown category %q", ErrValidation, opts.Category)
	}
	hasUser := opts.UserID != nil && *opts.UserID != ""
	hasRole := opts.RoleTarget != nil && *opts.RoleTarget != ""
	if hasUser == hasRole {
		return rule, fmt.Errorf("%w: exactly one of user_id or role_target is required", ErrValidation)
	}
	if hasUser {
		if _, err := e.Repo.GetUser(ctx, *opts.UserID); err != nil {
			if err == repo.ErrNotFound {
				return rule, fmt.Errorf("%w: user %s not found", ErrValidation, *opts.UserID)
			}
			return rule, err
		}
	}

	active := true
	if opts.Active != nil {
		active = *opts.Active
	}
	rule = domain.AssignmentRule{
		ID:         uuid.NewString(),
		Category:   opts.Category,
		UserID:     opts.UserID,
		RoleTarget: opts.RoleTarget,
		Priority:   opts.Priority,
		Active:     active,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertRule(ctx, rule); err != nil {
		return rule, err
	}
	err := e.Events.Append(ctx, nil, events.TypeRuleCreated, "", "rule", rule.ID, actorID, events.Payload{
		"category": rule.Category,
	})
	return rule, err
}

type RulePatch struct {
	Priority *int
	Active   *bool
}

// UpdateRule tunes an existing rule's priority or active flag. Retargeting a
// rule means deleting and recreating it.
func (e Engine) UpdateRule(ctx context.Context, actorID, id string, patch RulePatch) (domain.AssignmentRule, error) {
	rule, err := e.Repo.GetRule(ctx, id)
	if err != nil {
		return rule, err
	}
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}
	if patch.Active != nil {
		rule.Active = *patch.Active
	}
	if err := e.Repo.UpdateRule(ctx, rule); err != nil {
		return rule, err
	}
	err = e.Events.Append(ctx, nil, events.TypeRuleUpdated, "", "rule", rule.ID, actorID, events.Payload{
		"priority": rule.Priority,
		"active":   rule.Active,
	})
	return rule, err
}

func (e Engine) DeleteRule(ctx context.Context, actorID, id string) error {
	if err := e.Repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	return e.Events.Append(ctx, nil, events.TypeRuleDeleted, "", "rule", id, actorID, nil)
}

func (e Engine) CreateUser(ctx context.Context, actorID, id, name, role string) (domain.User, error) {
	var u domain.User
	validRole := false
	for _, r := range []string{domain.RoleAdmin, domain.RoleManager, domain.RoleClerk, domain.RoleAgent, domain.RoleAccountant} {
		if role == r {
			validRole = true
			break
		}
	}
	if !validRole {
		return u, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if name == "" {
		return u, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if id == "" {
		id = uuid.NewString()
	}
	u = domain.User{ID: id, Name: name, Role: role, CreatedAt: e.now().UTC().Format(time.RFC3339)}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return u, err
	}
	err := e.Events.Append(ctx, nil, events.TypeUserCreated, "", "user", u.ID, actorID, events.Payload{
		"role": u.Role,
	})
	return u, err
}

func (e Engine) DeleteUser(ctx context.Context, actorID, id string) error {
	if err := e.Repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	return e.Events.Append(ctx, nil, events.TypeUserDeleted, "", "user", id, actorID, nil)
}

// CreateAPIKey mints a raw key and stores only its hash. The raw key is
// returned once and cannot be recovered.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, forActor, name string) (domain.APIKey, string, error) {
	if forActor == "" {
		forActor = actorID
	}
	raw := "cl_" + uuid.NewString()
	k := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   forActor,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return k, "", err
	}
	return k, raw, nil
}
