package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"clearline/internal/config"
	"clearline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectCols = `id,customer_name,bl_awb_number,systems_json,activities_json,team_json,team_lead_id,origin_port,destination_port,start_date,end_date,status,priority,customer_id,created_at,updated_at`

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	systems, err := json.Marshal(p.Systems)
	if err != nil {
		return err
	}
	team, err := json.Marshal(p.Team)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.CustomerName, nullable(p.BLAWBNumber), string(systems), nullableStringPtr(p.ActivitiesJSON), string(team),
		nullableStringPtr(p.TeamLeadID), nullable(p.OriginPort), nullable(p.DestinationPort),
		nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate), p.Status, p.Priority,
		nullableStringPtr(p.CustomerID), p.CreatedAt, p.UpdatedAt)
	return err
}

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var blAWB, systemsJSON, activities, teamJSON, teamLead, origin, dest, start, end, customer sql.NullString
	err := scan(&p.ID, &p.CustomerName, &blAWB, &systemsJSON, &activities, &teamJSON, &teamLead,
		&origin, &dest, &start, &end, &p.Status, &p.Priority, &customer, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if blAWB.Valid {
		p.BLAWBNumber = blAWB.String
	}
	if systemsJSON.Valid && systemsJSON.String != "" {
		_ = json.Unmarshal([]byte(systemsJSON.String), &p.Systems)
	}
	if activities.Valid {
		p.ActivitiesJSON = &activities.String
	}
	if teamJSON.Valid && teamJSON.String != "" {
		_ = json.Unmarshal([]byte(teamJSON.String), &p.Team)
	}
	if teamLead.Valid {
		p.TeamLeadID = &teamLead.String
	}
	if origin.Valid {
		p.OriginPort = origin.String
	}
	if dest.Valid {
		p.DestinationPort = dest.String
	}
	if start.Valid {
		p.StartDate = &start.String
	}
	if end.Valid {
		p.EndDate = &end.String
	}
	if customer.Valid {
		p.CustomerID = &customer.String
	}
	return p, nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectCols+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, id string, status, priority *string, now string) error {
	var (
		fields []string
		args   []any
	)
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *priority)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const shipmentCols = `id,project_id,tracking_number,tracking_slug,shipment_number,type,status,consignor,consignee,arrival_date,created_at`

func (r Repo) InsertShipmentTx(ctx context.Context, tx *sql.Tx, s domain.Shipment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO shipments(`+shipmentCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.TrackingNumber, s.TrackingSlug, s.ShipmentNumber, s.Type, s.Status,
		nullable(s.Consignor), nullable(s.Consignee), nullableStringPtr(s.ArrivalDate), s.CreatedAt)
	return err
}

func scanShipmentRow(scan func(dest ...any) error) (domain.Shipment, error) {
	var s domain.Shipment
	var consignor, consignee, arrival sql.NullString
	err := scan(&s.ID, &s.ProjectID, &s.TrackingNumber, &s.TrackingSlug, &s.ShipmentNumber,
		&s.Type, &s.Status, &consignor, &consignee, &arrival, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if consignor.Valid {
		s.Consignor = consignor.String
	}
	if consignee.Valid {
		s.Consignee = consignee.String
	}
	if arrival.Valid {
		s.ArrivalDate = &arrival.String
	}
	return s, nil
}

func (r Repo) GetShipmentByProject(ctx context.Context, projectID string) (domain.Shipment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+shipmentCols+` FROM shipments WHERE project_id=? ORDER BY created_at DESC LIMIT 1`, projectID)
	return scanShipmentRow(row.Scan)
}

func (r Repo) GetShipmentBySlug(ctx context.Context, slug string) (domain.Shipment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+shipmentCols+` FROM shipments WHERE tracking_slug=?`, slug)
	return scanShipmentRow(row.Scan)
}

// InsertTrackingStagesTx bulk-inserts all stage rows in one statement.
func (r Repo) InsertTrackingStagesTx(ctx context.Context, tx *sql.Tx, stages []domain.TrackingStage) error {
	if len(stages) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(stages))
	args := make([]any, 0, len(stages)*11)
	for _, st := range stages {
		placeholders = append(placeholders, "(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args, st.ID, st.ShipmentID, st.StageType, st.Seq, st.Status,
			nullableStringPtr(st.EstimatedStart), nullableStringPtr(st.EstimatedCompletion),
			nullableStringPtr(st.StartedAt), nullableStringPtr(st.CompletedAt),
			boolInt(st.PaymentRequired), boolInt(st.PaymentCompleted))
	}
	query := `INSERT INTO tracking_stages(id,shipment_id,stage_type,seq,status,estimated_start,estimated_completion,started_at,completed_at,payment_required,payment_completed) VALUES ` +
		strings.Join(placeholders, ",")
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

const stageCols = `id,shipment_id,stage_type,seq,status,estimated_start,estimated_completion,started_at,completed_at,payment_required,payment_completed`

func scanStageRow(scan func(dest ...any) error) (domain.TrackingStage, error) {
	var st domain.TrackingStage
	var estStart, estEnd, started, completed sql.NullString
	var payReq, payDone int
	err := scan(&st.ID, &st.ShipmentID, &st.StageType, &st.Seq, &st.Status,
		&estStart, &estEnd, &started, &completed, &payReq, &payDone)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	if err != nil {
		return st, err
	}
	if estStart.Valid {
		st.EstimatedStart = &estStart.String
	}
	if estEnd.Valid {
		st.EstimatedCompletion = &estEnd.String
	}
	if started.Valid {
		st.StartedAt = &started.String
	}
	if completed.Valid {
		st.CompletedAt = &completed.String
	}
	st.PaymentRequired = payReq != 0
	st.PaymentCompleted = payDone != 0
	return st, nil
}

func (r Repo) ListStagesByShipment(ctx context.Context, shipmentID string) ([]domain.TrackingStage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stageCols+` FROM tracking_stages WHERE shipment_id=? ORDER BY seq ASC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TrackingStage
	for rows.Next() {
		st, err := scanStageRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (r Repo) GetStage(ctx context.Context, id string) (domain.TrackingStage, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stageCols+` FROM tracking_stages WHERE id=?`, id)
	return scanStageRow(row.Scan)
}

func (r Repo) UpdateStageTx(ctx context.Context, tx *sql.Tx, st domain.TrackingStage) error {
	res, err := tx.ExecContext(ctx, `UPDATE tracking_stages SET status=?, started_at=?, completed_at=?, payment_required=?, payment_completed=? WHERE id=?`,
		st.Status, nullableStringPtr(st.StartedAt), nullableStringPtr(st.CompletedAt),
		boolInt(st.PaymentRequired), boolInt(st.PaymentCompleted), st.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskCols = `id,project_id,title,category,status,priority,stage_type,assigned_to_json,due_date,linked_activity_json,auto_generated,created_at,updated_at`

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	assigned, err := json.Marshal(t.AssignedTo)
	if err != nil {
		return err
	}
	var linked any
	if t.LinkedActivity != nil {
		b, err := json.Marshal(t.LinkedActivity)
		if err != nil {
			return err
		}
		linked = string(b)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, t.Category, t.Status, t.Priority, nullableStringPtr(t.StageType),
		string(assigned), nullableStringPtr(t.DueDate), linked, boolInt(t.AutoGenerated), t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTaskRow(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var stageType, assignedJSON, due, linkedJSON sql.NullString
	var autoGen int
	err := scan(&t.ID, &t.ProjectID, &t.Title, &t.Category, &t.Status, &t.Priority,
		&stageType, &assignedJSON, &due, &linkedJSON, &autoGen, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if stageType.Valid {
		t.StageType = &stageType.String
	}
	if assignedJSON.Valid && assignedJSON.String != "" {
		_ = json.Unmarshal([]byte(assignedJSON.String), &t.AssignedTo)
	}
	if due.Valid {
		t.DueDate = &due.String
	}
	if linkedJSON.Valid && linkedJSON.String != "" {
		var la domain.LinkedActivity
		if err := json.Unmarshal([]byte(linkedJSON.String), &la); err == nil {
			t.LinkedActivity = &la
		}
	}
	t.AutoGenerated = autoGen != 0
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTaskRow(row.Scan)
}

type TaskFilters struct {
	ProjectID       string
	Status          string
	Category        string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.AssigneeID != "" {
		// assigned_to_json holds a JSON array of user ids.
		clauses = append(clauses, `EXISTS (SELECT 1 FROM json_each(tasks.assigned_to_json) WHERE json_each.value=?)`)
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTasksByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	assigned, err := json.Marshal(t.AssignedTo)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, category=?, status=?, priority=?, stage_type=?, assigned_to_json=?, due_date=?, updated_at=? WHERE id=?`,
		t.Title, t.Category, t.Status, t.Priority, nullableStringPtr(t.StageType), string(assigned),
		nullableStringPtr(t.DueDate), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteGeneratedTasksTx removes auto-generated tasks whose provenance points
// at the project. Manually created tasks survive a sync.
func (r Repo) DeleteGeneratedTasksTx(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE auto_generated=1 AND json_extract(linked_activity_json,'$.projectId')=?`, projectID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a project.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE project_id=?`, projectID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
