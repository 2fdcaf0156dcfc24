// Package events appends audit rows to the event log. Every state change in
// the cascade pipeline records one row inside the same transaction as the
// change itself.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const (
	TypeProjectCreated  = "project.created"
	TypeProjectUpdated  = "project.updated"
	TypeProjectDeleted  = "project.deleted"
	TypeShipmentCreated = "shipment.created"
	TypeStagesCreated   = "stages.created"
	TypeStageUpdated    = "stage.updated"
	TypeTasksGenerated  = "tasks.generated"
	TypeTasksAssigned   = "tasks.assigned"
	TypeTasksSynced     = "tasks.synced"
	TypeTaskUpdated     = "task.updated"
	TypeRuleCreated     = "rule.created"
	TypeRuleUpdated     = "rule.updated"
	TypeRuleDeleted     = "rule.deleted"
	TypeUserCreated     = "user.created"
	TypeUserDeleted     = "user.deleted"
)

type Payload map[string]any

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Append writes one event row. When tx is nil the write goes straight to the DB.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload Payload) error {
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ts := w.now().UTC().Format(time.RFC3339)
	query := `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`
	var pid any
	if projectID != "" {
		pid = projectID
	}
	var eid any
	if entityID != "" {
		eid = entityID
	}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, ts, evtType, pid, entityKind, eid, actorID, string(data))
	} else {
		_, err = w.DB.ExecContext(ctx, query, ts, evtType, pid, entityKind, eid, actorID, string(data))
	}
	return err
}
