package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/graphspace/pkg/schema"
)

// AppendActionEvent appends one audit entry and fills in its ID and CreatedAt.
func (s *LibSQLStore) AppendActionEvent(ctx context.Context, ev *schema.ActionEvent) error {
	if ev.Type == "" || ev.ActionID == "" {
		return schema.NewError(schema.ErrCodeValidation, "action event requires type and action id")
	}
	var params any
	if len(ev.Params) > 0 {
		raw, err := json.Marshal(ev.Params)
		if err != nil {
			return fmt.Errorf("marshal event params: %w", err)
		}
		params = string(raw)
	}
	ev.CreatedAt = timeOrNow(ev.CreatedAt)

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO action_events (action_id, instance_id, type, params, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		ev.ActionID, nullStr(ev.InstanceID), ev.Type, params, ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return storeError("append action event", err)
	}
	return nil
}

// ListActionEvents returns audit entries in append order.
func (s *LibSQLStore) ListActionEvents(ctx context.Context, filter EventFilter) ([]*schema.ActionEvent, error) {
	var where []string
	var args []any

	if filter.ActionID != "" {
		where = append(where, "action_id = ?")
		args = append(args, filter.ActionID)
	}
	if filter.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.AfterID)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, action_id, instance_id, type, params, created_at FROM action_events` +
		whereClause(where) + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list action events", err)
	}
	defer rows.Close()
	return scanActionEvents(rows)
}

func scanActionEvents(rows *sql.Rows) ([]*schema.ActionEvent, error) {
	var events []*schema.ActionEvent
	for rows.Next() {
		ev := &schema.ActionEvent{}
		var instanceID, params sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ActionID, &instanceID, &ev.Type, &params, &ev.CreatedAt); err != nil {
			return nil, storeError("scan action event", err)
		}
		ev.InstanceID = instanceID.String
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &ev.Params); err != nil {
				return nil, fmt.Errorf("decode params of event %d: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventLog is a read model over the action audit log.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to answer audit-log queries.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// AppendActionEvent forwards to the store. EventLog satisfies the engine's recorder.
func (el *EventLog) AppendActionEvent(ctx context.Context, ev *schema.ActionEvent) error {
	return el.store.AppendActionEvent(ctx, ev)
}

// Tail returns up to limit events appended after the given id.
func (el *EventLog) Tail(ctx context.Context, afterID int64, limit int) ([]*schema.ActionEvent, error) {
	return el.store.ListActionEvents(ctx, EventFilter{AfterID: afterID, Limit: limit})
}

// InstanceHistory returns the lifecycle of one instance, oldest first.
func (el *EventLog) InstanceHistory(ctx context.Context, instanceID string) ([]*schema.ActionEvent, error) {
	return el.store.ListActionEvents(ctx, EventFilter{InstanceID: instanceID})
}

// ActionCounts tallies events per action id for the given type (all types if empty)
// recorded since the given time (all time if zero).
func (el *EventLog) ActionCounts(ctx context.Context, eventType string, since time.Time) (map[string]int, error) {
	filter := EventFilter{Type: eventType}
	if !since.IsZero() {
		filter.Since = &since
	}
	events, err := el.store.ListActionEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.ActionID]++
	}
	return counts, nil
}
