package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pveith/trix/pkg/models"
)

// AppendActionResult writes one row of the action audit log. Every dispatch
// attempt produces at least one row; retried attempts produce one row each.
func (s *Store) AppendActionResult(ctx context.Context, r models.ActionResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.ExecutedAt.IsZero() {
		r.ExecutedAt = time.Now().UTC()
	}
	var errStr, resp any
	if r.Error != "" {
		errStr = r.Error
	}
	if r.Response != "" {
		resp = r.Response
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_results
		(id, job_id, trigger_id, event_id, kind, status, duration_ms, retry_count, error, response, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.JobID, r.TriggerID, r.EventID, r.Kind, r.Status,
		r.Duration.Milliseconds(), r.RetryCount, errStr, resp, r.ExecutedAt)
	if err != nil {
		return fmt.Errorf("append action result: %w", err)
	}
	return nil
}

// ListActionResults returns the audit rows for an event, oldest first.
func (s *Store) ListActionResults(ctx context.Context, eventID string) ([]models.ActionResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, trigger_id, event_id, kind, status, duration_ms, retry_count,
		       COALESCE(error, ''), COALESCE(response, ''), executed_at
		FROM action_results
		WHERE event_id = ?
		ORDER BY executed_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list action results: %w", err)
	}
	defer rows.Close()

	var out []models.ActionResult
	for rows.Next() {
		var r models.ActionResult
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.JobID, &r.TriggerID, &r.EventID, &r.Kind, &r.Status,
			&durationMS, &r.RetryCount, &r.Error, &r.Response, &r.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan action result: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTriggerResults returns the most recent audit rows for a trigger, newest
// first, capped at limit.
func (s *Store) ListTriggerResults(ctx context.Context, triggerID string, limit int) ([]models.ActionResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, trigger_id, event_id, kind, status, duration_ms, retry_count,
		       COALESCE(error, ''), COALESCE(response, ''), executed_at
		FROM action_results
		WHERE trigger_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trigger results: %w", err)
	}
	defer rows.Close()

	var out []models.ActionResult
	for rows.Next() {
		var r models.ActionResult
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.JobID, &r.TriggerID, &r.EventID, &r.Kind, &r.Status,
			&durationMS, &r.RetryCount, &r.Error, &r.Response, &r.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan action result: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
