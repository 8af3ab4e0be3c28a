package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// WithTriggerState runs fn against the trigger's analytic state blob inside a
// single transaction. fn receives the previous blob (nil when the trigger has
// never folded an observation) and returns the next blob. Returning an error
// rolls the transaction back, leaving the state untouched.
//
// The per-trigger read-modify-write is the consistency point for stateful
// conditions: folds for the same trigger never interleave.
func (s *Store) WithTriggerState(ctx context.Context, triggerID string, fn func(prev json.RawMessage) (json.RawMessage, error)) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var raw sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT state_data FROM trigger_state WHERE trigger_id = ?`, triggerID).Scan(&raw)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("load trigger state: %w", err)
		}

		var prev json.RawMessage
		if raw.Valid && raw.String != "" {
			prev = json.RawMessage(raw.String)
		}

		next, err := fn(prev)
		if err != nil {
			return err
		}
		if next == nil {
			// Nothing to persist; keep whatever was there.
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO trigger_state (trigger_id, state_data, last_updated)
			VALUES (?, ?, ?)
			ON CONFLICT(trigger_id) DO UPDATE SET
				state_data = excluded.state_data,
				last_updated = excluded.last_updated
		`, triggerID, string(next), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("persist trigger state: %w", err)
		}
		return nil
	})
}

// GetTriggerState returns the current analytic state blob, or nil when the
// trigger has no persisted state.
func (s *Store) GetTriggerState(ctx context.Context, triggerID string) (json.RawMessage, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_data FROM trigger_state WHERE trigger_id = ?`, triggerID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger state: %w", err)
	}
	return json.RawMessage(raw), nil
}
