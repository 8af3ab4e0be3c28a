package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pveith/trix/pkg/models"
)

// ListTriggers returns all enabled triggers for the given registry whose
// chain matches chainID or is the NULL wildcard.
func (s *Store) ListTriggers(ctx context.Context, chainID int64, registry string) ([]models.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, chain_id, registry, enabled, is_stateful,
		       circuit_breaker_config, circuit_breaker_state, created_at, updated_at
		FROM triggers
		WHERE registry = ? AND enabled = 1 AND (chain_id = ? OR chain_id IS NULL)
		ORDER BY created_at ASC, id ASC
	`, registry, chainID)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []models.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTrigger fetches a single trigger by id.
func (s *Store) GetTrigger(ctx context.Context, id string) (models.Trigger, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, chain_id, registry, enabled, is_stateful,
		       circuit_breaker_config, circuit_breaker_state, created_at, updated_at
		FROM triggers WHERE id = ?
	`, id)
	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return models.Trigger{}, fmt.Errorf("trigger %s not found", id)
	}
	if err != nil {
		return models.Trigger{}, fmt.Errorf("get trigger %s: %w", id, err)
	}
	return t, nil
}

// TriggerEnabled re-checks the enabled flag. The dispatcher calls this
// immediately before enqueueing so a trigger disabled mid-flight schedules no
// new work.
func (s *Store) TriggerEnabled(ctx context.Context, id string) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM triggers WHERE id = ?`, id).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil // deleted counts as disabled
	}
	if err != nil {
		return false, fmt.Errorf("check trigger enabled: %w", err)
	}
	return enabled, nil
}

// InsertTrigger writes a trigger definition. Trigger authoring lives outside
// the core; this exists for tooling and tests.
func (s *Store) InsertTrigger(ctx context.Context, t models.Trigger) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	cfgJSON, err := json.Marshal(t.Breaker)
	if err != nil {
		return fmt.Errorf("marshal breaker config: %w", err)
	}
	stateJSON, err := json.Marshal(t.BreakerState)
	if err != nil {
		return fmt.Errorf("marshal breaker state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triggers
		(id, owner_id, name, chain_id, registry, enabled, is_stateful,
		 circuit_breaker_config, circuit_breaker_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OwnerID, t.Name, t.ChainID, t.Registry, t.Enabled, t.Stateful,
		string(cfgJSON), string(stateJSON), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

// SetTriggerEnabled flips the enabled flag; used by tooling and tests.
func (s *Store) SetTriggerEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE triggers SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set trigger enabled: %w", err)
	}
	return nil
}

// InsertCondition writes a condition row for a trigger.
func (s *Store) InsertCondition(ctx context.Context, c models.Condition) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var cfg any
	if len(c.Config) > 0 {
		cfg = string(c.Config)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trigger_conditions (id, trigger_id, kind, field, operator, value, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TriggerID, c.Kind, c.Field, c.Operator, c.Value, cfg, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert condition: %w", err)
	}
	return nil
}

// InsertAction writes an action row for a trigger and returns its assigned id.
func (s *Store) InsertAction(ctx context.Context, a models.Action) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cfg := "{}"
	if len(a.Config) > 0 {
		cfg = string(a.Config)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trigger_actions (trigger_id, kind, priority, config, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.TriggerID, a.Kind, a.Priority, cfg, a.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	return id, nil
}

// ListConditions batch-loads the conditions of the given triggers, grouped by
// trigger id. Two queries total regardless of trigger count.
func (s *Store) ListConditions(ctx context.Context, triggerIDs []string) (map[string][]models.Condition, error) {
	out := make(map[string][]models.Condition)
	if len(triggerIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT id, trigger_id, kind, field, operator, value, config, created_at
		FROM trigger_conditions
		WHERE trigger_id IN (` + placeholders(len(triggerIDs)) + `)
		ORDER BY trigger_id, id`
	rows, err := s.db.QueryContext(ctx, query, idArgs(triggerIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list conditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Condition
		var cfg sql.NullString
		if err := rows.Scan(&c.ID, &c.TriggerID, &c.Kind, &c.Field, &c.Operator, &c.Value, &cfg, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		if cfg.Valid {
			c.Config = json.RawMessage(cfg.String)
		}
		out[c.TriggerID] = append(out[c.TriggerID], c)
	}
	return out, rows.Err()
}

// ListActions batch-loads the actions of the given triggers, grouped by
// trigger id and ordered (priority, id) for deterministic dispatch.
func (s *Store) ListActions(ctx context.Context, triggerIDs []string) (map[string][]models.Action, error) {
	out := make(map[string][]models.Action)
	if len(triggerIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT id, trigger_id, kind, priority, config, created_at
		FROM trigger_actions
		WHERE trigger_id IN (` + placeholders(len(triggerIDs)) + `)
		ORDER BY trigger_id, priority ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, idArgs(triggerIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Action
		var cfg string
		if err := rows.Scan(&a.ID, &a.TriggerID, &a.Kind, &a.Priority, &cfg, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Config = json.RawMessage(cfg)
		out[a.TriggerID] = append(out[a.TriggerID], a)
	}
	return out, rows.Err()
}

// MutateBreaker applies fn to the trigger's breaker state inside a single
// transaction. The read, the transition and the write happen atomically so
// concurrent action completions never lose updates.
func (s *Store) MutateBreaker(ctx context.Context, triggerID string, fn func(cfg models.BreakerConfig, st models.BreakerState) models.BreakerState) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var cfgRaw, stRaw sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT circuit_breaker_config, circuit_breaker_state
			FROM triggers WHERE id = ?
		`, triggerID).Scan(&cfgRaw, &stRaw)
		if err == sql.ErrNoRows {
			return fmt.Errorf("trigger %s not found", triggerID)
		}
		if err != nil {
			return fmt.Errorf("load breaker state: %w", err)
		}

		cfg := models.DefaultBreakerConfig()
		if cfgRaw.Valid && cfgRaw.String != "" {
			if err := json.Unmarshal([]byte(cfgRaw.String), &cfg); err != nil {
				return fmt.Errorf("parse breaker config: %w", err)
			}
		}
		st := models.DefaultBreakerState()
		if stRaw.Valid && stRaw.String != "" {
			if err := json.Unmarshal([]byte(stRaw.String), &st); err != nil {
				return fmt.Errorf("parse breaker state: %w", err)
			}
		}

		next := fn(cfg, st)

		nextJSON, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal breaker state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE triggers SET circuit_breaker_state = ? WHERE id = ?
		`, string(nextJSON), triggerID); err != nil {
			return fmt.Errorf("persist breaker state: %w", err)
		}
		return nil
	})
}

func scanTrigger(row rowScanner) (models.Trigger, error) {
	var t models.Trigger
	var cfgRaw, stRaw sql.NullString
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.ChainID, &t.Registry,
		&t.Enabled, &t.Stateful, &cfgRaw, &stRaw, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Trigger{}, err
	}

	t.Breaker = models.DefaultBreakerConfig()
	if cfgRaw.Valid && cfgRaw.String != "" {
		if err := json.Unmarshal([]byte(cfgRaw.String), &t.Breaker); err != nil {
			return models.Trigger{}, fmt.Errorf("parse breaker config for %s: %w", t.ID, err)
		}
	}
	t.BreakerState = models.DefaultBreakerState()
	if stRaw.Valid && stRaw.String != "" {
		if err := json.Unmarshal([]byte(stRaw.String), &t.BreakerState); err != nil {
			return models.Trigger{}, fmt.Errorf("parse breaker state for %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
