package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pveith/trix/pkg/models"
)

const eventColumns = `id, chain_id, block_number, block_hash, tx_hash, log_index,
	registry, event_type, agent_id, timestamp, owner, token_uri, metadata_key,
	metadata_value, client_address, feedback_index, score, tag1, tag2,
	file_uri, file_hash, validator_address, request_hash, response,
	response_uri, response_hash, tag, created_at`

// InsertEvent appends an event row. Duplicate ids are silently ignored so the
// external listener may redeliver freely.
func (s *Store) InsertEvent(ctx context.Context, e models.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID, e.ChainID, e.BlockNumber, e.BlockHash, e.TxHash, e.LogIndex,
		e.Registry, e.EventType, e.AgentID, e.Timestamp, e.Owner, e.TokenURI,
		e.MetadataKey, e.MetadataValue, e.ClientAddress, e.FeedbackIndex,
		e.Score, e.Tag1, e.Tag2, e.FileURI, e.FileHash, e.ValidatorAddress,
		e.RequestHash, e.Response, e.ResponseURI, e.ResponseHash, e.Tag,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent fetches a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return models.Event{}, fmt.Errorf("event %s not found", id)
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// ListUnprocessed returns notifications for events created before the cutoff
// that have no processed-event marker, oldest first. The fallback poller uses
// this to recover events whose push notification was lost.
func (s *Store) ListUnprocessed(ctx context.Context, cutoff time.Time, limit int) ([]models.EventNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.chain_id, e.block_number, e.event_type, e.registry
		FROM events e
		LEFT JOIN processed_events p ON p.event_id = e.id
		WHERE p.event_id IS NULL AND e.created_at < ?
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed events: %w", err)
	}
	defer rows.Close()

	var out []models.EventNotification
	for rows.Next() {
		var n models.EventNotification
		if err := rows.Scan(&n.EventID, &n.ChainID, &n.BlockNumber, &n.EventType, &n.Registry); err != nil {
			return nil, fmt.Errorf("scan unprocessed event: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkProcessed inserts the processed-event marker for eventID. Returns true
// if this call inserted the marker, false if the event was already admitted.
// The uniqueness constraint makes concurrent admissions race-safe with no
// application locking.
func (s *Store) MarkProcessed(ctx context.Context, eventID, instance string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, processed_at, processor_instance)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, time.Now().UTC(), instance)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return n > 0, nil
}

// FinishProcessed records the evaluation stats on an existing marker.
func (s *Store) FinishProcessed(ctx context.Context, eventID string, matched, enqueued int, d time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE processed_events
		SET triggers_matched = ?, actions_enqueued = ?, duration_ms = ?
		WHERE event_id = ?
	`, matched, enqueued, d.Milliseconds(), eventID)
	if err != nil {
		return fmt.Errorf("finish processed event %s: %w", eventID, err)
	}
	return nil
}

// GetMarker returns the processed-event marker for eventID.
func (s *Store) GetMarker(ctx context.Context, eventID string) (models.ProcessedEventMarker, error) {
	var m models.ProcessedEventMarker
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, processed_at, processor_instance, triggers_matched, actions_enqueued, duration_ms
		FROM processed_events WHERE event_id = ?
	`, eventID).Scan(&m.EventID, &m.ProcessedAt, &m.ProcessorInstance, &m.TriggersMatched, &m.ActionsEnqueued, &m.DurationMillis)
	if err == sql.ErrNoRows {
		return models.ProcessedEventMarker{}, fmt.Errorf("marker for event %s not found", eventID)
	}
	if err != nil {
		return models.ProcessedEventMarker{}, fmt.Errorf("get marker %s: %w", eventID, err)
	}
	return m, nil
}

// CountMarkers returns the number of processed-event markers for eventID.
// At most one can exist; exposed for audit queries.
func (s *Store) CountMarkers(ctx context.Context, eventID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_events WHERE event_id = ?`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count markers: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.ChainID, &e.BlockNumber, &e.BlockHash, &e.TxHash, &e.LogIndex,
		&e.Registry, &e.EventType, &e.AgentID, &e.Timestamp, &e.Owner, &e.TokenURI,
		&e.MetadataKey, &e.MetadataValue, &e.ClientAddress, &e.FeedbackIndex,
		&e.Score, &e.Tag1, &e.Tag2, &e.FileURI, &e.FileHash, &e.ValidatorAddress,
		&e.RequestHash, &e.Response, &e.ResponseURI, &e.ResponseHash, &e.Tag,
		&e.CreatedAt,
	)
	return e, err
}
