package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProcessedStore records gateway events that were already handled so the
// client verify call and the asynchronous webhook cannot both drive the
// same confirmation.
type ProcessedStore struct {
	db DB
}

// NewProcessedStore creates the dedup store.
func NewProcessedStore(db DB) *ProcessedStore {
	return &ProcessedStore{db: db}
}

// AlreadyProcessed checks if we've seen this gateway event id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, source, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE source = $1 AND event_id = $2`
	var exists int
	if err := s.db.QueryRow(ctx, query, source, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the source, returning false if it
// already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, source, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (source, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, source, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
