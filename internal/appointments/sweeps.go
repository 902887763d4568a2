package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careconnect/telehealth-platform/internal/events"
)

// SweepClaim is a row claimed by a scheduler sweep, carrying just enough to
// emit a notification fact.
type SweepClaim struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	ExpertID  uuid.UUID
	StartTime time.Time
}

// ClaimReminderDue atomically stamps the per-audience reminder marker on
// confirmed appointments starting within the lead window and returns the
// claimed rows. The stamp is the claim: a row is claimable exactly once per
// audience, so concurrent sweeps cannot double-send. Dynamic group sessions
// follow their plan's current recurring start, not the stored one, so a
// rescheduled plan moves the reminder with it.
func (s *Store) ClaimReminderDue(ctx context.Context, audience events.Audience, now time.Time, lead time.Duration, limit int32) ([]SweepClaim, error) {
	column := "client_reminder_sent_at"
	if audience == events.AudienceExpert {
		column = "expert_reminder_sent_at"
	}
	query := fmt.Sprintf(`
		UPDATE appointments a
		SET %s = $1, updated_at = $1
		FROM (
			SELECT a2.id, COALESCE(p.recurring_starts_at, a2.start_time) AS starts_at
			FROM appointments a2
			LEFT JOIN plans p ON p.id = a2.plan_id AND a2.session_format = 'one_to_many'
			WHERE a2.status = 'confirmed'
			  AND a2.%s IS NULL
			  AND COALESCE(p.recurring_starts_at, a2.start_time) > $1
			  AND COALESCE(p.recurring_starts_at, a2.start_time) <= $2
			ORDER BY 2
			LIMIT $3
		) due
		WHERE a.id = due.id
		RETURNING a.id, a.client_id, a.expert_id, due.starts_at`, column, column)

	return s.claim(ctx, query, now.UTC(), now.UTC().Add(lead), limit)
}

// ClaimImminent stamps confirmed appointments whose effective start falls
// within the short imminent window and returns them for
// session-about-to-start facts.
func (s *Store) ClaimImminent(ctx context.Context, now time.Time, lead time.Duration, limit int32) ([]SweepClaim, error) {
	query := `
		UPDATE appointments a
		SET imminent_notified_at = $1, updated_at = $1
		FROM (
			SELECT a2.id, COALESCE(p.recurring_starts_at, a2.start_time) AS starts_at
			FROM appointments a2
			LEFT JOIN plans p ON p.id = a2.plan_id AND a2.session_format = 'one_to_many'
			WHERE a2.status = 'confirmed'
			  AND a2.imminent_notified_at IS NULL
			  AND COALESCE(p.recurring_starts_at, a2.start_time) > $1
			  AND COALESCE(p.recurring_starts_at, a2.start_time) <= $2
			ORDER BY 2
			LIMIT $3
		) due
		WHERE a.id = due.id
		RETURNING a.id, a.client_id, a.expert_id, due.starts_at`

	return s.claim(ctx, query, now.UTC(), now.UTC().Add(lead), limit)
}

// CompleteElapsed transitions confirmed appointments whose effective end
// time has passed to completed. Completion is system-driven; actors never
// set it, and nothing completes before its end time.
func (s *Store) CompleteElapsed(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE appointments a
		SET status = 'completed', updated_at = $1
		FROM (
			SELECT a2.id
			FROM appointments a2
			LEFT JOIN plans p ON p.id = a2.plan_id AND a2.session_format = 'one_to_many'
			WHERE a2.status = 'confirmed'
			  AND COALESCE(p.recurring_ends_at, a2.end_time) <= $1
			ORDER BY COALESCE(p.recurring_ends_at, a2.end_time)
			LIMIT $2
		) due
		WHERE a.id = due.id
		RETURNING a.id`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: complete elapsed: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("appointments: scan completed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimStalePending stamps pending-and-unpaid appointments older than the
// cutoff so the expert can be nudged once about each stuck request.
func (s *Store) ClaimStalePending(ctx context.Context, now time.Time, olderThan time.Duration, limit int32) ([]SweepClaim, error) {
	query := `
		UPDATE appointments
		SET stale_notified_at = $1, updated_at = $1
		WHERE id IN (
			SELECT id FROM appointments
			WHERE status = 'pending'
			  AND stale_notified_at IS NULL
			  AND created_at <= $2
			ORDER BY created_at
			LIMIT $3
		)
		RETURNING id, client_id, expert_id, start_time`

	return s.claim(ctx, query, now.UTC(), now.UTC().Add(-olderThan), limit)
}

func (s *Store) claim(ctx context.Context, query string, a1, a2 any, limit int32) ([]SweepClaim, error) {
	rows, err := s.db.Query(ctx, query, a1, a2, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: claim sweep batch: %w", err)
	}
	defer rows.Close()

	var claims []SweepClaim
	for rows.Next() {
		var c SweepClaim
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ExpertID, &c.StartTime); err != nil {
			return nil, fmt.Errorf("appointments: scan sweep claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
