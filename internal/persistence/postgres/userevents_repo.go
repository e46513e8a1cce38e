package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

type userEventsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewUserEventsRepo(db *sqlx.DB, timeout time.Duration) persistence.UserEventsRepo {
	return &userEventsRepo{db: db, timeout: timeout}
}

func (r *userEventsRepo) Insert(ctx context.Context, e domain.UserEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO user_events
		(anon_user_id, session_id, event_type, player_id, club_id, occurred_at, device_type, country_code, props_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.db.ExecContext(ctx, query,
		e.AnonUserID, e.SessionID, e.EventType, e.PlayerID, e.ClubID, e.OccurredAt, e.DeviceType, e.CountryCode, e.PropsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert user event: %w", err)
	}
	return nil
}

func (r *userEventsRepo) InsertBatch(ctx context.Context, events []domain.UserEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(events)/200+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_events
		(anon_user_id, session_id, event_type, player_id, club_id, occurred_at, device_type, country_code, props_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err = stmt.ExecContext(ctx,
			e.AnonUserID, e.SessionID, e.EventType, e.PlayerID, e.ClubID, e.OccurredAt, e.DeviceType, e.CountryCode, e.PropsJSON)
		if err != nil {
			return fmt.Errorf("failed to insert user event in batch: %w", err)
		}
	}

	return tx.Commit()
}

func (r *userEventsRepo) ListForPlayerInWindow(ctx context.Context, playerID string, tr persistence.TimeRange) ([]domain.UserEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, anon_user_id, session_id, event_type, player_id, club_id, occurred_at, device_type, country_code, props_json
		FROM user_events
		WHERE player_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at ASC`

	var events []domain.UserEvent
	if err := r.db.SelectContext(ctx, &events, query, playerID, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list user events for player: %w", err)
	}
	return events, nil
}

func (r *userEventsRepo) CountByTypeInWindow(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT event_type, COUNT(*) as cnt
		FROM user_events
		WHERE player_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		GROUP BY event_type`

	rows, err := r.db.QueryxContext(ctx, query, playerID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to count user events by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event type count: %w", err)
		}
		counts[eventType] = count
	}
	return counts, nil
}

// CooccurringClubViews returns, for a player, how many distinct
// sessions viewed a given club and that player within the same
// session during the window — the raw count that
// user_destination_cooccurrence derives from.
func (r *userEventsRepo) CooccurringClubViews(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT club_sessions.club_id, COUNT(DISTINCT club_sessions.session_id) as cnt
		FROM (
			SELECT DISTINCT session_id FROM user_events
			WHERE player_id = $1 AND event_type IN ('player_view', 'watchlist_add')
			  AND occurred_at >= $2 AND occurred_at < $3
		) player_sessions
		JOIN (
			SELECT session_id, club_id FROM user_events
			WHERE club_id IS NOT NULL AND event_type = 'club_view' AND occurred_at >= $2 AND occurred_at < $3
		) club_sessions ON club_sessions.session_id = player_sessions.session_id
		GROUP BY club_sessions.club_id`

	rows, err := r.db.QueryxContext(ctx, query, playerID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query cooccurring club views: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var clubID string
		var count int64
		if err := rows.Scan(&clubID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan cooccurrence row: %w", err)
		}
		counts[clubID] = count
	}
	return counts, nil
}
