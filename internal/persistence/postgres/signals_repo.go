package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalsRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

func (r *signalsRepo) Insert(ctx context.Context, s domain.SignalEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := s.Validate(); err != nil {
		return apperr.Validation("invalid_signal_event", err.Error())
	}

	query := `
		INSERT INTO signal_events
		(entity_type, player_id, club_id, signal_type, value_num, value_text, value_json,
		 source, source_id, confidence, observed_at, effective_from, effective_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.db.ExecContext(ctx, query,
		s.EntityType, s.PlayerID, s.ClubID, s.SignalType, s.Num, s.Text, s.JSON,
		s.Source, s.SourceID, s.Confidence, s.ObservedAt, s.EffectiveFrom, s.EffectiveTo)
	if err != nil {
		return fmt.Errorf("failed to insert signal event: %w", err)
	}
	return nil
}

func (r *signalsRepo) InsertBatch(ctx context.Context, signals []domain.SignalEvent) error {
	if len(signals) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(signals)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_events
		(entity_type, player_id, club_id, signal_type, value_num, value_text, value_json,
		 source, source_id, confidence, observed_at, effective_from, effective_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range signals {
		if err := s.Validate(); err != nil {
			return apperr.Validation("invalid_signal_event", err.Error())
		}
		_, err = stmt.ExecContext(ctx,
			s.EntityType, s.PlayerID, s.ClubID, s.SignalType, s.Num, s.Text, s.JSON,
			s.Source, s.SourceID, s.Confidence, s.ObservedAt, s.EffectiveFrom, s.EffectiveTo)
		if err != nil {
			return fmt.Errorf("failed to insert signal event in batch: %w", err)
		}
	}

	return tx.Commit()
}

// CandidatesAsOf returns every row observed at or before asOf for the
// given entity/signal_type, without itself applying the effective_to
// half of the predicate — HoldsAt (internal/domain) and the choke
// point in internal/timetravel own that decision so it is made in
// exactly one place.
func (r *signalsRepo) CandidatesAsOf(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, signalType domain.SignalType, asOf time.Time) ([]domain.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectSignalEvents + `
		WHERE entity_type = $1 AND signal_type = $2 AND observed_at <= $3
		  AND effective_from <= $3
		  AND (player_id = $4 OR ($4 IS NULL AND player_id IS NULL))
		  AND (club_id = $5 OR ($5 IS NULL AND club_id IS NULL))
		ORDER BY effective_from DESC, observed_at DESC`

	var rows []domain.SignalEvent
	if err := r.db.SelectContext(ctx, &rows, query, entityType, signalType, asOf, playerID, clubID); err != nil {
		return nil, fmt.Errorf("failed to query signal candidates: %w", err)
	}
	return rows, nil
}

func (r *signalsRepo) ListForEntityInWindow(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, tr persistence.TimeRange) ([]domain.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectSignalEvents + `
		WHERE entity_type = $1
		  AND (player_id = $2 OR ($2 IS NULL AND player_id IS NULL))
		  AND (club_id = $3 OR ($3 IS NULL AND club_id IS NULL))
		  AND observed_at >= $4 AND observed_at < $5
		ORDER BY observed_at ASC`

	var rows []domain.SignalEvent
	if err := r.db.SelectContext(ctx, &rows, query, entityType, playerID, clubID, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list signals for entity in window: %w", err)
	}
	return rows, nil
}

func (r *signalsRepo) ListByTypeInWindow(ctx context.Context, signalType domain.SignalType, tr persistence.TimeRange) ([]domain.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectSignalEvents + ` WHERE signal_type = $1 AND observed_at >= $2 AND observed_at < $3 ORDER BY observed_at ASC`

	var rows []domain.SignalEvent
	if err := r.db.SelectContext(ctx, &rows, query, signalType, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list signals by type in window: %w", err)
	}
	return rows, nil
}

const selectSignalEvents = `
	SELECT id, entity_type, player_id, club_id, signal_type, value_num, value_text, value_json,
	       source, source_id, confidence, observed_at, effective_from, effective_to, created_at
	FROM signal_events`
