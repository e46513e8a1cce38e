package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

type candidatesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewCandidatesRepo(db *sqlx.DB, timeout time.Duration) persistence.CandidatesRepo {
	return &candidatesRepo{db: db, timeout: timeout}
}

// Upsert is unique per (player_id, as_of, horizon_days), same idiom as
// the composite-key premove upsert this is grounded on: a second
// generation run for the same triple replaces the candidate list
// wholesale rather than merging it.
func (r *candidatesRepo) Upsert(ctx context.Context, c domain.CandidateSet) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sourceCountsJSON, err := json.Marshal(c.SourceCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal source_counts: %w", err)
	}
	candidatesJSON, err := json.Marshal(c.Candidates)
	if err != nil {
		return fmt.Errorf("failed to marshal candidates: %w", err)
	}
	contextJSON, err := json.Marshal(c.PlayerContext)
	if err != nil {
		return fmt.Errorf("failed to marshal player_context: %w", err)
	}

	query := `
		INSERT INTO candidate_sets
		(player_id, as_of, horizon_days, from_club_id, total_candidates, source_counts, candidates, player_context)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (player_id, as_of, horizon_days) DO UPDATE SET
			from_club_id = EXCLUDED.from_club_id,
			total_candidates = EXCLUDED.total_candidates,
			source_counts = EXCLUDED.source_counts,
			candidates = EXCLUDED.candidates,
			player_context = EXCLUDED.player_context
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		c.PlayerID, c.AsOf, c.HorizonDays, c.FromClubID, c.TotalCandidates,
		sourceCountsJSON, candidatesJSON, contextJSON).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate set: %w", err)
	}
	return nil
}

func (r *candidatesRepo) Get(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*domain.CandidateSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, selectCandidateSets+
		` WHERE player_id = $1 AND as_of = $2 AND horizon_days = $3`, playerID, asOf, horizonDays)
	cs, err := scanCandidateSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("candidate_set_not_found", fmt.Sprintf("no candidate set for player %s at %s", playerID, asOf))
	}
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (r *candidatesRepo) LatestForPlayer(ctx context.Context, playerID string, horizonDays int) (*domain.CandidateSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, selectCandidateSets+
		` WHERE player_id = $1 AND horizon_days = $2 ORDER BY as_of DESC LIMIT 1`, playerID, horizonDays)
	cs, err := scanCandidateSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("candidate_set_not_found", fmt.Sprintf("no candidate set for player %s", playerID))
	}
	if err != nil {
		return nil, err
	}
	return cs, nil
}

const selectCandidateSets = `
	SELECT id, player_id, as_of, horizon_days, from_club_id, total_candidates,
	       source_counts, candidates, player_context, created_at
	FROM candidate_sets`

func scanCandidateSet(row *sqlx.Row) (*domain.CandidateSet, error) {
	var cs domain.CandidateSet
	var sourceCountsJSON, candidatesJSON, contextJSON []byte

	err := row.Scan(&cs.ID, &cs.PlayerID, &cs.AsOf, &cs.HorizonDays, &cs.FromClubID, &cs.TotalCandidates,
		&sourceCountsJSON, &candidatesJSON, &contextJSON, &cs.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sourceCountsJSON, &cs.SourceCounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source_counts: %w", err)
	}
	if err := json.Unmarshal(candidatesJSON, &cs.Candidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidates: %w", err)
	}
	if err := json.Unmarshal(contextJSON, &cs.PlayerContext); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player_context: %w", err)
	}
	return &cs, nil
}
