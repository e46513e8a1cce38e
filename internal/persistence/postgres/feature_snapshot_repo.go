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

type featureSnapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewFeatureSnapshotRepo(db *sqlx.DB, timeout time.Duration) persistence.FeatureSnapshotRepo {
	return &featureSnapshotRepo{db: db, timeout: timeout}
}

// Upsert is unique per (player_id, candidate_club_id, as_of, feature_version),
// making repeated feature builds for the same point in time a no-op
// write rather than an accumulating duplicate.
func (r *featureSnapshotRepo) Upsert(ctx context.Context, f domain.FeatureSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	featuresJSON, err := json.Marshal(f.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO feature_snapshots (player_id, candidate_club_id, as_of, features, feature_version)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (player_id, candidate_club_id, as_of, feature_version) DO UPDATE SET
			features = EXCLUDED.features
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		f.PlayerID, f.CandidateClubID, f.AsOf, featuresJSON, f.FeatureVersion).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert feature snapshot: %w", err)
	}
	return nil
}

func (r *featureSnapshotRepo) Get(ctx context.Context, playerID, candidateClubID string, asOf time.Time) (*domain.FeatureSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `
		SELECT id, player_id, candidate_club_id, as_of, features, feature_version, created_at
		FROM feature_snapshots
		WHERE player_id = $1 AND candidate_club_id = $2 AND as_of = $3
		ORDER BY feature_version DESC LIMIT 1`, playerID, candidateClubID, asOf)

	var f domain.FeatureSnapshot
	var featuresJSON []byte
	err := row.Scan(&f.ID, &f.PlayerID, &f.CandidateClubID, &f.AsOf, &featuresJSON, &f.FeatureVersion, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("feature_snapshot_not_found",
			fmt.Sprintf("no feature snapshot for player %s / club %s at %s", playerID, candidateClubID, asOf))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature snapshot: %w", err)
	}
	if err := json.Unmarshal(featuresJSON, &f.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	return &f, nil
}

var _ persistence.FeatureSnapshotRepo = (*featureSnapshotRepo)(nil)
