package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

type predictionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPredictionsRepo(db *sqlx.DB, timeout time.Duration) persistence.PredictionsRepo {
	return &predictionsRepo{db: db, timeout: timeout}
}

// Insert appends a PredictionSnapshot. snapshot_id is the primary key;
// a collision (two snapshots for the same player, destination and
// horizon landing on the same microsecond — see DESIGN.md OQ3)
// surfaces as Conflict rather than silently overwriting an existing
// scored row.
func (r *predictionsRepo) Insert(ctx context.Context, p domain.PredictionSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := p.Validate(); err != nil {
		return apperr.Validation("invalid_prediction_snapshot", err.Error())
	}

	query := `
		INSERT INTO prediction_snapshots
		(snapshot_id, model_version, model_name, player_id, from_club_id, to_club_id,
		 horizon_days, probability, drivers_json, features_json, as_of, window_start, window_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.db.ExecContext(ctx, query,
		p.SnapshotID, p.ModelVersion, p.ModelName, p.PlayerID, p.FromClubID, p.ToClubID,
		p.HorizonDays, p.Probability, p.DriversJSON, p.FeaturesJSON, p.AsOf, p.WindowStart, p.WindowEnd)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("snapshot_id_exists", fmt.Sprintf("prediction snapshot %s already exists", p.SnapshotID))
		}
		return fmt.Errorf("failed to insert prediction snapshot: %w", err)
	}
	return nil
}

func (r *predictionsRepo) GetBySnapshotID(ctx context.Context, snapshotID string) (*domain.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var p domain.PredictionSnapshot
	err := r.db.GetContext(ctx, &p, selectPredictionSnapshots+` WHERE snapshot_id = $1`, snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("snapshot_not_found", fmt.Sprintf("prediction snapshot %s not found", snapshotID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction snapshot: %w", err)
	}
	return &p, nil
}

// LatestForPlayer returns the max-as_of row for the given (player,
// to_club, horizon) triple; toClubID nil means "any destination".
func (r *predictionsRepo) LatestForPlayer(ctx context.Context, playerID string, toClubID *string, horizonDays int) (*domain.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectPredictionSnapshots + `
		WHERE player_id = $1 AND horizon_days = $2
		  AND (to_club_id = $3 OR ($3 IS NULL AND to_club_id IS NULL))
		ORDER BY as_of DESC LIMIT 1`

	var p domain.PredictionSnapshot
	err := r.db.GetContext(ctx, &p, query, playerID, horizonDays, toClubID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no_prediction", fmt.Sprintf("no prediction snapshot for player %s", playerID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest prediction: %w", err)
	}
	return &p, nil
}

func (r *predictionsRepo) ListForPlayer(ctx context.Context, playerID string, limit int) ([]domain.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []domain.PredictionSnapshot
	query := selectPredictionSnapshots + ` WHERE player_id = $1 ORDER BY as_of DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, playerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list predictions for player: %w", err)
	}
	return rows, nil
}

func (r *predictionsRepo) TopByProbability(ctx context.Context, horizonDays int, asOf time.Time, limit int) ([]domain.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT DISTINCT ON (player_id, to_club_id) ` + predictionColumns + `
		FROM prediction_snapshots
		WHERE horizon_days = $1 AND as_of <= $2
		ORDER BY player_id, to_club_id, as_of DESC`

	var all []domain.PredictionSnapshot
	if err := r.db.SelectContext(ctx, &all, query, horizonDays, asOf); err != nil {
		return nil, fmt.Errorf("failed to query top predictions: %w", err)
	}

	// DISTINCT ON already gives us the latest row per (player, to_club);
	// re-sort by probability and cap to limit in Go since Postgres can't
	// ORDER BY an aggregate of a DISTINCT ON result in the same query
	// without a subquery — this keeps the SQL simple and auditable.
	sort.Slice(all, func(i, j int) bool { return all[i].Probability > all[j].Probability })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListLatestFromClub returns the latest-as_of row per (player_id,
// to_club_id) where from_club_id = clubID, ranked by probability.
func (r *predictionsRepo) ListLatestFromClub(ctx context.Context, clubID string, limit int) ([]domain.PredictionSnapshot, error) {
	return r.listLatestByClubSide(ctx, "from_club_id", clubID, limit)
}

// ListLatestToClub returns the latest-as_of row per (player_id,
// from_club_id) where to_club_id = clubID, ranked by probability.
func (r *predictionsRepo) ListLatestToClub(ctx context.Context, clubID string, limit int) ([]domain.PredictionSnapshot, error) {
	return r.listLatestByClubSide(ctx, "to_club_id", clubID, limit)
}

func (r *predictionsRepo) listLatestByClubSide(ctx context.Context, column, clubID string, limit int) ([]domain.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT DISTINCT ON (player_id, to_club_id, from_club_id) ` + predictionColumns + `
		FROM prediction_snapshots
		WHERE ` + column + ` = $1
		ORDER BY player_id, to_club_id, from_club_id, as_of DESC`

	var all []domain.PredictionSnapshot
	if err := r.db.SelectContext(ctx, &all, query, clubID); err != nil {
		return nil, fmt.Errorf("failed to query predictions by %s: %w", column, err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Probability > all[j].Probability })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

const predictionColumns = `snapshot_id, model_version, model_name, player_id, from_club_id, to_club_id,
	       horizon_days, probability, drivers_json, features_json, as_of, window_start, window_end, created_at`

const selectPredictionSnapshots = `SELECT ` + predictionColumns + ` FROM prediction_snapshots`
