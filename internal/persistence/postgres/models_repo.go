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

type modelsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewModelsRepo(db *sqlx.DB, timeout time.Duration) persistence.ModelsRepo {
	return &modelsRepo{db: db, timeout: timeout}
}

func (r *modelsRepo) InsertVersion(ctx context.Context, m domain.ModelVersion) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	featureListJSON, err := json.Marshal(m.FeatureList)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal feature_list: %w", err)
	}
	metricsJSON, err := json.Marshal(m.Metrics)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	importancesJSON, err := json.Marshal(m.FeatureImportances)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal feature_importances: %w", err)
	}

	query := `
		INSERT INTO model_versions
		(model_name, model_version, horizon_days, training_as_of, positive_count, negative_count,
		 feature_list, metrics, feature_importances, artifact_path, status, message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`

	var id int64
	err = r.db.QueryRowxContext(ctx, query,
		m.ModelName, m.ModelVersion, m.HorizonDays, m.TrainingAsOf, m.PositiveCount, m.NegativeCount,
		featureListJSON, metricsJSON, importancesJSON, m.ArtifactPath, m.Status, m.Message).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert model version: %w", err)
	}
	return id, nil
}

func (r *modelsRepo) UpdateStatus(ctx context.Context, id int64, status domain.ModelVersionStatus, message *string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE model_versions SET status = $1, message = $2 WHERE id = $3`, status, message, id)
	if err != nil {
		return fmt.Errorf("failed to update model version status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("model_version_not_found", fmt.Sprintf("model version %d not found", id))
	}
	return nil
}

func (r *modelsRepo) GetVersion(ctx context.Context, id int64) (*domain.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, selectModelVersions+` WHERE id = $1`, id)
	mv, err := scanModelVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("model_version_not_found", fmt.Sprintf("model version %d not found", id))
	}
	if err != nil {
		return nil, err
	}
	return mv, nil
}

func (r *modelsRepo) LatestDeployed(ctx context.Context, modelName string, horizonDays int) (*domain.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, selectModelVersions+
		` WHERE model_name = $1 AND horizon_days = $2 AND status = $3 ORDER BY training_as_of DESC LIMIT 1`,
		modelName, horizonDays, domain.ModelStatusDeployed)
	mv, err := scanModelVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ArtifactLoadFailure("no_deployed_model",
			fmt.Sprintf("no deployed model %s for horizon %d", modelName, horizonDays), nil)
	}
	if err != nil {
		return nil, err
	}
	return mv, nil
}

func (r *modelsRepo) ListVersions(ctx context.Context, modelName string, limit int) ([]domain.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, selectModelVersions+
		` WHERE model_name = $1 ORDER BY training_as_of DESC LIMIT $2`, modelName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.ModelVersion
	for rows.Next() {
		mv, err := scanModelVersionFromRows(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *mv)
	}
	return versions, rows.Err()
}

func (r *modelsRepo) InsertEvaluation(ctx context.Context, e domain.ModelEvaluation) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	binsJSON, err := json.Marshal(e.CalibrationBins)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal calibration_bins: %w", err)
	}
	confusionJSON, err := json.Marshal(e.ConfusionMatrix)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal confusion_matrix: %w", err)
	}
	thresholdJSON, err := json.Marshal(e.ThresholdTable)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal threshold_table: %w", err)
	}
	backtestsJSON, err := json.Marshal(e.SeasonBacktests)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal season_backtests: %w", err)
	}

	query := `
		INSERT INTO model_evaluations
		(model_version_id, eval_type, eval_name, window_start, window_end, sample_count, positive_count,
		 auc_roc, auc_pr, log_loss, brier, calibration_slope, calibration_intercept,
		 calibration_bins, confusion_matrix, threshold_table, season_backtests, duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`

	var id int64
	err = r.db.QueryRowxContext(ctx, query,
		e.ModelVersionID, e.EvalType, e.EvalName, e.WindowStart, e.WindowEnd, e.SampleCount, e.PositiveCount,
		e.AUCROC, e.AUCPR, e.LogLoss, e.Brier, e.CalibrationSlope, e.CalibrationIntercept,
		binsJSON, confusionJSON, thresholdJSON, backtestsJSON, e.DurationMS).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert model evaluation: %w", err)
	}
	return id, nil
}

func (r *modelsRepo) ListEvaluations(ctx context.Context, modelVersionID int64) ([]domain.ModelEvaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, model_version_id, eval_type, eval_name, window_start, window_end, sample_count, positive_count,
		       auc_roc, auc_pr, log_loss, brier, calibration_slope, calibration_intercept,
		       calibration_bins, confusion_matrix, threshold_table, season_backtests, duration_ms, created_at
		FROM model_evaluations WHERE model_version_id = $1 ORDER BY created_at DESC`, modelVersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list model evaluations: %w", err)
	}
	defer rows.Close()

	var evals []domain.ModelEvaluation
	for rows.Next() {
		var e domain.ModelEvaluation
		var binsJSON, confusionJSON, thresholdJSON, backtestsJSON []byte
		err := rows.Scan(&e.ID, &e.ModelVersionID, &e.EvalType, &e.EvalName, &e.WindowStart, &e.WindowEnd,
			&e.SampleCount, &e.PositiveCount, &e.AUCROC, &e.AUCPR, &e.LogLoss, &e.Brier,
			&e.CalibrationSlope, &e.CalibrationIntercept, &binsJSON, &confusionJSON, &thresholdJSON,
			&backtestsJSON, &e.DurationMS, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model evaluation: %w", err)
		}
		if err := json.Unmarshal(binsJSON, &e.CalibrationBins); err != nil {
			return nil, fmt.Errorf("failed to unmarshal calibration_bins: %w", err)
		}
		if err := json.Unmarshal(confusionJSON, &e.ConfusionMatrix); err != nil {
			return nil, fmt.Errorf("failed to unmarshal confusion_matrix: %w", err)
		}
		if err := json.Unmarshal(thresholdJSON, &e.ThresholdTable); err != nil {
			return nil, fmt.Errorf("failed to unmarshal threshold_table: %w", err)
		}
		if err := json.Unmarshal(backtestsJSON, &e.SeasonBacktests); err != nil {
			return nil, fmt.Errorf("failed to unmarshal season_backtests: %w", err)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

const selectModelVersions = `
	SELECT id, model_name, model_version, horizon_days, training_as_of, positive_count, negative_count,
	       feature_list, metrics, feature_importances, artifact_path, status, message, created_at
	FROM model_versions`

func scanModelVersion(row *sqlx.Row) (*domain.ModelVersion, error) {
	var mv domain.ModelVersion
	var featureListJSON, metricsJSON, importancesJSON []byte
	err := row.Scan(&mv.ID, &mv.ModelName, &mv.ModelVersion, &mv.HorizonDays, &mv.TrainingAsOf,
		&mv.PositiveCount, &mv.NegativeCount, &featureListJSON, &metricsJSON, &importancesJSON,
		&mv.ArtifactPath, &mv.Status, &mv.Message, &mv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalModelVersionJSON(&mv, featureListJSON, metricsJSON, importancesJSON); err != nil {
		return nil, err
	}
	return &mv, nil
}

func scanModelVersionFromRows(rows *sqlx.Rows) (*domain.ModelVersion, error) {
	var mv domain.ModelVersion
	var featureListJSON, metricsJSON, importancesJSON []byte
	err := rows.Scan(&mv.ID, &mv.ModelName, &mv.ModelVersion, &mv.HorizonDays, &mv.TrainingAsOf,
		&mv.PositiveCount, &mv.NegativeCount, &featureListJSON, &metricsJSON, &importancesJSON,
		&mv.ArtifactPath, &mv.Status, &mv.Message, &mv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalModelVersionJSON(&mv, featureListJSON, metricsJSON, importancesJSON); err != nil {
		return nil, err
	}
	return &mv, nil
}

func unmarshalModelVersionJSON(mv *domain.ModelVersion, featureListJSON, metricsJSON, importancesJSON []byte) error {
	if err := json.Unmarshal(featureListJSON, &mv.FeatureList); err != nil {
		return fmt.Errorf("failed to unmarshal feature_list: %w", err)
	}
	if err := json.Unmarshal(metricsJSON, &mv.Metrics); err != nil {
		return fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if err := json.Unmarshal(importancesJSON, &mv.FeatureImportances); err != nil {
		return fmt.Errorf("failed to unmarshal feature_importances: %w", err)
	}
	return nil
}

var _ persistence.ModelsRepo = (*modelsRepo)(nil)
