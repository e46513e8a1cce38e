// Package evaluate takes a trained model version and
// a window, build a labeled dataset the same way training does, score
// it through the loaded artifact, and persist the full metric bundle
// (core metrics, calibration, threshold sweep, per-season backtest) as
// one ModelEvaluation row. It shares internal/mlmetrics with
// internal/train rather than recomputing any of the formulas.
package evaluate

import (
	"context"
	"fmt"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/features"
	"github.com/transferintel/scout/internal/mlmetrics"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/train"
)

const calibrationBinCount = 10

// Evaluator builds a labeled dataset over a window and runs the
// evaluation steps against a loaded model artifact.
type Evaluator struct {
	models  persistence.ModelsRepo
	ledger  persistence.LedgerRepo
	builder *features.Builder
	sampler features.NegativeSampler
}

func NewEvaluator(models persistence.ModelsRepo, ledger persistence.LedgerRepo, builder *features.Builder, sampler features.NegativeSampler) *Evaluator {
	return &Evaluator{models: models, ledger: ledger, builder: builder, sampler: sampler}
}

// seasonStart returns the Aug-1 season boundary covering t: a football
// season runs Aug(year) - Jul(year+1).
func seasonStart(t time.Time) time.Time {
	if t.Month() >= time.August {
		return time.Date(t.Year(), time.August, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year()-1, time.August, 1, 0, 0, 0, 0, time.UTC)
}

func seasonLabel(start time.Time) string {
	return fmt.Sprintf("%d/%d", start.Year(), start.Year()+1)
}

// seasonsOverlapping returns every season-start boundary whose
// [start, start+1y) season window overlaps [windowStart, windowEnd].
func seasonsOverlapping(windowStart, windowEnd time.Time) []time.Time {
	var starts []time.Time
	s := seasonStart(windowStart)
	for !s.After(windowEnd) {
		starts = append(starts, s)
		s = s.AddDate(1, 0, 0)
	}
	return starts
}

// Evaluate runs the full evaluation pipeline for modelVersionID over [windowStart,
// windowEnd], persisting one ModelEvaluation row and returning it.
func (ev *Evaluator) Evaluate(ctx context.Context, modelVersionID int64, windowStart, windowEnd time.Time) (*domain.ModelEvaluation, error) {
	started := time.Now()

	mv, err := ev.models.GetVersion(ctx, modelVersionID)
	if err != nil {
		return nil, fmt.Errorf("evaluate: failed to load model version: %w", err)
	}
	if mv == nil {
		return nil, fmt.Errorf("evaluate: unknown model version id %d", modelVersionID)
	}

	artifact, err := train.LoadArtifact(artifactStorageRoot(mv.ArtifactPath, mv.ModelName, mv.ModelVersion), mv.ModelName, mv.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	yTrue, yProb, err := ev.scoreWindow(ctx, artifact, windowStart, windowEnd, mv.HorizonDays)
	if err != nil {
		return nil, err
	}

	eval := ev.buildEvaluation(modelVersionID, "holdout", "default", windowStart, windowEnd, yTrue, yProb)

	seasons, err := ev.backtestSeasons(ctx, artifact, windowStart, windowEnd, mv.HorizonDays)
	if err != nil {
		return nil, err
	}
	eval.SeasonBacktests = seasons
	eval.DurationMS = time.Since(started).Milliseconds()

	id, err := ev.models.InsertEvaluation(ctx, eval)
	if err != nil {
		return nil, fmt.Errorf("evaluate: failed to persist evaluation: %w", err)
	}
	eval.ID = id
	return &eval, nil
}

// scoreWindow builds the labeled frame over [windowStart, windowEnd]
// and scores every row through the artifact.
func (ev *Evaluator) scoreWindow(ctx context.Context, artifact *train.Artifact, windowStart, windowEnd time.Time, horizonDays int) ([]int, []float64, error) {
	lookback := windowEnd.Sub(windowStart)
	frame, err := ev.builder.BuildTrainingFrame(ctx, ev.ledger, ev.sampler, windowEnd, lookback, horizonDays)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate: failed to build evaluation frame: %w", err)
	}

	yTrue := make([]int, len(frame.Rows))
	yProb := make([]float64, len(frame.Rows))
	for i, row := range frame.Rows {
		yTrue[i] = row.Label
		yProb[i] = artifact.Predict(train.VectorToRow(row.Vector))
	}
	return yTrue, yProb, nil
}

// buildEvaluation computes core metrics, calibration,
// and the threshold sweep.
func (ev *Evaluator) buildEvaluation(modelVersionID int64, evalType, evalName string, windowStart, windowEnd time.Time, yTrue []int, yProb []float64) domain.ModelEvaluation {
	var positives int
	for _, y := range yTrue {
		if y == 1 {
			positives++
		}
	}

	bins := mlmetrics.CalibrationBins(yTrue, yProb, calibrationBinCount)
	slope, intercept := mlmetrics.CalibrationFit(bins)

	confusion := mlmetrics.Confusion(yTrue, yProb, 0.5)

	return domain.ModelEvaluation{
		ModelVersionID:       modelVersionID,
		EvalType:             evalType,
		EvalName:             evalName,
		WindowStart:          windowStart,
		WindowEnd:            windowEnd,
		SampleCount:          len(yTrue),
		PositiveCount:        positives,
		AUCROC:               mlmetrics.AUCROC(yTrue, yProb),
		AUCPR:                mlmetrics.AUCPR(yTrue, yProb),
		LogLoss:              mlmetrics.LogLoss(yTrue, yProb),
		Brier:                mlmetrics.Brier(yTrue, yProb),
		CalibrationSlope:     slope,
		CalibrationIntercept: intercept,
		CalibrationBins:      bins,
		ConfusionMatrix: map[string]int{
			"tp": confusion.TP, "fp": confusion.FP, "tn": confusion.TN, "fn": confusion.FN,
		},
		ThresholdTable: mlmetrics.ThresholdSweep(yTrue, yProb),
	}
}

// backtestSeasons breaks the window down by football season
// (Aug-Jul) overlapping the window, rebuild and rescore restricted to
// that season's transfers.
func (ev *Evaluator) backtestSeasons(ctx context.Context, artifact *train.Artifact, windowStart, windowEnd time.Time, horizonDays int) ([]domain.SeasonBacktest, error) {
	var out []domain.SeasonBacktest
	for _, start := range seasonsOverlapping(windowStart, windowEnd) {
		seasonEnd := start.AddDate(1, 0, 0)
		clippedStart, clippedEnd := start, seasonEnd
		if clippedStart.Before(windowStart) {
			clippedStart = windowStart
		}
		if clippedEnd.After(windowEnd) {
			clippedEnd = windowEnd
		}
		if !clippedStart.Before(clippedEnd) {
			continue
		}

		yTrue, yProb, err := ev.scoreWindow(ctx, artifact, clippedStart, clippedEnd, horizonDays)
		if err != nil {
			return nil, err
		}
		if len(yTrue) == 0 {
			continue
		}
		eval := ev.buildEvaluation(0, "backtest", seasonLabel(start), clippedStart, clippedEnd, yTrue, yProb)
		out = append(out, domain.SeasonBacktest{
			Season:  seasonLabel(start),
			Window:  [2]time.Time{clippedStart, clippedEnd},
			Samples: eval.SampleCount,
			Metrics: map[string]float64{
				"auc_roc": eval.AUCROC, "auc_pr": eval.AUCPR,
				"log_loss": eval.LogLoss, "brier": eval.Brier,
			},
		})
	}
	return out, nil
}

// artifactStorageRoot recovers the configured storage root from a
// persisted ArtifactPath (<root>/<model_name>/<version>.bin) so the
// evaluator doesn't need its own copy of config.TrainingConfig.
func artifactStorageRoot(artifactPath, modelName, modelVersion string) string {
	suffix := fmt.Sprintf("/%s/%s.bin", modelName, modelVersion)
	if len(artifactPath) > len(suffix) && artifactPath[len(artifactPath)-len(suffix):] == suffix {
		return artifactPath[:len(artifactPath)-len(suffix)]
	}
	return "."
}
