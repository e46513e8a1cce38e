// Package train splits, preprocesses, fits, and evaluates a
// model from a features.TrainingFrameResult, persist the artifact, and
// register a ModelVersion row. No third-party ML library appears
// anywhere in the retrieval pack, so both model families are
// hand-rolled here in the pack's own from-scratch idiom (see
// other_examples' hockey-prediction ensemble for the nearest analogue).
package train

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/features"
	"github.com/transferintel/scout/internal/mlmetrics"
	"github.com/transferintel/scout/internal/persistence"
)

const (
	defaultLearningRate = 0.1
	defaultEpochs       = 500
	defaultNumTrees     = 50
)

type Trainer struct {
	models persistence.ModelsRepo
	cfg    config.TrainingConfig
}

func NewTrainer(models persistence.ModelsRepo, cfg config.TrainingConfig) *Trainer {
	return &Trainer{models: models, cfg: cfg}
}

// Result bundles the trained artifact with the ModelVersion row id it
// was registered under.
type Result struct {
	ModelVersionID int64
	Artifact       *Artifact
	Metrics        map[string]float64
}

// Train runs the full fit-and-register pipeline over rows. trainingAsOf/horizonDays are
// recorded on the ModelVersion row for provenance; modelName follows
// the spec's `transfer_xgb_{H}d` convention regardless of which model
// family actually trained (the name identifies the prediction task,
// not the algorithm).
func (t *Trainer) Train(ctx context.Context, rows []features.TrainingRow, modelType ModelType, horizonDays int, trainingAsOf time.Time) (*Result, error) {
	modelName := fmt.Sprintf("transfer_xgb_%dd", horizonDays)

	if len(rows) < t.cfg.MinimumSamples {
		msg := fmt.Sprintf("training frame has %d rows, below minimum %d", len(rows), t.cfg.MinimumSamples)
		if _, regErr := t.models.InsertVersion(ctx, domain.ModelVersion{
			ModelName: modelName, ModelVersion: versionStamp(trainingAsOf),
			HorizonDays: horizonDays, TrainingAsOf: trainingAsOf,
			Status: domain.ModelStatusFailed, Message: &msg,
		}); regErr != nil {
			return nil, fmt.Errorf("train: failed to record failed training run: %w", regErr)
		}
		return nil, apperr.InsufficientData("insufficient_training_samples", msg)
	}

	allRows := make([][]float64, len(rows))
	labels := make([]int, len(rows))
	for i, r := range rows {
		allRows[i] = VectorToRow(r.Vector)
		labels[i] = r.Label
	}

	trainIdx, testIdx := stratifiedSplit(labels, t.cfg.TestSplitFraction, t.cfg.RandomSeed)

	trainRows := subsetRows(allRows, trainIdx)
	trainLabels := subsetLabels(labels, trainIdx)
	testRows := subsetRows(allRows, testIdx)
	testLabels := subsetLabels(labels, testIdx)

	pre := Fit(trainRows)

	trainTransformed := make([][]float64, len(trainRows))
	for i, row := range trainRows {
		trainTransformed[i] = pre.Transform(row)
	}

	var model Model
	var logistic *LogisticRegression
	var boosted *BoostedStumps
	switch modelType {
	case ModelTypeBoosted:
		boosted = FitBoostedStumps(trainTransformed, trainLabels, defaultLearningRate, defaultNumTrees)
		model = boosted
	default:
		logistic = FitLogisticRegression(trainTransformed, trainLabels, defaultLearningRate, defaultEpochs)
		model = logistic
	}

	testProbs := make([]float64, len(testRows))
	for i, row := range testRows {
		testProbs[i] = model.Predict(pre.Transform(row))
	}

	metrics := evaluationMetrics(testLabels, testProbs)
	importances := model.Importances()
	importanceMap := make(map[string]float64, len(features.FeatureKeys))
	for i, k := range features.FeatureKeys {
		if i < len(importances) {
			importanceMap[k] = importances[i]
		}
	}

	version := versionStamp(trainingAsOf)
	artifact := &Artifact{
		ModelType: modelType, Logistic: logistic, Boosted: boosted, Preprocessor: pre,
		ModelName: modelName, ModelVersion: version, HorizonDays: horizonDays, CreatedAt: trainingAsOf,
	}
	if err := SaveArtifact(artifact, t.cfg.ModelStoragePath); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	var posCount, negCount int
	for _, y := range labels {
		if y == 1 {
			posCount++
		} else {
			negCount++
		}
	}

	mv := domain.ModelVersion{
		ModelName: modelName, ModelVersion: version, HorizonDays: horizonDays,
		TrainingAsOf: trainingAsOf, PositiveCount: posCount, NegativeCount: negCount,
		FeatureList: append([]string{}, features.FeatureKeys...), Metrics: metrics,
		FeatureImportances: importanceMap, ArtifactPath: ArtifactPath(t.cfg.ModelStoragePath, modelName, version),
		Status: domain.ModelStatusCompleted,
	}
	id, err := t.models.InsertVersion(ctx, mv)
	if err != nil {
		return nil, fmt.Errorf("train: failed to register model version: %w", err)
	}

	return &Result{ModelVersionID: id, Artifact: artifact, Metrics: metrics}, nil
}

func versionStamp(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

func evaluationMetrics(yTrue []int, yProb []float64) map[string]float64 {
	c := mlmetrics.Confusion(yTrue, yProb, 0.5)
	return map[string]float64{
		"accuracy":  c.Accuracy(),
		"precision": c.Precision(),
		"recall":    c.Recall(),
		"f1":        c.F1(),
		"auc_roc":   mlmetrics.AUCROC(yTrue, yProb),
	}
}

// stratifiedSplit partitions indices so the positive/negative ratio is
// preserved in both splits, deterministic given seed ("Deterministic
// given random seed").
func stratifiedSplit(labels []int, testFraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))

	var posIdx, negIdx []int
	for i, y := range labels {
		if y == 1 {
			posIdx = append(posIdx, i)
		} else {
			negIdx = append(negIdx, i)
		}
	}
	rng.Shuffle(len(posIdx), func(i, j int) { posIdx[i], posIdx[j] = posIdx[j], posIdx[i] })
	rng.Shuffle(len(negIdx), func(i, j int) { negIdx[i], negIdx[j] = negIdx[j], negIdx[i] })

	posTestN := int(float64(len(posIdx)) * testFraction)
	negTestN := int(float64(len(negIdx)) * testFraction)

	test = append(test, posIdx[:posTestN]...)
	test = append(test, negIdx[:negTestN]...)
	train = append(train, posIdx[posTestN:]...)
	train = append(train, negIdx[negTestN:]...)
	return train, test
}

func subsetRows(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func subsetLabels(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}
