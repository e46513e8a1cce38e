package train

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/features"
	"github.com/transferintel/scout/internal/persistence"
)

type fakeModelsRepo struct {
	versions []domain.ModelVersion
}

func (f *fakeModelsRepo) InsertVersion(ctx context.Context, m domain.ModelVersion) (int64, error) {
	f.versions = append(f.versions, m)
	return int64(len(f.versions)), nil
}
func (f *fakeModelsRepo) UpdateStatus(ctx context.Context, id int64, status domain.ModelVersionStatus, message *string) error {
	return nil
}
func (f *fakeModelsRepo) GetVersion(ctx context.Context, id int64) (*domain.ModelVersion, error) {
	return nil, nil
}
func (f *fakeModelsRepo) LatestDeployed(ctx context.Context, modelName string, horizonDays int) (*domain.ModelVersion, error) {
	return nil, nil
}
func (f *fakeModelsRepo) ListVersions(ctx context.Context, modelName string, limit int) ([]domain.ModelVersion, error) {
	return nil, nil
}
func (f *fakeModelsRepo) InsertEvaluation(ctx context.Context, e domain.ModelEvaluation) (int64, error) {
	return 0, nil
}
func (f *fakeModelsRepo) ListEvaluations(ctx context.Context, modelVersionID int64) ([]domain.ModelEvaluation, error) {
	return nil, nil
}

var _ persistence.ModelsRepo = (*fakeModelsRepo)(nil)

// linearlySeparableTrainingRows builds a deterministic training frame
// large enough to clear MinimumSamples, with the first feature key
// perfectly separating label 0 from label 1.
func linearlySeparableTrainingRows(n int) []features.TrainingRow {
	rows := make([]features.TrainingRow, n)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < n; i++ {
		label := i % 2
		v := make(features.Vector, len(features.FeatureKeys))
		for _, k := range features.FeatureKeys {
			v[k] = nil
		}
		val := -5.0 + rng.Float64()
		if label == 1 {
			val = 5.0 + rng.Float64()
		}
		v[features.FeatureKeys[0]] = &val
		rows[i] = features.TrainingRow{
			PlayerID: "p", ToClubID: "c", FeatureDate: time.Now(), Label: label, Vector: v,
		}
	}
	return rows
}

func testTrainingConfig(t *testing.T) config.TrainingConfig {
	t.Helper()
	return config.TrainingConfig{
		ModelStoragePath:  t.TempDir(),
		MinimumSamples:    20,
		TestSplitFraction: 0.2,
		RandomSeed:        42,
	}
}

func TestTrainer_Train_BelowMinimumSamplesRecordsFailedVersion(t *testing.T) {
	models := &fakeModelsRepo{}
	tr := NewTrainer(models, testTrainingConfig(t))

	rows := linearlySeparableTrainingRows(5)
	_, err := tr.Train(context.Background(), rows, ModelTypeLogistic, 90, time.Now())
	if err == nil {
		t.Fatalf("expected an error for a training frame below the minimum sample count")
	}
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindInsufficientData {
		t.Fatalf("expected apperr.KindInsufficientData, got %v", err)
	}
	if len(models.versions) != 1 || models.versions[0].Status != domain.ModelStatusFailed {
		t.Fatalf("expected exactly one failed ModelVersion recorded, got %+v", models.versions)
	}
}

func TestTrainer_Train_LogisticRegistersCompletedVersionAndArtifact(t *testing.T) {
	models := &fakeModelsRepo{}
	cfg := testTrainingConfig(t)
	tr := NewTrainer(models, cfg)

	rows := linearlySeparableTrainingRows(40)
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := tr.Train(context.Background(), rows, ModelTypeLogistic, 90, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Artifact.ModelType != ModelTypeLogistic || result.Artifact.Logistic == nil {
		t.Fatalf("expected a populated logistic artifact, got %+v", result.Artifact)
	}
	if len(models.versions) != 1 || models.versions[0].Status != domain.ModelStatusCompleted {
		t.Fatalf("expected exactly one completed ModelVersion recorded, got %+v", models.versions)
	}
	if models.versions[0].ModelName != "transfer_xgb_90d" {
		t.Fatalf("expected model name transfer_xgb_90d, got %q", models.versions[0].ModelName)
	}
	if _, ok := result.Metrics["auc_roc"]; !ok {
		t.Fatalf("expected auc_roc in reported metrics, got %+v", result.Metrics)
	}

	loaded, err := LoadArtifact(cfg.ModelStoragePath, "transfer_xgb_90d", result.Artifact.ModelVersion)
	if err != nil {
		t.Fatalf("expected the artifact to be loadable from disk: %v", err)
	}
	if loaded.ModelType != ModelTypeLogistic {
		t.Fatalf("loaded artifact has wrong model type: %v", loaded.ModelType)
	}
}

func TestTrainer_Train_BoostedStumpsSelectsBoostedArtifact(t *testing.T) {
	models := &fakeModelsRepo{}
	cfg := testTrainingConfig(t)
	tr := NewTrainer(models, cfg)

	rows := linearlySeparableTrainingRows(40)
	result, err := tr.Train(context.Background(), rows, ModelTypeBoosted, 90, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Artifact.Boosted == nil || result.Artifact.Logistic != nil {
		t.Fatalf("expected a populated boosted artifact and nil logistic, got %+v", result.Artifact)
	}
}

func TestStratifiedSplit_PreservesClassRatioAndIsDeterministic(t *testing.T) {
	labels := make([]int, 100)
	for i := range labels {
		if i < 30 {
			labels[i] = 1
		}
	}
	train1, test1 := stratifiedSplit(labels, 0.2, 7)
	train2, test2 := stratifiedSplit(labels, 0.2, 7)

	if len(test1) != len(test2) || len(train1) != len(train2) {
		t.Fatalf("expected identical split sizes across runs with the same seed")
	}
	for i := range test1 {
		if test1[i] != test2[i] {
			t.Fatalf("expected identical split ordering across runs with the same seed")
		}
	}

	var posTest int
	for _, idx := range test1 {
		if labels[idx] == 1 {
			posTest++
		}
	}
	// 30 positives * 0.2 = 6 expected in the test split.
	if posTest != 6 {
		t.Fatalf("expected 6 positive examples in the test split, got %d", posTest)
	}
}
