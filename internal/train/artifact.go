package train

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/transferintel/scout/internal/apperr"
)

// Artifact is the opaque on-disk bundle: model + imputer +
// scaler + feature_names + version + horizon + created_at. Exactly one
// of Logistic/Boosted is populated, selected by ModelType — gob cannot
// encode the Model interface directly, so the two concrete types ride
// alongside it instead of requiring gob.Register.
type Artifact struct {
	ModelType    ModelType
	Logistic     *LogisticRegression
	Boosted      *BoostedStumps
	Preprocessor *Preprocessor
	ModelName    string
	ModelVersion string
	HorizonDays  int
	CreatedAt    time.Time
}

func (a *Artifact) model() Model {
	if a.Logistic != nil {
		return a.Logistic
	}
	return a.Boosted
}

// Predict runs the full preprocess-then-predict pipeline for one raw
// (possibly NaN-missing) feature row.
func (a *Artifact) Predict(rawRow []float64) float64 {
	return a.model().Predict(a.Preprocessor.Transform(rawRow))
}

func (a *Artifact) Importances() []float64 {
	return a.model().Importances()
}

// ArtifactPath returns the storage-relative path for (modelName,
// modelVersion), using the "<model_name>/<version>.bin" layout.
func ArtifactPath(storageRoot, modelName, modelVersion string) string {
	return filepath.Join(storageRoot, modelName, modelVersion+".bin")
}

func SaveArtifact(a *Artifact, storageRoot string) error {
	path := ArtifactPath(storageRoot, a.ModelName, a.ModelVersion)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("train: failed to create artifact directory: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return fmt.Errorf("train: failed to encode artifact: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("train: failed to write artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads and decodes an artifact, translating any failure
// into apperr.ArtifactLoadFailure so callers (the scorer) know to fall
// back to the heuristic model rather than abort.
func LoadArtifact(storageRoot, modelName, modelVersion string) (*Artifact, error) {
	path := ArtifactPath(storageRoot, modelName, modelVersion)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.ArtifactLoadFailure("artifact_read_failed",
			fmt.Sprintf("failed to read artifact at %s", path), err)
	}

	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, apperr.ArtifactLoadFailure("artifact_decode_failed",
			fmt.Sprintf("failed to decode artifact at %s", path), err)
	}
	return &a, nil
}
