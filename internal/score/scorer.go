// Package score loads the most recent usable model (or
// fall back to a heuristic), score every candidate destination for an
// active player, attribute the top drivers, and upsert a
// PredictionSnapshot. The model-backed and heuristic paths are two
// implementations of the same Scorer interface, selected once per run
// (treat the scorer as an interface with two implementations).
package score

import (
	"github.com/transferintel/scout/internal/features"
	"github.com/transferintel/scout/internal/train"
)

// Scorer produces a probability and per-feature importance weights for
// one feature vector. Importances are aligned to features.FeatureKeys
// and need not sum to 1 — driver attribution normalizes afterward.
type Scorer interface {
	ScoreVector(v features.Vector) (probability float64, importances []float64)
	ModelVersion() string
}

// ModelScorer wraps a trained artifact loaded from disk.
type ModelScorer struct {
	artifact *train.Artifact
}

func NewModelScorer(artifact *train.Artifact) *ModelScorer {
	return &ModelScorer{artifact: artifact}
}

func (s *ModelScorer) ScoreVector(v features.Vector) (float64, []float64) {
	row := train.VectorToRow(v)
	return s.artifact.Predict(row), s.artifact.Importances()
}

func (s *ModelScorer) ModelVersion() string { return s.artifact.ModelVersion }

// HeuristicScorer is the fallback used when no completed/deployed
// model exists for the horizon: contract_months_remaining and
// same_league dominate, matching the spec's "dominant terms" language.
type HeuristicScorer struct{}

func NewHeuristicScorer() *HeuristicScorer { return &HeuristicScorer{} }

func (s *HeuristicScorer) ScoreVector(v features.Vector) (float64, []float64) {
	importances := make([]float64, len(features.FeatureKeys))

	score := 0.3 // base rate
	for i, k := range features.FeatureKeys {
		p := v[k]
		switch k {
		case "contract_months_remaining":
			if p != nil {
				weight := 0.35
				// fewer months remaining -> higher transfer probability
				urgency := clamp01(1 - *p/36)
				score += weight * urgency
				importances[i] = weight
			}
		case "same_league":
			if p != nil {
				weight := 0.2
				score += weight * *p
				importances[i] = weight
			}
		case "tier_difference":
			if p != nil {
				weight := 0.1
				// moving to a better-or-equal tier nudges probability up
				score += weight * clamp01(0.5-*p/10)
				importances[i] = weight
			}
		case "social_mention_velocity":
			if p != nil {
				weight := 0.05
				score += weight * clamp01(*p/1000)
				importances[i] = weight
			}
		}
	}
	return clamp01(score), importances
}

func (s *HeuristicScorer) ModelVersion() string { return "heuristic" }

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
