package train

import (
	"math"
	"sort"

	"github.com/transferintel/scout/internal/features"
)

// Preprocessor holds the median-imputation and standardization
// statistics fit on the training split only, so the
// same statistics are replayed unchanged at scoring time.
type Preprocessor struct {
	FeatureNames []string  `json:"feature_names"`
	Medians      []float64 `json:"medians"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
}

// VectorToRow flattens a features.Vector into FeatureKeys order, using
// NaN as the "missing" sentinel so Fit/Transform can distinguish a
// genuine zero from an unset feature.
func VectorToRow(v features.Vector) []float64 {
	row := make([]float64, len(features.FeatureKeys))
	for i, k := range features.FeatureKeys {
		if p, ok := v[k]; ok && p != nil {
			row[i] = *p
		} else {
			row[i] = math.NaN()
		}
	}
	return row
}

// Fit computes per-feature medians (over observed values only) and,
// after imputing with those medians, per-feature mean/std. Both are
// fit on rows exclusively — callers must pass the training split, not
// the held-out split.
func Fit(rows [][]float64) *Preprocessor {
	nFeatures := len(features.FeatureKeys)
	p := &Preprocessor{
		FeatureNames: append([]string{}, features.FeatureKeys...),
		Medians:      make([]float64, nFeatures),
		Means:        make([]float64, nFeatures),
		Stds:         make([]float64, nFeatures),
	}

	for j := 0; j < nFeatures; j++ {
		var observed []float64
		for _, row := range rows {
			if !math.IsNaN(row[j]) {
				observed = append(observed, row[j])
			}
		}
		p.Medians[j] = median(observed)
	}

	imputed := make([][]float64, len(rows))
	for i, row := range rows {
		imputed[i] = p.impute(row)
	}

	for j := 0; j < nFeatures; j++ {
		var sum float64
		for _, row := range imputed {
			sum += row[j]
		}
		mean := sum / float64(len(imputed))

		var sumSq float64
		for _, row := range imputed {
			d := row[j] - mean
			sumSq += d * d
		}
		std := math.Sqrt(sumSq / float64(len(imputed)))
		if std == 0 {
			std = 1
		}
		p.Means[j] = mean
		p.Stds[j] = std
	}

	return p
}

// Impute exposes the median-fill step alone, without standardization —
// the scorer's driver attribution normalizes against these raw-scale
// values rather than the standardized ones a model actually consumes.
func (p *Preprocessor) Impute(row []float64) []float64 { return p.impute(row) }

func (p *Preprocessor) impute(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) {
			out[j] = p.Medians[j]
		} else {
			out[j] = v
		}
	}
	return out
}

// Transform imputes then standardizes a raw row using statistics
// fit earlier — this is the exact pipeline replayed at scoring time.
func (p *Preprocessor) Transform(row []float64) []float64 {
	imputed := p.impute(row)
	out := make([]float64, len(imputed))
	for j, v := range imputed {
		out[j] = (v - p.Means[j]) / p.Stds[j]
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
