package train

import (
	"math"
	"testing"

	"github.com/transferintel/scout/internal/features"
)

func TestVectorToRow_MissingBecomesNaN(t *testing.T) {
	v := features.Vector{}
	for _, k := range features.FeatureKeys {
		v[k] = nil
	}
	one := 1.0
	v[features.FeatureKeys[0]] = &one

	row := VectorToRow(v)
	if row[0] != 1.0 {
		t.Fatalf("expected row[0]=1.0, got %f", row[0])
	}
	for i := 1; i < len(row); i++ {
		if !math.IsNaN(row[i]) {
			t.Fatalf("expected row[%d] to be NaN for unset feature, got %f", i, row[i])
		}
	}
}

func TestFit_MedianComputedOverObservedValuesOnly(t *testing.T) {
	n := len(features.FeatureKeys)
	mkRow := func(first float64, missing bool) []float64 {
		row := make([]float64, n)
		for i := range row {
			row[i] = math.NaN()
		}
		if !missing {
			row[0] = first
		}
		return row
	}

	rows := [][]float64{mkRow(1, false), mkRow(3, false), mkRow(0, true)}
	p := Fit(rows)

	if p.Medians[0] != 2 {
		t.Fatalf("expected median of [1,3] = 2, got %f", p.Medians[0])
	}
}

func TestFit_StdFallsBackToOneWhenConstant(t *testing.T) {
	n := len(features.FeatureKeys)
	row := make([]float64, n)
	for i := range row {
		row[i] = 5
	}
	p := Fit([][]float64{row, row, row})
	for j, std := range p.Stds {
		if std != 1 {
			t.Fatalf("feature %d: expected std fallback to 1 for constant column, got %f", j, std)
		}
	}
}

func TestPreprocessor_TransformImputesThenStandardizes(t *testing.T) {
	n := len(features.FeatureKeys)
	mk := func(v float64) []float64 {
		row := make([]float64, n)
		for i := range row {
			row[i] = v
		}
		return row
	}
	rows := [][]float64{mk(0), mk(10)}
	p := Fit(rows)

	missing := make([]float64, n)
	for i := range missing {
		missing[i] = math.NaN()
	}
	out := p.Transform(missing)
	// A missing value imputed to the training median (5) standardizes
	// to (5-mean)/std == 0 when mean==median==5.
	for j, v := range out {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("feature %d: expected ~0 for median-imputed value, got %f", j, v)
		}
	}
}

func TestMedian(t *testing.T) {
	if got := median(nil); got != 0 {
		t.Fatalf("median of empty = %f, want 0", got)
	}
	if got := median([]float64{1, 2, 3}); got != 2 {
		t.Fatalf("median of odd-length = %f, want 2", got)
	}
	if got := median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Fatalf("median of even-length = %f, want 2.5", got)
	}
}
