package mlmetrics

import (
	"math"
	"testing"
)

func TestConfusion_CountsAtThreshold(t *testing.T) {
	yTrue := []int{1, 1, 0, 0}
	yProb := []float64{0.9, 0.4, 0.6, 0.1}
	c := Confusion(yTrue, yProb, 0.5)

	if c.TP != 1 || c.FN != 1 || c.FP != 1 || c.TN != 1 {
		t.Fatalf("unexpected confusion counts: %+v", c)
	}
}

func TestConfusionCounts_DerivedMetrics(t *testing.T) {
	c := ConfusionCounts{TP: 3, FP: 1, TN: 2, FN: 0}
	if got := c.Precision(); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("precision = %f, want 0.75", got)
	}
	if got := c.Recall(); got != 1 {
		t.Fatalf("recall = %f, want 1", got)
	}
	wantF1 := 2 * 0.75 * 1 / (0.75 + 1)
	if got := c.F1(); math.Abs(got-wantF1) > 1e-9 {
		t.Fatalf("f1 = %f, want %f", got, wantF1)
	}
	if got := c.Accuracy(); math.Abs(got-(5.0/6.0)) > 1e-9 {
		t.Fatalf("accuracy = %f, want %f", got, 5.0/6.0)
	}
}

func TestConfusionCounts_ZeroDenominatorsReturnZero(t *testing.T) {
	var c ConfusionCounts
	if c.Precision() != 0 || c.Recall() != 0 || c.F1() != 0 || c.Accuracy() != 0 {
		t.Fatalf("expected all-zero metrics for empty confusion, got %+v", c)
	}
}

func TestAUCROC_PerfectSeparationIsOne(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 1}
	yProb := []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9}
	if got := AUCROC(yTrue, yProb); math.Abs(got-1) > 1e-9 {
		t.Fatalf("AUCROC = %f, want 1", got)
	}
}

func TestAUCROC_InvertedSeparationIsZero(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 1}
	yProb := []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1}
	if got := AUCROC(yTrue, yProb); math.Abs(got-0) > 1e-9 {
		t.Fatalf("AUCROC = %f, want 0", got)
	}
}

func TestAUCROC_SingleClassReturnsHalf(t *testing.T) {
	yTrue := []int{1, 1, 1}
	yProb := []float64{0.1, 0.5, 0.9}
	if got := AUCROC(yTrue, yProb); got != 0.5 {
		t.Fatalf("AUCROC with a single class = %f, want 0.5 sentinel", got)
	}
}

func TestAUCROC_TiedScoresUseAverageRank(t *testing.T) {
	yTrue := []int{0, 1, 0, 1}
	yProb := []float64{0.5, 0.5, 0.5, 0.5}
	if got := AUCROC(yTrue, yProb); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("AUCROC with all-tied scores = %f, want 0.5", got)
	}
}

func TestAUCPR_PerfectSeparationIsOne(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 1}
	yProb := []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9}
	if got := AUCPR(yTrue, yProb); math.Abs(got-1) > 1e-9 {
		t.Fatalf("AUCPR = %f, want ~1, got %f", got, got)
	}
}

func TestLogLoss_ConfidentCorrectPredictionsScoreLow(t *testing.T) {
	yTrue := []int{1, 0}
	yProb := []float64{0.99, 0.01}
	if got := LogLoss(yTrue, yProb); got > 0.02 {
		t.Fatalf("LogLoss = %f, want close to 0 for confident correct predictions", got)
	}
}

func TestLogLoss_ClampsExtremeProbabilities(t *testing.T) {
	// Without clamping, log(0) would be -Inf; the function must stay finite.
	yTrue := []int{1, 0}
	yProb := []float64{0, 1}
	got := LogLoss(yTrue, yProb)
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("LogLoss produced a non-finite value: %f", got)
	}
}

func TestBrier_PerfectPredictionsAreZero(t *testing.T) {
	yTrue := []int{1, 0, 1, 0}
	yProb := []float64{1, 0, 1, 0}
	if got := Brier(yTrue, yProb); got != 0 {
		t.Fatalf("Brier = %f, want 0 for perfect predictions", got)
	}
}

func TestBrier_WorstCaseIsOne(t *testing.T) {
	yTrue := []int{1, 0}
	yProb := []float64{0, 1}
	if got := Brier(yTrue, yProb); got != 1 {
		t.Fatalf("Brier = %f, want 1 for maximally wrong predictions", got)
	}
}

// CalibrationBins + CalibrationFit reproducing the perfectly-calibrated
// scenario: predicted means roughly track actual means, so a linear
// fit over the bins should land near slope=1, intercept=0.
func TestCalibrationFit_WellCalibratedModelHasSlopeNearOne(t *testing.T) {
	yTrue := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	yProb := []float64{0.1, 0.1, 0.2, 0.2, 0.3, 0.7, 0.8, 0.8, 0.9, 0.9}

	bins := CalibrationBins(yTrue, yProb, 10)
	slope, _ := CalibrationFit(bins)
	if slope < 0.7 || slope > 1.3 {
		t.Fatalf("slope = %f, want roughly 1 for a well-calibrated model", slope)
	}
}

func TestCalibrationBins_AssignsToCorrectRangeAndAggregates(t *testing.T) {
	yTrue := []int{1, 0}
	yProb := []float64{0.15, 0.25}
	bins := CalibrationBins(yTrue, yProb, 10)

	if bins[1].Count != 1 || bins[1].PredictedMean != 0.15 || bins[1].ActualMean != 1 {
		t.Fatalf("bin[1] (range 0.1-0.2) = %+v, want count=1 predicted=0.15 actual=1", bins[1])
	}
	if bins[2].Count != 1 || bins[2].PredictedMean != 0.25 || bins[2].ActualMean != 0 {
		t.Fatalf("bin[2] (range 0.2-0.3) = %+v, want count=1 predicted=0.25 actual=0", bins[2])
	}
	for i, b := range bins {
		if i == 1 || i == 2 {
			continue
		}
		if b.Count != 0 {
			t.Fatalf("bin[%d] expected empty, got %+v", i, b)
		}
	}
}

func TestCalibrationBins_TopEdgeClampsIntoLastBin(t *testing.T) {
	yTrue := []int{1}
	yProb := []float64{1.0}
	bins := CalibrationBins(yTrue, yProb, 10)
	if bins[9].Count != 1 {
		t.Fatalf("expected predicted probability of exactly 1.0 to land in the last bin, got counts=%+v", bins)
	}
}

func TestCalibrationFit_FewerThanTwoPointsReturnsIdentity(t *testing.T) {
	yTrue := []int{1}
	yProb := []float64{0.9}
	bins := CalibrationBins(yTrue, yProb, 10)
	slope, intercept := CalibrationFit(bins)
	if slope != 1 || intercept != 0 {
		t.Fatalf("expected identity fit (1,0) with a single populated bin, got (%f,%f)", slope, intercept)
	}
}

func TestThresholdSweep_NineStepsFromOneToNineTenths(t *testing.T) {
	yTrue := []int{1, 1, 0, 0}
	yProb := []float64{0.9, 0.6, 0.4, 0.1}
	rows := ThresholdSweep(yTrue, yProb)

	if len(rows) != 9 {
		t.Fatalf("expected 9 threshold rows, got %d", len(rows))
	}
	if rows[0].Threshold != 0.1 || rows[8].Threshold != 0.9 {
		t.Fatalf("expected thresholds to range 0.1..0.9, got first=%f last=%f", rows[0].Threshold, rows[8].Threshold)
	}
	// At threshold 0.5: predictions {1,1,0,0} exactly match yTrue, so precision=recall=1.
	mid := rows[4]
	if mid.Threshold != 0.5 || mid.Precision != 1 || mid.Recall != 1 || mid.F1 != 1 {
		t.Fatalf("threshold 0.5 row = %+v, want precision=recall=f1=1", mid)
	}
}
