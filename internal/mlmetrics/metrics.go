// Package mlmetrics implements the binary-classification metrics
// the trainer and the evaluator both need, so the two packages
// share one definition of AUC, log-loss, calibration, and the
// threshold sweep instead of each growing its own.
package mlmetrics

import (
	"math"
	"sort"

	"github.com/transferintel/scout/internal/domain"
)

// ConfusionCounts at a fixed decision threshold.
type ConfusionCounts struct {
	TP, FP, TN, FN int
}

func Confusion(yTrue []int, yProb []float64, threshold float64) ConfusionCounts {
	var c ConfusionCounts
	for i, y := range yTrue {
		pred := 0
		if yProb[i] >= threshold {
			pred = 1
		}
		switch {
		case y == 1 && pred == 1:
			c.TP++
		case y == 0 && pred == 1:
			c.FP++
		case y == 0 && pred == 0:
			c.TN++
		case y == 1 && pred == 0:
			c.FN++
		}
	}
	return c
}

func (c ConfusionCounts) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

func (c ConfusionCounts) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

func (c ConfusionCounts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c ConfusionCounts) Accuracy() float64 {
	total := c.TP + c.FP + c.TN + c.FN
	if total == 0 {
		return 0
	}
	return float64(c.TP+c.TN) / float64(total)
}

// AUCROC computes the area under the ROC curve via the rank-sum
// (Mann-Whitney U) identity, avoiding an explicit curve sweep.
func AUCROC(yTrue []int, yProb []float64) float64 {
	type pair struct {
		prob float64
		y    int
	}
	pairs := make([]pair, len(yTrue))
	for i := range yTrue {
		pairs[i] = pair{yProb[i], yTrue[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].prob < pairs[j].prob })

	var nPos, nNeg int
	for _, p := range pairs {
		if p.y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}

	var rankSum float64
	i := 0
	for i < len(pairs) {
		j := i
		for j < len(pairs) && pairs[j].prob == pairs[i].prob {
			j++
		}
		avgRank := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			if pairs[k].y == 1 {
				rankSum += avgRank
			}
		}
		i = j
	}
	u := rankSum - float64(nPos)*float64(nPos+1)/2.0
	return u / (float64(nPos) * float64(nNeg))
}

// AUCPR approximates the area under the precision-recall curve via
// trapezoidal integration over thresholds drawn from the observed
// probabilities themselves.
func AUCPR(yTrue []int, yProb []float64) float64 {
	thresholds := append([]float64{}, yProb...)
	sort.Float64s(thresholds)

	type point struct{ recall, precision float64 }
	points := make([]point, 0, len(thresholds)+1)
	for _, t := range thresholds {
		c := Confusion(yTrue, yProb, t)
		points = append(points, point{c.Recall(), c.Precision()})
	}
	points = append(points, point{0, 1})
	sort.Slice(points, func(i, j int) bool {
		if points[i].recall != points[j].recall {
			return points[i].recall < points[j].recall
		}
		return points[i].precision > points[j].precision
	})

	area := 0.0
	for i := 1; i < len(points); i++ {
		dx := points[i].recall - points[i-1].recall
		avgY := (points[i].precision + points[i-1].precision) / 2
		area += dx * avgY
	}
	return area
}

const epsilon = 1e-15

func clamp(p float64) float64 {
	if p < epsilon {
		return epsilon
	}
	if p > 1-epsilon {
		return 1 - epsilon
	}
	return p
}

func LogLoss(yTrue []int, yProb []float64) float64 {
	sum := 0.0
	for i, y := range yTrue {
		p := clamp(yProb[i])
		if y == 1 {
			sum += -math.Log(p)
		} else {
			sum += -math.Log(1 - p)
		}
	}
	return sum / float64(len(yTrue))
}

func Brier(yTrue []int, yProb []float64) float64 {
	sum := 0.0
	for i, y := range yTrue {
		d := yProb[i] - float64(y)
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

// CalibrationBins splits [0,1] into nBins equal-width buckets and
// reports predicted/actual mean + count per bucket.
func CalibrationBins(yTrue []int, yProb []float64, nBins int) []domain.CalibrationBin {
	bins := make([]domain.CalibrationBin, nBins)
	width := 1.0 / float64(nBins)
	for i := range bins {
		bins[i].RangeLow = float64(i) * width
		bins[i].RangeHigh = float64(i+1) * width
	}

	sums := make([]float64, nBins)
	actuals := make([]float64, nBins)
	counts := make([]int, nBins)
	for i, p := range yProb {
		idx := int(p / width)
		if idx >= nBins {
			idx = nBins - 1
		}
		sums[idx] += p
		actuals[idx] += float64(yTrue[i])
		counts[idx]++
	}
	for i := range bins {
		bins[i].Count = counts[i]
		if counts[i] > 0 {
			bins[i].PredictedMean = sums[i] / float64(counts[i])
			bins[i].ActualMean = actuals[i] / float64(counts[i])
		}
	}
	return bins
}

// CalibrationFit fits actual ~ slope*predicted + intercept via
// ordinary least squares over the non-empty calibration bins.
func CalibrationFit(bins []domain.CalibrationBin) (slope, intercept float64) {
	var n, sumX, sumY, sumXY, sumXX float64
	for _, b := range bins {
		if b.Count == 0 {
			continue
		}
		n++
		sumX += b.PredictedMean
		sumY += b.ActualMean
		sumXY += b.PredictedMean * b.ActualMean
		sumXX += b.PredictedMean * b.PredictedMean
	}
	if n < 2 {
		return 1, 0
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 1, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// ThresholdSweep evaluates precision/recall/F1 at {0.1..0.9 step 0.1}.
func ThresholdSweep(yTrue []int, yProb []float64) []domain.ThresholdRow {
	var rows []domain.ThresholdRow
	for t := 1; t <= 9; t++ {
		threshold := float64(t) / 10
		c := Confusion(yTrue, yProb, threshold)
		rows = append(rows, domain.ThresholdRow{
			Threshold: threshold, Precision: c.Precision(), Recall: c.Recall(), F1: c.F1(),
		})
	}
	return rows
}
