package train

import "math"

// ModelType selects which of the two model families to fit.
type ModelType string

const (
	ModelTypeLogistic ModelType = "logistic"
	ModelTypeBoosted  ModelType = "boosted_stumps"
)

// Model is the scored-artifact contract: predict a probability from a
// preprocessed (imputed + standardized) row, and report feature
// importances normalized to sum to 1.
type Model interface {
	Predict(row []float64) float64
	Importances() []float64
}

// LogisticRegression is a hand-rolled binary linear classifier fit by
// batch gradient descent on the (optionally class-weighted) log-loss.
type LogisticRegression struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func sigmoid(z float64) float64 { return 1.0 / (1.0 + math.Exp(-z)) }

// FitLogisticRegression runs batch gradient descent for epochs
// iterations at the given learning rate. Class weights rebalance the
// gradient contribution of the minority label so a 1:3 positive:negative
// training frame's class imbalance does not bias the decision
// boundary toward "no transfer".
func FitLogisticRegression(rows [][]float64, labels []int, learningRate float64, epochs int) *LogisticRegression {
	nFeatures := len(rows[0])
	m := &LogisticRegression{Weights: make([]float64, nFeatures)}

	var posCount, negCount float64
	for _, y := range labels {
		if y == 1 {
			posCount++
		} else {
			negCount++
		}
	}
	posWeight, negWeight := 1.0, 1.0
	if posCount > 0 && negCount > 0 {
		total := posCount + negCount
		posWeight = total / (2 * posCount)
		negWeight = total / (2 * negCount)
	}

	n := float64(len(rows))
	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, nFeatures)
		var gradB float64

		for i, row := range rows {
			pred := sigmoid(m.dot(row))
			weight := negWeight
			if labels[i] == 1 {
				weight = posWeight
			}
			err := weight * (pred - float64(labels[i]))
			for j, x := range row {
				gradW[j] += err * x
			}
			gradB += err
		}
		for j := range m.Weights {
			m.Weights[j] -= learningRate * gradW[j] / n
		}
		m.Bias -= learningRate * gradB / n
	}
	return m
}

func (m *LogisticRegression) dot(row []float64) float64 {
	sum := m.Bias
	for j, x := range row {
		sum += m.Weights[j] * x
	}
	return sum
}

func (m *LogisticRegression) Predict(row []float64) float64 {
	return sigmoid(m.dot(row))
}

// Importances reports |weight| normalized to sum to 1.
func (m *LogisticRegression) Importances() []float64 {
	return normalizeAbs(m.Weights)
}

func normalizeAbs(weights []float64) []float64 {
	out := make([]float64, len(weights))
	sum := 0.0
	for i, w := range weights {
		out[i] = math.Abs(w)
		sum += out[i]
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// stump is one decision-stump weak learner: a single feature/threshold
// split with two constant leaf outputs.
type stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	LeftValue float64 `json:"left_value"`
	RightVal  float64 `json:"right_value"`
}

func (s stump) predict(row []float64) float64 {
	if row[s.Feature] < s.Threshold {
		return s.LeftValue
	}
	return s.RightVal
}

// BoostedStumps is a gradient-boosted ensemble of decision stumps,
// fit by functional gradient descent on the logistic loss — the same
// residual-fitting idiom as a full GBDT, with depth capped at 1 so the
// whole trainer stays dependency-free.
type BoostedStumps struct {
	Stumps       []stump `json:"stumps"`
	LearningRate float64 `json:"learning_rate"`
	baseScore    float64
}

func FitBoostedStumps(rows [][]float64, labels []int, learningRate float64, numTrees int) *BoostedStumps {
	n := len(rows)
	nFeatures := len(rows[0])

	var posRate float64
	for _, y := range labels {
		posRate += float64(y)
	}
	posRate /= float64(n)
	posRate = math.Max(1e-6, math.Min(1-1e-6, posRate))
	baseScore := math.Log(posRate / (1 - posRate))

	m := &BoostedStumps{LearningRate: learningRate, baseScore: baseScore}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = baseScore
	}

	for t := 0; t < numTrees; t++ {
		residuals := make([]float64, n)
		for i := range residuals {
			residuals[i] = float64(labels[i]) - sigmoid(scores[i])
		}

		best := bestStump(rows, residuals, nFeatures)
		for i, row := range rows {
			scores[i] += learningRate * best.predict(row)
		}
		m.Stumps = append(m.Stumps, best)
	}
	return m
}

// bestStump finds the (feature, threshold) split minimizing squared
// residual error, with each leaf set to the mean residual of its side —
// the standard regression-stump fit used inside gradient boosting.
func bestStump(rows [][]float64, residuals []float64, nFeatures int) stump {
	var best stump
	bestLoss := math.Inf(1)

	for f := 0; f < nFeatures; f++ {
		candidates := make([]float64, len(rows))
		for i, row := range rows {
			candidates[i] = row[f]
		}

		for _, threshold := range candidates {
			var leftSum, rightSum float64
			var leftN, rightN int
			for i, row := range rows {
				if row[f] < threshold {
					leftSum += residuals[i]
					leftN++
				} else {
					rightSum += residuals[i]
					rightN++
				}
			}
			if leftN == 0 || rightN == 0 {
				continue
			}
			leftVal := leftSum / float64(leftN)
			rightVal := rightSum / float64(rightN)

			loss := 0.0
			for i, row := range rows {
				pred := rightVal
				if row[f] < threshold {
					pred = leftVal
				}
				d := residuals[i] - pred
				loss += d * d
			}
			if loss < bestLoss {
				bestLoss = loss
				best = stump{Feature: f, Threshold: threshold, LeftValue: leftVal, RightVal: rightVal}
			}
		}
	}
	return best
}

func (m *BoostedStumps) Predict(row []float64) float64 {
	score := m.baseScore
	for _, s := range m.Stumps {
		score += m.LearningRate * s.predict(row)
	}
	return sigmoid(score)
}

// Importances tallies how often each feature is split on, weighted by
// the gap between each stump's two leaf values, then normalizes to sum to 1.
func (m *BoostedStumps) Importances() []float64 {
	if len(m.Stumps) == 0 {
		return nil
	}
	maxFeature := 0
	for _, s := range m.Stumps {
		if s.Feature > maxFeature {
			maxFeature = s.Feature
		}
	}
	counts := make([]float64, maxFeature+1)
	for _, s := range m.Stumps {
		counts[s.Feature] += math.Abs(s.LeftValue-s.RightVal) + 1e-9
	}
	return normalizeAbs(counts)
}
