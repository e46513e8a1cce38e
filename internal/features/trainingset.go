package features

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/timetravel"
)

// qualifyingTransferTypes is the closed set of transfer
// kinds that count as a positive training example.
var qualifyingTransferTypes = map[domain.TransferType]bool{
	domain.TransferPermanent:      true,
	domain.TransferLoan:           true,
	domain.TransferLoanWithOption: true,
}

// TrainingRow is one labeled example keyed by {player_id, to_club_id,
// feature_date, label}.
type TrainingRow struct {
	PlayerID    string
	ToClubID    string
	FeatureDate time.Time
	Label       int
	Vector      Vector
}

// TrainingFrameResult bundles the built rows with skip/failure counts
// for batch-job reporting.
type TrainingFrameResult struct {
	Rows            []TrainingRow
	SkippedLeakage  int
	SkippedFailures int
}

// NegativeSampler draws candidate "did not transfer here" clubs for a
// positive example. The default implementation samples uniformly from
// active clubs; swapping in a candidate-generator-based sampler must
// not change this interface.
type NegativeSampler interface {
	Sample(ctx context.Context, playerID, fromClubID, actualToClubID string, asOf time.Time, n int) ([]string, error)
}

// UniformClubSampler draws n distinct club IDs uniformly at random
// from every club of tier 5 or better, excluding fromClubID and
// actualToClubID.
type UniformClubSampler struct {
	reference persistence.ReferenceRepo
	rng       *rand.Rand
}

func NewUniformClubSampler(reference persistence.ReferenceRepo, seed int64) *UniformClubSampler {
	return &UniformClubSampler{reference: reference, rng: rand.New(rand.NewSource(seed))}
}

func (s *UniformClubSampler) Sample(ctx context.Context, playerID, fromClubID, actualToClubID string, asOf time.Time, n int) ([]string, error) {
	pool, err := s.reference.ListClubsByMaxTier(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("uniform_club_sampler: failed to list club pool: %w", err)
	}
	eligible := make([]string, 0, len(pool))
	for _, c := range pool {
		if c.ID != fromClubID && c.ID != actualToClubID {
			eligible = append(eligible, c.ID)
		}
	}
	s.rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	if len(eligible) > n {
		eligible = eligible[:n]
	}
	return eligible, nil
}

const negativesPerPositive = 3

// BuildTrainingFrame builds the training set: positives
// from the ledger within [trainAsOf-lookback, trainAsOf], each paired
// with negativesPerPositive sampled negatives at the same feature_date.
func (b *Builder) BuildTrainingFrame(ctx context.Context, ledger persistence.LedgerRepo, sampler NegativeSampler, trainAsOf time.Time, lookback time.Duration, horizonDays int) (TrainingFrameResult, error) {
	var result TrainingFrameResult

	tr := persistence.TimeRange{From: trainAsOf.Add(-lookback), To: trainAsOf.Add(time.Nanosecond)}
	events, err := ledger.ListInWindow(ctx, tr)
	if err != nil {
		return result, fmt.Errorf("features: failed to list ledger window: %w", err)
	}

	for _, e := range events {
		if e.IsSuperseded || e.FromClubID == nil || !qualifyingTransferTypes[e.TransferType] {
			continue
		}

		featureDate := timetravel.FeatureDateForHorizon(e.TransferDate, horizonDays)
		if err := timetravel.ValidateTrainingLabelTimeTravel(e.TransferDate, featureDate, horizonDays); err != nil {
			result.SkippedLeakage++
			continue
		}

		posVector, err := b.Build(ctx, e.PlayerID, *e.FromClubID, e.ToClubID, featureDate)
		if err != nil {
			result.SkippedFailures++
			continue
		}
		result.Rows = append(result.Rows, TrainingRow{
			PlayerID: e.PlayerID, ToClubID: e.ToClubID, FeatureDate: featureDate, Label: 1, Vector: posVector,
		})

		negatives, err := sampler.Sample(ctx, e.PlayerID, *e.FromClubID, e.ToClubID, featureDate, negativesPerPositive)
		if err != nil {
			result.SkippedFailures++
			continue
		}
		for _, negClubID := range negatives {
			negVector, err := b.Build(ctx, e.PlayerID, *e.FromClubID, negClubID, featureDate)
			if err != nil {
				result.SkippedFailures++
				continue
			}
			result.Rows = append(result.Rows, TrainingRow{
				PlayerID: e.PlayerID, ToClubID: negClubID, FeatureDate: featureDate, Label: 0, Vector: negVector,
			})
		}
	}

	return result, nil
}
