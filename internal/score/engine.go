package score

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/transferintel/scout/internal/cache"
	"github.com/transferintel/scout/internal/candidates"
	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/features"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/train"
)

const topDrivers = 5

// usableStatuses is the "status ∈ {completed, deployed}" set a
// ModelVersion must have to be eligible for scoring.
var usableStatuses = map[domain.ModelVersionStatus]bool{
	domain.ModelStatusCompleted: true,
	domain.ModelStatusDeployed:  true,
}

// Engine drives scoring end to end for one (as_of, horizon) run.
type Engine struct {
	models      persistence.ModelsRepo
	predictions persistence.PredictionsRepo
	generator   *candidates.Generator
	builder     *features.Builder
	cfg         config.ScoringConfig
	storagePath string
	cache       *cache.Cache
}

// NewEngine wires the market-view read cache in directly so every
// scoring run can refresh it (§4.G step 5) without the caller having
// to remember to invalidate it out-of-band. cache may be nil (no
// cache configured); invalidation then degrades to a no-op, same as
// every other cache.Cache call site.
func NewEngine(models persistence.ModelsRepo, predictions persistence.PredictionsRepo, generator *candidates.Generator, builder *features.Builder, cfg config.ScoringConfig, storagePath string, marketViewCache *cache.Cache) *Engine {
	return &Engine{models: models, predictions: predictions, generator: generator, builder: builder, cfg: cfg, storagePath: storagePath, cache: marketViewCache}
}

// LoadScorer loads the most recent usable
// ModelVersion, or the heuristic fallback if none exists or the
// artifact fails to load.
func (e *Engine) LoadScorer(ctx context.Context, horizonDays int) Scorer {
	modelName := fmt.Sprintf("transfer_xgb_%dd", horizonDays)

	versions, err := e.models.ListVersions(ctx, modelName, 20)
	if err != nil {
		return NewHeuristicScorer()
	}
	for _, mv := range versions {
		if !usableStatuses[mv.Status] {
			continue
		}
		artifact, err := train.LoadArtifact(e.storagePath, mv.ModelName, mv.ModelVersion)
		if err != nil {
			continue
		}
		return NewModelScorer(artifact)
	}
	return NewHeuristicScorer()
}

// RunResult tallies one scoring run for batch-job reporting.
type RunResult struct {
	PlayersProcessed int
	SnapshotsWritten int
	Failures         int
	FailureDetails   []string

	// ViewKeysInvalidated counts the market-view cache keys dropped by
	// the end-of-run projection refresh (§4.A/§4.G step 5). -1 means
	// the refresh itself failed; the run's snapshots are still valid,
	// only the cached read is stale until the next successful refresh.
	ViewKeysInvalidated int
	ViewRefreshError    string
}

// ScorePlayer runs the scoring pipeline for a single player: generate
// candidates, build a vector per candidate (truncated to
// max_predictions_per_player), score, attribute drivers, and upsert.
func (e *Engine) ScorePlayer(ctx context.Context, scorer Scorer, playerID string, asOf time.Time, horizonDays int) (int, error) {
	set, err := e.generator.Generate(ctx, playerID, asOf, horizonDays)
	if err != nil {
		return 0, fmt.Errorf("score: candidate generation failed: %w", err)
	}

	candidatesForPlayer := set.Candidates
	if len(candidatesForPlayer) > e.cfg.MaxPredictionsPerPlayer {
		candidatesForPlayer = candidatesForPlayer[:e.cfg.MaxPredictionsPerPlayer]
	}

	written := 0
	for _, cand := range candidatesForPlayer {
		v, err := e.builder.Build(ctx, playerID, set.FromClubID, cand.ClubID, asOf)
		if err != nil {
			return written, fmt.Errorf("score: feature build failed for club %s: %w", cand.ClubID, err)
		}

		probability, importances := scorer.ScoreVector(v)
		drivers := attributeDrivers(v, importances)

		driversJSON, err := json.Marshal(drivers)
		if err != nil {
			return written, fmt.Errorf("score: failed to marshal drivers: %w", err)
		}
		featuresJSON, err := json.Marshal(v)
		if err != nil {
			return written, fmt.Errorf("score: failed to marshal features: %w", err)
		}

		toClubID := cand.ClubID
		snapshot := domain.PredictionSnapshot{
			SnapshotID:   snapshotID(playerID, toClubID, horizonDays, asOf),
			ModelVersion: scorer.ModelVersion(),
			ModelName:    fmt.Sprintf("transfer_xgb_%dd", horizonDays),
			PlayerID:     playerID,
			ToClubID:     &toClubID,
			HorizonDays:  horizonDays,
			Probability:  probability,
			DriversJSON:  driversJSON,
			FeaturesJSON: featuresJSON,
			AsOf:         asOf,
			WindowStart:  asOf,
			WindowEnd:    asOf.AddDate(0, 0, horizonDays),
		}
		if set.FromClubID != "" {
			fromClubID := set.FromClubID
			snapshot.FromClubID = &fromClubID
		}
		if err := snapshot.Validate(); err != nil {
			return written, fmt.Errorf("score: snapshot failed validation: %w", err)
		}
		if err := e.predictions.Insert(ctx, snapshot); err != nil {
			return written, fmt.Errorf("score: failed to insert snapshot: %w", err)
		}
		written++
	}
	return written, nil
}

// Run scores every player in playerIDs, counting
// per-player failures rather than aborting the batch.
func (e *Engine) Run(ctx context.Context, playerIDs []string, asOf time.Time, horizonDays int) RunResult {
	var result RunResult
	scorer := e.LoadScorer(ctx, horizonDays)

	for _, playerID := range playerIDs {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		result.PlayersProcessed++
		written, err := e.ScorePlayer(ctx, scorer, playerID, asOf, horizonDays)
		result.SnapshotsWritten += written
		if err != nil {
			result.Failures++
			result.FailureDetails = append(result.FailureDetails, fmt.Sprintf("player %s: %v", playerID, err))
		}
	}
	e.refreshMarketView(ctx, &result)
	return result
}

// refreshMarketView invalidates the player_market_view read cache so
// GET /market/latest stops serving rows from before this run (§4.A,
// §4.G step 5). The refresh is a synchronous redis SCAN+DEL, which is
// the "blocking" fallback §4.A allows when a concurrent refresh isn't
// available; a nil cache (none configured) makes this a no-op.
func (e *Engine) refreshMarketView(ctx context.Context, result *RunResult) {
	if e.cache == nil {
		return
	}
	n, err := e.cache.InvalidatePrefix(ctx, "market:")
	if err != nil {
		result.ViewKeysInvalidated = -1
		result.ViewRefreshError = err.Error()
		return
	}
	result.ViewKeysInvalidated = n
}

// attributeDrivers ranks the top-5 features by
// (importance × normalized_value), where normalized_value is a
// per-vector min-max over the 21 feature values, then renormalize
// those five contributions to sum to 1.
func attributeDrivers(v features.Vector, importances []float64) map[string]float64 {
	raw := make([]float64, len(features.FeatureKeys))
	for i, k := range features.FeatureKeys {
		if p := v[k]; p != nil {
			raw[i] = *p
		}
	}

	minV, maxV := raw[0], raw[0]
	for _, x := range raw {
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	spread := maxV - minV

	type scored struct {
		key   string
		value float64
	}
	var contributions []scored
	for i, k := range features.FeatureKeys {
		if v[k] == nil || i >= len(importances) {
			continue
		}
		normalized := 0.5
		if spread > 0 {
			normalized = (raw[i] - minV) / spread
		}
		contributions = append(contributions, scored{key: k, value: importances[i] * normalized})
	}

	sort.Slice(contributions, func(i, j int) bool { return contributions[i].value > contributions[j].value })
	if len(contributions) > topDrivers {
		contributions = contributions[:topDrivers]
	}

	sum := 0.0
	for _, c := range contributions {
		sum += c.value
	}
	drivers := make(map[string]float64, len(contributions))
	for _, c := range contributions {
		if sum > 0 {
			drivers[c.key] = c.value / sum
		} else {
			drivers[c.key] = 0
		}
	}
	return drivers
}

// snapshotID builds SNAP-<player-short>-<to-short|ANY>-H<H>-<T-stamp>.
func snapshotID(playerID, toClubID string, horizonDays int, asOf time.Time) string {
	to := shortCode(toClubID)
	if to == "" {
		to = "ANY"
	}
	return fmt.Sprintf("SNAP-%s-%s-H%d-%s", shortCode(playerID), to, horizonDays, asOf.UTC().Format("20060102150405.000000"))
}

func shortCode(id string) string {
	upper := strings.ToUpper(id)
	if len(upper) > 8 {
		upper = upper[:8]
	}
	return upper
}
