package features

import (
	"context"
	"fmt"
	"time"

	"github.com/transferintel/scout/internal/candidates"
	"github.com/transferintel/scout/internal/persistence"
)

// BulkResult tallies a bulk feature build's outcome for batch-job
// reporting (partial failures are counted and reported).
type BulkResult struct {
	PlayersProcessed int
	VectorsWritten   int
	Failures         int
	FailureDetails   []string
}

// BulkBuild runs candidate generation for every player in playerIDs, then builds and
// upserts a FeatureSnapshot for each resulting candidate. A failure on
// one player is counted and does not abort the run.
func (b *Builder) BulkBuild(ctx context.Context, gen *candidates.Generator, snapshots persistence.FeatureSnapshotRepo, playerIDs []string, asOf time.Time, horizonDays int) BulkResult {
	var result BulkResult

	for _, playerID := range playerIDs {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		result.PlayersProcessed++

		set, err := gen.Generate(ctx, playerID, asOf, horizonDays)
		if err != nil {
			result.Failures++
			result.FailureDetails = append(result.FailureDetails, fmt.Sprintf("player %s: candidate generation failed: %v", playerID, err))
			continue
		}

		for _, cand := range set.Candidates {
			v, err := b.Build(ctx, playerID, set.FromClubID, cand.ClubID, asOf)
			if err != nil {
				result.Failures++
				result.FailureDetails = append(result.FailureDetails, fmt.Sprintf("player %s / club %s: feature build failed: %v", playerID, cand.ClubID, err))
				continue
			}
			snap := ToFeatureSnapshot(playerID, cand.ClubID, asOf, v)
			if err := snapshots.Upsert(ctx, snap); err != nil {
				result.Failures++
				result.FailureDetails = append(result.FailureDetails, fmt.Sprintf("player %s / club %s: snapshot upsert failed: %v", playerID, cand.ClubID, err))
				continue
			}
			result.VectorsWritten++
		}
	}
	return result
}

// ActivePlayerIDs is a thin helper for callers (the scheduler, the CLI)
// that need the IDs of the players matching query (up to limit), as
// returned by ReferenceRepo.SearchPlayers; it does not filter on
// whether a current club resolves. It is not itself part of the
// feature vector contract.
func ActivePlayerIDs(ctx context.Context, reference persistence.ReferenceRepo, query string, limit int) ([]string, error) {
	players, err := reference.SearchPlayers(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("features: failed to list active players: %w", err)
	}
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
