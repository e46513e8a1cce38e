package candidates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

// rankedClub pairs a club with its resolved league position.
type rankedClub struct {
	clubID   string
	position int
}

// clubsInCompetition returns every club in competitionID except
// excludeClubID (pass "" to exclude nothing).
func (g *Generator) clubsInCompetition(ctx context.Context, competitionID, excludeClubID string) ([]domain.Club, error) {
	if competitionID == "" {
		return nil, nil
	}
	clubs, err := g.reference.ListClubsByCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("candidates: failed to list clubs in competition: %w", err)
	}
	if excludeClubID == "" {
		return clubs, nil
	}
	out := clubs[:0:0]
	for _, c := range clubs {
		if c.ID != excludeClubID {
			out = append(out, c)
		}
	}
	return out, nil
}

// rankByLeaguePosition resolves club_league_position as of asOf for
// each club and returns them sorted ascending by position (1 = top of
// the table). Clubs with no known position sort last.
func (g *Generator) rankByLeaguePosition(ctx context.Context, clubs []domain.Club, asOf time.Time) ([]rankedClub, error) {
	out := make([]rankedClub, 0, len(clubs))
	for _, club := range clubs {
		clubID := club.ID
		row, err := g.reader.LatestSignal(ctx, domain.EntityClub, nil, &clubID, domain.SignalClubLeaguePosition, asOf)
		if err != nil {
			return nil, fmt.Errorf("candidates: failed to resolve league position: %w", err)
		}
		position := 999
		if row != nil && row.Num != nil {
			position = int(*row.Num)
		}
		out = append(out, rankedClub{clubID: clubID, position: position})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].position < out[j].position })
	return out, nil
}

// otherTopTierCompetitions returns every tier-1 competition other than
// excludeID.
func (g *Generator) otherTopTierCompetitions(ctx context.Context, excludeID string) ([]domain.Competition, error) {
	all, err := g.reference.ListCompetitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("candidates: failed to list competitions: %w", err)
	}
	var out []domain.Competition
	for _, c := range all {
		if c.Tier == 1 && c.ID != excludeID {
			out = append(out, c)
		}
	}
	return out, nil
}

// clubsInTopTiers returns every club with tier <= maxTier, excluding
// excludeClubID.
func (g *Generator) clubsInTopTiers(ctx context.Context, maxTier int, excludeClubID string) ([]domain.Club, error) {
	clubs, err := g.reference.ListClubsByMaxTier(ctx, maxTier)
	if err != nil {
		return nil, fmt.Errorf("candidates: failed to list clubs by tier: %w", err)
	}
	if excludeClubID == "" {
		return clubs, nil
	}
	out := clubs[:0:0]
	for _, c := range clubs {
		if c.ID != excludeClubID {
			out = append(out, c)
		}
	}
	return out, nil
}

type pairValue struct {
	clubID string
	value  float64
}

// pairSignalAboveThreshold resolves signalType for playerID against
// every club that has ever reported one, keeping only the latest
// value as of asOf per club and filtering to those above threshold.
// The 180-day lookback window is a generosity bound so a club that
// stopped reporting long ago does not surface as stale-but-high.
func (g *Generator) pairSignalAboveThreshold(ctx context.Context, playerID string, signalType domain.SignalType, asOf time.Time, threshold float64) ([]pairValue, error) {
	tr := persistence.TimeRange{From: asOf.AddDate(0, 0, -180), To: asOf.Add(time.Nanosecond)}
	rows, err := g.signals.ListByTypeInWindow(ctx, signalType, tr)
	if err != nil {
		return nil, fmt.Errorf("candidates: failed to list pair signal: %w", err)
	}

	latest := make(map[string]domain.SignalEvent)
	for _, row := range rows {
		if row.PlayerID == nil || *row.PlayerID != playerID || row.ClubID == nil {
			continue
		}
		if !row.HoldsAt(asOf) {
			continue
		}
		clubID := *row.ClubID
		if existing, ok := latest[clubID]; !ok || row.EffectiveFrom.After(existing.EffectiveFrom) {
			latest[clubID] = row
		}
	}

	var out []pairValue
	for clubID, row := range latest {
		if row.Num == nil || *row.Num <= threshold {
			continue
		}
		out = append(out, pairValue{clubID: clubID, value: *row.Num})
	}
	return out, nil
}

// constraintFitScore implements §4.D item 4's literal formula: a
// position-need component derived from the candidate club's own squad
// composition at the candidate player's position, an affordability
// component comparing the player's market value against the club's
// net spend, and a flat top-tier bonus. Components are additive, not
// weighted, and the total is capped at 1.
func (g *Generator) constraintFitScore(ctx context.Context, playerID string, club domain.Club, asOf time.Time) (float64, error) {
	player, err := g.reference.GetPlayer(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("candidates: constraint fit: failed to load player: %w", err)
	}

	var score float64

	if player != nil && player.Position != nil {
		squad, err := g.reference.ListPlayersByCurrentClubAndPosition(ctx, club.ID, *player.Position)
		if err != nil {
			return 0, fmt.Errorf("candidates: constraint fit: failed to list squad: %w", err)
		}
		switch count := len(squad); {
		case count <= 2:
			score += 0.4
		case count <= 3:
			score += 0.2
		}

		var totalAge float64
		var aged int
		for _, p := range squad {
			if age, ok := p.AgeAt(asOf); ok {
				totalAge += age
				aged++
			}
		}
		if aged > 0 && totalAge/float64(aged) >= 30 {
			score += 0.3
		}
	}

	clubID := club.ID
	netSpendRow, err := g.reader.LatestSignal(ctx, domain.EntityClub, nil, &clubID, domain.SignalClubNetSpend12m, asOf)
	if err != nil {
		return 0, fmt.Errorf("candidates: constraint fit: failed to resolve net spend: %w", err)
	}
	var marketValue *float64
	if player != nil {
		mvRow, err := g.reader.LatestSignal(ctx, domain.EntityPlayer, &playerID, nil, domain.SignalMarketValue, asOf)
		if err != nil {
			return 0, fmt.Errorf("candidates: constraint fit: failed to resolve market value: %w", err)
		}
		if mvRow != nil {
			marketValue = mvRow.Num
		}
	}
	if netSpendRow != nil && netSpendRow.Num != nil && *netSpendRow.Num > 0 &&
		marketValue != nil && *marketValue <= 0.3*(*netSpendRow.Num) {
		score += 0.3
	}

	if club.Tier == 1 {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score, nil
}
