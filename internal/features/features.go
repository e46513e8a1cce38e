// Package features builds the fixed-key feature vector for a
// (player, from_club, to_club, as_of) quadruple, all reads
// going through internal/timetravel so no file in this package ever
// inlines a bitemporal predicate.
package features

import (
	"context"
	"fmt"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/timetravel"
)

// FeatureVersion is bumped whenever FeatureKeys changes shape; stored
// alongside every FeatureSnapshot so a model trained against one
// version is never silently scored against vectors built under another.
const FeatureVersion = 1

// FeatureKeys is the fixed, ordered list of feature names every vector
// carries (missing values are nil, never omitted).
var FeatureKeys = []string{
	"age",
	"position_encoded",
	"market_value",
	"contract_months_remaining",
	"goals_last_10",
	"assists_last_10",
	"minutes_last_5",
	"social_mention_velocity",
	"user_attention_velocity",
	"from_club_league_position",
	"from_club_points_per_game",
	"from_club_net_spend_12m",
	"from_club_tier",
	"to_club_league_position",
	"to_club_points_per_game",
	"to_club_net_spend_12m",
	"to_club_tier",
	"same_country",
	"same_league",
	"tier_difference",
	"user_destination_cooccurrence",
}

// PositionEncoding is the fixed 10-entry ordinal mapping.
// Unknown positions encode as nil, not 0, so imputation (not a fake
// goalkeeper-equivalent ordinal) handles them at training time.
var PositionEncoding = map[string]float64{
	"GK": 0, "CB": 1, "LB": 2, "RB": 3, "DM": 4,
	"CM": 5, "AM": 6, "LW": 7, "RW": 8, "ST": 9,
}

// Vector is a dense, fixed-key feature row keyed exactly by FeatureKeys.
type Vector map[string]*float64

// Builder builds feature vectors and the bulk/training-set products
// derived from them.
type Builder struct {
	reference persistence.ReferenceRepo
	reader    *timetravel.Reader
}

func NewBuilder(reference persistence.ReferenceRepo, reader *timetravel.Reader) *Builder {
	return &Builder{reference: reference, reader: reader}
}

// Build returns the feature vector for (playerID, fromClubID, toClubID)
// as of asOf. fromClubID may be empty for an unattached player.
func (b *Builder) Build(ctx context.Context, playerID, fromClubID, toClubID string, asOf time.Time) (Vector, error) {
	v := make(Vector, len(FeatureKeys))
	for _, k := range FeatureKeys {
		v[k] = nil
	}

	player, err := b.reference.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("features: failed to load player: %w", err)
	}
	if player == nil {
		return nil, fmt.Errorf("features: unknown player %q", playerID)
	}

	if age, ok := player.AgeAt(asOf); ok {
		v["age"] = ptr(age)
	}
	if player.Position != nil {
		if enc, ok := PositionEncoding[*player.Position]; ok {
			v["position_encoded"] = ptr(enc)
		}
	}

	if err := b.setPlayerScalar(ctx, v, "market_value", playerID, domain.SignalMarketValue, asOf); err != nil {
		return nil, err
	}
	if err := b.setPlayerScalar(ctx, v, "contract_months_remaining", playerID, domain.SignalContractMonthsRemaining, asOf); err != nil {
		return nil, err
	}
	if err := b.setPlayerScalar(ctx, v, "goals_last_10", playerID, domain.SignalGoalsLast10, asOf); err != nil {
		return nil, err
	}
	if err := b.setPlayerScalar(ctx, v, "assists_last_10", playerID, domain.SignalAssistsLast10, asOf); err != nil {
		return nil, err
	}
	if err := b.setPlayerScalar(ctx, v, "minutes_last_5", playerID, domain.SignalMinutesLast5, asOf); err != nil {
		return nil, err
	}
	if err := b.setPlayerScalar(ctx, v, "social_mention_velocity", playerID, domain.SignalSocialMentionVelocity, asOf); err != nil {
		return nil, err
	}
	if err := b.setPlayerScalar(ctx, v, "user_attention_velocity", playerID, domain.SignalUserAttentionVelocity, asOf); err != nil {
		return nil, err
	}

	var fromClub, toClub *domain.Club
	if fromClubID != "" {
		fromClub, err = b.reference.GetClub(ctx, fromClubID)
		if err != nil {
			return nil, fmt.Errorf("features: failed to load from_club: %w", err)
		}
		if err := b.setClubScalars(ctx, v, "from_club_", fromClubID, asOf); err != nil {
			return nil, err
		}
	}
	if toClubID != "" {
		toClub, err = b.reference.GetClub(ctx, toClubID)
		if err != nil {
			return nil, fmt.Errorf("features: failed to load to_club: %w", err)
		}
		if err := b.setClubScalars(ctx, v, "to_club_", toClubID, asOf); err != nil {
			return nil, err
		}
	}

	if fromClub != nil && toClub != nil {
		if fromClub.Country != "" && toClub.Country != "" {
			v["same_country"] = ptr(boolFloat(fromClub.Country == toClub.Country))
		}
		if fromClub.CompetitionID != nil && toClub.CompetitionID != nil {
			v["same_league"] = ptr(boolFloat(*fromClub.CompetitionID == *toClub.CompetitionID))
		}
		v["tier_difference"] = ptr(float64(toClub.Tier - fromClub.Tier))
	}

	if toClubID != "" {
		row, err := b.reader.LatestSignal(ctx, domain.EntityPair, &playerID, &toClubID, domain.SignalUserDestinationCooccur, asOf)
		if err != nil {
			return nil, fmt.Errorf("features: failed to load user_destination_cooccurrence: %w", err)
		}
		if row != nil && row.Num != nil {
			v["user_destination_cooccurrence"] = row.Num
		}
	}

	return v, nil
}

func (b *Builder) setPlayerScalar(ctx context.Context, v Vector, key, playerID string, signalType domain.SignalType, asOf time.Time) error {
	row, err := b.reader.LatestSignal(ctx, domain.EntityPlayer, &playerID, nil, signalType, asOf)
	if err != nil {
		return fmt.Errorf("features: failed to load %s: %w", key, err)
	}
	if row != nil && row.Num != nil {
		v[key] = row.Num
	}
	return nil
}

func (b *Builder) setClubScalars(ctx context.Context, v Vector, prefix, clubID string, asOf time.Time) error {
	pairs := []struct {
		key        string
		signalType domain.SignalType
	}{
		{prefix + "league_position", domain.SignalClubLeaguePosition},
		{prefix + "points_per_game", domain.SignalClubPointsPerGame},
		{prefix + "net_spend_12m", domain.SignalClubNetSpend12m},
		{prefix + "tier", domain.SignalClubTier},
	}
	for _, p := range pairs {
		row, err := b.reader.LatestSignal(ctx, domain.EntityClub, nil, &clubID, p.signalType, asOf)
		if err != nil {
			return fmt.Errorf("features: failed to load %s: %w", p.key, err)
		}
		if row != nil && row.Num != nil {
			v[p.key] = row.Num
		}
	}
	return nil
}

func ptr(f float64) *float64 { return &f }

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ToFeatureSnapshot converts a built Vector into the persisted row
// shape, keyed by (player, candidate_club, as_of).
func ToFeatureSnapshot(playerID, candidateClubID string, asOf time.Time, v Vector) domain.FeatureSnapshot {
	return domain.FeatureSnapshot{
		PlayerID:        playerID,
		CandidateClubID: candidateClubID,
		AsOf:            asOf,
		Features:        v,
		FeatureVersion:  FeatureVersion,
	}
}
