package candidates

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
)

// source is one of the five pluggable candidate sources.
// Sources are evaluated in a fixed order and deduplicated by club_id —
// first source wins a club, later sources never overwrite it.
type source interface {
	name() string
	generate(ctx context.Context, in generationInput) ([]domain.CandidateEntry, error)
}

type generationInput struct {
	gen         *Generator
	playerID    string
	fromClubID  string
	competition *domain.Competition
	asOf        time.Time
	cfg         config.CandidatesConfig
	rng         *rand.Rand
}

// leagueSource ranks clubs by club_league_position, same-league up to
// MaxSameLeague plus the top MaxPerOtherTopLeague from every other
// top-tier (tier 1) competition.
type leagueSource struct{}

func (leagueSource) name() string { return "league" }

func (leagueSource) generate(ctx context.Context, in generationInput) ([]domain.CandidateEntry, error) {
	var out []domain.CandidateEntry

	sameLeagueClubs, err := in.gen.clubsInCompetition(ctx, in.competition.ID, in.fromClubID)
	if err != nil {
		return nil, err
	}
	ranked, err := in.gen.rankByLeaguePosition(ctx, sameLeagueClubs, in.asOf)
	if err != nil {
		return nil, err
	}
	for i, rc := range ranked {
		if i >= in.cfg.MaxSameLeague {
			break
		}
		score := 1.0 - float64(rc.position)/20.0
		if score < 0 {
			score = 0
		}
		out = append(out, domain.CandidateEntry{
			ClubID: rc.clubID, Source: "league", Score: score,
			Reason: fmt.Sprintf("Top %d in %s", rc.position, in.competition.Name),
		})
	}

	otherTopCompetitions, err := in.gen.otherTopTierCompetitions(ctx, in.competition.ID)
	if err != nil {
		return nil, err
	}
	for _, comp := range otherTopCompetitions {
		clubs, err := in.gen.clubsInCompetition(ctx, comp.ID, "")
		if err != nil {
			return nil, err
		}
		ranked, err := in.gen.rankByLeaguePosition(ctx, clubs, in.asOf)
		if err != nil {
			return nil, err
		}
		for i, rc := range ranked {
			if i >= in.cfg.MaxPerOtherTopLeague {
				break
			}
			score := 0.8 - float64(rc.position)/30.0
			if score < 0 {
				score = 0
			}
			out = append(out, domain.CandidateEntry{
				ClubID: rc.clubID, Source: "league", Score: score,
				Reason: fmt.Sprintf("Top %d in %s", rc.position, comp.Name),
			})
		}
	}
	return out, nil
}

// socialSource surfaces clubs with high pair-level social_mention_velocity.
type socialSource struct{}

func (socialSource) name() string { return "social" }

func (socialSource) generate(ctx context.Context, in generationInput) ([]domain.CandidateEntry, error) {
	pairs, err := in.gen.pairSignalAboveThreshold(ctx, in.playerID, domain.SignalSocialMentionVelocity, in.asOf, in.cfg.SocialThreshold)
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].value > pairs[j].value })

	var out []domain.CandidateEntry
	for i, p := range pairs {
		if i >= in.cfg.MaxSocial {
			break
		}
		score := p.value / 10
		if score > 1 {
			score = 1
		}
		out = append(out, domain.CandidateEntry{
			ClubID: p.clubID, Source: "social", Score: score,
			Reason: fmt.Sprintf("Social co-mention velocity %.1f", p.value),
		})
	}
	return out, nil
}

// userAttentionSource surfaces clubs with high user_destination_cooccurrence.
type userAttentionSource struct{}

func (userAttentionSource) name() string { return "user_attention" }

func (userAttentionSource) generate(ctx context.Context, in generationInput) ([]domain.CandidateEntry, error) {
	pairs, err := in.gen.pairSignalAboveThreshold(ctx, in.playerID, domain.SignalUserDestinationCooccur, in.asOf, in.cfg.AttentionThreshold)
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].value > pairs[j].value })

	var out []domain.CandidateEntry
	for i, p := range pairs {
		if i >= in.cfg.MaxUserAttention {
			break
		}
		score := p.value / 100
		if score > 1 {
			score = 1
		}
		out = append(out, domain.CandidateEntry{
			ClubID: p.clubID, Source: "user_attention", Score: score,
			Reason: fmt.Sprintf("User attention cooccurrence %.1f", p.value),
		})
	}
	return out, nil
}

// constraintFitSource scores top-2-tier clubs on positional need,
// affordability, and a flat tier-1 bonus.
type constraintFitSource struct{}

func (constraintFitSource) name() string { return "constraint_fit" }

func (constraintFitSource) generate(ctx context.Context, in generationInput) ([]domain.CandidateEntry, error) {
	clubs, err := in.gen.clubsInTopTiers(ctx, 2, in.fromClubID)
	if err != nil {
		return nil, err
	}

	var out []domain.CandidateEntry
	for _, club := range clubs {
		score, err := in.gen.constraintFitScore(ctx, in.playerID, club, in.asOf)
		if err != nil {
			return nil, err
		}
		if score <= in.cfg.ConstraintFitMinimum {
			continue
		}
		out = append(out, domain.CandidateEntry{
			ClubID: club.ID, Source: "constraint_fit", Score: score,
			Reason: fmt.Sprintf("Constraint fit score %.2f", score),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > in.cfg.MaxConstraintFit {
		out = out[:in.cfg.MaxConstraintFit]
	}
	return out, nil
}

// randomSource draws a deterministic uniform sample from top-3-tier
// clubs, seeded from the (player, as_of, horizon) triple so repeated
// generation for identical inputs reproduces the same draw (T5).
type randomSource struct{}

func (randomSource) name() string { return "random" }

func (randomSource) generate(ctx context.Context, in generationInput) ([]domain.CandidateEntry, error) {
	clubs, err := in.gen.clubsInTopTiers(ctx, 3, in.fromClubID)
	if err != nil {
		return nil, err
	}
	in.rng.Shuffle(len(clubs), func(i, j int) { clubs[i], clubs[j] = clubs[j], clubs[i] })

	var out []domain.CandidateEntry
	for i, club := range clubs {
		if i >= in.cfg.MaxRandom {
			break
		}
		out = append(out, domain.CandidateEntry{
			ClubID: club.ID, Source: "random", Score: 0.1, Reason: "Random exploration sample",
		})
	}
	return out, nil
}

var allSources = []source{
	leagueSource{}, socialSource{}, userAttentionSource{}, constraintFitSource{}, randomSource{},
}
