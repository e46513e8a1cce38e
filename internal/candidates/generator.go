// Package candidates implements the candidate-generation engine:
// for a (player, from_club, as_of, horizon) quadruple, produce an
// ordered, deduplicated list of at most max_total destination clubs
// drawn from five sources evaluated in a fixed order. The result is
// cached in candidate_sets keyed on (player, as_of, horizon_days);
// a cache hit short-circuits regeneration entirely.
package candidates

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/net/circuit"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/timetravel"
)

// sourceBreakerConfig governs how many consecutive store-query
// failures a candidate source tolerates before it is skipped for the
// rest of the process's half-open retry window. These sources read
// from the same store as everything else in the pipeline, but they
// are independent of one another by design (§4.D): a persistently
// failing source (e.g. a social-mentions signal type nobody ever
// derived) should degrade that one source, not abort generation for
// every player behind it.
var sourceBreakerConfig = circuit.Config{
	FailureThreshold: 3,
	SuccessThreshold: 1,
	Timeout:          30 * time.Second,
	RequestTimeout:   5 * time.Second,
}

type Generator struct {
	reference  persistence.ReferenceRepo
	signals    persistence.SignalsRepo
	candidates persistence.CandidatesRepo
	reader     *timetravel.Reader
	cfg        config.CandidatesConfig
	breakers   map[string]*circuit.Breaker
}

func New(reference persistence.ReferenceRepo, signals persistence.SignalsRepo, candidatesRepo persistence.CandidatesRepo, reader *timetravel.Reader, cfg config.CandidatesConfig) *Generator {
	breakers := make(map[string]*circuit.Breaker, len(allSources))
	for _, src := range allSources {
		breakers[src.name()] = circuit.NewBreaker(sourceBreakerConfig)
	}
	return &Generator{reference: reference, signals: signals, candidates: candidatesRepo, reader: reader, cfg: cfg, breakers: breakers}
}

// Generate returns the cached CandidateSet for (playerID, asOf,
// horizonDays) if one exists, or builds, persists, and returns a fresh
// one otherwise. Two calls with identical inputs return byte-identical
// candidate lists (T5) because the random source's shuffle is seeded
// from the input triple rather than a process-global source.
func (g *Generator) Generate(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*domain.CandidateSet, error) {
	if cached, err := g.candidates.Get(ctx, playerID, asOf, horizonDays); err != nil {
		return nil, fmt.Errorf("candidates: cache lookup failed: %w", err)
	} else if cached != nil {
		return cached, nil
	}
	return g.regenerate(ctx, playerID, asOf, horizonDays)
}

func (g *Generator) regenerate(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*domain.CandidateSet, error) {
	player, err := g.reference.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("candidates: failed to load player: %w", err)
	}
	if player == nil {
		return nil, fmt.Errorf("candidates: unknown player %q", playerID)
	}

	fromClubID, err := g.currentClubAsOf(ctx, playerID, asOf)
	if err != nil {
		return nil, err
	}

	var competition *domain.Competition
	if fromClubID != "" {
		club, err := g.reference.GetClub(ctx, fromClubID)
		if err != nil {
			return nil, fmt.Errorf("candidates: failed to load club: %w", err)
		}
		if club != nil && club.CompetitionID != nil {
			competition, err = g.reference.GetCompetition(ctx, *club.CompetitionID)
			if err != nil {
				return nil, fmt.Errorf("candidates: failed to load competition: %w", err)
			}
		}
	}
	if competition == nil {
		competition = &domain.Competition{ID: "", Name: "unaffiliated", Tier: 99}
	}

	in := generationInput{
		gen: g, playerID: playerID, fromClubID: fromClubID,
		competition: competition, asOf: asOf, cfg: g.cfg,
		rng: rand.New(rand.NewSource(deterministicSeed(playerID, asOf, horizonDays))),
	}

	byClub := make(map[string]domain.CandidateEntry)
	order := make([]string, 0, g.cfg.MaxTotal)
	counts := domain.SourceCounts{}

	for _, src := range allSources {
		entries, err := g.runSource(ctx, src, in)
		if err != nil {
			log.Warn().Err(err).Str("source", src.name()).Str("player_id", playerID).
				Msg("candidate source degraded, continuing without it")
			continue
		}
		for _, e := range entries {
			if e.ClubID == "" || e.ClubID == fromClubID {
				continue
			}
			if _, exists := byClub[e.ClubID]; exists {
				continue
			}
			byClub[e.ClubID] = e
			order = append(order, e.ClubID)
			incrementSourceCount(&counts, src.name())
		}
	}

	entries := make([]domain.CandidateEntry, 0, len(order))
	for _, clubID := range order {
		entries = append(entries, byClub[clubID])
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > g.cfg.MaxTotal {
		entries = entries[:g.cfg.MaxTotal]
	}

	pctx, err := g.buildPlayerContext(ctx, *player, fromClubID, asOf)
	if err != nil {
		return nil, err
	}

	set := domain.CandidateSet{
		PlayerID:        playerID,
		AsOf:            asOf,
		HorizonDays:     horizonDays,
		FromClubID:      fromClubID,
		TotalCandidates: len(entries),
		SourceCounts:    counts,
		Candidates:      entries,
		PlayerContext:   pctx,
		CreatedAt:       asOf,
	}

	if err := g.candidates.Upsert(ctx, set); err != nil {
		return nil, fmt.Errorf("candidates: failed to persist candidate set: %w", err)
	}
	return &set, nil
}

// runSource executes one candidate source through its circuit breaker.
// An open breaker or a failing query both result in that source
// contributing zero entries for this call; they never abort the
// other sources or the player this generation is for.
func (g *Generator) runSource(ctx context.Context, src source, in generationInput) ([]domain.CandidateEntry, error) {
	breaker, ok := g.breakers[src.name()]
	if !ok {
		return src.generate(ctx, in)
	}
	var entries []domain.CandidateEntry
	err := breaker.Call(ctx, func(ctx context.Context) error {
		var innerErr error
		entries, innerErr = src.generate(ctx, in)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func incrementSourceCount(c *domain.SourceCounts, name string) {
	switch name {
	case "league":
		c.League++
	case "social":
		c.Social++
	case "user_attention":
		c.UserAttention++
	case "constraint_fit":
		c.ConstraintFit++
	case "random":
		c.Random++
	}
}

// deterministicSeed derives a reproducible int64 seed from the
// (player, as_of, horizon) triple so the random source's output is
// stable across repeated generation for identical inputs (T5).
func deterministicSeed(playerID string, asOf time.Time, horizonDays int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", playerID, asOf.UTC().Format(time.RFC3339Nano), horizonDays)
	return int64(h.Sum64())
}

// currentClubAsOf resolves the player's club at T from the latest
// club_tier signal rather than the denormalized
// Player.CurrentClubID hint (OQ1) — it returns "" if no club signal
// exists.
func (g *Generator) currentClubAsOf(ctx context.Context, playerID string, asOf time.Time) (string, error) {
	row, err := g.reader.LatestSignal(ctx, domain.EntityPlayer, &playerID, nil, domain.SignalClubTier, asOf)
	if err != nil {
		return "", fmt.Errorf("candidates: failed to resolve current club: %w", err)
	}
	if row == nil || row.Text == nil {
		return "", nil
	}
	return *row.Text, nil
}

func (g *Generator) buildPlayerContext(ctx context.Context, player domain.Player, fromClubID string, asOf time.Time) (domain.PlayerContext, error) {
	pctx := domain.PlayerContext{Name: player.Name, Position: player.Position}
	if fromClubID != "" {
		clubID := fromClubID
		pctx.ClubID = &clubID
	}
	if age, ok := player.AgeAt(asOf); ok {
		pctx.Age = &age
	}
	if row, err := g.reader.LatestSignal(ctx, domain.EntityPlayer, &player.ID, nil, domain.SignalMarketValue, asOf); err != nil {
		return pctx, fmt.Errorf("candidates: failed to load market_value: %w", err)
	} else if row != nil && row.Num != nil {
		pctx.MarketValue = row.Num
	}
	if row, err := g.reader.LatestSignal(ctx, domain.EntityPlayer, &player.ID, nil, domain.SignalContractMonthsRemaining, asOf); err != nil {
		return pctx, fmt.Errorf("candidates: failed to load contract_months_remaining: %w", err)
	} else if row != nil && row.Num != nil {
		pctx.ContractMonthsRemaining = row.Num
	}
	return pctx, nil
}
