package candidates

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/timetravel"
)

func setupGenerator() (*Generator, *fakeReferenceRepo, *fakeSignalsRepo, *fakeCandidatesRepo) {
	ref := newFakeReferenceRepo()
	sig := &fakeSignalsRepo{}
	cand := newFakeCandidatesRepo()
	reader := timetravel.NewReader(sig, nil)
	cfg := config.Default().Candidates
	return New(ref, sig, cand, reader, cfg), ref, sig, cand
}

// A player currently in a club whose competition has 4 clubs other
// than the current one; the league sub-source returns up to 4.
func seedFourClubLeague(ref *fakeReferenceRepo, sig *fakeSignalsRepo, playerID, fromClubID string, asOf time.Time) {
	comp := "comp-home"
	ref.competitions[comp] = domain.Competition{ID: comp, Name: "Home League", Tier: 1}
	ref.players[playerID] = domain.Player{ID: playerID, Name: "Test Player"}
	ref.clubs[fromClubID] = domain.Club{ID: fromClubID, CompetitionID: &comp, Tier: 1}
	for i, id := range []string{"club-a", "club-b", "club-c", "club-d"} {
		ref.clubs[id] = domain.Club{ID: id, CompetitionID: &comp, Tier: 1}
		clubID := id
		sig.rows = append(sig.rows, domain.SignalEvent{
			EntityType: domain.EntityClub, ClubID: &clubID,
			SignalType: domain.SignalClubLeaguePosition, SignalValue: domain.NewNumValue(float64(i + 1)),
			ObservedAt: asOf, EffectiveFrom: asOf,
		})
	}
	sig.rows = append(sig.rows, domain.SignalEvent{
		EntityType: domain.EntityPlayer, PlayerID: &playerID,
		SignalType: domain.SignalClubTier, SignalValue: domain.NewTextValue(fromClubID),
		ObservedAt: asOf, EffectiveFrom: asOf,
	})
}

func TestGenerate_LeagueSourceBoundedBySameLeagueClubCount(t *testing.T) {
	gen, ref, sig, _ := setupGenerator()
	asOf := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	seedFourClubLeague(ref, sig, "p1", "from", asOf)

	set, err := gen.Generate(context.Background(), "p1", asOf, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.SourceCounts.League != 4 {
		t.Fatalf("expected 4 league candidates, got %d (candidates=%+v)", set.SourceCounts.League, set.Candidates)
	}
	if set.TotalCandidates > gen.cfg.MaxTotal {
		t.Fatalf("total candidates %d exceeds max_total %d", set.TotalCandidates, gen.cfg.MaxTotal)
	}
}

// Running generation twice for identical inputs returns the same set.
func TestGenerate_Idempotent(t *testing.T) {
	gen, ref, sig, cand := setupGenerator()
	asOf := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	seedFourClubLeague(ref, sig, "p1", "from", asOf)

	first, err := gen.Generate(context.Background(), "p1", asOf, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second call must hit the cache (no recomputation) and return the
	// exact same payload.
	second, err := gen.Generate(context.Background(), "p1", asOf, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first.Candidates, second.Candidates) {
		t.Fatalf("candidate lists differ across calls:\n%+v\n%+v", first.Candidates, second.Candidates)
	}

	// Clearing the cache and forcing regeneration with the same inputs
	// must reproduce the same ordering thanks to the deterministic seed.
	delete(cand.stored, candidateKey("p1", asOf, 90))
	third, err := gen.Generate(context.Background(), "p1", asOf, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first.Candidates, third.Candidates) {
		t.Fatalf("regenerated candidate list differs from original:\n%+v\n%+v", first.Candidates, third.Candidates)
	}
}

func TestDeterministicSeed_StableForSameInputs(t *testing.T) {
	asOf := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s1 := deterministicSeed("p1", asOf, 90)
	s2 := deterministicSeed("p1", asOf, 90)
	if s1 != s2 {
		t.Fatalf("expected stable seed for identical inputs, got %d != %d", s1, s2)
	}
	s3 := deterministicSeed("p2", asOf, 90)
	if s1 == s3 {
		t.Fatalf("expected different seeds for different player ids")
	}
}
