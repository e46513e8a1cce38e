package features

import (
	"context"
	"testing"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/timetravel"
)

func newTestBuilder() (*Builder, *fakeReferenceRepo, *fakeSignalsRepo) {
	ref := newFakeReferenceRepo()
	sig := &fakeSignalsRepo{}
	reader := timetravel.NewReader(sig, &fakeUserEventsRepo{})
	return NewBuilder(ref, reader), ref, sig
}

func TestBuilder_Build_FixedKeysAlwaysPresent(t *testing.T) {
	b, ref, _ := newTestBuilder()
	dob := time.Date(1998, 5, 1, 0, 0, 0, 0, time.UTC)
	ref.players["p1"] = domain.Player{ID: "p1", Name: "Test Player", DOB: &dob}

	v, err := b.Build(context.Background(), "p1", "", "", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != len(FeatureKeys) {
		t.Fatalf("vector has %d keys, want %d", len(v), len(FeatureKeys))
	}
	for _, k := range FeatureKeys {
		if _, ok := v[k]; !ok {
			t.Fatalf("missing key %q in vector", k)
		}
	}
	if v["age"] == nil {
		t.Fatalf("expected age to be populated from dob")
	}
}

func TestBuilder_Build_UnknownPlayerErrors(t *testing.T) {
	b, _, _ := newTestBuilder()
	if _, err := b.Build(context.Background(), "ghost", "", "", time.Now()); err == nil {
		t.Fatalf("expected error for unknown player")
	}
}

func TestBuilder_Build_PairAndClubScalars(t *testing.T) {
	b, ref, sig := newTestBuilder()
	comp1, comp2 := "comp-a", "comp-b"
	ref.players["p1"] = domain.Player{ID: "p1", Name: "Test"}
	ref.clubs["from"] = domain.Club{ID: "from", Country: "ES", CompetitionID: &comp1, Tier: 1}
	ref.clubs["to"] = domain.Club{ID: "to", Country: "EN", CompetitionID: &comp2, Tier: 2}

	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	playerID := "p1"
	toClubID := "to"
	sig.rows = append(sig.rows, domain.SignalEvent{
		EntityType: domain.EntityPair, PlayerID: &playerID, ClubID: &toClubID,
		SignalType: domain.SignalUserDestinationCooccur, SignalValue: domain.NewNumValue(40),
		ObservedAt: asOf, EffectiveFrom: asOf,
	})

	v, err := b.Build(context.Background(), "p1", "from", "to", asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v["same_country"] == nil || *v["same_country"] != 0 {
		t.Fatalf("expected same_country=0 for ES vs EN, got %v", v["same_country"])
	}
	if v["same_league"] == nil || *v["same_league"] != 0 {
		t.Fatalf("expected same_league=0 for different competitions, got %v", v["same_league"])
	}
	if v["tier_difference"] == nil || *v["tier_difference"] != 1 {
		t.Fatalf("expected tier_difference=1 (to.Tier - from.Tier), got %v", v["tier_difference"])
	}
	if v["user_destination_cooccurrence"] == nil || *v["user_destination_cooccurrence"] != 40 {
		t.Fatalf("expected user_destination_cooccurrence=40, got %v", v["user_destination_cooccurrence"])
	}
}

// A signal observed after as-of must never surface in a built vector,
// exercised through the feature builder rather than the reader directly.
func TestBuilder_Build_RespectsTimeTravel(t *testing.T) {
	b, ref, sig := newTestBuilder()
	ref.players["p1"] = domain.Player{ID: "p1", Name: "Test"}
	playerID := "p1"

	asOf := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := asOf.AddDate(0, 1, 0)
	sig.rows = append(sig.rows, domain.SignalEvent{
		EntityType: domain.EntityPlayer, PlayerID: &playerID,
		SignalType: domain.SignalMarketValue, SignalValue: domain.NewNumValue(999),
		ObservedAt: future, EffectiveFrom: future,
	})

	v, err := b.Build(context.Background(), "p1", "", "", asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v["market_value"] != nil {
		t.Fatalf("expected market_value nil at asOf before the signal was observed, got %v", v["market_value"])
	}
}
