package features

import (
	"context"
	"testing"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/timetravel"
)

func newTestBuilderWithClubs() (*Builder, *fakeReferenceRepo) {
	ref := newFakeReferenceRepo()
	ref.clubs["from"] = domain.Club{ID: "from", Tier: 1}
	ref.clubs["to"] = domain.Club{ID: "to", Tier: 1}
	ref.clubs["neg1"] = domain.Club{ID: "neg1", Tier: 1}
	ref.players["p1"] = domain.Player{ID: "p1", Name: "Test"}
	reader := timetravel.NewReader(&fakeSignalsRepo{}, &fakeUserEventsRepo{})
	return NewBuilder(ref, reader), ref
}

// A transfer on 2025-03-15 with horizon=90 -> feature_date 2024-12-15,
// and a positive example is emitted with label 1.
func TestBuildTrainingFrame_PositiveAndNegatives(t *testing.T) {
	b, _ := newTestBuilderWithClubs()
	from := "from"
	transferDate := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	ledger := &fakeLedgerRepo{events: []domain.TransferEvent{
		{
			EventID: "TL-1", PlayerID: "p1", FromClubID: &from, ToClubID: "to",
			TransferType: domain.TransferPermanent, TransferDate: transferDate,
		},
	}}
	sampler := fixedNegativeSampler{clubIDs: []string{"neg1"}}

	result, err := b.BuildTrainingFrame(context.Background(), ledger, sampler,
		transferDate, 200*24*time.Hour, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SkippedLeakage != 0 {
		t.Fatalf("expected no leakage skips, got %d", result.SkippedLeakage)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 1 positive + 1 negative row, got %d", len(result.Rows))
	}

	wantFeatureDate := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)
	var sawPositive, sawNegative bool
	for _, row := range result.Rows {
		if !row.FeatureDate.Equal(wantFeatureDate) {
			t.Fatalf("feature_date = %v, want %v", row.FeatureDate, wantFeatureDate)
		}
		switch {
		case row.Label == 1 && row.ToClubID == "to":
			sawPositive = true
		case row.Label == 0 && row.ToClubID == "neg1":
			sawNegative = true
		}
	}
	if !sawPositive || !sawNegative {
		t.Fatalf("expected one positive(to) and one negative(neg1) row, got %+v", result.Rows)
	}
}

func TestBuildTrainingFrame_SkipsSupersededAndNonQualifyingTypes(t *testing.T) {
	b, _ := newTestBuilderWithClubs()
	from := "from"
	transferDate := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	ledger := &fakeLedgerRepo{events: []domain.TransferEvent{
		{EventID: "TL-1", PlayerID: "p1", FromClubID: &from, ToClubID: "to",
			TransferType: domain.TransferPermanent, TransferDate: transferDate, IsSuperseded: true},
		{EventID: "TL-2", PlayerID: "p1", FromClubID: &from, ToClubID: "to",
			TransferType: domain.TransferRetirement, TransferDate: transferDate},
		{EventID: "TL-3", PlayerID: "p1", ToClubID: "to",
			TransferType: domain.TransferPermanent, TransferDate: transferDate}, // no from_club_id
	}}
	sampler := fixedNegativeSampler{clubIDs: []string{"neg1"}}

	result, err := b.BuildTrainingFrame(context.Background(), ledger, sampler,
		transferDate, 200*24*time.Hour, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 0 {
		t.Fatalf("expected all rows skipped, got %d", len(result.Rows))
	}
}
