// Package seed populates a small, self-consistent demo dataset: a
// handful of competitions, clubs and players, one completed transfer in
// the ledger, a few signal observations and user-interaction events.
// It exists purely for local operator smoke-testing (the ingest:demo
// CLI command) and writes through the same repository interfaces every
// other write path uses — there is no privileged seeding shortcut.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

// Summary reports what the demo load wrote, for ingest:demo's JSON output.
type Summary struct {
	Competitions int `json:"competitions"`
	Clubs        int `json:"clubs"`
	Players      int `json:"players"`
	LedgerEvents int `json:"ledger_events"`
	Signals      int `json:"signals"`
	UserEvents   int `json:"user_events"`
}

func strp(s string) *string { return &s }

// Load seeds reference data, one historical transfer, a small set of
// signal observations, and a burst of user-interaction events, all
// anchored to "now" so a freshly seeded store has data within every
// default query window.
func Load(ctx context.Context, repo *persistence.Repository) (Summary, error) {
	if repo == nil {
		return Summary{}, fmt.Errorf("demo seed requires a connected repository")
	}
	now := time.Now().UTC()
	var s Summary

	competitions := []domain.Competition{
		{ID: "epl", Name: "English Premier League", Country: "England", Tier: 1},
		{ID: "laliga", Name: "La Liga", Country: "Spain", Tier: 1},
		{ID: "championship", Name: "EFL Championship", Country: "England", Tier: 2},
	}
	for _, c := range competitions {
		if err := repo.Reference.UpsertCompetition(ctx, c); err != nil {
			return s, fmt.Errorf("seed competition %s: %w", c.ID, err)
		}
		s.Competitions++
	}

	clubs := []domain.Club{
		{ID: "club-riverside", Name: "Riverside United", Country: "England", CompetitionID: strp("epl"), Tier: 1},
		{ID: "club-atletico-sol", Name: "Atletico Sol", Country: "Spain", CompetitionID: strp("laliga"), Tier: 1},
		{ID: "club-vale", Name: "Vale Athletic", Country: "England", CompetitionID: strp("championship"), Tier: 2},
	}
	for _, c := range clubs {
		if err := repo.Reference.UpsertClub(ctx, c); err != nil {
			return s, fmt.Errorf("seed club %s: %w", c.ID, err)
		}
		s.Clubs++
	}

	dob := now.AddDate(-24, 0, 0)
	contractUntil := now.AddDate(1, 0, 0)
	players := []domain.Player{
		{ID: "player-ortiz", Name: "Marco Ortiz", DOB: &dob, Nationality: strp("ES"), Position: strp("CM"), CurrentClubID: strp("club-atletico-sol"), ContractUntil: &contractUntil},
		{ID: "player-bello", Name: "Daniel Bello", DOB: &dob, Nationality: strp("BR"), Position: strp("ST"), CurrentClubID: strp("club-vale"), ContractUntil: &contractUntil},
	}
	for _, p := range players {
		if err := repo.Reference.UpsertPlayer(ctx, p); err != nil {
			return s, fmt.Errorf("seed player %s: %w", p.ID, err)
		}
		s.Players++
	}

	fee := 12_500_000.0
	transferDate := now.AddDate(0, -6, 0)
	eventID := domain.DeterministicEventID(transferDate, "BELLO", "VALE")
	ledgerEvent := domain.TransferEvent{
		EventID:          eventID,
		PlayerID:         "player-bello",
		FromClubID:       strp("club-vale"),
		ToClubID:         "club-riverside",
		TransferType:     domain.TransferPermanent,
		TransferDate:     transferDate,
		FeeAmount:        &fee,
		FeeCurrency:      strp("EUR"),
		FeeAmountEUR:     &fee,
		FeeType:          "permanent",
		Source:           "demo-seed",
		SourceConfidence: 1.0,
		CreatedAt:        now,
	}
	if err := ledgerEvent.Validate(); err != nil {
		return s, fmt.Errorf("demo ledger event failed validation: %w", err)
	}
	if err := repo.Ledger.Insert(ctx, ledgerEvent); err != nil {
		return s, fmt.Errorf("seed ledger event: %w", err)
	}
	s.LedgerEvents++

	signals := []domain.SignalEvent{
		signalNum(domain.EntityPlayer, strp("player-ortiz"), nil, domain.SignalMarketValue, 28_000_000, "demo-seed", now),
		signalNum(domain.EntityPlayer, strp("player-ortiz"), nil, domain.SignalContractMonthsRemaining, 10, "demo-seed", now),
		signalNum(domain.EntityPlayer, strp("player-ortiz"), nil, domain.SignalGoalsLast10, 3, "demo-seed", now),
		signalNum(domain.EntityClub, nil, strp("club-riverside"), domain.SignalClubTier, 1, "demo-seed", now),
		signalNum(domain.EntityClub, nil, strp("club-riverside"), domain.SignalClubNetSpend12m, 45_000_000, "demo-seed", now),
		signalNum(domain.EntityPair, strp("player-ortiz"), strp("club-riverside"), domain.SignalSocialMentionVelocity, 4.2, "demo-seed", now),
	}
	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			return s, fmt.Errorf("demo signal event failed validation: %w", err)
		}
		if err := repo.Signals.Insert(ctx, sig); err != nil {
			return s, fmt.Errorf("seed signal event: %w", err)
		}
		s.Signals++
	}

	props, err := json.Marshal(map[string]string{"referrer": "demo"})
	if err != nil {
		return s, fmt.Errorf("marshal demo user-event props: %w", err)
	}
	userEvents := []domain.UserEvent{
		{AnonUserID: "anon-1", SessionID: "sess-1", EventType: domain.EventPlayerView, PlayerID: strp("player-ortiz"), OccurredAt: now.Add(-2 * time.Hour), PropsJSON: props},
		{AnonUserID: "anon-1", SessionID: "sess-1", EventType: domain.EventClubView, PlayerID: strp("player-ortiz"), ClubID: strp("club-riverside"), OccurredAt: now.Add(-time.Hour), PropsJSON: props},
		{AnonUserID: "anon-2", SessionID: "sess-2", EventType: domain.EventWatchlistAdd, PlayerID: strp("player-ortiz"), OccurredAt: now.Add(-30 * time.Minute), PropsJSON: props},
	}
	if err := repo.UserEvents.InsertBatch(ctx, userEvents); err != nil {
		return s, fmt.Errorf("seed user events: %w", err)
	}
	s.UserEvents += len(userEvents)

	return s, nil
}

func signalNum(entityType domain.EntityType, playerID, clubID *string, signalType domain.SignalType, value float64, source string, now time.Time) domain.SignalEvent {
	return domain.SignalEvent{
		EntityType:    entityType,
		PlayerID:      playerID,
		ClubID:        clubID,
		SignalType:    signalType,
		SignalValue:   domain.NewNumValue(value),
		Source:        source,
		Confidence:    0.9,
		ObservedAt:    now,
		EffectiveFrom: now,
		CreatedAt:     now,
	}
}
