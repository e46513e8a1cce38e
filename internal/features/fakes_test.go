package features

import (
	"context"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

// fakeReferenceRepo is an in-memory stand-in for persistence.ReferenceRepo,
// just enough to drive Builder/NegativeSampler tests without a database.
type fakeReferenceRepo struct {
	competitions map[string]domain.Competition
	clubs        map[string]domain.Club
	players      map[string]domain.Player
}

func newFakeReferenceRepo() *fakeReferenceRepo {
	return &fakeReferenceRepo{
		competitions: map[string]domain.Competition{},
		clubs:        map[string]domain.Club{},
		players:      map[string]domain.Player{},
	}
}

func (f *fakeReferenceRepo) UpsertCompetition(ctx context.Context, c domain.Competition) error {
	f.competitions[c.ID] = c
	return nil
}
func (f *fakeReferenceRepo) UpsertClub(ctx context.Context, c domain.Club) error {
	f.clubs[c.ID] = c
	return nil
}
func (f *fakeReferenceRepo) UpsertPlayer(ctx context.Context, p domain.Player) error {
	f.players[p.ID] = p
	return nil
}
func (f *fakeReferenceRepo) GetCompetition(ctx context.Context, id string) (*domain.Competition, error) {
	if c, ok := f.competitions[id]; ok {
		return &c, nil
	}
	return nil, nil
}
func (f *fakeReferenceRepo) GetClub(ctx context.Context, id string) (*domain.Club, error) {
	if c, ok := f.clubs[id]; ok {
		return &c, nil
	}
	return nil, nil
}
func (f *fakeReferenceRepo) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	if p, ok := f.players[id]; ok {
		return &p, nil
	}
	return nil, nil
}
func (f *fakeReferenceRepo) ListClubsByCompetition(ctx context.Context, competitionID string) ([]domain.Club, error) {
	var out []domain.Club
	for _, c := range f.clubs {
		if c.CompetitionID != nil && *c.CompetitionID == competitionID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeReferenceRepo) ListCompetitions(ctx context.Context) ([]domain.Competition, error) {
	var out []domain.Competition
	for _, c := range f.competitions {
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeReferenceRepo) ListClubsByMaxTier(ctx context.Context, maxTier int) ([]domain.Club, error) {
	var out []domain.Club
	for _, c := range f.clubs {
		if c.Tier <= maxTier {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeReferenceRepo) SearchPlayers(ctx context.Context, query string, limit int) ([]domain.Player, error) {
	return nil, nil
}
func (f *fakeReferenceRepo) SearchClubs(ctx context.Context, query string, limit int) ([]domain.Club, error) {
	return nil, nil
}
func (f *fakeReferenceRepo) ListPlayersByCurrentClub(ctx context.Context, clubID string) ([]domain.Player, error) {
	return nil, nil
}
func (f *fakeReferenceRepo) ListPlayersByCurrentClubAndPosition(ctx context.Context, clubID, position string) ([]domain.Player, error) {
	return nil, nil
}

// fakeSignalsRepo serves LatestSignal lookups from a static row set.
type fakeSignalsRepo struct {
	rows []domain.SignalEvent
}

func (f *fakeSignalsRepo) Insert(ctx context.Context, s domain.SignalEvent) error { return nil }
func (f *fakeSignalsRepo) InsertBatch(ctx context.Context, s []domain.SignalEvent) error {
	return nil
}
func (f *fakeSignalsRepo) CandidatesAsOf(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, signalType domain.SignalType, asOf time.Time) ([]domain.SignalEvent, error) {
	var out []domain.SignalEvent
	for _, r := range f.rows {
		if r.SignalType != signalType || r.EntityType != entityType {
			continue
		}
		if playerID != nil && (r.PlayerID == nil || *r.PlayerID != *playerID) {
			continue
		}
		if clubID != nil && (r.ClubID == nil || *r.ClubID != *clubID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeSignalsRepo) ListForEntityInWindow(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, tr persistence.TimeRange) ([]domain.SignalEvent, error) {
	return nil, nil
}
func (f *fakeSignalsRepo) ListByTypeInWindow(ctx context.Context, signalType domain.SignalType, tr persistence.TimeRange) ([]domain.SignalEvent, error) {
	return nil, nil
}

type fakeUserEventsRepo struct{}

func (f *fakeUserEventsRepo) Insert(ctx context.Context, e domain.UserEvent) error { return nil }
func (f *fakeUserEventsRepo) InsertBatch(ctx context.Context, e []domain.UserEvent) error {
	return nil
}
func (f *fakeUserEventsRepo) ListForPlayerInWindow(ctx context.Context, playerID string, tr persistence.TimeRange) ([]domain.UserEvent, error) {
	return nil, nil
}
func (f *fakeUserEventsRepo) CountByTypeInWindow(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	return nil, nil
}
func (f *fakeUserEventsRepo) CooccurringClubViews(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	return nil, nil
}

// fakeLedgerRepo backs training-frame tests.
type fakeLedgerRepo struct {
	events []domain.TransferEvent
}

func (f *fakeLedgerRepo) Insert(ctx context.Context, e domain.TransferEvent) error { return nil }
func (f *fakeLedgerRepo) Supersede(ctx context.Context, oldEventID, newEventID string) error {
	return nil
}
func (f *fakeLedgerRepo) GetByEventID(ctx context.Context, eventID string) (*domain.TransferEvent, error) {
	return nil, nil
}
func (f *fakeLedgerRepo) ListByPlayer(ctx context.Context, playerID string, includeSuperseded bool) ([]domain.TransferEvent, error) {
	return nil, nil
}
func (f *fakeLedgerRepo) ListByClub(ctx context.Context, clubID string, tr persistence.TimeRange) ([]domain.TransferEvent, error) {
	return nil, nil
}
func (f *fakeLedgerRepo) ListInWindow(ctx context.Context, tr persistence.TimeRange) ([]domain.TransferEvent, error) {
	return f.events, nil
}
func (f *fakeLedgerRepo) Terminal(ctx context.Context, eventID string) (*domain.TransferEvent, error) {
	return nil, nil
}

// fixedNegativeSampler returns a predetermined negative list, independent
// of a real club pool, so training-frame tests don't depend on sampler
// internals.
type fixedNegativeSampler struct {
	clubIDs []string
}

func (s fixedNegativeSampler) Sample(ctx context.Context, playerID, fromClubID, actualToClubID string, asOf time.Time, n int) ([]string, error) {
	if len(s.clubIDs) > n {
		return s.clubIDs[:n], nil
	}
	return s.clubIDs, nil
}
