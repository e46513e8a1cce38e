package candidates

import (
	"context"
	"fmt"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

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
	var out []domain.Player
	for _, p := range f.players {
		if p.CurrentClubID != nil && *p.CurrentClubID == clubID && p.Position != nil && *p.Position == position {
			out = append(out, p)
		}
	}
	return out, nil
}

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
	var out []domain.SignalEvent
	for _, r := range f.rows {
		if r.SignalType == signalType {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeCandidatesRepo struct {
	stored map[string]domain.CandidateSet
}

func newFakeCandidatesRepo() *fakeCandidatesRepo {
	return &fakeCandidatesRepo{stored: map[string]domain.CandidateSet{}}
}

func candidateKey(playerID string, asOf time.Time, horizonDays int) string {
	return fmt.Sprintf("%s|%s|%d", playerID, asOf.UTC().Format(time.RFC3339Nano), horizonDays)
}

func (f *fakeCandidatesRepo) Upsert(ctx context.Context, c domain.CandidateSet) error {
	f.stored[candidateKey(c.PlayerID, c.AsOf, c.HorizonDays)] = c
	return nil
}
func (f *fakeCandidatesRepo) Get(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*domain.CandidateSet, error) {
	if c, ok := f.stored[candidateKey(playerID, asOf, horizonDays)]; ok {
		return &c, nil
	}
	return nil, nil
}
func (f *fakeCandidatesRepo) LatestForPlayer(ctx context.Context, playerID string, horizonDays int) (*domain.CandidateSet, error) {
	return nil, nil
}
