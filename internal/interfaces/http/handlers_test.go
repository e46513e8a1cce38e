package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/timetravel"
	"github.com/transferintel/scout/internal/whatchanged"
)

// --- fakes, following the embed-the-interface-and-override pattern
// used by internal/whatchanged's tests -------------------------------

type fakeReference struct {
	persistence.ReferenceRepo
	players map[string]domain.Player
	clubs   map[string]domain.Club
}

func (f *fakeReference) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	p, ok := f.players[id]
	if !ok {
		return nil, errNotFound
	}
	return &p, nil
}

func (f *fakeReference) GetClub(ctx context.Context, id string) (*domain.Club, error) {
	c, ok := f.clubs[id]
	if !ok {
		return nil, errNotFound
	}
	return &c, nil
}

func (f *fakeReference) GetCompetition(ctx context.Context, id string) (*domain.Competition, error) {
	return &domain.Competition{ID: id, Name: "Test League", Tier: 1}, nil
}

func (f *fakeReference) SearchPlayers(ctx context.Context, query string, limit int) ([]domain.Player, error) {
	var out []domain.Player
	for _, p := range f.players {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeReference) SearchClubs(ctx context.Context, query string, limit int) ([]domain.Club, error) {
	return nil, nil
}

func (f *fakeReference) ListPlayersByCurrentClub(ctx context.Context, clubID string) ([]domain.Player, error) {
	var out []domain.Player
	for _, p := range f.players {
		if p.CurrentClubID != nil && *p.CurrentClubID == clubID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeReference) ListPlayersByCurrentClubAndPosition(ctx context.Context, clubID, position string) ([]domain.Player, error) {
	var out []domain.Player
	for _, p := range f.players {
		if p.CurrentClubID != nil && *p.CurrentClubID == clubID && p.Position != nil && *p.Position == position {
			out = append(out, p)
		}
	}
	return out, nil
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

type fakeLedger struct {
	persistence.LedgerRepo
	byPlayer []domain.TransferEvent
	byClub   []domain.TransferEvent
}

func (f *fakeLedger) ListByPlayer(ctx context.Context, playerID string, includeSuperseded bool) ([]domain.TransferEvent, error) {
	return f.byPlayer, nil
}

func (f *fakeLedger) ListByClub(ctx context.Context, clubID string, tr persistence.TimeRange) ([]domain.TransferEvent, error) {
	return f.byClub, nil
}

func (f *fakeLedger) Insert(ctx context.Context, e domain.TransferEvent) error {
	return nil
}

type fakeSignals struct {
	persistence.SignalsRepo
	rows []domain.SignalEvent
}

func (f *fakeSignals) ListForEntityInWindow(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, tr persistence.TimeRange) ([]domain.SignalEvent, error) {
	return f.rows, nil
}

func (f *fakeSignals) CandidatesAsOf(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, signalType domain.SignalType, asOf time.Time) ([]domain.SignalEvent, error) {
	var out []domain.SignalEvent
	for _, r := range f.rows {
		if r.SignalType == signalType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSignals) Insert(ctx context.Context, s domain.SignalEvent) error { return nil }

type fakePredictions struct {
	persistence.PredictionsRepo
	forPlayer []domain.PredictionSnapshot
	top       []domain.PredictionSnapshot
}

func (f *fakePredictions) ListForPlayer(ctx context.Context, playerID string, limit int) ([]domain.PredictionSnapshot, error) {
	return f.forPlayer, nil
}

func (f *fakePredictions) TopByProbability(ctx context.Context, horizonDays int, asOf time.Time, limit int) ([]domain.PredictionSnapshot, error) {
	return f.top, nil
}

func (f *fakePredictions) ListLatestFromClub(ctx context.Context, clubID string, limit int) ([]domain.PredictionSnapshot, error) {
	return nil, nil
}

func (f *fakePredictions) ListLatestToClub(ctx context.Context, clubID string, limit int) ([]domain.PredictionSnapshot, error) {
	return nil, nil
}

type fakeUserEvents struct {
	persistence.UserEventsRepo
	inserted []domain.UserEvent
}

func (f *fakeUserEvents) Insert(ctx context.Context, e domain.UserEvent) error {
	f.inserted = append(f.inserted, e)
	return nil
}

func (f *fakeUserEvents) CountByTypeInWindow(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (f *fakeUserEvents) CooccurringClubViews(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	return map[string]int64{}, nil
}

type fakeHealth struct {
	healthy bool
}

func (f *fakeHealth) Health(ctx context.Context) persistence.HealthCheck {
	return persistence.HealthCheck{Healthy: f.healthy}
}
func (f *fakeHealth) Ping(ctx context.Context) error {
	if !f.healthy {
		return errNotFound
	}
	return nil
}
func (f *fakeHealth) Stats(ctx context.Context) map[string]interface{} { return nil }

func newTestHandlers() *Handlers {
	clubID := "club-a"
	ref := &fakeReference{
		players: map[string]domain.Player{
			"p1": {ID: "p1", Name: "Test Player", CurrentClubID: &clubID},
		},
		clubs: map[string]domain.Club{
			"club-a": {ID: "club-a", Name: "Club A", Country: "England", Tier: 1},
		},
	}
	ledger := &fakeLedger{}
	signals := &fakeSignals{}
	predictions := &fakePredictions{}
	userEvents := &fakeUserEvents{}

	repo := &persistence.Repository{
		Reference:   ref,
		Ledger:      ledger,
		Signals:     signals,
		Predictions: predictions,
		UserEvents:  userEvents,
	}
	reader := timetravel.NewReader(signals, userEvents)
	detector := whatchanged.NewDetector(signals)
	health := &fakeHealth{healthy: true}
	cfg := config.HTTPConfig{DefaultPageSize: 20, MaxPageSize: 100}

	return NewHandlers(repo, reader, detector, health, nil, cfg)
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestSearch_RequiresQuery(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSearch_ReturnsPlayerMatch(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/search?q=Test", nil)
	w := httptest.NewRecorder()
	h.Search(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "p1" {
		t.Fatalf("expected one result for p1, got %+v", resp.Results)
	}
}

func TestPlayerDetail_UnknownPlayerIsNotFound(t *testing.T) {
	h := newTestHandlers()
	req := withVars(httptest.NewRequest(http.MethodGet, "/players/unknown", nil), map[string]string{"id": "unknown"})
	w := httptest.NewRecorder()
	h.PlayerDetail(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != "not_found" {
		t.Fatalf("expected not_found error kind, got %q", resp.Error)
	}
}

func TestPlayerDetail_KnownPlayerReturnsProfile(t *testing.T) {
	h := newTestHandlers()
	req := withVars(httptest.NewRequest(http.MethodGet, "/players/p1", nil), map[string]string{"id": "p1"})
	w := httptest.NewRecorder()
	h.PlayerDetail(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp PlayerDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Player.ID != "p1" {
		t.Fatalf("expected player p1, got %q", resp.Player.ID)
	}
	if resp.CurrentClub == nil || resp.CurrentClub.ID != "club-a" {
		t.Fatalf("expected current club club-a, got %+v", resp.CurrentClub)
	}
}

func TestMarketLatest_FiltersByMinProbability(t *testing.T) {
	h := newTestHandlers()
	toClub := "club-a"
	h.repo.Predictions.(*fakePredictions).top = []domain.PredictionSnapshot{
		{PlayerID: "p1", ToClubID: &toClub, Probability: 0.9, HorizonDays: 90},
		{PlayerID: "p1", ToClubID: &toClub, Probability: 0.05, HorizonDays: 90},
	}
	req := httptest.NewRequest(http.MethodGet, "/market/latest?min_probability=0.5", nil)
	w := httptest.NewRecorder()
	h.MarketLatest(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp MarketLatestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Rows) != 1 || resp.Rows[0].Probability != 0.9 {
		t.Fatalf("expected one row above threshold, got %+v", resp.Rows)
	}
}

func TestPostUserEvent_RejectsMissingFields(t *testing.T) {
	h := newTestHandlers()
	body, _ := json.Marshal(UserEventRequest{})
	req := httptest.NewRequest(http.MethodPost, "/events/user", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.PostUserEvent(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPostUserEvent_AcceptsValidEvent(t *testing.T) {
	h := newTestHandlers()
	body, _ := json.Marshal(UserEventRequest{AnonUserID: "anon1", SessionID: "sess1", EventType: domain.EventPlayerView})
	req := httptest.NewRequest(http.MethodPost, "/events/user", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.PostUserEvent(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(h.repo.UserEvents.(*fakeUserEvents).inserted) != 1 {
		t.Fatalf("expected one event inserted")
	}
}

func TestHealth_ReportsUnhealthyAs503(t *testing.T) {
	h := newTestHandlers()
	h.health.(*fakeHealth).healthy = false
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestLive_NeverTouchesDatabase(t *testing.T) {
	h := newTestHandlers()
	h.health.(*fakeHealth).healthy = false
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	w := httptest.NewRecorder()
	h.Live(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 regardless of db health, got %d", w.Code)
	}
}
