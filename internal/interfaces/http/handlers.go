package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/cache"
	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/timetravel"
	"github.com/transferintel/scout/internal/whatchanged"
)

// Handlers implements every HTTP route. It holds read-side dependencies
// only: the pipeline packages that build candidates/features/scores run
// out of band (the daily batch job and the CLI), never inline in a
// request handler.
type Handlers struct {
	repo     *persistence.Repository
	reader   *timetravel.Reader
	detector *whatchanged.Detector
	health   persistence.RepositoryHealth
	cache    *cache.Cache
	cfg      config.HTTPConfig
	startedAt time.Time
}

func NewHandlers(repo *persistence.Repository, reader *timetravel.Reader, detector *whatchanged.Detector, health persistence.RepositoryHealth, c *cache.Cache, cfg config.HTTPConfig) *Handlers {
	return &Handlers{
		repo:      repo,
		reader:    reader,
		detector:  detector,
		health:    health,
		cache:     c,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// --- response helpers ---------------------------------------------------

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"internal_error","message":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError maps err to the standard error status/shape via apperr.KindOf; a raw
// (non-apperr) error is treated as KindInternal and its message is not
// leaked to the caller.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	resp := ErrorResponse{Error: string(kind)}
	if appErr, ok := apperr.As(err); ok {
		resp.Message = appErr.Message
		resp.Details = appErr.Code
	} else if status == http.StatusInternalServerError {
		resp.Message = "internal server error"
	} else {
		resp.Message = err.Error()
	}
	h.writeJSON(w, status, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func queryTimeOrNow(r *http.Request, key string) time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

func (h *Handlers) clampLimit(limit int) int {
	if limit <= 0 {
		return h.cfg.DefaultPageSize
	}
	if limit > h.cfg.MaxPageSize {
		return h.cfg.MaxPageSize
	}
	return limit
}

// --- GET /search ---------------------------------------------------------

func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, apperr.Validation("missing_query", "q is required"))
		return
	}
	limit := h.clampLimit(queryInt(r, "limit", h.cfg.DefaultPageSize))

	players, err := h.repo.Reference.SearchPlayers(ctx, query, limit)
	if err != nil {
		h.writeError(w, fmt.Errorf("search players: %w", err))
		return
	}
	clubs, err := h.repo.Reference.SearchClubs(ctx, query, limit)
	if err != nil {
		h.writeError(w, fmt.Errorf("search clubs: %w", err))
		return
	}

	results := make([]SearchResult, 0, len(players)+len(clubs))
	for _, p := range players {
		extra := ""
		if p.CurrentClubID != nil {
			extra = *p.CurrentClubID
		}
		results = append(results, SearchResult{
			Type: "player", ID: p.ID, Name: p.Name, Extra: extra,
			Score: matchScore(query, p.Name),
		})
	}
	for _, c := range clubs {
		results = append(results, SearchResult{
			Type: "club", ID: c.ID, Name: c.Name, Extra: c.Country,
			Score: matchScore(query, c.Name),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}

	h.writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}

// matchScore ranks an exact (case-insensitive) match above a prefix
// match above a plain substring match — the three tiers a fuzzy union
// of two ILIKE-filtered result sets can actually distinguish without a
// trigram-similarity extension.
func matchScore(query, name string) float64 {
	q, n := strings.ToLower(query), strings.ToLower(name)
	switch {
	case q == n:
		return 1.0
	case strings.HasPrefix(n, q):
		return 0.8
	default:
		return 0.5
	}
}

// --- GET /players/{id} ----------------------------------------------------

func (h *Handlers) PlayerDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := mux.Vars(r)["id"]

	player, err := h.repo.Reference.GetPlayer(ctx, playerID)
	if err != nil {
		h.writeError(w, apperr.NotFound("player_not_found", fmt.Sprintf("player %s not found", playerID)))
		return
	}

	now := time.Now().UTC()

	var age *float64
	if a, ok := player.AgeAt(now); ok {
		age = &a
	}

	var currentClub *domain.Club
	if player.CurrentClubID != nil {
		if c, err := h.repo.Reference.GetClub(ctx, *player.CurrentClubID); err == nil {
			currentClub = c
		}
	}

	latestSignals := map[domain.SignalType]any{}
	for _, st := range []domain.SignalType{
		domain.SignalMarketValue, domain.SignalContractMonthsRemaining,
		domain.SignalGoalsLast10, domain.SignalAssistsLast10, domain.SignalInjuriesStatus,
		domain.SignalSocialMentionVelocity, domain.SignalUserAttentionVelocity,
	} {
		sig, err := h.reader.LatestSignal(ctx, domain.EntityPlayer, &playerID, nil, st, now)
		if err != nil {
			h.writeError(w, fmt.Errorf("player detail: latest signal %s: %w", st, err))
			return
		}
		if sig == nil {
			continue
		}
		if sig.Num != nil {
			latestSignals[st] = *sig.Num
		} else if sig.Text != nil {
			latestSignals[st] = *sig.Text
		}
	}

	predictions, err := h.repo.Predictions.ListForPlayer(ctx, playerID, 50)
	if err != nil {
		h.writeError(w, fmt.Errorf("player detail: predictions: %w", err))
		return
	}
	predictions = latestPerDestination(predictions, 10)

	deltas, err := h.detector.Detect(ctx, playerID, now, 7)
	if err != nil {
		h.writeError(w, fmt.Errorf("player detail: what-changed: %w", err))
		return
	}

	history, err := h.repo.Ledger.ListByPlayer(ctx, playerID, true)
	if err != nil {
		h.writeError(w, fmt.Errorf("player detail: transfer history: %w", err))
		return
	}

	h.writeJSON(w, http.StatusOK, PlayerDetailResponse{
		Player:          *player,
		Age:             age,
		CurrentClub:     currentClub,
		LatestSignals:   latestSignals,
		Predictions:     predictions,
		WhatChanged:     deltas,
		TransferHistory: history,
	})
}

// latestPerDestination keeps at most one (most recent AsOf) row per
// distinct ToClubID, ranked by probability descending, capped to max.
func latestPerDestination(rows []domain.PredictionSnapshot, max int) []domain.PredictionSnapshot {
	best := map[string]domain.PredictionSnapshot{}
	for _, row := range rows {
		key := "any"
		if row.ToClubID != nil {
			key = *row.ToClubID
		}
		cur, ok := best[key]
		if !ok || row.AsOf.After(cur.AsOf) {
			best[key] = row
		}
	}
	out := make([]domain.PredictionSnapshot, 0, len(best))
	for _, row := range best {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// --- GET /players/{id}/signals --------------------------------------------

func (h *Handlers) PlayerSignals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := mux.Vars(r)["id"]
	asOf := queryTimeOrNow(r, "as_of")
	limit := h.clampLimit(queryInt(r, "limit", h.cfg.DefaultPageSize))

	signalTypeParam := domain.SignalType(r.URL.Query().Get("signal_type"))
	tr := persistence.TimeRange{From: time.Unix(0, 0).UTC(), To: asOf.Add(time.Nanosecond)}

	rows, err := h.repo.Signals.ListForEntityInWindow(ctx, domain.EntityPlayer, &playerID, nil, tr)
	if err != nil {
		h.writeError(w, fmt.Errorf("player signals: %w", err))
		return
	}
	if signalTypeParam != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.SignalType == signalTypeParam {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].EffectiveFrom.After(rows[j].EffectiveFrom) })
	if len(rows) > limit {
		rows = rows[:limit]
	}

	h.writeJSON(w, http.StatusOK, SignalHistoryResponse{PlayerID: playerID, AsOf: asOf, Signals: rows})
}

// --- GET /players/{id}/predictions ----------------------------------------

func (h *Handlers) PlayerPredictions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := mux.Vars(r)["id"]
	limit := h.clampLimit(queryInt(r, "limit", h.cfg.DefaultPageSize))
	horizonDays := queryInt(r, "horizon_days", 0)

	rows, err := h.repo.Predictions.ListForPlayer(ctx, playerID, 500)
	if err != nil {
		h.writeError(w, fmt.Errorf("player predictions: %w", err))
		return
	}
	if horizonDays > 0 {
		filtered := rows[:0]
		for _, row := range rows {
			if row.HorizonDays == horizonDays {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	h.writeJSON(w, http.StatusOK, PredictionHistoryResponse{PlayerID: playerID, Predictions: rows})
}

// --- GET /clubs/{id} -------------------------------------------------------

func (h *Handlers) ClubDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clubID := mux.Vars(r)["id"]

	club, err := h.repo.Reference.GetClub(ctx, clubID)
	if err != nil {
		h.writeError(w, apperr.NotFound("club_not_found", fmt.Sprintf("club %s not found", clubID)))
		return
	}

	var competition *domain.Competition
	if club.CompetitionID != nil {
		if c, err := h.repo.Reference.GetCompetition(ctx, *club.CompetitionID); err == nil {
			competition = c
		}
	}

	squad, err := h.repo.Reference.ListPlayersByCurrentClub(ctx, clubID)
	if err != nil {
		h.writeError(w, fmt.Errorf("club detail: squad: %w", err))
		return
	}

	outgoing, err := h.repo.Predictions.ListLatestFromClub(ctx, clubID, 20)
	if err != nil {
		h.writeError(w, fmt.Errorf("club detail: outgoing predictions: %w", err))
		return
	}
	incoming, err := h.repo.Predictions.ListLatestToClub(ctx, clubID, 20)
	if err != nil {
		h.writeError(w, fmt.Errorf("club detail: incoming predictions: %w", err))
		return
	}

	now := time.Now().UTC()
	yearAgo := persistence.TimeRange{From: now.AddDate(-1, 0, 0), To: now.Add(time.Nanosecond)}
	transfersOut, err := h.clubTransfers(ctx, clubID, yearAgo, true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	transfersIn, err := h.clubTransfers(ctx, clubID, yearAgo, false)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ClubDetailResponse{
		Club:              *club,
		Competition:       competition,
		Squad:             squad,
		OutgoingPredicted: outgoing,
		IncomingPredicted: incoming,
		TransfersOut:      transfersOut,
		TransfersIn:       transfersIn,
	})
}

// clubTransfers filters LedgerRepo.ListByClub (which returns every
// event touching clubID on either side) down to strictly outgoing or
// strictly incoming legs.
func (h *Handlers) clubTransfers(ctx context.Context, clubID string, tr persistence.TimeRange, outgoing bool) ([]domain.TransferEvent, error) {
	all, err := h.repo.Ledger.ListByClub(ctx, clubID, tr)
	if err != nil {
		return nil, fmt.Errorf("club transfers: %w", err)
	}
	out := make([]domain.TransferEvent, 0, len(all))
	for _, e := range all {
		isOut := e.FromClubID != nil && *e.FromClubID == clubID
		if isOut == outgoing {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- GET /market/latest ----------------------------------------------------

func (h *Handlers) MarketLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	horizonDays := queryInt(r, "horizon_days", 90)
	minProbability := queryFloat(r, "min_probability", 0)
	limit := h.clampLimit(queryInt(r, "limit", h.cfg.DefaultPageSize))
	competitionID := r.URL.Query().Get("competition_id")
	clubID := r.URL.Query().Get("club_id")

	cacheKey := fmt.Sprintf("market:h=%d:comp=%s:club=%s:minp=%.3f:limit=%d",
		horizonDays, competitionID, clubID, minProbability, limit)

	var cached MarketLatestResponse
	if h.cache.Get(ctx, cacheKey, &cached) {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	rows, err := h.repo.Predictions.TopByProbability(ctx, horizonDays, time.Now().UTC(), 500)
	if err != nil {
		h.writeError(w, fmt.Errorf("market latest: %w", err))
		return
	}

	marketRows := make([]MarketRow, 0, len(rows))
	for _, row := range rows {
		if row.Probability < minProbability {
			continue
		}
		if clubID != "" && (row.ToClubID == nil || *row.ToClubID != clubID) {
			continue
		}
		playerName := ""
		if p, err := h.repo.Reference.GetPlayer(ctx, row.PlayerID); err == nil {
			playerName = p.Name
		}
		toClubName := ""
		if row.ToClubID != nil {
			club, err := h.repo.Reference.GetClub(ctx, *row.ToClubID)
			if err != nil {
				continue
			}
			if competitionID != "" && (club.CompetitionID == nil || *club.CompetitionID != competitionID) {
				continue
			}
			toClubName = club.Name
		} else if competitionID != "" {
			continue
		}
		marketRows = append(marketRows, MarketRow{PredictionSnapshot: row, PlayerName: playerName, ToClubName: toClubName})
	}
	if len(marketRows) > limit {
		marketRows = marketRows[:limit]
	}

	resp := MarketLatestResponse{Rows: marketRows}
	h.cache.Set(ctx, cacheKey, resp, 0)
	h.writeJSON(w, http.StatusOK, resp)
}

// --- POST /events/user ------------------------------------------------------

func (h *Handlers) PostUserEvent(w http.ResponseWriter, r *http.Request) {
	var req UserEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid_body", "failed to decode request body"))
		return
	}
	if req.AnonUserID == "" || req.SessionID == "" || req.EventType == "" {
		h.writeError(w, apperr.Validation("missing_field", "anon_user_id, session_id, and event_type are required"))
		return
	}

	var propsJSON []byte
	if req.Props != nil {
		var err error
		propsJSON, err = json.Marshal(req.Props)
		if err != nil {
			h.writeError(w, apperr.Validation("invalid_props", "props must be JSON-serializable"))
			return
		}
	}

	event := domain.UserEvent{
		AnonUserID:  req.AnonUserID,
		SessionID:   req.SessionID,
		EventType:   req.EventType,
		PlayerID:    req.PlayerID,
		ClubID:      req.ClubID,
		OccurredAt:  time.Now().UTC(),
		DeviceType:  req.DeviceType,
		CountryCode: req.CountryCode,
		PropsJSON:   propsJSON,
	}
	if err := h.repo.UserEvents.Insert(r.Context(), event); err != nil {
		h.writeError(w, fmt.Errorf("post user event: %w", err))
		return
	}
	h.writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// --- POST /admin/transfer_events --------------------------------------------

func (h *Handlers) AdminTransferEvent(w http.ResponseWriter, r *http.Request) {
	var req AdminTransferEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid_body", "failed to decode request body"))
		return
	}
	event := req.TransferEvent
	if event.EventID == "" {
		fromShort := "ORIGIN"
		if event.FromClubID != nil {
			fromShort = shortCode(*event.FromClubID)
		}
		event.EventID = domain.DeterministicEventID(event.TransferDate, shortCode(event.PlayerID), fromShort)
	}
	event.CreatedAt = time.Now().UTC()

	if err := h.repo.Ledger.Insert(r.Context(), event); err != nil {
		h.writeError(w, fmt.Errorf("admin transfer event: %w", err))
		return
	}
	h.writeJSON(w, http.StatusCreated, AcceptedResponse{Status: "created", ID: event.EventID})
}

func shortCode(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

// --- POST /admin/signal_events -----------------------------------------------

func (h *Handlers) AdminSignalEvent(w http.ResponseWriter, r *http.Request) {
	var req AdminSignalEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid_body", "failed to decode request body"))
		return
	}

	value := domain.SignalValue{Num: req.ValueNum, Text: req.ValueText}
	event := domain.SignalEvent{
		EntityType:    req.EntityType,
		PlayerID:      req.PlayerID,
		ClubID:        req.ClubID,
		SignalType:    req.SignalType,
		SignalValue:   value,
		Source:        req.Source,
		SourceID:      req.SourceID,
		Confidence:    req.Confidence,
		ObservedAt:    req.ObservedAt,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		CreatedAt:     time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		h.writeError(w, apperr.Validation("invalid_signal_event", err.Error()))
		return
	}
	if err := h.repo.Signals.Insert(r.Context(), event); err != nil {
		h.writeError(w, fmt.Errorf("admin signal event: %w", err))
		return
	}
	h.writeJSON(w, http.StatusCreated, AcceptedResponse{Status: "created"})
}

// --- POST /admin/rebuild/materialized -----------------------------------------

func (h *Handlers) AdminRebuildMaterialized(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cache.InvalidatePrefix(r.Context(), "market:"); err != nil {
		h.writeError(w, fmt.Errorf("rebuild materialized: %w", err))
		return
	}
	h.writeJSON(w, http.StatusAccepted, RebuildMaterializedResponse{
		Status:    "accepted",
		StartedAt: time.Now().UTC(),
	})
}

// --- health/ready/live ----------------------------------------------------

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	check := h.health.Health(r.Context())
	status := "healthy"
	httpStatus := http.StatusOK
	if !check.Healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	checks := map[string]string{"database": "ok"}
	if !check.Healthy {
		checks["database"] = strings.Join(check.Errors, "; ")
	}
	if err := h.cache.Ping(r.Context()); err != nil {
		checks["cache"] = err.Error()
	} else {
		checks["cache"] = "ok"
	}
	h.writeJSON(w, httpStatus, HealthStatus{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    checks,
	})
}

// Ready reports whether the service can serve traffic: the database
// must answer a ping. The cache is best-effort and does not gate
// readiness — a cold or absent redis degrades latency, not correctness.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, HealthStatus{
			Status: "unhealthy", Timestamp: time.Now().UTC(),
			Uptime: time.Since(h.startedAt).Round(time.Second).String(),
			Checks: map[string]string{"database": err.Error()},
		})
		return
	}
	h.writeJSON(w, http.StatusOK, HealthStatus{
		Status: "ready", Timestamp: time.Now().UTC(),
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Live reports only that the process is up; it never touches the
// database, so a stuck connection pool can't take the liveness probe
// down with it.
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthStatus{
		Status: "alive", Timestamp: time.Now().UTC(),
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, apperr.NotFound("route_not_found", "no route matches this request"))
}
