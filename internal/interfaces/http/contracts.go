package http

// This file adds only the aggregate/composite response and request
// shapes a single endpoint assembles from several repository calls;
// core domain types are reused directly from internal/domain.

import (
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/whatchanged"
)

// ErrorResponse is the stable shape every non-2xx response uses, per
// the standard error shape: `{error, message, details?}`.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SearchResult is one row of the fuzzy player/club union.
type SearchResult struct {
	Type  string  `json:"type"` // "player" | "club"
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Extra string  `json:"extra,omitempty"` // current club ID for players, country for clubs
	Score float64 `json:"score"`
}

// SearchResponse is GET /search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// PlayerDetailResponse is GET /players/{id}: profile, latest key
// signals, up to 10 distinct-destination predictions, a 7-day
// what-changed digest, and transfer history.
type PlayerDetailResponse struct {
	Player          domain.Player               `json:"player"`
	Age             *float64                    `json:"age,omitempty"`
	CurrentClub     *domain.Club                `json:"current_club,omitempty"`
	LatestSignals   map[domain.SignalType]any   `json:"latest_signals"`
	Predictions     []domain.PredictionSnapshot `json:"predictions"`
	WhatChanged     []whatchanged.Delta         `json:"what_changed"`
	TransferHistory []domain.TransferEvent      `json:"transfer_history"`
}

// SignalHistoryResponse is GET /players/{id}/signals.
type SignalHistoryResponse struct {
	PlayerID string               `json:"player_id"`
	AsOf     time.Time            `json:"as_of"`
	Signals  []domain.SignalEvent `json:"signals"`
}

// PredictionHistoryResponse is GET /players/{id}/predictions.
type PredictionHistoryResponse struct {
	PlayerID    string                      `json:"player_id"`
	Predictions []domain.PredictionSnapshot `json:"predictions"`
}

// ClubDetailResponse is GET /clubs/{id}: profile, squad, outgoing and
// incoming probability lists, and transfers in/out over the last year.
type ClubDetailResponse struct {
	Club              domain.Club                 `json:"club"`
	Competition       *domain.Competition         `json:"competition,omitempty"`
	Squad             []domain.Player             `json:"squad"`
	OutgoingPredicted []domain.PredictionSnapshot `json:"outgoing_predicted"`
	IncomingPredicted []domain.PredictionSnapshot `json:"incoming_predicted"`
	TransfersOut      []domain.TransferEvent      `json:"transfers_out"`
	TransfersIn       []domain.TransferEvent      `json:"transfers_in"`
}

// MarketRow is one ranked entry of the market/latest feed, denormalized
// with the player/club names the UI needs without a second round-trip.
type MarketRow struct {
	domain.PredictionSnapshot
	PlayerName string `json:"player_name"`
	ToClubName string `json:"to_club_name,omitempty"`
}

// MarketLatestResponse is GET /market/latest.
type MarketLatestResponse struct {
	Rows []MarketRow `json:"rows"`
}

// UserEventRequest is the body of POST /events/user.
type UserEventRequest struct {
	AnonUserID  string         `json:"anon_user_id"`
	SessionID   string         `json:"session_id"`
	EventType   string         `json:"event_type"`
	PlayerID    *string        `json:"player_id,omitempty"`
	ClubID      *string        `json:"club_id,omitempty"`
	DeviceType  *string        `json:"device_type,omitempty"`
	CountryCode *string        `json:"country_code,omitempty"`
	Props       map[string]any `json:"props,omitempty"`
}

// AdminTransferEventRequest is the body of POST /admin/transfer_events:
// every TransferEvent field an admin write may set directly.
type AdminTransferEventRequest struct {
	domain.TransferEvent
}

// AdminSignalEventRequest is the body of POST /admin/signal_events.
type AdminSignalEventRequest struct {
	EntityType    domain.EntityType `json:"entity_type"`
	PlayerID      *string           `json:"player_id,omitempty"`
	ClubID        *string           `json:"club_id,omitempty"`
	SignalType    domain.SignalType `json:"signal_type"`
	ValueNum      *float64          `json:"value_num,omitempty"`
	ValueText     *string           `json:"value_text,omitempty"`
	Source        string            `json:"source"`
	SourceID      *string           `json:"source_id,omitempty"`
	Confidence    float64           `json:"confidence"`
	ObservedAt    time.Time         `json:"observed_at"`
	EffectiveFrom time.Time         `json:"effective_from"`
	EffectiveTo   *time.Time        `json:"effective_to,omitempty"`
}

// RebuildMaterializedResponse acknowledges POST /admin/rebuild/materialized.
type RebuildMaterializedResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// AcceptedResponse is the generic 202 body for fire-and-forget writes.
type AcceptedResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// HealthStatus is the shared shape of /health, /ready, /live.
type HealthStatus struct {
	Status    string            `json:"status"` // "healthy" | "degraded" | "unhealthy"
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}
