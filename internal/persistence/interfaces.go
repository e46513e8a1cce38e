// Package persistence defines the repository interfaces every storage
// backend implements. Queries are expressed in terms of a TimeRange and
// an as-of cutoff so the bitemporal contract in internal/timetravel has
// exactly one place to delegate to.
package persistence

import (
	"context"
	"time"

	"github.com/transferintel/scout/internal/domain"
)

// TimeRange bounds a query window; From/To are both inclusive on the
// lower bound and exclusive on the upper, matching the effective_to
// semantics used throughout the signal store.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ReferenceRepo persists Competition/Club/Player rows. These are
// ordinary mutable reference tables, not bitemporal.
type ReferenceRepo interface {
	UpsertCompetition(ctx context.Context, c domain.Competition) error
	UpsertClub(ctx context.Context, c domain.Club) error
	UpsertPlayer(ctx context.Context, p domain.Player) error

	GetCompetition(ctx context.Context, id string) (*domain.Competition, error)
	GetClub(ctx context.Context, id string) (*domain.Club, error)
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)

	ListClubsByCompetition(ctx context.Context, competitionID string) ([]domain.Club, error)
	ListCompetitions(ctx context.Context) ([]domain.Competition, error)
	ListClubsByMaxTier(ctx context.Context, maxTier int) ([]domain.Club, error)
	SearchPlayers(ctx context.Context, query string, limit int) ([]domain.Player, error)
	SearchClubs(ctx context.Context, query string, limit int) ([]domain.Club, error)

	// ListPlayersByCurrentClub reads the denormalized current_club_id
	// hint for display purposes only (club squad listing); this is
	// the one permitted reader of that field outside admin writes, per
	// the OQ1 rule that candidates/features must never read it.
	ListPlayersByCurrentClub(ctx context.Context, clubID string) ([]domain.Player, error)

	// ListPlayersByCurrentClubAndPosition is the same squad-listing
	// hint narrowed to one position, used by §4.D's constraint-fit
	// source to count same-position players and their average age
	// (a roster-composition read, not a time-travel feature read).
	ListPlayersByCurrentClubAndPosition(ctx context.Context, clubID, position string) ([]domain.Player, error)
}

// LedgerRepo is the append-only transfer ledger. There is deliberately
// no Upsert: corrections are Insert-new-row + Supersede-old-row, never
// an in-place rewrite.
type LedgerRepo interface {
	Insert(ctx context.Context, e domain.TransferEvent) error
	Supersede(ctx context.Context, oldEventID, newEventID string) error

	GetByEventID(ctx context.Context, eventID string) (*domain.TransferEvent, error)
	ListByPlayer(ctx context.Context, playerID string, includeSuperseded bool) ([]domain.TransferEvent, error)
	ListByClub(ctx context.Context, clubID string, tr TimeRange) ([]domain.TransferEvent, error)
	ListInWindow(ctx context.Context, tr TimeRange) ([]domain.TransferEvent, error)

	// Terminal follows the superseded_by chain to its end and asserts
	// acyclicity; it is how (T6) is exercised at the store layer.
	Terminal(ctx context.Context, eventID string) (*domain.TransferEvent, error)
}

// SignalsRepo is the bitemporal observation stream. Insert is the only
// write; every read takes an as-of cutoff and applies the (T1)
// predicate — callers should prefer internal/timetravel over calling
// this interface directly.
type SignalsRepo interface {
	Insert(ctx context.Context, s domain.SignalEvent) error
	InsertBatch(ctx context.Context, signals []domain.SignalEvent) error

	// CandidatesAsOf returns every row whose (player_id|club_id,
	// signal_type) matches and whose observed_at/effective_from <=
	// asOf, ordered for the caller to pick the max effective_from row
	// satisfying effective_to. It intentionally does not itself decide
	// HoldsAt — that decision is centralized in internal/timetravel.
	CandidatesAsOf(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, signalType domain.SignalType, asOf time.Time) ([]domain.SignalEvent, error)

	ListForEntityInWindow(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, tr TimeRange) ([]domain.SignalEvent, error)
	ListByTypeInWindow(ctx context.Context, signalType domain.SignalType, tr TimeRange) ([]domain.SignalEvent, error)
}

// PredictionsRepo is the append-only scored-snapshot stream.
type PredictionsRepo interface {
	Insert(ctx context.Context, p domain.PredictionSnapshot) error
	GetBySnapshotID(ctx context.Context, snapshotID string) (*domain.PredictionSnapshot, error)
	LatestForPlayer(ctx context.Context, playerID string, toClubID *string, horizonDays int) (*domain.PredictionSnapshot, error)
	ListForPlayer(ctx context.Context, playerID string, limit int) ([]domain.PredictionSnapshot, error)
	TopByProbability(ctx context.Context, horizonDays int, asOf time.Time, limit int) ([]domain.PredictionSnapshot, error)

	// ListLatestFromClub / ListLatestToClub back the club-detail page's
	// outgoing/incoming probability lists: the latest row per
	// (player_id, to_club_id) restricted to from_club_id = clubID (or
	// to_club_id = clubID), ranked by probability.
	ListLatestFromClub(ctx context.Context, clubID string, limit int) ([]domain.PredictionSnapshot, error)
	ListLatestToClub(ctx context.Context, clubID string, limit int) ([]domain.PredictionSnapshot, error)
}

// CandidatesRepo persists the CandidateSet audit record, unique per
// (player_id, as_of, horizon_days).
type CandidatesRepo interface {
	Upsert(ctx context.Context, c domain.CandidateSet) error
	Get(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*domain.CandidateSet, error)
	LatestForPlayer(ctx context.Context, playerID string, horizonDays int) (*domain.CandidateSet, error)
}

// UserEventsRepo persists pseudonymous interaction events.
type UserEventsRepo interface {
	Insert(ctx context.Context, e domain.UserEvent) error
	InsertBatch(ctx context.Context, events []domain.UserEvent) error
	ListForPlayerInWindow(ctx context.Context, playerID string, tr TimeRange) ([]domain.UserEvent, error)
	CountByTypeInWindow(ctx context.Context, playerID string, tr TimeRange) (map[string]int64, error)
	CooccurringClubViews(ctx context.Context, playerID string, tr TimeRange) (map[string]int64, error)
}

// ModelsRepo persists trained-model bookkeeping and evaluation runs.
type ModelsRepo interface {
	InsertVersion(ctx context.Context, m domain.ModelVersion) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status domain.ModelVersionStatus, message *string) error
	GetVersion(ctx context.Context, id int64) (*domain.ModelVersion, error)
	LatestDeployed(ctx context.Context, modelName string, horizonDays int) (*domain.ModelVersion, error)
	ListVersions(ctx context.Context, modelName string, limit int) ([]domain.ModelVersion, error)

	InsertEvaluation(ctx context.Context, e domain.ModelEvaluation) (int64, error)
	ListEvaluations(ctx context.Context, modelVersionID int64) ([]domain.ModelEvaluation, error)
}

// FeatureSnapshotRepo caches built feature vectors so repeated builds
// for the same (player, candidate_club, as_of) are idempotent no-ops.
type FeatureSnapshotRepo interface {
	Upsert(ctx context.Context, f domain.FeatureSnapshot) error
	Get(ctx context.Context, playerID, candidateClubID string, asOf time.Time) (*domain.FeatureSnapshot, error)
}

// Repository aggregates every repo this service depends on.
type Repository struct {
	Reference       ReferenceRepo
	Ledger          LedgerRepo
	Signals         SignalsRepo
	Predictions     PredictionsRepo
	Candidates      CandidatesRepo
	UserEvents      UserEventsRepo
	Models          ModelsRepo
	FeatureSnapshots FeatureSnapshotRepo
}

// HealthCheck reports repository connectivity for /health and /ready.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}
