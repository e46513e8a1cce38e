package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PredictionSnapshot is an append-only probability output. Rows for a
// fixed (player, to, horizon) are totally ordered by AsOf; readers
// consume only the max-AsOf row.
type PredictionSnapshot struct {
	SnapshotID   string          `db:"snapshot_id" json:"snapshot_id"`
	ModelVersion string          `db:"model_version" json:"model_version"`
	ModelName    string          `db:"model_name" json:"model_name"`
	PlayerID     string          `db:"player_id" json:"player_id"`
	FromClubID   *string         `db:"from_club_id" json:"from_club_id,omitempty"`
	ToClubID     *string         `db:"to_club_id" json:"to_club_id,omitempty"` // nil = "any destination"
	HorizonDays  int             `db:"horizon_days" json:"horizon_days"`
	Probability  float64         `db:"probability" json:"probability"`
	DriversJSON  json.RawMessage `db:"drivers_json" json:"drivers_json"`
	FeaturesJSON json.RawMessage `db:"features_json" json:"features_json,omitempty"`
	AsOf         time.Time       `db:"as_of" json:"as_of"`
	WindowStart  time.Time       `db:"window_start" json:"window_start"`
	WindowEnd    time.Time       `db:"window_end" json:"window_end"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Validate enforces (T4): probability in range, horizon positive,
// window ordering, and drivers summing to at most 1 with no negatives.
func (p PredictionSnapshot) Validate() error {
	if p.Probability < 0 || p.Probability > 1 {
		return fmt.Errorf("probability out of range [0,1]: %f", p.Probability)
	}
	if p.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days must be positive: %d", p.HorizonDays)
	}
	if !p.WindowEnd.After(p.WindowStart) {
		return fmt.Errorf("window_end must be after window_start")
	}
	if len(p.DriversJSON) > 0 {
		var drivers map[string]float64
		if err := json.Unmarshal(p.DriversJSON, &drivers); err != nil {
			return fmt.Errorf("invalid drivers_json: %w", err)
		}
		sum := 0.0
		for k, v := range drivers {
			if v < 0 {
				return fmt.Errorf("driver %q is negative: %f", k, v)
			}
			sum += v
		}
		if sum > 1.0+1e-9 {
			return fmt.Errorf("driver contributions sum to %f, exceeds 1", sum)
		}
	}
	return nil
}

// ValidHorizons is the closed set of prediction horizons; horizon_days is
// open-ended positive but the pipeline only ever produces these three.
var ValidHorizons = []int{30, 90, 180}

// CandidateEntry is one scored destination inside a CandidateSet.
type CandidateEntry struct {
	ClubID string  `json:"club_id"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// PlayerContext is the frozen point-in-time player snapshot recorded
// alongside a CandidateSet for audit purposes.
type PlayerContext struct {
	Name                    string   `json:"name"`
	Position                *string  `json:"position,omitempty"`
	ClubID                  *string  `json:"club_id,omitempty"`
	Age                     *float64 `json:"age,omitempty"`
	MarketValue             *float64 `json:"market_value,omitempty"`
	ContractMonthsRemaining *float64 `json:"contract_months_remaining,omitempty"`
}

// SourceCounts tallies how many candidates each source contributed
// after dedup, keyed by the fixed candidate-source names.
type SourceCounts struct {
	League         int `json:"league"`
	Social         int `json:"social"`
	UserAttention  int `json:"user_attention"`
	ConstraintFit  int `json:"constraint_fit"`
	Random         int `json:"random"`
}

// CandidateSet is the auditable record of destinations considered for
// a (player, as_of, horizon) triple. Unique per that triple; upserts
// replace the payload on conflict.
type CandidateSet struct {
	ID               int64             `db:"id" json:"id"`
	PlayerID         string            `db:"player_id" json:"player_id"`
	AsOf             time.Time         `db:"as_of" json:"as_of"`
	HorizonDays      int               `db:"horizon_days" json:"horizon_days"`
	FromClubID       string            `db:"from_club_id" json:"from_club_id"`
	TotalCandidates  int               `db:"total_candidates" json:"total_candidates"`
	SourceCounts     SourceCounts      `db:"-" json:"source_counts"`
	Candidates       []CandidateEntry  `db:"-" json:"candidates"`
	PlayerContext    PlayerContext     `db:"-" json:"player_context"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
}

// UserEvent is a pseudonymous interaction consumed by signal derivation
// and the what-changed detector's user-attention inputs.
type UserEvent struct {
	ID           int64           `db:"id" json:"id"`
	AnonUserID   string          `db:"anon_user_id" json:"anon_user_id"`
	SessionID    string          `db:"session_id" json:"session_id"`
	EventType    string          `db:"event_type" json:"event_type"`
	PlayerID     *string         `db:"player_id" json:"player_id,omitempty"`
	ClubID       *string         `db:"club_id" json:"club_id,omitempty"`
	OccurredAt   time.Time       `db:"occurred_at" json:"occurred_at"`
	DeviceType   *string         `db:"device_type" json:"device_type,omitempty"`
	CountryCode  *string         `db:"country_code" json:"country_code,omitempty"`
	PropsJSON    json.RawMessage `db:"props_json" json:"props_json,omitempty"`
}

const (
	EventPlayerView    = "player_view"
	EventWatchlistAdd  = "watchlist_add"
	EventShare         = "share"
	EventClubView      = "club_view"
)

// ModelVersionStatus is the lifecycle state of a trained model.
type ModelVersionStatus string

const (
	ModelStatusTraining  ModelVersionStatus = "training"
	ModelStatusCompleted ModelVersionStatus = "completed"
	ModelStatusFailed    ModelVersionStatus = "failed"
	ModelStatusDeployed  ModelVersionStatus = "deployed"
	ModelStatusArchived  ModelVersionStatus = "archived"
)

// ModelVersion records one trained artifact's bookkeeping.
type ModelVersion struct {
	ID                int64              `db:"id" json:"id"`
	ModelName         string             `db:"model_name" json:"model_name"`
	ModelVersion      string             `db:"model_version" json:"model_version"`
	HorizonDays       int                `db:"horizon_days" json:"horizon_days"`
	TrainingAsOf      time.Time          `db:"training_as_of" json:"training_as_of"`
	PositiveCount     int                `db:"positive_count" json:"positive_count"`
	NegativeCount     int                `db:"negative_count" json:"negative_count"`
	FeatureList       []string           `db:"-" json:"feature_list"`
	Metrics           map[string]float64 `db:"-" json:"metrics"`
	FeatureImportances map[string]float64 `db:"-" json:"feature_importances"`
	ArtifactPath      string             `db:"artifact_path" json:"artifact_path"`
	Status            ModelVersionStatus `db:"status" json:"status"`
	Message           *string            `db:"message" json:"message,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// CalibrationBin is one bucket of a reliability diagram.
type CalibrationBin struct {
	RangeLow    float64 `json:"range_low"`
	RangeHigh   float64 `json:"range_high"`
	PredictedMean float64 `json:"predicted_mean"`
	ActualMean  float64 `json:"actual_mean"`
	Count       int     `json:"count"`
}

// ThresholdRow is one entry of the {0.1..0.9} sweep.
type ThresholdRow struct {
	Threshold float64 `json:"threshold"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// SeasonBacktest captures per-season restricted metrics.
type SeasonBacktest struct {
	Season   string             `json:"season"`
	Window   [2]time.Time       `json:"window"`
	Samples  int                `json:"samples"`
	Metrics  map[string]float64 `json:"metrics"`
}

// ModelEvaluation persists one evaluation run's full metric bundle.
type ModelEvaluation struct {
	ID                int64              `db:"id" json:"id"`
	ModelVersionID    int64              `db:"model_version_id" json:"model_version_id"`
	EvalType          string             `db:"eval_type" json:"eval_type"`
	EvalName          string             `db:"eval_name" json:"eval_name"`
	WindowStart       time.Time          `db:"window_start" json:"window_start"`
	WindowEnd         time.Time          `db:"window_end" json:"window_end"`
	SampleCount       int                `db:"sample_count" json:"sample_count"`
	PositiveCount     int                `db:"positive_count" json:"positive_count"`
	AUCROC            float64            `db:"auc_roc" json:"auc_roc"`
	AUCPR             float64            `db:"auc_pr" json:"auc_pr"`
	LogLoss           float64            `db:"log_loss" json:"log_loss"`
	Brier             float64            `db:"brier" json:"brier"`
	CalibrationSlope  float64            `db:"calibration_slope" json:"calibration_slope"`
	CalibrationIntercept float64         `db:"calibration_intercept" json:"calibration_intercept"`
	CalibrationBins   []CalibrationBin   `db:"-" json:"calibration_bins"`
	ConfusionMatrix   map[string]int     `db:"-" json:"confusion_matrix"`
	ThresholdTable    []ThresholdRow     `db:"-" json:"threshold_table"`
	SeasonBacktests   []SeasonBacktest   `db:"-" json:"season_backtests"`
	DurationMS        int64              `db:"duration_ms" json:"duration_ms"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// FeatureSnapshot is an idempotent cache of one built feature vector.
type FeatureSnapshot struct {
	ID              int64              `db:"id" json:"id"`
	PlayerID        string             `db:"player_id" json:"player_id"`
	CandidateClubID string             `db:"candidate_club_id" json:"candidate_club_id"`
	AsOf            time.Time          `db:"as_of" json:"as_of"`
	Features        map[string]*float64 `db:"-" json:"features"`
	FeatureVersion  int                `db:"feature_version" json:"feature_version"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}
