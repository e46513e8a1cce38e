package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType closes the set of subjects a SignalEvent can describe.
type EntityType string

const (
	EntityPlayer EntityType = "player"
	EntityClub   EntityType = "club"
	EntityPair   EntityType = "pair"
)

// SignalType is the closed 16-kind enum spanning performance, contract,
// market, social, and user-derived observations.
type SignalType string

const (
	SignalMarketValue              SignalType = "market_value"
	SignalContractMonthsRemaining  SignalType = "contract_months_remaining"
	SignalGoalsLast10              SignalType = "goals_last_10"
	SignalAssistsLast10            SignalType = "assists_last_10"
	SignalMinutesLast5             SignalType = "minutes_last_5"
	SignalInjuriesStatus           SignalType = "injuries_status"
	SignalClubLeaguePosition       SignalType = "club_league_position"
	SignalClubPointsPerGame        SignalType = "club_points_per_game"
	SignalClubNetSpend12m          SignalType = "club_net_spend_12m"
	SignalClubTier                 SignalType = "club_tier"
	SignalSocialMentionVelocity    SignalType = "social_mention_velocity"
	SignalSocialSentiment          SignalType = "social_sentiment"
	SignalAgentActivity            SignalType = "agent_activity"
	SignalMediaSpeculation         SignalType = "media_speculation"
	SignalUserAttentionVelocity    SignalType = "user_attention_velocity"
	SignalUserDestinationCooccur   SignalType = "user_destination_cooccurrence"
)

var allSignalTypes = map[SignalType]bool{
	SignalMarketValue: true, SignalContractMonthsRemaining: true, SignalGoalsLast10: true,
	SignalAssistsLast10: true, SignalMinutesLast5: true, SignalInjuriesStatus: true,
	SignalClubLeaguePosition: true, SignalClubPointsPerGame: true, SignalClubNetSpend12m: true,
	SignalClubTier: true, SignalSocialMentionVelocity: true, SignalSocialSentiment: true,
	SignalAgentActivity: true, SignalMediaSpeculation: true, SignalUserAttentionVelocity: true,
	SignalUserDestinationCooccur: true,
}

func (s SignalType) Valid() bool { return allSignalTypes[s] }

// SignalValue is a tagged variant over (kind, value): exactly one of
// Num, Text, JSON is populated. The New*Value constructors set exactly
// one column; a value with more than one column set is rejected by
// Validate, never by silently picking a winner.
type SignalValue struct {
	Num  *float64        `db:"value_num" json:"value_num,omitempty"`
	Text *string         `db:"value_text" json:"value_text,omitempty"`
	JSON json.RawMessage `db:"value_json" json:"value_json,omitempty"`
}

func NewNumValue(v float64) SignalValue   { return SignalValue{Num: &v} }
func NewTextValue(v string) SignalValue   { return SignalValue{Text: &v} }
func NewJSONValue(v json.RawMessage) SignalValue { return SignalValue{JSON: v} }

func (v SignalValue) populatedCount() int {
	n := 0
	if v.Num != nil {
		n++
	}
	if v.Text != nil {
		n++
	}
	if len(v.JSON) > 0 {
		n++
	}
	return n
}

func (v SignalValue) Validate() error {
	switch v.populatedCount() {
	case 0:
		return fmt.Errorf("signal value has no payload set")
	case 1:
		return nil
	default:
		return fmt.Errorf("signal value has more than one payload column set")
	}
}

// SignalEvent is a single row in the bitemporal observation stream.
// The time-travel contract this type must uphold:
// every read filters on observed_at <= T AND effective_from <= T AND
// (effective_to IS NULL OR effective_to > T).
type SignalEvent struct {
	ID            int64      `db:"id" json:"id"`
	EntityType    EntityType `db:"entity_type" json:"entity_type"`
	PlayerID      *string    `db:"player_id" json:"player_id,omitempty"`
	ClubID        *string    `db:"club_id" json:"club_id,omitempty"`
	SignalType    SignalType `db:"signal_type" json:"signal_type"`
	SignalValue              // embedded so sqlx flattens value_num/value_text/value_json as columns
	Source        string     `db:"source" json:"source"`
	SourceID      *string    `db:"source_id" json:"source_id,omitempty"`
	Confidence    float64    `db:"confidence" json:"confidence"`
	ObservedAt    time.Time  `db:"observed_at" json:"observed_at"`
	EffectiveFrom time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effective_to,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Validate enforces SignalEvent's invariants: entity consistency,
// effective_to ordering, the tagged-value constraint, signal_type
// closure, and confidence range.
func (s SignalEvent) Validate() error {
	if !s.SignalType.Valid() {
		return fmt.Errorf("invalid signal_type: %s", s.SignalType)
	}
	switch s.EntityType {
	case EntityPlayer:
		if s.PlayerID == nil || s.ClubID != nil {
			return fmt.Errorf("player signal requires player_id and no club_id")
		}
	case EntityClub:
		if s.ClubID == nil || s.PlayerID != nil {
			return fmt.Errorf("club signal requires club_id and no player_id")
		}
	case EntityPair:
		if s.PlayerID == nil || s.ClubID == nil {
			return fmt.Errorf("pair signal requires both player_id and club_id")
		}
	default:
		return fmt.Errorf("invalid entity_type: %s", s.EntityType)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence out of range [0,1]: %f", s.Confidence)
	}
	if s.EffectiveTo != nil && !s.EffectiveTo.After(s.EffectiveFrom) {
		return fmt.Errorf("effective_to must be strictly after effective_from")
	}
	return s.SignalValue.Validate()
}

// HoldsAt reports whether this row is the "known truth" candidate at T:
// both timestamps must be <= T, and effective_to (if set) must be > T.
// This is the predicate every bitemporal read applies; it is duplicated
// here only so the store layer and in-memory filtering agree on one
// definition.
func (s SignalEvent) HoldsAt(t time.Time) bool {
	if s.ObservedAt.After(t) || s.EffectiveFrom.After(t) {
		return false
	}
	if s.EffectiveTo != nil && !s.EffectiveTo.After(t) {
		return false
	}
	return true
}
