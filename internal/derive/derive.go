// Package derive computes the two user-behavior signals and
// writes them back into the signal store with the fixed source
// "tl_user_derived" and confidence 0.6. Derivation is additive: it
// never overwrites a prior row for the same (player?, club?,
// signal_type, effective_from) key, and re-running for the same T is
// not a no-op at the storage layer — each run inserts its rows again.
package derive

import (
	"context"
	"fmt"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

const (
	sourceUserDerived  = "tl_user_derived"
	derivedConfidence  = 0.6
	minEligibleEvents  = 3
	minCooccurSessions = 2
)

type Derivator struct {
	userEvents persistence.UserEventsRepo
	signals    persistence.SignalsRepo
}

func New(userEvents persistence.UserEventsRepo, signals persistence.SignalsRepo) *Derivator {
	return &Derivator{userEvents: userEvents, signals: signals}
}

// AttentionEventTypes are the event_type values counted by
// user_attention_velocity.
var AttentionEventTypes = map[string]bool{
	domain.EventPlayerView:   true,
	domain.EventWatchlistAdd: true,
	domain.EventShare:        true,
}

// UserAttentionVelocity computes and persists one signal row for
// player at T over window W. Returns (false, nil) if the
// player was skipped for insufficient data (recent+older < 3) — this
// is an expected outcome, not an error.
func (d *Derivator) UserAttentionVelocity(ctx context.Context, playerID string, asOf time.Time, window time.Duration) (bool, error) {
	half := window / 2

	recentWindow := persistence.TimeRange{From: asOf.Add(-half), To: asOf.Add(time.Nanosecond)}
	olderWindow := persistence.TimeRange{From: asOf.Add(-window), To: asOf.Add(-half)}

	recent, err := d.countEligible(ctx, playerID, recentWindow)
	if err != nil {
		return false, fmt.Errorf("user_attention_velocity: %w", err)
	}
	older, err := d.countEligible(ctx, playerID, olderWindow)
	if err != nil {
		return false, fmt.Errorf("user_attention_velocity: %w", err)
	}

	if recent+older < minEligibleEvents {
		return false, nil
	}

	ratio := float64(recent+1) / float64(older+1)
	if ratio > 10 {
		ratio = 10
	}
	value := float64(int(ratio * 100))

	pid := playerID
	event := domain.SignalEvent{
		EntityType:    domain.EntityPlayer,
		PlayerID:      &pid,
		SignalType:    domain.SignalUserAttentionVelocity,
		SignalValue:   domain.NewNumValue(value),
		Source:        sourceUserDerived,
		Confidence:    derivedConfidence,
		ObservedAt:    asOf,
		EffectiveFrom: asOf,
	}
	if err := d.signals.Insert(ctx, event); err != nil {
		return false, fmt.Errorf("user_attention_velocity: failed to persist signal: %w", err)
	}
	return true, nil
}

func (d *Derivator) countEligible(ctx context.Context, playerID string, tr persistence.TimeRange) (int64, error) {
	counts, err := d.userEvents.CountByTypeInWindow(ctx, playerID, tr)
	if err != nil {
		return 0, err
	}
	var total int64
	for eventType, c := range counts {
		if AttentionEventTypes[eventType] {
			total += c
		}
	}
	return total, nil
}

// UserDestinationCooccurrence computes and persists one signal row for
// (player, club) at T over window 7*W. Returns (false, nil)
// if fewer than 2 cooccurring sessions were found.
func (d *Derivator) UserDestinationCooccurrence(ctx context.Context, playerID, clubID string, asOf time.Time, baseWindow time.Duration) (bool, error) {
	longWindow := baseWindow * 7
	tr := persistence.TimeRange{From: asOf.Add(-longWindow), To: asOf.Add(time.Nanosecond)}

	counts, err := d.userEvents.CooccurringClubViews(ctx, playerID, tr)
	if err != nil {
		return false, fmt.Errorf("user_destination_cooccurrence: %w", err)
	}

	count := counts[clubID]
	if count < minCooccurSessions {
		return false, nil
	}

	value := float64(count * 10)
	if value > 100 {
		value = 100
	}

	pid, cid := playerID, clubID
	event := domain.SignalEvent{
		EntityType:    domain.EntityPair,
		PlayerID:      &pid,
		ClubID:        &cid,
		SignalType:    domain.SignalUserDestinationCooccur,
		SignalValue:   domain.NewNumValue(value),
		Source:        sourceUserDerived,
		Confidence:    derivedConfidence,
		ObservedAt:    asOf,
		EffectiveFrom: asOf,
	}
	if err := d.signals.Insert(ctx, event); err != nil {
		return false, fmt.Errorf("user_destination_cooccurrence: failed to persist signal: %w", err)
	}
	return true, nil
}
