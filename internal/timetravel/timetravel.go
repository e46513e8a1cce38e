// Package timetravel is the single choke point for bitemporal reads.
// No other package may inline an observed_at/effective_from/effective_to
// filter — every feature read, candidate lookup, and training-label
// check goes through latest_signal, derived_user_value, or one of the
// two validators here.
package timetravel

import (
	"context"
	"fmt"
	"time"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

// Reader is the read-side entry point feature building and the
// what-changed detector depend on.
type Reader struct {
	signals    persistence.SignalsRepo
	userEvents persistence.UserEventsRepo
}

func NewReader(signals persistence.SignalsRepo, userEvents persistence.UserEventsRepo) *Reader {
	return &Reader{signals: signals, userEvents: userEvents}
}

// LatestSignal returns the row maximizing effective_from among those
// satisfying observed_at <= T AND effective_from <= T AND
// (effective_to IS NULL OR effective_to > T); among rows sharing that
// effective_from, the later observed_at wins. Returns (nil, nil) if no
// row satisfies the predicate — that is not an error, it is "unknown
// at T".
func (r *Reader) LatestSignal(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, signalType domain.SignalType, asOf time.Time) (*domain.SignalEvent, error) {
	rows, err := r.signals.CandidatesAsOf(ctx, entityType, playerID, clubID, signalType, asOf)
	if err != nil {
		return nil, fmt.Errorf("latest_signal: %w", err)
	}

	var best *domain.SignalEvent
	for i := range rows {
		row := rows[i]
		// HoldsAt applies the full predicate, so a row the store returns
		// with observed_at or effective_from after asOf is skipped here.
		if !row.HoldsAt(asOf) {
			continue
		}
		if best == nil || row.EffectiveFrom.After(best.EffectiveFrom) ||
			(row.EffectiveFrom.Equal(best.EffectiveFrom) && row.ObservedAt.After(best.ObservedAt)) {
			best = &row
		}
	}
	return best, nil
}

// DerivedUserValueKind closes the set of derived-value computations
// over the raw user_events stream.
type DerivedUserValueKind string

const (
	DerivedAttentionVelocity    DerivedUserValueKind = "attention_velocity"
	DerivedDestinationCooccur   DerivedUserValueKind = "destination_cooccurrence"
)

// DerivedUserValue computes attention-velocity or cooccurrence over
// user_events restricted to occurred_at in [T-window, T]. clubID is
// only consulted for DerivedDestinationCooccur, where it selects which
// club's cooccurrence count to return.
func (r *Reader) DerivedUserValue(ctx context.Context, playerID string, clubID *string, kind DerivedUserValueKind, asOf time.Time, window time.Duration) (float64, error) {
	tr := persistence.TimeRange{From: asOf.Add(-window), To: asOf.Add(time.Nanosecond)}

	switch kind {
	case DerivedAttentionVelocity:
		counts, err := r.userEvents.CountByTypeInWindow(ctx, playerID, tr)
		if err != nil {
			return 0, fmt.Errorf("derived_user_value(attention_velocity): %w", err)
		}
		var total int64
		for _, c := range counts {
			total += c
		}
		days := window.Hours() / 24
		if days <= 0 {
			return 0, nil
		}
		return float64(total) / days, nil
	case DerivedDestinationCooccur:
		if clubID == nil {
			return 0, apperr.Validation("missing_club_id", "destination_cooccurrence requires a club_id")
		}
		counts, err := r.userEvents.CooccurringClubViews(ctx, playerID, tr)
		if err != nil {
			return 0, fmt.Errorf("derived_user_value(destination_cooccurrence): %w", err)
		}
		return float64(counts[*clubID]), nil
	default:
		return 0, apperr.Validation("invalid_derived_kind", fmt.Sprintf("unknown derived value kind: %s", kind))
	}
}

// ValidateSignalTimeTravel fails with TimeTravelViolation if either
// timestamp is strictly after T. Equality is allowed (<=, not <).
func ValidateSignalTimeTravel(observedAt, effectiveFrom, asOf time.Time) error {
	if observedAt.After(asOf) {
		return apperr.TimeTravelViolation("observed_at_after_asof",
			fmt.Sprintf("observed_at %s is after as-of %s", observedAt, asOf))
	}
	if effectiveFrom.After(asOf) {
		return apperr.TimeTravelViolation("effective_from_after_asof",
			fmt.Sprintf("effective_from %s is after as-of %s", effectiveFrom, asOf))
	}
	return nil
}

// ValidateTrainingLabelTimeTravel fails with DataLeakage unless
// featureDate is strictly before transferDate. The caller is expected
// to have derived featureDate as transferDate - horizonDays exactly;
// this validator only checks the ordering, not the arithmetic.
func ValidateTrainingLabelTimeTravel(transferDate, featureDate time.Time, horizonDays int) error {
	if !featureDate.Before(transferDate) {
		return apperr.DataLeakage("feature_date_not_before_transfer",
			fmt.Sprintf("feature_date %s must be strictly before transfer_date %s (horizon=%dd)",
				featureDate, transferDate, horizonDays))
	}
	return nil
}

// FeatureDateForHorizon computes transferDate - horizonDays, the exact
// relation the training-set builder requires before calling
// ValidateTrainingLabelTimeTravel.
func FeatureDateForHorizon(transferDate time.Time, horizonDays int) time.Time {
	return transferDate.AddDate(0, 0, -horizonDays)
}
