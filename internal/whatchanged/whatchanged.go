// Package whatchanged scans over a recent window ending
// now, detect and classify meaningful signal deltas for a player using
// the fixed per-signal-type threshold table. It is invoked on read by
// the player-detail reader, never by a batch job.
package whatchanged

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

// Severity closes the three-level ordering this package sorts on: alert is the
// most severe, info the least.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityAlert:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Delta is one detected change, ready for display.
type Delta struct {
	SignalType  domain.SignalType `json:"signal_type"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	OldValue    *string           `json:"old_value,omitempty"`
	NewValue    *string           `json:"new_value,omitempty"`
	ObservedAt  time.Time         `json:"observed_at"`
}

const defaultWindowDays = 7
const maxDeltas = 10

// Detector groups a player's in-window signals by type and applies the
// fixed threshold table.
type Detector struct {
	signals persistence.SignalsRepo
}

func NewDetector(signals persistence.SignalsRepo) *Detector {
	return &Detector{signals: signals}
}

// Detect returns up to maxDeltas changes for playerID over the
// `days`-long window ending at now (days <= 0 defaults to 7), sorted by
// severity descending then observed_at descending.
func (d *Detector) Detect(ctx context.Context, playerID string, now time.Time, days int) ([]Delta, error) {
	if days <= 0 {
		days = defaultWindowDays
	}
	window := time.Duration(days) * 24 * time.Hour
	tr := persistence.TimeRange{From: now.Add(-window), To: now.Add(time.Nanosecond)}

	rows, err := d.signals.ListForEntityInWindow(ctx, domain.EntityPlayer, &playerID, nil, tr)
	if err != nil {
		return nil, fmt.Errorf("whatchanged: failed to list signals: %w", err)
	}

	byType := make(map[domain.SignalType][]domain.SignalEvent)
	for _, r := range rows {
		byType[r.SignalType] = append(byType[r.SignalType], r)
	}

	var deltas []Delta
	for signalType, group := range byType {
		sort.Slice(group, func(i, j int) bool { return group[i].EffectiveFrom.Before(group[j].EffectiveFrom) })

		if signalType == domain.SignalInjuriesStatus && len(group) == 1 {
			if delta, ok := singleInjuryAlert(group[0]); ok {
				deltas = append(deltas, delta)
			}
			continue
		}

		if len(group) < 2 {
			continue
		}
		first, last := group[0], group[len(group)-1]
		if delta, ok := classify(signalType, first, last); ok {
			deltas = append(deltas, delta)
		}
	}

	sort.Slice(deltas, func(i, j int) bool {
		if severityRank(deltas[i].Severity) != severityRank(deltas[j].Severity) {
			return severityRank(deltas[i].Severity) > severityRank(deltas[j].Severity)
		}
		return deltas[i].ObservedAt.After(deltas[j].ObservedAt)
	})
	if len(deltas) > maxDeltas {
		deltas = deltas[:maxDeltas]
	}
	return deltas, nil
}

// classify applies the fixed per-type rule to the
// first/last rows of an in-window group. Returns ok=false when no rule
// fires (e.g. a delta too small to report).
func classify(signalType domain.SignalType, first, last domain.SignalEvent) (Delta, bool) {
	switch signalType {
	case domain.SignalContractMonthsRemaining:
		return contractMonthsDelta(first, last)
	case domain.SignalMarketValue:
		return marketValueDelta(first, last)
	case domain.SignalInjuriesStatus:
		return injuriesTransitionDelta(first, last)
	case domain.SignalSocialMentionVelocity:
		return ratioDelta(signalType, first, last, 0.5, 2.0, "Social mention velocity")
	case domain.SignalUserAttentionVelocity:
		return ratioDelta(signalType, first, last, 1.0, 3.0, "User attention velocity")
	case domain.SignalGoalsLast10:
		return absoluteDelta(signalType, first, last, 2, "Goals in last 10 matches")
	case domain.SignalAssistsLast10:
		return absoluteDelta(signalType, first, last, 2, "Assists in last 10 matches")
	case domain.SignalClubLeaguePosition:
		return leaguePositionDelta(first, last)
	default:
		return Delta{}, false
	}
}

func numOf(e domain.SignalEvent) (float64, bool) {
	if e.Num == nil {
		return 0, false
	}
	return *e.Num, true
}

func textOf(e domain.SignalEvent) (string, bool) {
	if e.Text == nil {
		return "", false
	}
	return *e.Text, true
}

func fmtFloat(f float64) string { return fmt.Sprintf("%g", f) }

// contractMonthsDelta triggers only when the value crosses downward
// through 6 months.
func contractMonthsDelta(first, last domain.SignalEvent) (Delta, bool) {
	oldV, ok1 := numOf(first)
	newV, ok2 := numOf(last)
	if !ok1 || !ok2 {
		return Delta{}, false
	}
	if oldV >= 6 && newV < 6 {
		oldStr, newStr := fmtFloat(oldV), fmtFloat(newV)
		return Delta{
			SignalType:  domain.SignalContractMonthsRemaining,
			Severity:    SeverityAlert,
			Description: fmt.Sprintf("Contract down to %s months remaining", newStr),
			OldValue:    &oldStr,
			NewValue:    &newStr,
			ObservedAt:  last.ObservedAt,
		}, true
	}
	return Delta{}, false
}

// marketValueDelta: |Δ/old| >= 10% -> warning; > 20% -> alert.
func marketValueDelta(first, last domain.SignalEvent) (Delta, bool) {
	oldV, ok1 := numOf(first)
	newV, ok2 := numOf(last)
	if !ok1 || !ok2 || oldV == 0 {
		return Delta{}, false
	}
	pctChange := (newV - oldV) / oldV
	absChange := pctChange
	if absChange < 0 {
		absChange = -absChange
	}
	if absChange < 0.10 {
		return Delta{}, false
	}
	severity := SeverityWarning
	if absChange > 0.20 {
		severity = SeverityAlert
	}
	direction := "up"
	if pctChange < 0 {
		direction = "down"
	}
	oldStr, newStr := fmtFloat(oldV), fmtFloat(newV)
	return Delta{
		SignalType:  domain.SignalMarketValue,
		Severity:    severity,
		Description: fmt.Sprintf("Market value %s to €%.1fM", direction, newV/1_000_000),
		OldValue:    &oldStr,
		NewValue:    &newStr,
		ObservedAt:  last.ObservedAt,
	}, true
}

// injuriesTransitionDelta: any change from "fit" -> alert; transitions
// within non-fit values -> info. Unchanged values fire nothing.
func injuriesTransitionDelta(first, last domain.SignalEvent) (Delta, bool) {
	oldV, ok1 := textOf(first)
	newV, ok2 := textOf(last)
	if !ok1 || !ok2 || oldV == newV {
		return Delta{}, false
	}
	severity := SeverityInfo
	if oldV == "fit" {
		severity = SeverityAlert
	}
	return Delta{
		SignalType:  domain.SignalInjuriesStatus,
		Severity:    severity,
		Description: fmt.Sprintf("Injury status changed from %s to %s", oldV, newV),
		OldValue:    &oldV,
		NewValue:    &newV,
		ObservedAt:  last.ObservedAt,
	}, true
}

// singleInjuryAlert flags exactly one in-window row
// and it is not "fit" -> alert describing the new state.
func singleInjuryAlert(row domain.SignalEvent) (Delta, bool) {
	v, ok := textOf(row)
	if !ok || v == "fit" {
		return Delta{}, false
	}
	return Delta{
		SignalType:  domain.SignalInjuriesStatus,
		Severity:    SeverityAlert,
		Description: fmt.Sprintf("Injury status: %s", v),
		NewValue:    &v,
		ObservedAt:  row.ObservedAt,
	}, true
}

// ratioDelta implements the social/user-attention velocity rules:
// fractional increase >= warnAt -> warning, > alertMultiple(x) -> alert.
func ratioDelta(signalType domain.SignalType, first, last domain.SignalEvent, warnAt, alertMultiple float64, label string) (Delta, bool) {
	oldV, ok1 := numOf(first)
	newV, ok2 := numOf(last)
	if !ok1 || !ok2 || oldV <= 0 {
		return Delta{}, false
	}
	increase := (newV - oldV) / oldV
	if increase < warnAt {
		return Delta{}, false
	}
	severity := SeverityWarning
	if newV > oldV*alertMultiple {
		severity = SeverityAlert
	}
	oldStr, newStr := fmtFloat(oldV), fmtFloat(newV)
	return Delta{
		SignalType:  signalType,
		Severity:    severity,
		Description: fmt.Sprintf("%s up from %s to %s", label, oldStr, newStr),
		OldValue:    &oldStr,
		NewValue:    &newStr,
		ObservedAt:  last.ObservedAt,
	}, true
}

// absoluteDelta implements the goals/assists rule: |Δ| >= threshold -> info.
func absoluteDelta(signalType domain.SignalType, first, last domain.SignalEvent, threshold float64, label string) (Delta, bool) {
	oldV, ok1 := numOf(first)
	newV, ok2 := numOf(last)
	if !ok1 || !ok2 {
		return Delta{}, false
	}
	diff := newV - oldV
	if diff < 0 {
		diff = -diff
	}
	if diff < threshold {
		return Delta{}, false
	}
	oldStr, newStr := fmtFloat(oldV), fmtFloat(newV)
	return Delta{
		SignalType:  signalType,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("%s changed from %s to %s", label, oldStr, newStr),
		OldValue:    &oldStr,
		NewValue:    &newStr,
		ObservedAt:  last.ObservedAt,
	}, true
}

// leaguePositionDelta: |Δ| >= 3 -> info; >= 5 -> warning.
func leaguePositionDelta(first, last domain.SignalEvent) (Delta, bool) {
	oldV, ok1 := numOf(first)
	newV, ok2 := numOf(last)
	if !ok1 || !ok2 {
		return Delta{}, false
	}
	diff := newV - oldV
	if diff < 0 {
		diff = -diff
	}
	if diff < 3 {
		return Delta{}, false
	}
	severity := SeverityInfo
	if diff >= 5 {
		severity = SeverityWarning
	}
	oldStr, newStr := fmtFloat(oldV), fmtFloat(newV)
	direction := "dropped to"
	if newV < oldV {
		direction = "climbed to"
	}
	return Delta{
		SignalType:  domain.SignalClubLeaguePosition,
		Severity:    severity,
		Description: fmt.Sprintf("Club league position %s %s", direction, newStr),
		OldValue:    &oldStr,
		NewValue:    &newStr,
		ObservedAt:  last.ObservedAt,
	}, true
}
