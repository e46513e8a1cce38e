package derive

import (
	"context"
	"testing"
	"time"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

type fakeUserEventsRepo struct {
	countsByWindow map[string]map[string]int64
	cooccur        map[string]int64
}

func windowKey(tr persistence.TimeRange) string {
	return tr.From.UTC().Format(time.RFC3339) + ".." + tr.To.UTC().Format(time.RFC3339)
}

func (f *fakeUserEventsRepo) Insert(ctx context.Context, e domain.UserEvent) error { return nil }
func (f *fakeUserEventsRepo) InsertBatch(ctx context.Context, e []domain.UserEvent) error {
	return nil
}
func (f *fakeUserEventsRepo) ListForPlayerInWindow(ctx context.Context, playerID string, tr persistence.TimeRange) ([]domain.UserEvent, error) {
	return nil, nil
}
func (f *fakeUserEventsRepo) CountByTypeInWindow(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	return f.countsByWindow[windowKey(tr)], nil
}
func (f *fakeUserEventsRepo) CooccurringClubViews(ctx context.Context, playerID string, tr persistence.TimeRange) (map[string]int64, error) {
	return f.cooccur, nil
}

type fakeSignalsRepo struct {
	inserted []domain.SignalEvent
}

func (f *fakeSignalsRepo) Insert(ctx context.Context, s domain.SignalEvent) error {
	f.inserted = append(f.inserted, s)
	return nil
}
func (f *fakeSignalsRepo) InsertBatch(ctx context.Context, s []domain.SignalEvent) error {
	f.inserted = append(f.inserted, s...)
	return nil
}
func (f *fakeSignalsRepo) CandidatesAsOf(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, signalType domain.SignalType, asOf time.Time) ([]domain.SignalEvent, error) {
	return nil, nil
}
func (f *fakeSignalsRepo) ListForEntityInWindow(ctx context.Context, entityType domain.EntityType, playerID, clubID *string, tr persistence.TimeRange) ([]domain.SignalEvent, error) {
	return nil, nil
}
func (f *fakeSignalsRepo) ListByTypeInWindow(ctx context.Context, signalType domain.SignalType, tr persistence.TimeRange) ([]domain.SignalEvent, error) {
	return nil, nil
}

func TestUserAttentionVelocity_SkipsBelowMinimumEvents(t *testing.T) {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	window := 14 * 24 * time.Hour
	half := window / 2

	recentWindow := persistence.TimeRange{From: asOf.Add(-half), To: asOf.Add(time.Nanosecond)}
	olderWindow := persistence.TimeRange{From: asOf.Add(-window), To: asOf.Add(-half)}

	ue := &fakeUserEventsRepo{countsByWindow: map[string]map[string]int64{
		windowKey(recentWindow): {domain.EventPlayerView: 1},
		windowKey(olderWindow):  {domain.EventPlayerView: 1},
	}}
	sig := &fakeSignalsRepo{}
	d := New(ue, sig)

	ok, err := d.UserAttentionVelocity(context.Background(), "p1", asOf, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected skip: recent+older=2 < minimum 3")
	}
	if len(sig.inserted) != 0 {
		t.Fatalf("expected no signal written on skip")
	}
}

func TestUserAttentionVelocity_ComputesCappedRatio(t *testing.T) {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	window := 14 * 24 * time.Hour
	half := window / 2

	recentWindow := persistence.TimeRange{From: asOf.Add(-half), To: asOf.Add(time.Nanosecond)}
	olderWindow := persistence.TimeRange{From: asOf.Add(-window), To: asOf.Add(-half)}

	// recent=20, older=1 -> ratio = 21/2 = 10.5, capped to 10 -> value 1000.
	ue := &fakeUserEventsRepo{countsByWindow: map[string]map[string]int64{
		windowKey(recentWindow): {domain.EventPlayerView: 20},
		windowKey(olderWindow):  {domain.EventPlayerView: 1},
	}}
	sig := &fakeSignalsRepo{}
	d := New(ue, sig)

	ok, err := d.UserAttentionVelocity(context.Background(), "p1", asOf, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected signal to be written")
	}
	if len(sig.inserted) != 1 {
		t.Fatalf("expected exactly one signal written, got %d", len(sig.inserted))
	}
	got := sig.inserted[0]
	if got.Num == nil || *got.Num != 1000 {
		t.Fatalf("expected capped value 1000, got %v", got.Num)
	}
	if got.Source != sourceUserDerived || got.Confidence != 0.6 {
		t.Fatalf("expected source=%q confidence=0.6, got source=%q confidence=%f", sourceUserDerived, got.Source, got.Confidence)
	}
	if !got.ObservedAt.Equal(asOf) || !got.EffectiveFrom.Equal(asOf) {
		t.Fatalf("expected observed_at=effective_from=asOf, got observed_at=%v effective_from=%v", got.ObservedAt, got.EffectiveFrom)
	}
}

func TestUserDestinationCooccurrence_SkipsBelowMinimum(t *testing.T) {
	ue := &fakeUserEventsRepo{cooccur: map[string]int64{"club-a": 1}}
	sig := &fakeSignalsRepo{}
	d := New(ue, sig)

	ok, err := d.UserDestinationCooccurrence(context.Background(), "p1", "club-a", time.Now(), 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected skip: count=1 < minimum 2")
	}
}

func TestUserDestinationCooccurrence_CapsAt100(t *testing.T) {
	ue := &fakeUserEventsRepo{cooccur: map[string]int64{"club-a": 50}}
	sig := &fakeSignalsRepo{}
	d := New(ue, sig)

	ok, err := d.UserDestinationCooccurrence(context.Background(), "p1", "club-a", time.Now(), 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected signal written")
	}
	got := sig.inserted[0]
	if got.Num == nil || *got.Num != 100 {
		t.Fatalf("expected value capped at 100, got %v", got.Num)
	}
	if got.EntityType != domain.EntityPair {
		t.Fatalf("expected pair entity_type, got %v", got.EntityType)
	}
}
