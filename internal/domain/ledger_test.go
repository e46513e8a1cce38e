package domain

import (
	"errors"
	"testing"
	"time"
)

var (
	errNotFound = errors.New("event not found")
	errCycle    = errors.New("cycle detected")
)

func mustDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTransferEvent_Validate(t *testing.T) {
	e := TransferEvent{
		TransferType:     TransferPermanent,
		SourceConfidence: 0.8,
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := e
	bad.TransferType = "not_a_real_type"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for invalid transfer_type")
	}

	badConf := e
	badConf.SourceConfidence = 1.5
	if err := badConf.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range source_confidence")
	}

	pct := 101.0
	badPct := e
	badPct.SellOnPercent = &pct
	if err := badPct.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range sell_on_percent")
	}
}

func TestDeterministicEventID(t *testing.T) {
	date := mustDate(2025, 3, 15)
	id := DeterministicEventID(date, "PSMITH", "FCBAR")
	if id != "TL-20250315-PSMITH-FCBAR" {
		t.Fatalf("got %q", id)
	}

	originID := DeterministicEventID(date, "PSMITH", "")
	if id == originID {
		t.Fatalf("expected different ids for with/without from-club")
	}
	if want := "TL-20250315-PSMITH-ORIGIN"; originID != want {
		t.Fatalf("got %q, want %q", originID, want)
	}
}

// Following superseded_by terminates at a row with is_superseded=false.
func TestSupersedeChain_TerminatesWithoutCycle(t *testing.T) {
	chain := map[string]TransferEvent{
		"a": {EventID: "a", IsSuperseded: true, SupersededBy: strPtr("b")},
		"b": {EventID: "b", IsSuperseded: true, SupersededBy: strPtr("c")},
		"c": {EventID: "c", IsSuperseded: false},
	}

	terminal, err := followChain(chain, "a", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terminal.EventID != "c" || terminal.IsSuperseded {
		t.Fatalf("expected terminal row c with is_superseded=false, got %+v", terminal)
	}
}

func TestSupersedeChain_CycleDetected(t *testing.T) {
	chain := map[string]TransferEvent{
		"a": {EventID: "a", IsSuperseded: true, SupersededBy: strPtr("b")},
		"b": {EventID: "b", IsSuperseded: true, SupersededBy: strPtr("a")},
	}
	if _, err := followChain(chain, "a", 10); err == nil {
		t.Fatalf("expected cycle to be detected")
	}
}

func strPtr(s string) *string { return &s }

// followChain is the same bounded-traversal shape the persistence layer's
// Terminal() implements against the store; reproduced here in-memory so
// the acyclicity property can be asserted without a database.
func followChain(byID map[string]TransferEvent, start string, maxHops int) (TransferEvent, error) {
	cur, ok := byID[start]
	if !ok {
		return TransferEvent{}, errNotFound
	}
	seen := map[string]bool{start: true}
	for cur.IsSuperseded && cur.SupersededBy != nil {
		next := *cur.SupersededBy
		if seen[next] {
			return TransferEvent{}, errCycle
		}
		seen[next] = true
		if len(seen) > maxHops {
			return TransferEvent{}, errCycle
		}
		n, ok := byID[next]
		if !ok {
			return TransferEvent{}, errNotFound
		}
		cur = n
	}
	return cur, nil
}
