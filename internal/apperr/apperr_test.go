package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ErrorStringIncludesWrappedError(t *testing.T) {
	wrapped := errors.New("boom")
	e := Internal("db_failure", "could not save", wrapped)
	if got := e.Error(); got != "internal_error: could not save: boom" {
		t.Fatalf("unexpected error string: %q", got)
	}
}

func TestError_ErrorStringWithoutWrapped(t *testing.T) {
	e := NotFound("player_missing", "player not found")
	if got := e.Error(); got != "not_found: player not found" {
		t.Fatalf("unexpected error string: %q", got)
	}
}

func TestError_UnwrapReturnsWrapped(t *testing.T) {
	wrapped := errors.New("root cause")
	e := ArtifactLoadFailure("bad_artifact", "failed to load", wrapped)
	if !errors.Is(e, wrapped) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestAs_FindsWrappedAppError(t *testing.T) {
	orig := DataLeakage("future_label", "label observed after as_of")
	wrapped := fmt.Errorf("evaluating model: %w", orig)

	got, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected As to find the wrapped *Error")
	}
	if got.Kind != KindDataLeakage {
		t.Fatalf("expected kind %q, got %q", KindDataLeakage, got.Kind)
	}
}

func TestAs_FalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	if ok {
		t.Fatalf("expected As to return false for a non-*Error")
	}
}

func TestKindOf_DefaultsToInternalForPlainErrors(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("expected KindInternal for a plain error, got %q", got)
	}
}

func TestKindOf_ExtractsKindFromAppError(t *testing.T) {
	e := Conflict("duplicate_event", "event already superseded")
	if got := KindOf(e); got != KindConflict {
		t.Fatalf("expected KindConflict, got %q", got)
	}
}

func TestHTTPStatus_MapsEveryKind(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:            http.StatusNotFound,
		KindValidation:          http.StatusBadRequest,
		KindTimeTravelViolation: http.StatusBadRequest,
		KindDataLeakage:         http.StatusBadRequest,
		KindInsufficientData:    http.StatusBadRequest,
		KindConflict:            http.StatusConflict,
		KindUnauthorized:        http.StatusUnauthorized,
		KindForbidden:           http.StatusForbidden,
		KindArtifactLoadFailure: http.StatusServiceUnavailable,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("HTTPStatus(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestHTTPStatus_UnknownKindDefaultsToInternalServerError(t *testing.T) {
	if got := HTTPStatus(Kind("something_unmapped")); got != http.StatusInternalServerError {
		t.Fatalf("expected unmapped kind to default to 500, got %d", got)
	}
}
