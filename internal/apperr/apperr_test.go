package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfAndIs(t *testing.T) {
	err := New(KindValidation, "bad order %d", 3)
	if KindOf(err) != KindValidation {
		t.Errorf("KindOf = %s, want validation", KindOf(err))
	}
	if !Is(err, KindValidation) || Is(err, KindNotFound) {
		t.Error("Is mismatch")
	}

	// Kind survives wrapping with %w.
	wrapped := fmt.Errorf("applying batch: %w", err)
	if KindOf(wrapped) != KindValidation {
		t.Errorf("KindOf(wrapped) = %s, want validation", KindOf(wrapped))
	}

	// Errors from below the engine default to the store kind.
	if KindOf(errors.New("connection reset")) != KindStore {
		t.Error("foreign error not mapped to store")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("row locked")
	err := Wrap(KindStore, cause, "committing batch")
	if !errors.Is(err, cause) {
		t.Error("cause not reachable via errors.Is")
	}
	if got := err.Error(); got != "store: committing batch: row locked" {
		t.Errorf("Error() = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindForbidden, http.StatusForbidden},
		{KindInvalidState, http.StatusConflict},
		{KindValidation, http.StatusBadRequest},
		{KindStore, http.StatusServiceUnavailable},
		{Kind("mystery"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := New(tc.kind, "x").HTTPStatus(); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !New(KindStore, "commit failed").Retryable() {
		t.Error("store errors should be retryable")
	}
	if New(KindValidation, "bad input").Retryable() {
		t.Error("validation errors should not be retryable")
	}
}
