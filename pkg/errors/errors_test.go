package errors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWrapPreservesChain(t *testing.T) {
	base := ErrCallNotFound
	wrapped := Wrap(base, "lookup failed")

	if !Is(wrapped, ErrCallNotFound) {
		t.Error("wrapped error should match ErrCallNotFound")
	}

	if !strings.Contains(wrapped.Error(), "lookup failed") {
		t.Errorf("expected message in error string, got %q", wrapped.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "should be nil") != nil {
		t.Error("wrapping nil should return nil")
	}
	if Wrapf(nil, "should be %s", "nil") != nil {
		t.Error("Wrapf on nil should return nil")
	}
}

func TestWithFields(t *testing.T) {
	err := New("detection failed").
		WithField("call_sid", "CA123").
		WithFields(map[string]interface{}{
			"signal_count": 2,
		})

	fields := err.Fields()
	if fields["call_sid"] != "CA123" {
		t.Errorf("expected call_sid field, got %v", fields["call_sid"])
	}
	if fields["signal_count"] != 2 {
		t.Errorf("expected signal_count field, got %v", fields["signal_count"])
	}
}

func TestNewCallNotFound(t *testing.T) {
	err := NewCallNotFound("CA456")

	if !Is(err, ErrCallNotFound) {
		t.Error("should match ErrCallNotFound")
	}
	if err.Code != "CALL_NOT_FOUND" {
		t.Errorf("expected CALL_NOT_FOUND code, got %s", err.Code)
	}
	if err.Fields()["call_sid"] != "CA456" {
		t.Error("call_sid field missing")
	}
}

func TestLocation(t *testing.T) {
	err := New("test error")
	loc := err.Location()
	if !strings.Contains(loc, "errors_test.go") {
		t.Errorf("expected test file in location, got %s", loc)
	}
}

func TestAsJSON(t *testing.T) {
	err := Wrap(ErrInvalidWebhook, "missing CallSid").
		WithCode("INVALID_WEBHOOK").
		WithField("field", "CallSid")

	data := err.AsJSON()
	if data["error"] != "missing CallSid" {
		t.Errorf("unexpected error message: %v", data["error"])
	}
	if data["code"] != "INVALID_WEBHOOK" {
		t.Errorf("unexpected code: %v", data["code"])
	}
	if data["cause"] != ErrInvalidWebhook.Error() {
		t.Errorf("unexpected cause: %v", data["cause"])
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"call not found", ErrCallNotFound, http.StatusNotFound},
		{"invalid webhook", ErrInvalidWebhook, http.StatusBadRequest},
		{"provider failure", ErrProviderFailure, http.StatusBadGateway},
		{"wrapped detection", Wrap(ErrDetectionNotFound, "no result"), http.StatusNotFound},
		{"double wrapped", fmt.Errorf("outer: %w", Wrap(ErrInvalidPhoneNumber, "bad number")), http.StatusBadRequest},
		{"unknown", fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatusFromError(tc.err); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, NewCallNotFound("CA789"))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "CA789") {
		t.Error("response should contain call SID")
	}
}
