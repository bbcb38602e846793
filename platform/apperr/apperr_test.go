package apperr

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestGetKindFindsWrappedError(t *testing.T) {
	base := Timeout("session store", context.DeadlineExceeded).WithOp("sessions.Get")
	wrapped := fmt.Errorf("load: %w", base)

	if GetKind(wrapped) != KindTimeout {
		t.Fatalf("expected timeout kind, got %v", GetKind(wrapped))
	}
	if !Is(wrapped, KindTimeout) {
		t.Fatal("expected Is to match")
	}
	if GetKind(fmt.Errorf("plain")) != KindUnknown {
		t.Fatal("expected unknown kind for plain error")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:    http.StatusNotFound,
		KindUnavailable: http.StatusServiceUnavailable,
		KindTimeout:     http.StatusGatewayTimeout,
		KindRateLimited: http.StatusTooManyRequests,
		KindUnknown:     http.StatusBadRequest,
	}
	for kind, want := range cases {
		if got := New(kind, "x").HTTPStatus(); got != want {
			t.Fatalf("kind %v: expected %d, got %d", kind, want, got)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Unavailable("redis", fmt.Errorf("connection refused")).WithOp("sessions.Save")
	if err.Error() != "sessions.Save: redis: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
