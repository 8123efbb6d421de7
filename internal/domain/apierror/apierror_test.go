package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuthentication, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindUpstream, http.StatusBadGateway},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindInternal, http.StatusInternalServerError},
		{KindStream, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := New(tc.kind, "boom").HTTPStatus(); got != tc.want {
			t.Fatalf("kind %s: got status %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestFromErrorPreservesKind(t *testing.T) {
	base := Validation("bad model %q", "x")
	wrapped := fmt.Errorf("handler: %w", base)

	got := FromError(wrapped)
	if got.Kind != KindValidation {
		t.Fatalf("got kind %s, want %s", got.Kind, KindValidation)
	}
}

func TestFromErrorUnknownBecomesInternal(t *testing.T) {
	got := FromError(errors.New("disk on fire"))
	if got.Kind != KindInternal {
		t.Fatalf("got kind %s, want %s", got.Kind, KindInternal)
	}
	if got.Message != "disk on fire" {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Upstream("provider down").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
}
