package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("query balance: %w", Wrap(KindConnection, "dial rpc", cause))

	if !IsKind(err, KindConnection) {
		t.Fatalf("expected KindConnection, got %q", KindOf(err))
	}
	if IsKind(err, KindCall) {
		t.Fatalf("unexpected KindCall")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable via errors.Is")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if e.Message != "dial rpc" {
		t.Fatalf("message=%q", e.Message)
	}
}

func TestKindOf_Unstructured(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Fatalf("got=%q", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("got=%q", got)
	}
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap(KindSigning, "sign", nil)
	if err.Error() != "sign" {
		t.Fatalf("error=%q", err.Error())
	}
}
