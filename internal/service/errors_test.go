package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthErrorMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", conflictError("User already registered."))
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected conflict sentinel match")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("did not expect not found match")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
}

func TestInternalErrorKeepsCauseOutOfMessage(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := internalError(cause)
	if err.Message != genericInternalMessage {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("expected internal for plain error")
	}
}
