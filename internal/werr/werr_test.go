package werr

import (
	"errors"
	"testing"
)

func TestWrapNilCause(t *testing.T) {
	if err := Wrap(Transport, "dial", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsMatchesKind(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(Protocol, "bad mac", base)
	if !Is(err, Protocol) {
		t.Fatalf("expected Protocol kind")
	}
	if Is(err, Transport) {
		t.Fatalf("did not expect Transport kind")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected Unwrap to preserve base error")
	}
}

func TestIsOnPlainError(t *testing.T) {
	if Is(errors.New("plain"), Validation) {
		t.Fatalf("plain error should not match any Kind")
	}
}
