package xerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewNotFound("no media")) {
		t.Fatal("IsNotFound(NewNotFound(...)) = false, want true")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatal("IsNotFound(plain error) = true, want false")
	}
}

func TestAsRateLimitedUnwraps(t *testing.T) {
	base := NewRateLimited(7)
	wrapped := fmt.Errorf("scan failed: %w", base)

	rl, ok := AsRateLimited(wrapped)
	if !ok {
		t.Fatal("AsRateLimited did not unwrap a wrapped RateLimitedError")
	}
	if rl.WaitSeconds != 7 {
		t.Fatalf("WaitSeconds = %d, want 7", rl.WaitSeconds)
	}

	if _, ok := AsRateLimited(errors.New("unrelated")); ok {
		t.Fatal("AsRateLimited matched an unrelated error")
	}
}

func TestStorageUnavailableUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageUnavailable(cause)

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is did not find the wrapped cause")
	}
}
