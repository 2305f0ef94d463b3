package types

import (
	"errors"
	"strings"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("connection refused")
	err := NewError(ErrChannelUnavailable, "sparse search failed").
		WithCause(root).
		WithChannel(ChannelSparse).
		WithRetryable(true)

	if GetErrorCode(err) != ErrChannelUnavailable {
		t.Fatalf("expected code %s, got %s", ErrChannelUnavailable, GetErrorCode(err))
	}
	if err.Channel != ChannelSparse {
		t.Fatalf("expected channel sparse, got %s", err.Channel)
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected cause in error string, got %q", err.Error())
	}
}

func TestError_HelpersOnPlainError(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain")
	if IsRetryable(plain) {
		t.Fatalf("plain error must not be retryable")
	}
	if GetErrorCode(plain) != "" {
		t.Fatalf("plain error must have empty code")
	}
}
