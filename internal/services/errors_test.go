package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"radarflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDecode, "processing", "decode", "no usable files", base)
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"processing", "decode", "no usable files"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

type kindedError struct{}

func (kindedError) Error() string     { return "custom" }
func (kindedError) ErrorKind() string { return "PALETTE_MISSING" }

func TestErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"render", services.Wrap(services.ErrRender, "product", "render", "", errors.New("x")), "RENDER_ERROR"},
		{"transport", services.Wrap(services.ErrTransport, "download", "retr", "", nil), "TRANSPORT_ERROR"},
		{"not found", fmt.Errorf("lookup: %w", services.ErrNotFound), "NOT_FOUND"},
		{"deadline", context.DeadlineExceeded, "TIMEOUT"},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), "CANCELED"},
		{"classifier wins", fmt.Errorf("wrapped: %w", kindedError{}), "PALETTE_MISSING"},
		{"unknown", errors.New("plain"), "UNKNOWN_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTruncateMessage(t *testing.T) {
	short := "short"
	if got := services.TruncateMessage(short); got != short {
		t.Fatalf("unexpected truncation: %q", got)
	}
	long := strings.Repeat("a", 499) + "é" + strings.Repeat("b", 50)
	got := services.TruncateMessage(long)
	if len(got) > services.MaxErrorMessageLength {
		t.Fatalf("expected at most %d bytes, got %d", services.MaxErrorMessageLength, len(got))
	}
	if got != strings.Repeat("a", 499) {
		t.Fatalf("expected cut before multibyte rune, got suffix %q", got[len(got)-3:])
	}
}
