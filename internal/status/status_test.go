package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != OK {
		t.Errorf("expected OK for nil, got %s", got)
	}
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Errorf("expected INTERNAL for plain error, got %s", got)
	}

	wrapped := fmt.Errorf("handle: %w", New(NotFound, "action does not exist"))
	if got := CodeOf(wrapped); got != NotFound {
		t.Errorf("expected NOT_FOUND through wrapping, got %s", got)
	}
}

func TestErrorIsAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StorageFailure, "append event", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !errors.Is(err, &Error{Code: StorageFailure}) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(err, &Error{Code: NotFound}) {
		t.Error("expected different codes not to match")
	}
	if err.Error() != "append event: disk full" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCodeString(t *testing.T) {
	if InvalidRequest.String() != "INVALID_REQUEST" {
		t.Errorf("unexpected name %q", InvalidRequest.String())
	}
	if Code(200).String() != "CODE(200)" {
		t.Errorf("unexpected name %q", Code(200).String())
	}
}

func TestPublicMessage(t *testing.T) {
	cause := errors.New("open /data/db/users/schema.db: permission denied")
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), "internal error"},
		{New(NotFound, `action "x" does not exist`), `action "x" does not exist`},
		{Wrap(InvalidRequest, `data "age"`, errors.New("data type mismatch")), `data "age": data type mismatch`},
		{Wrap(StorageFailure, "table session failed", cause), "table session failed"},
	}
	for _, tt := range tests {
		if got := PublicMessage(tt.err); got != tt.want {
			t.Errorf("PublicMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
