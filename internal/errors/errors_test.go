package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestFileErrorWrapping(t *testing.T) {
	base := New("disk full")
	err := NewFileError("write", "/coord/locks/42.lock", base)

	if !Is(err, base) {
		t.Error("FileError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "write") || !strings.Contains(err.Error(), "42.lock") {
		t.Errorf("Error() = %q, missing op or path", err.Error())
	}
}

func TestCommandErrorClassification(t *testing.T) {
	base := New("HTTP 503")
	err := NewCommandError("gh issue list", "server_error", true, 3, base)

	var cmdErr *CommandError
	if !As(err, &cmdErr) {
		t.Fatal("As() failed for CommandError")
	}
	if cmdErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", cmdErr.Attempts)
	}
	if !Is(err, base) {
		t.Error("CommandError does not unwrap to its cause")
	}
}

func TestRecordErrorMatchesCorruptSentinel(t *testing.T) {
	err := NewRecordError("/coord/stats.json", "issues_comp", New("unexpected end of input"))

	if !Is(err, ErrCorruptRecord) {
		t.Error("RecordError does not match ErrCorruptRecord")
	}
	if !strings.Contains(err.Error(), "issues_comp") {
		t.Errorf("Error() = %q, missing preview", err.Error())
	}

	noPreview := NewRecordError("/coord/stats.json", "", New("bad"))
	if strings.Contains(noPreview.Error(), "near") {
		t.Errorf("Error() = %q, unexpected preview segment", noPreview.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "recoverable command", err: NewCommandError("gh", "server_error", true, 1, New("503")), want: true},
		{name: "permanent command", err: NewCommandError("gh", "auth_error", false, 1, New("401")), want: false},
		{name: "wrapped recoverable", err: fmt.Errorf("outer: %w", NewCommandError("gh", "network", true, 2, New("reset"))), want: true},
		{name: "plain error", err: New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(NewRecordError("/p", "", New("bad"))) {
		t.Error("RecordError not user-facing")
	}
	if !IsUserFacing(NewFileError("read", "/p", New("bad"))) {
		t.Error("FileError not user-facing")
	}
	if IsUserFacing(New("internal detail")) {
		t.Error("plain error reported user-facing")
	}
}
