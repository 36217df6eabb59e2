package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestGuardrailErrorIsFatal(t *testing.T) {
	err := GuardrailErrorf("node %s missing uid", "file:app.py")

	if !err.IsFatal() {
		t.Error("guardrail violations must be fatal")
	}
	if GetType(err) != ErrorTypeGuardrail {
		t.Errorf("expected guardrail type, got %v", GetType(err))
	}
}

func TestParseErrorIsNotFatal(t *testing.T) {
	err := ParseErrorf("malformed commit header: %q", "garbage|line")

	if err.IsFatal() {
		t.Error("parse errors are skip-and-log, never fatal")
	}
	if GetSeverity(err) != SeverityLow {
		t.Errorf("expected low severity, got %v", GetSeverity(err))
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := DatabaseError(cause, "failed to merge commit batch")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
	if err.Error() != "failed to merge commit batch: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestIsMatchesByType(t *testing.T) {
	err := ValidationError("bad cursor")
	target := &Error{Type: ErrorTypeValidation}

	if !stderrors.Is(err, target) {
		t.Error("errors of the same type should match")
	}

	other := &Error{Type: ErrorTypeDatabase}
	if stderrors.Is(err, other) {
		t.Error("errors of different types should not match")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient database", TransientError(fmt.Errorf("timeout"), "batch write"), true},
		{"network", NetworkError(fmt.Errorf("refused"), "neo4j unreachable"), true},
		{"critical database", DatabaseError(fmt.Errorf("syntax"), "bad query"), false},
		{"guardrail", GuardrailError("null uid"), false},
		{"plain error", fmt.Errorf("whatever"), false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	err := GuardrailError("missing stamps").
		WithContext("label", "GitCommit").
		WithContext("missing", []string{"uid"})

	if err.Context["label"] != "GitCommit" {
		t.Errorf("context not recorded: %v", err.Context)
	}

	detailed := err.DetailedString()
	if detailed == "" {
		t.Error("detailed string should not be empty")
	}
}
