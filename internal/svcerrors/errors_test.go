package svcerrors

import (
	"errors"
	"testing"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeDependencyExhausted, "tariff lookup failed", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	if err.Code != CodeDependencyExhausted {
		t.Fatalf("expected code to round-trip")
	}
}

func TestWithDetail(t *testing.T) {
	err := New(CodeRateLimited, "too many requests").WithDetail("endpoint", "extract")
	if err.Details["endpoint"] != "extract" {
		t.Fatalf("expected detail to be stored")
	}
}
