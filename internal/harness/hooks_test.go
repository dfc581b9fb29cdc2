package harness

import (
	"errors"
	"testing"
)

func TestMaybeInjectDBTimeoutNoopWhenDisabled(t *testing.T) {
	ResetInstance()
	defer ResetInstance()
	if err := MaybeInjectDBTimeout(); err != nil {
		t.Fatalf("expected nil when injection disabled, got %v", err)
	}
}

func TestMaybeInjectDBTimeoutReturnsErrorWhenEnabled(t *testing.T) {
	ResetInstance()
	defer ResetInstance()
	GetInstance().Enable(InjectDBTimeout, map[string]any{"delay_seconds": 0.0}, 0)
	if err := MaybeInjectDBTimeout(); err == nil {
		t.Fatal("expected an error when DB_TIMEOUT injection is active")
	}
}

func TestMaybeInjectGuardErrorNoopWhenDisabled(t *testing.T) {
	ResetInstance()
	defer ResetInstance()
	if err := MaybeInjectGuardError(); err != nil {
		t.Fatalf("expected nil when injection disabled, got %v", err)
	}
}

func TestMaybeInjectGuardErrorReturnsSentinelWhenEnabled(t *testing.T) {
	ResetInstance()
	defer ResetInstance()
	GetInstance().Enable(InjectGuardInternalError, nil, 0)
	err := MaybeInjectGuardError()
	if !errors.Is(err, ErrInjectedGuardError) {
		t.Fatalf("expected ErrInjectedGuardError, got %v", err)
	}
}
