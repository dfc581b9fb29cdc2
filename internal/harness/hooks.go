package harness

import (
	"errors"
	"fmt"
	"time"
)

// MaybeInjectDBTimeout is a test-time hook for a DB call path; it is a
// no-op unless the DB_TIMEOUT injection point is active on the
// process-wide FaultInjector, in which case it simulates the configured
// delay (if any) and then returns a timeout error. No production call
// path in this repository calls it; harness and chaos tests call it
// directly.
func MaybeInjectDBTimeout() error {
	injector := GetInstance()
	if !injector.IsEnabled(InjectDBTimeout) {
		return nil
	}
	params := injector.Params(InjectDBTimeout)
	delaySeconds, _ := params["delay_seconds"].(float64)
	if delaySeconds > 0 {
		time.Sleep(time.Duration(delaySeconds * float64(time.Second)))
	}
	return fmt.Errorf("injected DB timeout (delay=%vs)", delaySeconds)
}

// ErrInjectedGuardError is returned by MaybeInjectGuardError when the
// GUARD_INTERNAL_ERROR injection point is active.
var ErrInjectedGuardError = errors.New("injected guard internal error")

// MaybeInjectGuardError is a test-time hook for a guard evaluation
// path; no-op unless GUARD_INTERNAL_ERROR injection is active. Like
// MaybeInjectDBTimeout, it is called only from tests.
func MaybeInjectGuardError() error {
	if !GetInstance().IsEnabled(InjectGuardInternalError) {
		return nil
	}
	return ErrInjectedGuardError
}
