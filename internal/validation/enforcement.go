package validation

import (
	"github.com/gelka-enerji/invoice-ops/internal/logging"
)

// Action is the enforcement verdict a caller acts on.
type Action string

const (
	ActionPass  Action = "pass"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// Decision is the result of EnforceValidation. Callers in enforce_hard
// mode treat ActionBlock as a hard stop; every other mode only ever
// produces ActionPass or ActionWarn.
type Decision struct {
	Action       Action
	Mode         Mode
	Errors       []ValidationError
	BlockerCodes []Code
	ShadowResult *ShadowCompareResult
}

// EnforcementCounters mirrors the legacy module's test-inspectable
// counters: total decisions, how many were blocked, how many were a
// soft/advisory warn.
type EnforcementCounters struct {
	Total    int
	Blocked  int
	SoftWarn int
}

// EnforcementMetrics accumulates EnforcementCounters across calls to
// EnforceValidation. Like ShadowMetrics, it's an instance rather than a
// package global so tests and concurrent pipelines don't share state.
type EnforcementMetrics struct {
	counters EnforcementCounters
}

func (m *EnforcementMetrics) Snapshot() EnforcementCounters { return m.counters }
func (m *EnforcementMetrics) Reset()                        { m.counters = EnforcementCounters{} }

func (m *EnforcementMetrics) record(d Decision) {
	m.counters.Total++
	switch d.Action {
	case ActionBlock:
		m.counters.Blocked++
	case ActionWarn:
		m.counters.SoftWarn++
	}
}

// EnforceValidation runs the new validator over inv in the mode
// configured by cfg and returns the resulting Decision. oldErrors and
// invoiceID feed the SHADOW-mode comparison only; they are ignored in
// every other mode.
//
// Mode semantics (ported verbatim from the legacy enforcement module):
//
//	off          -> always ActionPass; nothing runs.
//	shadow       -> runs the shadow-compare hook as a side effect;
//	                always ActionPass regardless of its outcome.
//	enforce_soft -> runs Validate(); invalid invoices always ActionWarn,
//	                never ActionBlock, even if a blocker code is present.
//	enforce_hard -> runs Validate(); invalid invoices with at least one
//	                blocker code ActionBlock; invalid invoices with only
//	                advisory codes ActionWarn.
func EnforceValidation(inv Invoice, oldErrors []string, invoiceID string, cfg EnforcementConfig, shadowCfg ShadowConfig, shadowMetrics *ShadowMetrics, enforcementMetrics *EnforcementMetrics, log *logging.Logger) Decision {
	var decision Decision

	switch cfg.Mode {
	case ModeOff:
		decision = Decision{Action: ActionPass, Mode: cfg.Mode}

	case ModeShadow:
		sr := ShadowValidateHook(inv, oldErrors, invoiceID, shadowCfg, shadowMetrics, log)
		decision = Decision{Action: ActionPass, Mode: cfg.Mode, ShadowResult: sr}

	case ModeEnforceSoft:
		result := Validate(inv)
		if result.Valid {
			decision = Decision{Action: ActionPass, Mode: cfg.Mode}
		} else {
			decision = Decision{
				Action:       ActionWarn,
				Mode:         cfg.Mode,
				Errors:       result.Errors,
				BlockerCodes: blockerCodesIn(result.Errors, cfg.BlockerCodes),
			}
		}

	case ModeEnforceHard:
		result := Validate(inv)
		if result.Valid {
			decision = Decision{Action: ActionPass, Mode: cfg.Mode}
			break
		}
		blockers := blockerCodesIn(result.Errors, cfg.BlockerCodes)
		if len(blockers) > 0 {
			decision = Decision{Action: ActionBlock, Mode: cfg.Mode, Errors: result.Errors, BlockerCodes: blockers}
		} else {
			decision = Decision{Action: ActionWarn, Mode: cfg.Mode, Errors: result.Errors}
		}

	default:
		// An unrecognized mode degrades to shadow's always-pass behavior
		// rather than blocking invoices on a config typo.
		decision = Decision{Action: ActionPass, Mode: cfg.Mode}
	}

	if enforcementMetrics != nil {
		enforcementMetrics.record(decision)
	}
	return decision
}

func blockerCodesIn(errs []ValidationError, blockerSet map[Code]bool) []Code {
	var out []Code
	for _, e := range errs {
		if blockerSet[e.Code] {
			out = append(out, e.Code)
		}
	}
	return out
}
