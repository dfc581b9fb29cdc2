package validation

import (
	"os"
	"strings"
)

// Mode selects how EnforceValidation dispatches a validation run.
type Mode string

const (
	ModeOff         Mode = "off"
	ModeShadow      Mode = "shadow"
	ModeEnforceSoft Mode = "enforce_soft"
	ModeEnforceHard Mode = "enforce_hard"
)

var validModes = map[Mode]bool{
	ModeOff: true, ModeShadow: true, ModeEnforceSoft: true, ModeEnforceHard: true,
}

// defaultBlockerCodes are the codes that turn an invalid invoice into a
// hard block in enforce_hard mode; any other code is advisory-only.
var defaultBlockerCodes = map[Code]bool{
	CodeInvalidETTN:             true,
	CodeInconsistentPeriods:     true,
	CodeReactivePenaltyMismatch: true,
	CodeTotalMismatch:           true,
	CodePayableTotalMismatch:    true,
}

// EnforcementConfig pins the mode and blocker-code set for one run.
type EnforcementConfig struct {
	Mode         Mode
	BlockerCodes map[Code]bool
}

// DefaultEnforcementConfig mirrors the env-overlay default: shadow mode,
// the standard blocker set.
func DefaultEnforcementConfig() EnforcementConfig {
	return EnforcementConfig{Mode: ModeShadow, BlockerCodes: defaultBlockerCodes}
}

// LoadEnforcementConfig reads INVOICE_VALIDATION_MODE and
// INVOICE_VALIDATION_BLOCKER_CODES from the environment. Any
// unrecognized mode falls back to shadow; an empty or malformed code
// list falls back to the default blocker set — never an error, since
// misconfiguration here must never escalate to a hard failure of the
// invoice pipeline.
func LoadEnforcementConfig() EnforcementConfig {
	cfg := DefaultEnforcementConfig()

	rawMode := Mode(strings.ToLower(strings.TrimSpace(os.Getenv("INVOICE_VALIDATION_MODE"))))
	if validModes[rawMode] {
		cfg.Mode = rawMode
	}

	rawCodes := strings.TrimSpace(os.Getenv("INVOICE_VALIDATION_BLOCKER_CODES"))
	if rawCodes != "" {
		codes := map[Code]bool{}
		for _, s := range strings.Split(rawCodes, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				codes[Code(s)] = true
			}
		}
		if len(codes) > 0 {
			cfg.BlockerCodes = codes
		}
	}

	return cfg
}
