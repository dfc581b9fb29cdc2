package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAlertValidatorLoadsCheckedInRules(t *testing.T) {
	v, err := NewAlertValidator(filepath.Join("..", "..", "monitoring", "prometheus", "invoice-ops-alerts.yml"))
	require.NoError(t, err)
	assert.Len(t, v.AlertNames(), 3)
}

func TestCheckCircuitBreakerOpenFires(t *testing.T) {
	v, err := NewAlertValidator(filepath.Join("..", "..", "monitoring", "prometheus", "invoice-ops-alerts.yml"))
	require.NoError(t, err)
	result := v.CheckCircuitBreakerOpen(map[string]int{"db_primary": 2, "other": 1})
	assert.True(t, result.WouldFire, "expected alert to fire when a dependency's state is 2 (open)")
}

func TestCheckCircuitBreakerOpenDoesNotFireWhenClosed(t *testing.T) {
	v, err := NewAlertValidator(filepath.Join("..", "..", "monitoring", "prometheus", "invoice-ops-alerts.yml"))
	require.NoError(t, err)
	result := v.CheckCircuitBreakerOpen(map[string]int{"db_primary": 0})
	assert.False(t, result.WouldFire, "expected alert not to fire when no dependency is open")
}

func TestCheckRateLimitSpikeThreshold(t *testing.T) {
	v, err := NewAlertValidator(filepath.Join("..", "..", "monitoring", "prometheus", "invoice-ops-alerts.yml"))
	require.NoError(t, err)
	assert.True(t, v.CheckRateLimitSpike(6).WouldFire, "expected alert to fire above 5 req/min")
	assert.False(t, v.CheckRateLimitSpike(4).WouldFire, "expected alert not to fire below 5 req/min")
}

func TestCheckGuardInternalError(t *testing.T) {
	v, err := NewAlertValidator(filepath.Join("..", "..", "monitoring", "prometheus", "invoice-ops-alerts.yml"))
	require.NoError(t, err)
	assert.True(t, v.CheckGuardInternalError(0.1, 0).WouldFire, "expected alert to fire on any nonzero error rate")
	assert.False(t, v.CheckGuardInternalError(0, 0).WouldFire, "expected alert not to fire when both rates are zero")
}

func TestNewAlertValidatorErrorsOnMissingFile(t *testing.T) {
	_, err := NewAlertValidator("does/not/exist.yml")
	assert.Error(t, err)
}
