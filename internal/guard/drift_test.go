package guard

import (
	"errors"
	"testing"

	"github.com/gelka-enerji/invoice-ops/internal/svcerrors"
)

type stubDriftInput struct {
	configHash string
	endpointSig map[string]string
}

func (s stubDriftInput) CurrentConfigHash() string { return s.configHash }
func (s stubDriftInput) CurrentEndpointSignature(endpoint string) string {
	return s.endpointSig[endpoint]
}

func TestDriftGuardShadowDowngradesHighRisk(t *testing.T) {
	baseline := Baseline{ConfigHash: "abc", EndpointSignature: "sig-1"}
	input := stubDriftInput{configHash: "xyz", endpointSig: map[string]string{"extract": "sig-1"}}
	dg := NewDriftGuard(baseline, DriftShadow, input, nil)

	risk, err := dg.Check("extract", RiskHigh)
	if err != nil {
		t.Fatalf("shadow mode must not block, got %v", err)
	}
	if risk != RiskMedium {
		t.Fatalf("expected downgrade to RiskMedium, got %v", risk)
	}
}

func TestDriftGuardEnforceBlocks(t *testing.T) {
	baseline := Baseline{ConfigHash: "abc", EndpointSignature: "sig-1"}
	input := stubDriftInput{configHash: "xyz", endpointSig: map[string]string{"extract": "sig-1"}}
	dg := NewDriftGuard(baseline, DriftEnforce, input, nil)

	_, err := dg.Check("extract", RiskLow)
	var svcErr *svcerrors.Error
	if !errors.As(err, &svcErr) || svcErr.Code != svcerrors.CodeDriftBlocked {
		t.Fatalf("expected CodeDriftBlocked, got %v", err)
	}
}

func TestDriftGuardNoDriftPassesThrough(t *testing.T) {
	baseline := Baseline{ConfigHash: "abc", EndpointSignature: "sig-1"}
	input := stubDriftInput{configHash: "abc", endpointSig: map[string]string{"extract": "sig-1"}}
	dg := NewDriftGuard(baseline, DriftEnforce, input, nil)

	risk, err := dg.Check("extract", RiskHigh)
	if err != nil {
		t.Fatalf("expected no drift, got %v", err)
	}
	if risk != RiskHigh {
		t.Fatalf("expected risk unchanged, got %v", risk)
	}
}
