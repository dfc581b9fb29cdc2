package validation

import "testing"

func validInvoice() Invoice {
	return Invoice{
		"ettn": "123e4567-e89b-12d3-a456-426614174000",
		"periods": []any{
			map[string]any{"code": "T1", "start": "2025-06-01", "end": "2025-06-30", "kwh": 100.0, "amount": 50.0},
			map[string]any{"code": "T2", "start": "2025-06-01", "end": "2025-06-30", "kwh": 100.0, "amount": 50.0},
			map[string]any{"code": "T3", "start": "2025-06-01", "end": "2025-06-30", "kwh": 100.0, "amount": 50.0},
		},
	}
}

func TestValidateValidInvoicePasses(t *testing.T) {
	result := Validate(validInvoice())
	if !result.Valid {
		t.Fatalf("expected a valid invoice, got errors: %+v", result.Errors)
	}
}

func TestValidateMissingETTN(t *testing.T) {
	inv := validInvoice()
	delete(inv, "ettn")
	result := Validate(inv)
	if result.Valid {
		t.Fatalf("expected invalid invoice")
	}
	if !hasCode(result.Errors, CodeMissingField) {
		t.Fatalf("expected MISSING_FIELD, got %+v", result.Errors)
	}
}

func TestValidateMalformedETTN(t *testing.T) {
	inv := validInvoice()
	inv["ettn"] = "not-a-uuid"
	result := Validate(inv)
	if !hasCode(result.Errors, CodeInvalidETTN) {
		t.Fatalf("expected INVALID_ETTN, got %+v", result.Errors)
	}
}

func TestValidatePeriodsMissingRequiredCode(t *testing.T) {
	inv := validInvoice()
	inv["periods"] = []any{
		map[string]any{"code": "T1", "start": "2025-06-01", "end": "2025-06-30", "kwh": 100.0, "amount": 50.0},
	}
	result := Validate(inv)
	if !hasCode(result.Errors, CodeMissingField) {
		t.Fatalf("expected MISSING_FIELD for missing period codes, got %+v", result.Errors)
	}
}

func TestValidatePeriodsInconsistentDates(t *testing.T) {
	inv := validInvoice()
	periods := inv["periods"].([]any)
	p1 := periods[0].(map[string]any)
	p1["start"] = "2025-05-01"
	result := Validate(inv)
	if !hasCode(result.Errors, CodeInconsistentPeriods) {
		t.Fatalf("expected INCONSISTENT_PERIODS, got %+v", result.Errors)
	}
}

func TestValidateReactiveBidirectionalMismatch(t *testing.T) {
	inv := validInvoice()
	inv["reactive"] = map[string]any{"penalty_amount": 100.0, "penalty_kvarh": 0.0}
	result := Validate(inv)
	if !hasCode(result.Errors, CodeReactivePenaltyMismatch) {
		t.Fatalf("expected REACTIVE_PENALTY_MISMATCH, got %+v", result.Errors)
	}
}

func TestValidateReactiveOneSidedFieldMissing(t *testing.T) {
	inv := validInvoice()
	inv["reactive"] = map[string]any{"penalty_amount": 100.0}
	result := Validate(inv)
	if !hasCode(result.Errors, CodeMissingField) {
		t.Fatalf("expected MISSING_FIELD for one-sided reactive section, got %+v", result.Errors)
	}
}

func TestValidateTotalsPayableMismatch(t *testing.T) {
	inv := validInvoice()
	inv["totals"] = map[string]any{"total": 100.0, "payable": 200.0}
	result := Validate(inv)
	if !hasCode(result.Errors, CodePayableTotalMismatch) {
		t.Fatalf("expected PAYABLE_TOTAL_MISMATCH, got %+v", result.Errors)
	}
}

func TestValidateZeroConsumption(t *testing.T) {
	inv := validInvoice()
	inv["lines"] = []any{
		map[string]any{"label": "active energy", "qty_kwh": 0.0, "unit_price": 1.0, "amount": 0.0},
	}
	result := Validate(inv)
	if !hasCode(result.Errors, CodeZeroConsumption) {
		t.Fatalf("expected ZERO_CONSUMPTION, got %+v", result.Errors)
	}
}

func TestValidateLineCrosscheckFail(t *testing.T) {
	inv := validInvoice()
	inv["lines"] = []any{
		map[string]any{"label": "active energy", "qty_kwh": 100.0, "unit_price": 2.0, "amount": 50.0},
	}
	result := Validate(inv)
	if !hasCode(result.Errors, CodeLineCrosscheckFail) {
		t.Fatalf("expected LINE_CROSSCHECK_FAIL, got %+v", result.Errors)
	}
}

func TestValidateRulesDoNotShortCircuit(t *testing.T) {
	inv := Invoice{} // missing everything that can be missing
	result := Validate(inv)
	if !hasCode(result.Errors, CodeMissingField) {
		t.Fatalf("expected at least one MISSING_FIELD")
	}
	// ettn AND periods are both missing — both must be reported, not just the first.
	count := 0
	for _, e := range result.Errors {
		if e.Code == CodeMissingField {
			count++
		}
	}
	if count < 2 {
		t.Fatalf("expected independent MISSING_FIELD errors for both ettn and periods, got %d", count)
	}
}

func hasCode(errs []ValidationError, code Code) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
