package validation

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ettnRe = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var requiredPeriodCodes = []string{"T1", "T2", "T3"}

// payableTolerance is the absolute TL tolerance for payable≈total.
const payableTolerance = 5.0

// lineCrosscheckTolerance is the relative tolerance for qty*price≈amount.
const lineCrosscheckTolerance = 0.02

// Invoice is the canonical-invoice-shaped map the rule set validates.
// It mirrors the Python validator's loosely-typed dict contract on
// purpose: extraction output is heterogeneous and not every supplier
// populates every section.
type Invoice map[string]any

func isNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func validateETTN(inv Invoice) []ValidationError {
	raw, present := inv["ettn"]
	if !present || raw == nil || raw == "" {
		return []ValidationError{newError(CodeMissingField, "ettn", "ettn is missing or empty")}
	}
	s, ok := asString(raw)
	if !ok {
		return []ValidationError{newError(CodeInvalidFormat, "ettn", "ettn must be a string")}
	}
	if !ettnRe.MatchString(strings.TrimSpace(s)) {
		return []ValidationError{newError(CodeInvalidETTN, "ettn", "ettn does not match UUID format")}
	}
	return nil
}

func validatePeriods(inv Invoice) []ValidationError {
	var errs []ValidationError

	rawPeriods, ok := inv["periods"].([]any)
	if !ok || len(rawPeriods) == 0 {
		return []ValidationError{newError(CodeMissingField, "periods", "periods is missing or empty")}
	}

	seen := map[string]bool{}
	byCode := map[string]map[string]any{}
	for _, p := range rawPeriods {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if code, ok := asString(pm["code"]); ok {
			seen[code] = true
			for _, required := range requiredPeriodCodes {
				if code == required {
					byCode[code] = pm
				}
			}
		}
	}

	var missing []string
	for _, required := range requiredPeriodCodes {
		if !seen[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return append(errs, newError(CodeMissingField, "periods.codes", "missing required period codes: "+joinStrings(missing)))
	}

	var starts, ends []time.Time
	dateOK := true
	sortedCodes := append([]string(nil), requiredPeriodCodes...)
	sort.Strings(sortedCodes)

	for _, code := range sortedCodes {
		p := byCode[code]
		for _, dk := range []string{"start", "end"} {
			raw, ok := asString(p[dk])
			if !ok {
				errs = append(errs, newError(CodeInvalidDatetime, "periods."+code+"."+dk, code+"."+dk+" is not a valid date string"))
				dateOK = false
				continue
			}
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				errs = append(errs, newError(CodeInvalidDatetime, "periods."+code+"."+dk, code+"."+dk+" cannot be parsed as YYYY-MM-DD"))
				dateOK = false
				continue
			}
			if dk == "start" {
				starts = append(starts, t)
			} else {
				ends = append(ends, t)
			}
		}
	}

	if dateOK && len(starts) > 0 && len(ends) > 0 {
		if !allSame(starts) || !allSame(ends) {
			errs = append(errs, newError(CodeInconsistentPeriods, "periods", "T1/T2/T3 start or end dates are not consistent"))
		}
	}

	for _, code := range sortedCodes {
		p := byCode[code]
		for _, valKey := range []string{"kwh", "amount"} {
			val, numOK := isNumber(p[valKey])
			if !numOK {
				errs = append(errs, newError(CodeInvalidFormat, "periods."+code+"."+valKey, code+"."+valKey+" must be a number"))
			} else if val < 0 {
				errs = append(errs, newError(CodeNegativeValue, "periods."+code+"."+valKey, code+"."+valKey+" is negative"))
			}
		}
	}

	return errs
}

func allSame(ts []time.Time) bool {
	for _, t := range ts[1:] {
		if !t.Equal(ts[0]) {
			return false
		}
	}
	return true
}

func joinStrings(ss []string) string {
	return strings.Join(ss, ", ")
}

func validateReactive(inv Invoice) []ValidationError {
	raw, present := inv["reactive"]
	if !present || raw == nil {
		return nil
	}
	reactive, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	amountRaw, hasAmount := reactive["penalty_amount"]
	kvarhRaw, hasKvarh := reactive["penalty_kvarh"]

	if hasAmount && !hasKvarh {
		return []ValidationError{newError(CodeMissingField, "reactive.penalty_kvarh", "penalty_kvarh is missing")}
	}
	if hasKvarh && !hasAmount {
		return []ValidationError{newError(CodeMissingField, "reactive.penalty_amount", "penalty_amount is missing")}
	}
	if !hasAmount && !hasKvarh {
		return nil
	}

	amount, amountIsNum := isNumber(amountRaw)
	kvarh, kvarhIsNum := isNumber(kvarhRaw)
	var errs []ValidationError
	if !amountIsNum {
		errs = append(errs, newError(CodeInvalidFormat, "reactive.penalty_amount", "penalty_amount must be a number"))
	}
	if !kvarhIsNum {
		errs = append(errs, newError(CodeInvalidFormat, "reactive.penalty_kvarh", "penalty_kvarh must be a number"))
	}
	if len(errs) > 0 {
		return errs
	}

	if amount < 0 {
		errs = append(errs, newError(CodeNegativeValue, "reactive.penalty_amount", "penalty_amount is negative"))
	}
	if kvarh < 0 {
		errs = append(errs, newError(CodeNegativeValue, "reactive.penalty_kvarh", "penalty_kvarh is negative"))
	}
	if len(errs) > 0 {
		return errs
	}

	if amount > 0 && kvarh <= 0 {
		errs = append(errs, newError(CodeReactivePenaltyMismatch, "reactive", "penalty_amount > 0 but penalty_kvarh <= 0"))
	} else if kvarh > 0 && amount <= 0 {
		errs = append(errs, newError(CodeReactivePenaltyMismatch, "reactive", "penalty_kvarh > 0 but penalty_amount <= 0"))
	}
	return errs
}

func validateTotals(inv Invoice) []ValidationError {
	totalsRaw, ok := inv["totals"].(map[string]any)
	if !ok {
		return nil
	}
	var errs []ValidationError

	total, totalOK := isNumber(totalsRaw["total"])
	payable, payableOK := isNumber(totalsRaw["payable"])

	if totalOK && payableOK {
		if math.Abs(payable-total) > payableTolerance {
			errs = append(errs, newError(CodePayableTotalMismatch, "totals", "payable/total mismatch beyond tolerance"))
		}
	}

	if totalOK {
		if lines, ok := inv["lines"].([]any); ok && len(lines) > 0 {
			var linesSum float64
			for _, l := range lines {
				lm, ok := l.(map[string]any)
				if !ok {
					continue
				}
				if amt, ok := isNumber(lm["amount"]); ok {
					linesSum += amt
				}
			}
			taxesTotal, _ := isNumber(inv["taxes_total"])
			vatAmount, _ := isNumber(inv["vat_amount"])
			calculated := linesSum + taxesTotal + vatAmount
			tol := 5.0
			if total*0.01 > tol {
				tol = total * 0.01
			}
			if math.Abs(calculated-total) > tol {
				errs = append(errs, newError(CodeTotalMismatch, "totals.total", "lines+taxes+vat does not reconcile with total"))
			}
		}
	}

	return errs
}

func validateLines(inv Invoice) []ValidationError {
	lines, ok := inv["lines"].([]any)
	if !ok || len(lines) == 0 {
		return nil
	}
	var errs []ValidationError

	var qtySum float64
	var anyQty bool
	for _, l := range lines {
		lm, ok := l.(map[string]any)
		if !ok {
			continue
		}
		if qty, ok := isNumber(lm["qty_kwh"]); ok {
			qtySum += qty
			anyQty = true
		}
	}
	if anyQty && qtySum <= 0 {
		errs = append(errs, newError(CodeZeroConsumption, "lines", "total consumption_kwh is zero or negative"))
	}

	for i, l := range lines {
		lm, ok := l.(map[string]any)
		if !ok {
			continue
		}
		qty, qtyOK := isNumber(lm["qty_kwh"])
		price, priceOK := isNumber(lm["unit_price"])
		amount, amountOK := isNumber(lm["amount"])
		if !(qtyOK && priceOK && amountOK) || amount == 0 {
			continue
		}
		calculated := qty * price
		delta := math.Abs((calculated - amount) / amount)
		if delta > lineCrosscheckTolerance {
			errs = append(errs, newError(CodeLineCrosscheckFail, "lines["+strconv.Itoa(i)+"]", "qty*unit_price does not reconcile with amount"))
		}
	}

	return errs
}

// Validate runs the full non-short-circuiting rule set over a canonical
// invoice map and returns the aggregate result. Rules never stop each
// other: every section is evaluated regardless of earlier failures,
// matching the Python validator's behavior exactly.
func Validate(inv Invoice) Result {
	var errs []ValidationError
	errs = append(errs, validateETTN(inv)...)
	errs = append(errs, validatePeriods(inv)...)
	errs = append(errs, validateReactive(inv)...)
	errs = append(errs, validateTotals(inv)...)
	errs = append(errs, validateLines(inv)...)
	return Result{Valid: len(errs) == 0, Errors: errs}
}
