package incident

import (
	"fmt"
	"strings"

	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// inputAllowlist is the PII-safe field set that may appear in a
// BUG_REPORT issue payload. Real invoice data — name, address,
// subscriber number, tax ID, meter number — must never enter this
// set. Grounded on issue_payload.py's INPUT_ALLOWLIST.
var inputAllowlist = map[string]bool{
	"invoice_period":                    true,
	"consumption_kwh":                   true,
	"ptf_date":                          true,
	"yekdem_date":                       true,
	"market_price_source":               true,
	"tariff_code":                       true,
	"tariff_period":                     true,
	"ck_meta_present":                   true,
	"distribution_line_present":         true,
	"meta_distribution_source":          true,
	"computed_distribution_unit_price":  true,
	"distribution_unit_price_invoice":   true,
	"distribution_mismatch_pct":         true,
	"confidence":                        true,
	"json_repair_applied":               true,
	"distribution_total_tl":             true,
	"energy_total_tl":                   true,
	"total_amount_tl":                   true,
}

// reproHints maps a primary flag to a synthetic, PII-free repro
// recipe a developer can use to write a regression fixture.
var reproHints = map[string]string{
	"CALC_BUG": "Create synthetic fixture: CK meta present, lookup performed, " +
		"computed distribution absurd (zero, negative, or very low).",
	"MARKET_PRICE_MISSING": "Create synthetic fixture: valid extraction fields but " +
		"market price provider returns not_found for period.",
	"TARIFF_LOOKUP_FAILED": "Create synthetic fixture: tariff code present, " +
		"tariff lookup returns not_found or failed.",
	"TARIFF_META_MISSING": "Create synthetic fixture: distribution_line_present or " +
		"expected CK meta, but tariff_meta missing.",
	"CONSUMPTION_MISSING": "Create synthetic fixture: missing consumption_kwh " +
		"while other required fields present.",
	"DISTRIBUTION_MISSING": "Create synthetic fixture: valid invoice but " +
		"distribution tariff lookup returns not_found.",
	"DISTRIBUTION_MISMATCH": "Create synthetic fixture: distribution_line_present, " +
		"tariff lookup success, but values differ by more than 3%.",
	"MISSING_FIELDS": "Create synthetic fixture: some required fields missing " +
		"(invoice_date, period, etc.) but consumption present.",
}

// IssuePayloadInput carries everything the builder needs to produce a
// BUG_REPORT payload.
type IssuePayloadInput struct {
	PrimaryFlag    string
	Category       string
	Severity       Severity
	Action         Action
	AllFlags       []string
	DedupeKey      string
	Provider       string
	InvoiceID      string
	Period         string
	CalcContext    map[string]ports.Value
	LookupEvidence map[string]ports.Value
}

// BuildIssuePayload produces a PII-safe, allow-list-filtered issue
// payload suitable for a bug tracker. Grounded on
// issue_payload.py:IssuePayloadBuilder.build.
func BuildIssuePayload(in IssuePayloadInput) ports.Value {
	ctx := make(map[string]ports.Value, len(in.CalcContext)+1)
	for k, v := range in.CalcContext {
		ctx[k] = v
	}
	ctx["invoice_period"] = ports.FromString(in.Period)

	safeInputs := make(map[string]ports.Value)
	for k := range inputAllowlist {
		if v, ok := ctx[k]; ok {
			safeInputs[k] = v
		}
	}

	safeLookup := map[string]ports.Value{
		"market_price": ports.FromObject(map[string]ports.Value{
			"status": lookupField(in.LookupEvidence, "market_price_status"),
			"source": lookupField(in.LookupEvidence, "market_price_source"),
		}),
		"tariff": ports.FromObject(map[string]ports.Value{
			"status": lookupField(in.LookupEvidence, "tariff_status"),
			"source": lookupField(in.LookupEvidence, "tariff_source"),
		}),
	}

	title := fmt.Sprintf("[%s] provider=%s invoice=%s period=%s", in.PrimaryFlag, in.Provider, in.InvoiceID, in.Period)
	labels := []ports.Value{
		ports.FromString("incident"),
		ports.FromString(in.Category),
		ports.FromString(in.PrimaryFlag),
		ports.FromString(orUnknown(in.Action.Owner)),
	}

	allFlags := make([]ports.Value, 0, len(in.AllFlags))
	for _, f := range in.AllFlags {
		allFlags = append(allFlags, ports.FromString(f))
	}

	return ports.FromObject(map[string]ports.Value{
		"title":     ports.FromString(title),
		"labels":    ports.FromArray(labels),
		"severity":  ports.FromString(string(in.Severity)),
		"dedupe_key": ports.FromString(in.DedupeKey),
		"invoice": ports.FromObject(map[string]ports.Value{
			"provider":   ports.FromString(in.Provider),
			"invoice_id": ports.FromString(in.InvoiceID),
			"period":     ports.FromString(in.Period),
		}),
		"primary_flag": ports.FromString(in.PrimaryFlag),
		"category":     ports.FromString(in.Category),
		"action": ports.FromObject(map[string]ports.Value{
			"type":  ports.FromString(string(in.Action.Type)),
			"owner": ports.FromString(in.Action.Owner),
			"code":  ports.FromString(in.Action.Code),
		}),
		"all_flags":         ports.FromArray(allFlags),
		"lookup_evidence":   ports.FromObject(safeLookup),
		"normalized_inputs": ports.FromObject(safeInputs),
		"repro_hint":        ports.FromString(buildReproHint(in.PrimaryFlag, in.AllFlags)),
	})
}

func lookupField(evidence map[string]ports.Value, key string) ports.Value {
	if v, ok := evidence[key]; ok {
		return v
	}
	return ports.Null()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func buildReproHint(primaryFlag string, allFlags []string) string {
	if hint, ok := reproHints[primaryFlag]; ok {
		return hint
	}
	limit := len(allFlags)
	if limit > 5 {
		limit = 5
	}
	flagsStr := strings.Join(allFlags[:limit], ",")
	if flagsStr == "" {
		flagsStr = primaryFlag
	}
	return fmt.Sprintf("Create synthetic fixture triggering primary_flag=%s with flags=%s.", primaryFlag, flagsStr)
}
