package validation

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

var supportedCurrencies = map[string]struct{}{
	"JPY": {}, "USD": {}, "EUR": {}, "GBP": {}, "AUD": {}, "CAD": {}, "CHF": {},
}

var currencyAliases = map[string]string{
	"円": "JPY", "￥": "JPY", "¥": "JPY", "yen": "JPY",
	"ドル": "USD", "＄": "USD", "$": "USD", "us$": "USD", "us dollar": "USD", "dollar": "USD",
	"€": "EUR", "euro": "EUR",
	"£": "GBP", "pound": "GBP", "sterling": "GBP",
	"a$": "AUD", "au$": "AUD", "australian dollar": "AUD",
	"c$": "CAD", "ca$": "CAD", "canadian dollar": "CAD",
	"fr": "CHF", "sfr": "CHF", "swiss franc": "CHF",
}

var foreignEntityMarkers = []string{"LLC", "Ltd", "Inc", "Corp", "GmbH", "Limited", "Ireland", "Singapore"}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// NormalizeCurrency maps symbols and local names to ISO 4217 codes.
// Unknown values are upper-cased.
func NormalizeCurrency(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if code, ok := currencyAliases[strings.ToLower(s)]; ok {
		return code
	}
	return strings.ToUpper(s)
}

func IsSupportedCurrency(code string) bool {
	_, ok := supportedCurrencies[code]
	return ok
}

// ParseAmount accepts JSON numbers and numeric strings with grouping separators or currency marks.
func ParseAmount(value any) (decimal.Decimal, bool) {
	switch t := value.(type) {
	case decimal.Decimal:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(t), true
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		cleaned := strings.NewReplacer(",", "", "，", "", "¥", "", "￥", "", "$", "", "円", "", " ", "").Replace(strings.TrimSpace(t))
		if cleaned == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(cleaned)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

// ParseDate accepts ISO-8601 dates and timestamps.
func ParseDate(value any) (time.Time, bool) {
	switch t := value.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func (v *Validator) checkFormat(data map[string]any, currency string, rep *report) {
	if currency != "" && !IsSupportedCurrency(currency) {
		rep.warn(domain.CategoryDataFormat, "unsupported currency code: %s (raw %v)", currency, data[FieldCurrency])
	}

	if raw := data[FieldAmountInclusiveTax]; isPresent(raw) {
		if _, ok := ParseAmount(raw); !ok {
			rep.fail(domain.CategoryCritical, "amount_inclusive_tax has invalid format: %v", raw)
		}
	}
	if raw := data[FieldAmountExclusiveTax]; isPresent(raw) {
		if _, ok := ParseAmount(raw); !ok {
			rep.fail(domain.CategoryDataFormat, "amount_exclusive_tax has invalid format: %v", raw)
		}
	}

	if issuer, ok := data[FieldIssuer].(string); ok && v.rules.MaxIssuerLength > 0 {
		if n := runeLen(issuer); n > v.rules.MaxIssuerLength {
			rep.warn(domain.CategoryDataFormat, "issuer name is too long (%d characters)", n)
		}
	}
}

func (v *Validator) checkAmounts(data map[string]any, currency string, rep *report) {
	var incl, excl decimal.Decimal
	hasIncl, hasExcl := false, false

	if raw := data[FieldAmountInclusiveTax]; isPresent(raw) {
		d, ok := ParseAmount(raw)
		if !ok {
			return
		}
		incl, hasIncl = d, true
	}
	if raw := data[FieldAmountExclusiveTax]; isPresent(raw) {
		d, ok := ParseAmount(raw)
		if !ok {
			return
		}
		excl, hasExcl = d, true
	}

	if hasIncl && incl.IsNegative() {
		rep.warn(domain.CategoryBusinessLogic, "amount_inclusive_tax is negative: %s (refund or adjustment?)", incl)
	}
	if hasIncl && v.rules.MaxAmount.IsPositive() && incl.GreaterThan(v.rules.MaxAmount) {
		rep.warn(domain.CategoryBusinessLogic, "amount_inclusive_tax is unusually large: %s", incl.StringFixed(0))
	}

	if !hasIncl || !hasExcl || !incl.IsPositive() || !excl.IsPositive() {
		return
	}

	domestic := v.isDomestic(currency)
	switch {
	case domestic && incl.LessThanOrEqual(excl):
		rep.warn(domain.CategoryBusinessLogic, "amount_inclusive_tax (%s) is not greater than amount_exclusive_tax (%s)", incl, excl)
	case !domestic && incl.LessThan(excl):
		rep.warn(domain.CategoryBusinessLogic, "foreign currency amount_inclusive_tax (%s) is below amount_exclusive_tax (%s)", incl, excl)
	}

	rate := incl.Sub(excl).Div(excl)
	pct := rate.Mul(decimal.NewFromInt(100)).StringFixed(1)
	if domestic {
		if rate.LessThan(v.rules.DomesticTaxRateMin) || rate.GreaterThan(v.rules.DomesticTaxRateMax) {
			rep.warn(domain.CategoryBusinessLogic, "implied tax rate is out of range: %s%%", pct)
		}
		return
	}
	if rate.Abs().LessThan(decimal.NewFromFloat(0.001)) {
		return
	}
	if rate.IsNegative() {
		rep.warn(domain.CategoryBusinessLogic, "foreign currency implied tax rate is negative: %s%%", pct)
	} else if rate.GreaterThan(v.rules.ForeignTaxRateMax) {
		rep.warn(domain.CategoryBusinessLogic, "foreign currency implied tax rate is unusually high: %s%%", pct)
	}
}

func (v *Validator) checkDates(data map[string]any, rep *report) {
	var issue, due time.Time
	hasIssue, hasDue := false, false

	if raw := data[FieldIssueDate]; isPresent(raw) {
		if issue, hasIssue = ParseDate(raw); !hasIssue {
			rep.warn(domain.CategoryDataFormat, "issue_date has invalid format: %v", raw)
		}
	}
	if raw := data[FieldDueDate]; isPresent(raw) {
		if due, hasDue = ParseDate(raw); !hasDue {
			rep.warn(domain.CategoryDataFormat, "due_date has invalid format: %v", raw)
		}
	}

	if hasIssue && hasDue && due.Before(issue) {
		rep.warn(domain.CategoryBusinessLogic, "due_date is before issue_date")
	}

	if !hasIssue {
		return
	}
	now := v.now()
	if v.rules.FutureIssueDays > 0 && issue.After(now.AddDate(0, 0, v.rules.FutureIssueDays)) {
		rep.warn(domain.CategoryBusinessLogic, "issue_date is more than %d days in the future", v.rules.FutureIssueDays)
	}
	if v.rules.PastIssueDays > 0 && issue.Before(now.AddDate(0, 0, -v.rules.PastIssueDays)) {
		rep.warn(domain.CategoryBusinessLogic, "issue_date is more than %d days in the past", v.rules.PastIssueDays)
	}
}

func (v *Validator) checkForeignCurrency(data map[string]any, currency string, rep *report) {
	if currency == "" || v.isDomestic(currency) {
		return
	}
	rep.warn(domain.CategoryBusinessLogic, "foreign currency transaction (%s): exchange rate must be confirmed", currency)

	issuer, _ := data[FieldIssuer].(string)
	for _, marker := range foreignEntityMarkers {
		if strings.Contains(issuer, marker) {
			rep.warn(domain.CategoryBusinessLogic, "issuer looks like a foreign entity: confirm consumption tax treatment")
			return
		}
	}
}

func (v *Validator) checkLineItems(data map[string]any, rep *report) {
	raw, ok := data[FieldLineItems]
	if !ok || raw == nil {
		return
	}

	items, ok := asItemList(raw)
	if !ok {
		rep.warn(domain.CategoryDataFormat, "line_items has invalid format")
		return
	}
	if len(items) == 0 {
		return
	}

	total := decimal.Zero
	for i, item := range items {
		if item == nil {
			continue
		}
		amount, exists := item["amount"]
		if !exists || amount == nil {
			continue
		}
		d, ok := ParseAmount(amount)
		if !ok {
			rep.warn(domain.CategoryDataFormat, "line item %d has invalid amount: %v", i+1, amount)
			continue
		}
		total = total.Add(d)
	}

	declared, ok := declaredTotal(data)
	if !ok || !total.IsPositive() {
		return
	}
	diff := total.Sub(declared).Abs().Div(declared)
	if diff.GreaterThan(v.rules.LineItemTolerance) {
		rep.warn(domain.CategoryBusinessLogic,
			"line item total (%s) differs from invoice amount (%s) by %s%%",
			total.StringFixed(0), declared.StringFixed(0), diff.Mul(decimal.NewFromInt(100)).StringFixed(1),
		)
	}
}

// declaredTotal prefers the tax-exclusive amount and falls back to the tax-inclusive one.
func declaredTotal(data map[string]any) (decimal.Decimal, bool) {
	for _, field := range []string{FieldAmountExclusiveTax, FieldAmountInclusiveTax} {
		raw := data[field]
		if !isPresent(raw) {
			continue
		}
		if d, ok := ParseAmount(raw); ok && d.IsPositive() {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

// asItemList returns nil entries for list elements that are not objects.
func asItemList(raw any) ([]map[string]any, bool) {
	switch t := raw.(type) {
	case []map[string]any:
		return t, true
	case []any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			if m, ok := item.(map[string]any); ok {
				out[i] = m
			}
		}
		return out, true
	default:
		return nil, false
	}
}
