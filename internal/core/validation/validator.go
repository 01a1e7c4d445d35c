// Package validation scores and gates extracted invoice records.
package validation

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

// Extracted-record field names.
const (
	FieldIssuer             = "issuer"
	FieldAmountInclusiveTax = "amount_inclusive_tax"
	FieldCurrency           = "currency"
	FieldPayer              = "payer"
	FieldInvoiceNumber      = "main_invoice_number"
	FieldIssueDate          = "issue_date"
	FieldRegistrationNumber = "t_number"
	FieldAmountExclusiveTax = "amount_exclusive_tax"
	FieldDueDate            = "due_date"
	FieldLineItems          = "line_items"
	FieldKeyInfo            = "key_info"
)

var (
	requiredFields  = []string{FieldIssuer, FieldAmountInclusiveTax, FieldCurrency}
	importantFields = []string{FieldPayer, FieldInvoiceNumber, FieldIssueDate}
	optionalFields  = []string{FieldRegistrationNumber, FieldAmountExclusiveTax, FieldDueDate, FieldLineItems, FieldKeyInfo}
)

// TrackedFieldCount is the denominator of the completeness score.
var TrackedFieldCount = len(requiredFields) + len(importantFields) + len(optionalFields)

// Validator is safe for concurrent use; it holds no mutable state.
type Validator struct {
	rules domain.ValidationRules
	now   func() time.Time
}

func New(rules domain.ValidationRules) *Validator {
	return &Validator{
		rules: rules,
		now:   time.Now,
	}
}

func NewDefault() *Validator {
	return New(domain.DefaultValidationRules())
}

func (v *Validator) Rules() domain.ValidationRules {
	return v.rules
}

// Validate never panics; a failing rule is reported as a warning.
func (v *Validator) Validate(data map[string]any) domain.ValidationResult {
	rep := newReport()

	fields, present := v.checkTiers(data, rep)
	currency := ""
	if raw, ok := data[FieldCurrency]; ok && isPresent(raw) {
		currency = NormalizeCurrency(fmt.Sprint(raw))
	}

	v.runRule(rep, "data_format", v.rules.CheckFormat, func() { v.checkFormat(data, currency, rep) })
	v.runRule(rep, "amounts", v.rules.CheckAmounts, func() { v.checkAmounts(data, currency, rep) })
	v.runRule(rep, "dates", v.rules.CheckDates, func() { v.checkDates(data, rep) })
	v.runRule(rep, "foreign_currency", v.rules.CheckForeignCurrency, func() { v.checkForeignCurrency(data, currency, rep) })
	v.runRule(rep, "line_items", v.rules.CheckLineItems, func() { v.checkLineItems(data, rep) })

	isValid := len(rep.categories[domain.CategoryCritical]) == 0 &&
		len(rep.categories[domain.CategoryDataMissing]) == 0

	if v.rules.StrictMode && len(rep.warnings) > 0 {
		rep.errors = append(rep.errors, rep.warnings...)
		rep.warnings = []string{}
		isValid = false
	}

	score := completeness(present)
	result := domain.ValidationResult{
		IsValid:  isValid,
		Score:    score,
		Warnings: rep.warnings,
		Errors:   rep.errors,
		Details: domain.ValidationDetails{
			Categories:        rep.categories,
			Fields:            fields,
			CompletenessScore: score,
			Currency:          currency,
			Summary: domain.ValidationSummary{
				TotalIssues:    len(rep.errors) + len(rep.warnings),
				CriticalIssues: len(rep.errors),
				Warnings:       len(rep.warnings),
			},
		},
	}

	slog.Debug("invoice_validated",
		"is_valid", result.IsValid,
		"score", result.Score,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
	)
	return result
}

func (v *Validator) checkTiers(data map[string]any, rep *report) ([]domain.FieldCheck, int) {
	fields := make([]domain.FieldCheck, 0, TrackedFieldCount)
	present := 0

	check := func(tier domain.FieldTier, names []string) {
		for _, name := range names {
			ok := isPresent(data[name])
			if ok {
				present++
			}
			fields = append(fields, domain.FieldCheck{Field: name, Tier: tier, Present: ok})
			if ok {
				continue
			}
			switch tier {
			case domain.TierRequired:
				rep.fail(domain.CategoryDataMissing, "required field missing: %s", name)
			case domain.TierImportant:
				rep.warn(domain.CategoryBusinessLogic, "important field missing: %s", name)
			case domain.TierOptional:
			}
		}
	}

	check(domain.TierRequired, requiredFields)
	check(domain.TierImportant, importantFields)
	check(domain.TierOptional, optionalFields)
	return fields, present
}

func (v *Validator) runRule(rep *report, name string, enabled bool, fn func()) {
	if !enabled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("validation_rule_panic", "rule", name, "panic", fmt.Sprint(r))
			rep.warn(domain.CategoryDataFormat, "validation rule %s could not be evaluated: %v", name, r)
		}
	}()
	fn()
}

func (v *Validator) isDomestic(currency string) bool {
	return currency == "" || strings.EqualFold(currency, v.rules.DomesticCurrency)
}

func completeness(present int) float64 {
	if TrackedFieldCount == 0 {
		return 0
	}
	return math.Round(1000*float64(present)/float64(TrackedFieldCount)) / 10
}

// isPresent treats nil, blank strings and empty collections as absent.
func isPresent(value any) bool {
	if value == nil {
		return false
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

type report struct {
	errors     []string
	warnings   []string
	categories map[domain.ValidationCategory][]string
}

func newReport() *report {
	categories := make(map[domain.ValidationCategory][]string, len(domain.ValidationCategories))
	for _, c := range domain.ValidationCategories {
		categories[c] = []string{}
	}
	return &report{
		errors:     []string{},
		warnings:   []string{},
		categories: categories,
	}
}

func (r *report) fail(category domain.ValidationCategory, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.errors = append(r.errors, msg)
	r.categories[category] = append(r.categories[category], msg)
}

func (r *report) warn(category domain.ValidationCategory, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	r.categories[category] = append(r.categories[category], msg)
}
