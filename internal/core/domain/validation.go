package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ValidationCategory string

const (
	CategoryCritical      ValidationCategory = "critical"
	CategoryDataMissing   ValidationCategory = "data_missing"
	CategoryDataFormat    ValidationCategory = "data_format"
	CategoryBusinessLogic ValidationCategory = "business_logic"
)

// ValidationCategories lists every bucket in reporting order.
var ValidationCategories = []ValidationCategory{
	CategoryCritical,
	CategoryDataMissing,
	CategoryDataFormat,
	CategoryBusinessLogic,
}

type FieldTier string

const (
	TierRequired  FieldTier = "required"
	TierImportant FieldTier = "important"
	TierOptional  FieldTier = "optional"
)

type FieldCheck struct {
	Field   string    `json:"field"`
	Tier    FieldTier `json:"tier"`
	Present bool      `json:"present"`
}

type ValidationSummary struct {
	TotalIssues    int `json:"total_issues"`
	CriticalIssues int `json:"critical_issues"`
	Warnings       int `json:"warnings"`
}

type ValidationDetails struct {
	Categories        map[ValidationCategory][]string `json:"categories"`
	Fields            []FieldCheck                    `json:"fields"`
	CompletenessScore float64                         `json:"completeness_score"`
	Currency          string                          `json:"currency,omitempty"`
	Summary           ValidationSummary               `json:"summary"`
}

type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Score    float64           `json:"score"`
	Warnings []string          `json:"warnings"`
	Errors   []string          `json:"errors"`
	Details  ValidationDetails `json:"details"`
}

// HasCritical reports whether any critical-category issue was recorded.
func (r ValidationResult) HasCritical() bool {
	return len(r.Details.Categories[CategoryCritical]) > 0
}

// ValidationRules parameterises the rule families of the invoice validator.
type ValidationRules struct {
	CheckFormat          bool `json:"check_format" yaml:"check_format"`
	CheckAmounts         bool `json:"check_amounts" yaml:"check_amounts"`
	CheckDates           bool `json:"check_dates" yaml:"check_dates"`
	CheckForeignCurrency bool `json:"check_foreign_currency" yaml:"check_foreign_currency"`
	CheckLineItems       bool `json:"check_line_items" yaml:"check_line_items"`
	// StrictMode promotes every warning to an error.
	StrictMode bool `json:"strict_mode" yaml:"strict_mode"`

	DomesticCurrency   string          `json:"domestic_currency" yaml:"domestic_currency"`
	LineItemTolerance  decimal.Decimal `json:"line_item_tolerance" yaml:"line_item_tolerance"`
	MaxAmount          decimal.Decimal `json:"max_amount" yaml:"max_amount"`
	DomesticTaxRateMin decimal.Decimal `json:"domestic_tax_rate_min" yaml:"domestic_tax_rate_min"`
	DomesticTaxRateMax decimal.Decimal `json:"domestic_tax_rate_max" yaml:"domestic_tax_rate_max"`
	ForeignTaxRateMax  decimal.Decimal `json:"foreign_tax_rate_max" yaml:"foreign_tax_rate_max"`
	MaxIssuerLength    int             `json:"max_issuer_length" yaml:"max_issuer_length"`
	FutureIssueDays    int             `json:"future_issue_days" yaml:"future_issue_days"`
	PastIssueDays      int             `json:"past_issue_days" yaml:"past_issue_days"`
}

func DefaultValidationRules() ValidationRules {
	return ValidationRules{
		CheckFormat:          true,
		CheckAmounts:         true,
		CheckDates:           true,
		CheckForeignCurrency: true,
		CheckLineItems:       true,

		DomesticCurrency:   "JPY",
		LineItemTolerance:  decimal.NewFromFloat(0.10),
		MaxAmount:          decimal.NewFromInt(10_000_000),
		DomesticTaxRateMin: decimal.NewFromFloat(0.05),
		DomesticTaxRateMax: decimal.NewFromFloat(0.15),
		ForeignTaxRateMax:  decimal.NewFromFloat(0.15),
		MaxIssuerLength:    100,
		FutureIssueDays:    30,
		PastIssueDays:      1095,
	}
}

func (r ValidationRules) Validate() error {
	var errs []error
	if strings.TrimSpace(r.DomesticCurrency) == "" {
		errs = append(errs, errors.New("validation_rules.domestic_currency is required"))
	}
	if r.LineItemTolerance.IsNegative() {
		errs = append(errs, fmt.Errorf("validation_rules.line_item_tolerance must be >= 0, got %s", r.LineItemTolerance))
	}
	if r.DomesticTaxRateMin.GreaterThan(r.DomesticTaxRateMax) {
		errs = append(errs, errors.New("validation_rules.domestic_tax_rate_min exceeds domestic_tax_rate_max"))
	}
	if r.MaxIssuerLength < 0 || r.FutureIssueDays < 0 || r.PastIssueDays < 0 {
		errs = append(errs, errors.New("validation_rules limits must be >= 0"))
	}
	return errors.Join(errs...)
}
