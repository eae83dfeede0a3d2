// Package validate is the deterministic gate between the composer and the
// email transport. It never calls an LLM: every dollar figure in a draft must
// equal the authoritative expected rate or the send is blocked.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/money"
)

// dollarPattern extracts dollar figures: digits with optional thousands
// separators and optional two-decimal cents. Anything looser (stray digits,
// three-decimal amounts) deliberately fails to parse cleanly and blocks the
// send.
var dollarPattern = regexp.MustCompile(`\$(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?\b`)

// Report is the gate's verdict. OK is true only when Errors is empty;
// warnings never block a send.
type Report struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ExtractDollarFigures returns every dollar figure in the body, in order.
func ExtractDollarFigures(body string) []string {
	return dollarPattern.FindAllString(body, -1)
}

// CounterOffer checks a composed draft against the expected rate and the
// deliverable terms that should be restated. Rate mismatches are errors;
// missing terms are warnings so phrasing differences never block a send.
func CounterOffer(expectedRate decimal.Decimal, body string, requiredTerms []string) Report {
	report := Report{}

	figures := ExtractDollarFigures(body)
	if len(figures) == 0 {
		report.Errors = append(report.Errors, "draft contains no dollar figure; expected "+money.FormatUSD(expectedRate))
	}
	for _, figure := range figures {
		parsed, err := money.ParseUSD(figure)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("unparseable dollar figure %q", figure))
			continue
		}
		if !parsed.Equal(expectedRate) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("dollar figure %s does not match expected rate %s", figure, money.FormatUSD(expectedRate)))
		}
	}

	lowerBody := strings.ToLower(body)
	for _, term := range requiredTerms {
		if term == "" {
			continue
		}
		if !strings.Contains(lowerBody, strings.ToLower(term)) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("draft does not mention %q", term))
		}
	}

	report.OK = len(report.Errors) == 0
	return report
}
