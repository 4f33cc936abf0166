// Package parser turns free-text requests into structured intents.
// Parsers never execute or validate against the store: the output is
// untrusted until the policy engine has inspected it.
package parser

import (
	"context"
	"regexp"

	"github.com/querygate/querygate/internal/model"
)

// Parser is the intent-translation capability. Two interchangeable
// variants exist: keyword/pattern matching and model-assisted. Failures
// are reported as model.KindParse request errors; the retryable flag
// distinguishes upstream service trouble from unparseable input.
type Parser interface {
	Parse(ctx context.Context, text string, actor model.Caller) (*model.Intent, error)
}

// numericGrade matches attempts to set a letter-graded field to a
// number, e.g. "update grade to 9.2". Grades are letter grades (A+, A,
// B+); CGPA is the numeric scale. Both parser variants reject this
// before any intent reaches authorization.
var numericGrade = regexp.MustCompile(`(?i)\bgrade\b.*?(?:\bto\b|=)\s*(\d+(?:\.\d+)?)(\s|$)`)

func checkNumericGrade(text string) error {
	if m := numericGrade.FindStringSubmatch(text); m != nil {
		return model.Parsef("grades are letter grades (A+, A, B+, ...), not numeric values; use cgpa for the numeric scale")
	}
	return nil
}
