package numeric

import "math"

const (
	// UpperBound is the largest reading accepted by DefaultValidator
	UpperBound = 1_000_000.0

	// MaxIntegerDigits caps the digit run of integer-only readings. Longer
	// runs are almost always the same digits recognized twice.
	MaxIntegerDigits = 7
)

// Validator is the range gate applied to every candidate before acceptance
type Validator struct {
	Max float64
}

// DefaultValidator accepts readings in [0, UpperBound]
func DefaultValidator() Validator {
	return Validator{Max: UpperBound}
}

// Acceptable reports whether v is a plausible reading
func (v Validator) Acceptable(value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	limit := v.Max
	if limit <= 0 {
		limit = UpperBound
	}
	return value >= 0 && value <= limit
}

// Accept parses raw text and validates the result
func (v Validator) Accept(raw string) (Candidate, bool) {
	c, ok := Parse(raw)
	if !ok || !v.Acceptable(c.Value) {
		return Candidate{}, false
	}
	return c, true
}
