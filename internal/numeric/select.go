package numeric

// Policy decides which of several valid candidates from one step wins
type Policy int

const (
	// PreferDecimal ranks decimal-bearing candidates first, then digit count,
	// then input order.
	PreferDecimal Policy = iota

	// PreferLongest ranks by digit count only, then input order.
	PreferLongest
)

func (p Policy) String() string {
	if p == PreferLongest {
		return "prefer-longest"
	}
	return "prefer-decimal"
}

// Select normalizes each text, drops invalid candidates and returns the best
// survivor. Ties always resolve to the earliest text.
func Select(texts []string, policy Policy, v Validator) (Candidate, bool) {
	var best Candidate
	found := false

	for _, text := range texts {
		c, ok := v.Accept(text)
		if !ok {
			continue
		}
		if !found || better(c, best, policy) {
			best = c
			found = true
		}
	}

	return best, found
}

// better reports whether c strictly outranks cur
func better(c, cur Candidate, policy Policy) bool {
	if policy == PreferDecimal && c.HasDecimal != cur.HasDecimal {
		return c.HasDecimal
	}
	return c.Digits > cur.Digits
}
