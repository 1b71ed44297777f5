/**
 * Numeric Text Normalizer
 *
 * Maps noisy recognized text to a canonical numeric string. Commas are read
 * as decimal points; when several separators survive, all but the last are
 * thousands separators, and the last is only kept as a decimal point when
 * at most three digits follow it.
 */

package numeric

import (
	"strconv"
	"strings"
)

// maxFractionDigits is the longest trailing group still read as a fraction
const maxFractionDigits = 3

// Candidate is a provisional numeric interpretation of recognized text
type Candidate struct {
	Value      float64
	Text       string // canonical form that was parsed
	Digits     int    // count of digits in Text
	HasDecimal bool
}

// Normalize canonicalizes raw text. ok is false when nothing numeric remains.
func Normalize(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteByte('.')
		}
	}
	s := b.String()
	if countDigits(s) == 0 {
		return "", false
	}

	if strings.Count(s, ".") > 1 {
		last := strings.LastIndexByte(s, '.')
		head := strings.ReplaceAll(s[:last], ".", "")
		tail := s[last+1:]
		if len(tail) <= maxFractionDigits {
			s = head + "." + tail
		} else {
			s = head + tail
		}
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return strings.TrimSuffix(s, "."), true
}

// Parse normalizes raw text and parses it into a Candidate
func Parse(raw string) (Candidate, bool) {
	s, ok := Normalize(raw)
	if !ok {
		return Candidate{}, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Candidate{}, false
	}

	return Candidate{
		Value:      v,
		Text:       s,
		Digits:     countDigits(s),
		HasDecimal: strings.Contains(s, "."),
	}, true
}

// DigitRun returns the length of the digit string left after cleaning raw
func DigitRun(raw string) int {
	return countDigits(raw)
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}
