package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"canonical", "12.5", "12.5", true},
		{"comma decimal", "12,5", "12.5", true},
		{"noise stripped", " 0.336 kg\n", "0.336", true},
		{"thousands then fraction", "1.234.56", "1234.56", true},
		{"thousands only", "1,234,567", "1234.567", true},
		{"long tail is a group", "1.2.3456", "123456", true},
		{"leading dot", ".75", "0.75", true},
		{"trailing dot", "42.", "42", true},
		{"empty", "", "", false},
		{"dots only", "...", "", false},
		{"letters only", "abc", "", false},
		{"single dot", ".", "", false},
		{"comma only", ",", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, raw := range []string{"12.5", "0.336", "142976", "1.234.56", ".75", "42."} {
		once, ok := Normalize(raw)
		require.True(t, ok, raw)
		twice, ok := Normalize(once)
		require.True(t, ok, raw)
		assert.Equal(t, once, twice, raw)
	}
}

func TestParse(t *testing.T) {
	c, ok := Parse("1.234.56")
	require.True(t, ok)
	assert.Equal(t, 1234.56, c.Value)
	assert.Equal(t, 6, c.Digits)
	assert.True(t, c.HasDecimal)

	c, ok = Parse(".75")
	require.True(t, ok)
	assert.Equal(t, 0.75, c.Value)

	c, ok = Parse("42.")
	require.True(t, ok)
	assert.Equal(t, 42.0, c.Value)
	assert.False(t, c.HasDecimal)

	for _, raw := range []string{"", "...", "abc"} {
		_, ok := Parse(raw)
		assert.False(t, ok, raw)
	}
}

func TestValidator(t *testing.T) {
	v := DefaultValidator()

	assert.True(t, v.Acceptable(0))
	assert.True(t, v.Acceptable(142976))
	assert.True(t, v.Acceptable(UpperBound))
	assert.False(t, v.Acceptable(UpperBound+0.01))
	assert.False(t, v.Acceptable(-1))
	assert.False(t, v.Acceptable(math.NaN()))
	assert.False(t, v.Acceptable(math.Inf(1)))

	tight := Validator{Max: 100}
	assert.False(t, tight.Acceptable(101))

	assert.True(t, Validator{}.Acceptable(500000), "zero max falls back to the upper bound")
}

func TestValidatorAccept(t *testing.T) {
	v := DefaultValidator()

	c, ok := v.Accept("0.336")
	require.True(t, ok)
	assert.Equal(t, 0.336, c.Value)

	_, ok = v.Accept("12345678")
	assert.False(t, ok, "out of range")

	_, ok = v.Accept("")
	assert.False(t, ok)
}

func TestSelectPrefersDecimal(t *testing.T) {
	c, ok := Select([]string{"12", "12.5"}, PreferDecimal, DefaultValidator())
	require.True(t, ok)
	assert.Equal(t, 12.5, c.Value)
}

func TestSelectPrefersMoreDigits(t *testing.T) {
	c, ok := Select([]string{"123", "4567"}, PreferDecimal, DefaultValidator())
	require.True(t, ok)
	assert.Equal(t, 4567.0, c.Value)
}

func TestSelectFirstWinsTies(t *testing.T) {
	c, ok := Select([]string{"12.5", "98.1", "77"}, PreferDecimal, DefaultValidator())
	require.True(t, ok)
	assert.Equal(t, 12.5, c.Value)

	c, ok = Select([]string{"321", "123"}, PreferLongest, DefaultValidator())
	require.True(t, ok)
	assert.Equal(t, 321.0, c.Value)
}

func TestSelectPreferLongestIgnoresDecimal(t *testing.T) {
	c, ok := Select([]string{"1.5", "142976"}, PreferLongest, DefaultValidator())
	require.True(t, ok)
	assert.Equal(t, 142976.0, c.Value)
}

func TestSelectSkipsInvalid(t *testing.T) {
	c, ok := Select([]string{"", "abc", "99999999", "7"}, PreferDecimal, DefaultValidator())
	require.True(t, ok)
	assert.Equal(t, 7.0, c.Value)

	_, ok = Select([]string{"", "..."}, PreferDecimal, DefaultValidator())
	assert.False(t, ok)

	_, ok = Select(nil, PreferLongest, DefaultValidator())
	assert.False(t, ok)
}

func TestDigitRun(t *testing.T) {
	assert.Equal(t, 6, DigitRun("14 29-76"))
	assert.Equal(t, 0, DigitRun("..."))
}
