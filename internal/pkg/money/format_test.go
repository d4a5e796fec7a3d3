package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMinorUnits(t *testing.T) {
	cases := map[int64]string{
		0:      "€0.00",
		5:      "€0.05",
		9257:   "€92.57",
		100000: "€1000.00",
		-1607:  "-€16.07",
	}
	for cents, want := range cases {
		assert.Equal(t, want, FormatMinorUnits(cents))
	}
}

func TestFormatWithSymbol(t *testing.T) {
	assert.Equal(t, "$50.00", FormatWithSymbol(5000, "$"))
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "21%", FormatRate(decimal.RequireFromString("0.21")))
	assert.Equal(t, "25.5%", FormatRate(decimal.RequireFromString("0.255")))
	assert.Equal(t, "0%", FormatRate(decimal.Zero))
}

func TestParseMajorUnits(t *testing.T) {
	cases := map[string]int64{
		"76.50":  7650,
		"76.5":   7650,
		"€12":    1200,
		" 0.05 ": 5,
		"-3.10":  -310,

		"92233720368547758.07": math.MaxInt64,
	}
	for input, want := range cases {
		got, err := ParseMajorUnits(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, input := range []string{"", "abc", "1.005", "12,50", "1e30", "-1e30", "92233720368547758.08"} {
		_, err := ParseMajorUnits(input)
		assert.ErrorIs(t, err, ErrInvalidAmount, input)
	}
}
