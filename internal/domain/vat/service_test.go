package vat

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nlCalculator = NewCalculator("NL", DefaultRates())

func TestCalculate_ConsumerNetherlands(t *testing.T) {
	result, err := nlCalculator.Calculate(Input{
		AmountMinorUnits: 7650,
		CountryCode:      "NL",
		CustomerType:     Consumer,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1607), result.VatAmountMinorUnits)
	assert.Equal(t, int64(9257), result.TotalAmountMinorUnits)
	assert.Equal(t, "Netherlands", result.CountryName)
	assert.True(t, result.VatRate.Equal(decimal.RequireFromString("0.21")))
	assert.False(t, result.IsReverseCharge)
}

func TestCalculate_ShippingTaxedSeparately(t *testing.T) {
	result, err := nlCalculator.Calculate(Input{
		AmountMinorUnits:         5000,
		ShippingAmountMinorUnits: 1000,
		CountryCode:              "NL",
		CustomerType:             Consumer,
	})
	require.NoError(t, err)

	assert.Equal(t, Breakdown{ProductVat: 1050, ShippingVat: 210}, result.Breakdown)
	assert.Equal(t, int64(1260), result.VatAmountMinorUnits)
	assert.Equal(t, int64(7260), result.TotalAmountMinorUnits)
}

func TestCalculate_ReverseChargeCrossBorderBusiness(t *testing.T) {
	calc := NewCalculator("FR", DefaultRates())

	result, err := calc.Calculate(Input{
		AmountMinorUnits:         10000,
		ShippingAmountMinorUnits: 500,
		CountryCode:              "DE",
		CustomerType:             Business,
		BusinessVATNumber:        "DE123456789",
	})
	require.NoError(t, err)

	assert.True(t, result.IsReverseCharge)
	assert.Equal(t, int64(0), result.VatAmountMinorUnits)
	assert.Equal(t, int64(10500), result.TotalAmountMinorUnits)
	assert.Equal(t, Breakdown{}, result.Breakdown)
}

func TestCalculate_NonEUDestination(t *testing.T) {
	result, err := nlCalculator.Calculate(Input{
		AmountMinorUnits: 5000,
		CountryCode:      "US",
		CustomerType:     Consumer,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.VatAmountMinorUnits)
	assert.Equal(t, int64(5000), result.TotalAmountMinorUnits)
	assert.False(t, result.IsReverseCharge)
}

func TestCalculate_NonEUNeverReverseCharge(t *testing.T) {
	for _, country := range []string{"US", "GB", "CH", "NO", "JP"} {
		result, err := nlCalculator.Calculate(Input{
			AmountMinorUnits:  12345,
			CountryCode:       country,
			CustomerType:      Business,
			BusinessVATNumber: "GB123456789",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.VatAmountMinorUnits, country)
		assert.False(t, result.IsReverseCharge, country)
		assert.Equal(t, int64(12345), result.TotalAmountMinorUnits, country)
	}
}

func TestCalculate_UnknownCountryFallsBackToZero(t *testing.T) {
	result, err := nlCalculator.Calculate(Input{AmountMinorUnits: 999, ShippingAmountMinorUnits: 1, CountryCode: "zz"})
	require.NoError(t, err)

	assert.Equal(t, "ZZ", result.CountryCode)
	assert.Equal(t, UnknownCountryName, result.CountryName)
	assert.True(t, result.VatRate.IsZero())
	assert.Equal(t, int64(1000), result.TotalAmountMinorUnits)
}

func TestCalculate_NormalizesCountryCase(t *testing.T) {
	lower, err := nlCalculator.Calculate(Input{AmountMinorUnits: 1000, CountryCode: " nl "})
	require.NoError(t, err)
	upper, err := nlCalculator.Calculate(Input{AmountMinorUnits: 1000, CountryCode: "NL"})
	require.NoError(t, err)

	assert.Equal(t, upper, lower)
	assert.Equal(t, int64(210), lower.VatAmountMinorUnits)
}

func TestCalculate_GreekVATPrefix(t *testing.T) {
	result, err := nlCalculator.Calculate(Input{AmountMinorUnits: 1000, CountryCode: "EL"})
	require.NoError(t, err)
	assert.Equal(t, "GR", result.CountryCode)
	assert.Equal(t, int64(240), result.VatAmountMinorUnits)
}

func TestCalculate_SameCountryBusinessIsTaxed(t *testing.T) {
	result, err := nlCalculator.Calculate(Input{
		AmountMinorUnits:  10000,
		CountryCode:       "NL",
		CustomerType:      Business,
		BusinessVATNumber: "NL123456789B01",
	})
	require.NoError(t, err)

	assert.False(t, result.IsReverseCharge)
	assert.Equal(t, int64(2100), result.VatAmountMinorUnits)
}

func TestCalculate_BusinessWithoutPlausibleVATNumberIsTaxed(t *testing.T) {
	for _, number := range []string{"", "DE12", "123456789", "DE-12345678901234"} {
		result, err := nlCalculator.Calculate(Input{
			AmountMinorUnits:  10000,
			CountryCode:       "DE",
			CustomerType:      Business,
			BusinessVATNumber: number,
		})
		require.NoError(t, err)
		assert.False(t, result.IsReverseCharge, number)
		assert.Equal(t, int64(1900), result.VatAmountMinorUnits, number)
	}
}

func TestCalculate_ConsumerWithVATNumberIsTaxed(t *testing.T) {
	result, err := nlCalculator.Calculate(Input{
		AmountMinorUnits:  10000,
		CountryCode:       "DE",
		CustomerType:      Consumer,
		BusinessVATNumber: "DE123456789",
	})
	require.NoError(t, err)
	assert.False(t, result.IsReverseCharge)
	assert.Equal(t, int64(1900), result.VatAmountMinorUnits)
}

func TestCalculate_RejectsNegativeAmounts(t *testing.T) {
	_, err := nlCalculator.Calculate(Input{AmountMinorUnits: -1, CountryCode: "NL"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = nlCalculator.Calculate(Input{AmountMinorUnits: 100, ShippingAmountMinorUnits: -5, CountryCode: "NL"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCalculate_Idempotent(t *testing.T) {
	in := Input{
		AmountMinorUnits:         4321,
		ShippingAmountMinorUnits: 695,
		CountryCode:              "fi",
		CustomerType:             Consumer,
	}
	first, err := nlCalculator.Calculate(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := nlCalculator.Calculate(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculate_RoundsPartsNotSum(t *testing.T) {
	// 50 * 0.21 = 10.5 rounds up twice; (50+50) * 0.21 = 21 would not
	result, err := nlCalculator.Calculate(Input{AmountMinorUnits: 50, ShippingAmountMinorUnits: 50, CountryCode: "NL"})
	require.NoError(t, err)

	assert.Equal(t, int64(11), result.Breakdown.ProductVat)
	assert.Equal(t, int64(11), result.Breakdown.ShippingVat)
	assert.Equal(t, int64(22), result.VatAmountMinorUnits)
	assert.Equal(t, int64(122), result.TotalAmountMinorUnits)
}

func TestCalculate_RoundingInvariant(t *testing.T) {
	// Oracle in pure integer arithmetic: round-half-up of a*bps/10000
	roundBps := func(amount, bps int64) int64 {
		return (amount*bps + 5000) / 10000
	}
	rates := map[string]int64{"NL": 2100, "DE": 1900, "FI": 2550, "LU": 1700, "HU": 2700}

	for country, bps := range rates {
		for amount := int64(0); amount <= 2000; amount += 7 {
			for _, shipping := range []int64{0, 1, 49, 50, 395, 1000} {
				result, err := nlCalculator.Calculate(Input{
					AmountMinorUnits:         amount,
					ShippingAmountMinorUnits: shipping,
					CountryCode:              country,
				})
				require.NoError(t, err)

				want := roundBps(amount, bps) + roundBps(shipping, bps)
				require.Equal(t, want, result.VatAmountMinorUnits, "%s amount=%d shipping=%d", country, amount, shipping)
				require.Equal(t, amount+shipping+want, result.TotalAmountMinorUnits)
			}
		}
	}
}

func TestCalculate_ReverseChargeExclusivity(t *testing.T) {
	calc := NewCalculator("FR", nil)
	cases := []struct {
		name    string
		in      Input
		reverse bool
	}{
		{"cross-border business", Input{AmountMinorUnits: 100, CountryCode: "DE", CustomerType: Business, BusinessVATNumber: "DE123456789"}, true},
		{"home business", Input{AmountMinorUnits: 100, CountryCode: "FR", CustomerType: Business, BusinessVATNumber: "FR12345678901"}, false},
		{"consumer", Input{AmountMinorUnits: 100, CountryCode: "DE", CustomerType: Consumer, BusinessVATNumber: "DE123456789"}, false},
		{"missing number", Input{AmountMinorUnits: 100, CountryCode: "DE", CustomerType: Business}, false},
		{"non EU", Input{AmountMinorUnits: 100, CountryCode: "US", CustomerType: Business, BusinessVATNumber: "DE123456789"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := calc.Calculate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.reverse, result.IsReverseCharge)
			if result.IsReverseCharge {
				assert.Equal(t, int64(0), result.VatAmountMinorUnits)
			}
		})
	}
}

func TestCalculator_OverrideTable(t *testing.T) {
	table := NewRateTable(Rate{CountryCode: "nl", Name: "Netherlands", Rate: decimal.RequireFromString("0.09"), IsEUMember: true})
	calc := NewCalculator("NL", table)

	result, err := calc.Calculate(Input{AmountMinorUnits: 1000, CountryCode: "NL"})
	require.NoError(t, err)
	assert.Equal(t, int64(90), result.VatAmountMinorUnits)

	// Countries absent from the override table are unknown
	result, err = calc.Calculate(Input{AmountMinorUnits: 1000, CountryCode: "DE"})
	require.NoError(t, err)
	assert.Equal(t, UnknownCountryName, result.CountryName)
	assert.Equal(t, int64(0), result.VatAmountMinorUnits)
}

func TestCalculate_TaxPointSelectsDatedRate(t *testing.T) {
	before := time.Date(2025, time.June, 30, 12, 0, 0, 0, time.UTC)
	after := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

	old, err := nlCalculator.Calculate(Input{AmountMinorUnits: 1000, CountryCode: "EE", TaxPoint: before})
	require.NoError(t, err)
	assert.Equal(t, int64(220), old.VatAmountMinorUnits)

	current, err := nlCalculator.Calculate(Input{AmountMinorUnits: 1000, CountryCode: "EE", TaxPoint: after})
	require.NoError(t, err)
	assert.Equal(t, int64(240), current.VatAmountMinorUnits)

	undated, err := nlCalculator.Calculate(Input{AmountMinorUnits: 1000, CountryCode: "EE"})
	require.NoError(t, err)
	assert.Equal(t, int64(240), undated.VatAmountMinorUnits)
}

func TestPlausibleVATNumber(t *testing.T) {
	valid := []string{"DE123456789", "NL123456789B01", "fr 12 345 678 901", "BE0123.456.789", "ATU12345678"}
	invalid := []string{"", "DE1234", "1234567890", "DE12345678901234", "D1234567890", "DE123456789!"}

	for _, n := range valid {
		assert.True(t, PlausibleVATNumber(n), n)
	}
	for _, n := range invalid {
		assert.False(t, PlausibleVATNumber(n), n)
	}
}
