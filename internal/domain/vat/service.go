// internal/domain/vat/service.go
package vat

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultSellerCountry is the home market of the shop
const DefaultSellerCountry = "NL"

const (
	minVATNumberLength = 8
	maxVATNumberLength = 14
)

// Calculator computes VAT breakdowns against a fixed rate table. It holds
// no mutable state and is safe for concurrent use.
type Calculator struct {
	sellerCountry string
	table         *RateTable
}

// NewCalculator creates a calculator for a seller in sellerCountry. A nil
// table falls back to DefaultRates.
func NewCalculator(sellerCountry string, table *RateTable) *Calculator {
	if table == nil {
		table = DefaultRates()
	}
	if strings.TrimSpace(sellerCountry) == "" {
		sellerCountry = DefaultSellerCountry
	}
	return &Calculator{
		sellerCountry: NormalizeCountryCode(sellerCountry),
		table:         table,
	}
}

// SellerCountry returns the normalized home country of the seller
func (c *Calculator) SellerCountry() string {
	return c.sellerCountry
}

// Table returns the rate table the calculator reads from
func (c *Calculator) Table() *RateTable {
	return c.table
}

// Calculate returns the VAT breakdown for the input. Only negative amounts
// are rejected; unknown countries resolve to a zero rate.
func (c *Calculator) Calculate(in Input) (Result, error) {
	if in.AmountMinorUnits < 0 {
		return Result{}, fmt.Errorf("%w: amount %d is negative", ErrInvalidAmount, in.AmountMinorUnits)
	}
	if in.ShippingAmountMinorUnits < 0 {
		return Result{}, fmt.Errorf("%w: shipping amount %d is negative", ErrInvalidAmount, in.ShippingAmountMinorUnits)
	}

	country := NormalizeCountryCode(in.CountryCode)
	result := Result{
		BaseAmountMinorUnits:     in.AmountMinorUnits,
		ShippingAmountMinorUnits: in.ShippingAmountMinorUnits,
		CountryCode:              country,
		CountryName:              UnknownCountryName,
		VatRate:                  decimal.Zero,
		TotalAmountMinorUnits:    in.AmountMinorUnits + in.ShippingAmountMinorUnits,
	}

	rate, found := c.table.Lookup(country, in.TaxPoint)
	if !found {
		return result, nil
	}
	result.CountryName = rate.Name

	// Exports outside the EU carry no VAT, whoever the buyer is
	if !rate.IsEUMember {
		return result, nil
	}

	if c.reverseChargeApplies(country, in) {
		result.IsReverseCharge = true
		return result, nil
	}

	// Parts are rounded separately, never the combined sum
	productVat := applyRate(in.AmountMinorUnits, rate.Rate)
	shippingVat := applyRate(in.ShippingAmountMinorUnits, rate.Rate)

	result.VatRate = rate.Rate
	result.Breakdown = Breakdown{ProductVat: productVat, ShippingVat: shippingVat}
	result.VatAmountMinorUnits = productVat + shippingVat
	result.TotalAmountMinorUnits = in.AmountMinorUnits + in.ShippingAmountMinorUnits + result.VatAmountMinorUnits

	return result, nil
}

func (c *Calculator) reverseChargeApplies(country string, in Input) bool {
	if normalizeCustomerType(in.CustomerType) != Business {
		return false
	}
	if country == c.sellerCountry {
		return false
	}
	return PlausibleVATNumber(in.BusinessVATNumber)
}

// applyRate multiplies minor units by the rate and rounds half away from
// zero to a whole minor unit.
func applyRate(amountMinorUnits int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amountMinorUnits).Mul(rate).Round(0).IntPart()
}

func normalizeCustomerType(t CustomerType) CustomerType {
	if CustomerType(strings.ToLower(strings.TrimSpace(string(t)))) == Business {
		return Business
	}
	return Consumer
}

// PlausibleVATNumber performs a syntactic check only: a two-letter country
// prefix followed by alphanumerics, 8 to 14 characters once separators are
// stripped. It does not contact any registry.
func PlausibleVATNumber(number string) bool {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-':
			return -1
		}
		return unicode.ToUpper(r)
	}, number)

	if len(cleaned) < minVATNumberLength || len(cleaned) > maxVATNumberLength {
		return false
	}
	for i, r := range cleaned {
		if r > unicode.MaxASCII {
			return false
		}
		if i < 2 {
			if !unicode.IsLetter(r) {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
