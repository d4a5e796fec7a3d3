// internal/domain/vat/entity.go
package vat

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerType classifies the buyer for reverse-charge purposes
type CustomerType string

const (
	Consumer CustomerType = "consumer"
	Business CustomerType = "business"
)

// UnknownCountryName is reported for destinations missing from the rate table
const UnknownCountryName = "Unknown"

// ErrInvalidAmount is returned when a base or shipping amount is negative
var ErrInvalidAmount = errors.New("invalid amount")

// Rate is one jurisdiction rule from the rate table
type Rate struct {
	CountryCode string          `json:"country_code" yaml:"country_code"`
	Name        string          `json:"name" yaml:"name"`
	Rate        decimal.Decimal `json:"rate" yaml:"-"`
	IsEUMember  bool            `json:"is_eu_member" yaml:"is_eu_member"`
	ValidFrom   *time.Time      `json:"valid_from,omitempty" yaml:"-"`
	ValidTo     *time.Time      `json:"valid_to,omitempty" yaml:"-"`
}

// covers reports whether the rate applies at the given tax point.
// The window is half-open: [ValidFrom, ValidTo).
func (r Rate) covers(at time.Time) bool {
	if r.ValidFrom != nil && at.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && !at.Before(*r.ValidTo) {
		return false
	}
	return true
}

// Input holds everything needed for one VAT computation. All monetary
// values are integer minor units (cents).
type Input struct {
	AmountMinorUnits         int64        `json:"amount_minor_units"`
	ShippingAmountMinorUnits int64        `json:"shipping_amount_minor_units"`
	CountryCode              string       `json:"country_code"`
	CustomerType             CustomerType `json:"customer_type"`
	BusinessVATNumber        string       `json:"business_vat_number,omitempty"`

	// TaxPoint selects a dated rate; zero means the current open-ended rate.
	TaxPoint time.Time `json:"tax_point,omitempty"`
}

// Breakdown splits the VAT between goods and shipping
type Breakdown struct {
	ProductVat  int64 `json:"product_vat"`
	ShippingVat int64 `json:"shipping_vat"`
}

// Result is the itemized outcome of a VAT computation
type Result struct {
	BaseAmountMinorUnits     int64           `json:"base_amount_minor_units"`
	ShippingAmountMinorUnits int64           `json:"shipping_amount_minor_units"`
	CountryCode              string          `json:"country_code"`
	CountryName              string          `json:"country_name"`
	VatRate                  decimal.Decimal `json:"vat_rate"`
	VatAmountMinorUnits      int64           `json:"vat_amount_minor_units"`
	TotalAmountMinorUnits    int64           `json:"total_amount_minor_units"`
	IsReverseCharge          bool            `json:"is_reverse_charge"`
	Breakdown                Breakdown       `json:"breakdown"`
}
