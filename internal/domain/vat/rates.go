// internal/domain/vat/rates.go
package vat

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateTable is an immutable country -> rates lookup. A country may carry
// several dated entries; windows must not overlap.
type RateTable struct {
	rates map[string][]Rate
}

// NewRateTable builds a table from the given rates. Country codes are
// normalized and each country's entries are ordered by start date.
func NewRateTable(rates ...Rate) *RateTable {
	table := &RateTable{rates: make(map[string][]Rate)}
	for _, r := range rates {
		r.CountryCode = NormalizeCountryCode(r.CountryCode)
		table.rates[r.CountryCode] = append(table.rates[r.CountryCode], r)
	}
	for code := range table.rates {
		entries := table.rates[code]
		sort.SliceStable(entries, func(i, j int) bool {
			return startOf(entries[i]).Before(startOf(entries[j]))
		})
	}
	return table
}

// Lookup returns the rate for a country at the given tax point. A zero tax
// point selects the open-ended entry (the latest one if several are open).
func (t *RateTable) Lookup(countryCode string, at time.Time) (Rate, bool) {
	if t == nil {
		return Rate{}, false
	}
	entries := t.rates[NormalizeCountryCode(countryCode)]
	if len(entries) == 0 {
		return Rate{}, false
	}

	if at.IsZero() {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].ValidTo == nil {
				return entries[i], true
			}
		}
		return entries[len(entries)-1], true
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].covers(at) {
			return entries[i], true
		}
	}
	return Rate{}, false
}

// Countries returns the normalized country codes in the table, sorted
func (t *RateTable) Countries() []string {
	codes := make([]string, 0, len(t.rates))
	for code := range t.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Rates returns a copy of every entry in the table, ordered by country
func (t *RateTable) Rates() []Rate {
	var out []Rate
	for _, code := range t.Countries() {
		out = append(out, t.rates[code]...)
	}
	return out
}

// MergeRates returns a new table where every country present in override
// replaces the base entries for that country wholesale.
func MergeRates(base, override *RateTable) *RateTable {
	if override == nil {
		return base
	}
	merged := make([]Rate, 0)
	for _, code := range base.Countries() {
		if _, replaced := override.rates[code]; replaced {
			continue
		}
		merged = append(merged, base.rates[code]...)
	}
	merged = append(merged, override.Rates()...)
	return NewRateTable(merged...)
}

var countryAliases = map[string]string{
	"EL": "GR",
	"UK": "GB",
}

// NormalizeCountryCode trims and uppercases a country code and maps VAT
// prefixes that differ from ISO 3166 (EL -> GR).
func NormalizeCountryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if alias, ok := countryAliases[code]; ok {
		return alias
	}
	return code
}

func startOf(r Rate) time.Time {
	if r.ValidFrom == nil {
		return time.Time{}
	}
	return *r.ValidFrom
}

func date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func eu(code, name, rate string) Rate {
	return Rate{CountryCode: code, Name: name, Rate: decimal.RequireFromString(rate), IsEUMember: true}
}

func nonEU(code, name, rate string) Rate {
	return Rate{CountryCode: code, Name: name, Rate: decimal.RequireFromString(rate)}
}

// DefaultRates returns the built-in standard-rate table. Deployments can
// override it with a rates file (see LoadRatesFile).
func DefaultRates() *RateTable {
	estoniaOld := eu("EE", "Estonia", "0.22")
	estoniaOld.ValidTo = date(2025, time.July, 1)
	estonia := eu("EE", "Estonia", "0.24")
	estonia.ValidFrom = date(2025, time.July, 1)

	romaniaOld := eu("RO", "Romania", "0.19")
	romaniaOld.ValidTo = date(2025, time.August, 1)
	romania := eu("RO", "Romania", "0.21")
	romania.ValidFrom = date(2025, time.August, 1)

	return NewRateTable(
		eu("AT", "Austria", "0.20"),
		eu("BE", "Belgium", "0.21"),
		eu("BG", "Bulgaria", "0.20"),
		eu("HR", "Croatia", "0.25"),
		eu("CY", "Cyprus", "0.19"),
		eu("CZ", "Czech Republic", "0.21"),
		eu("DK", "Denmark", "0.25"),
		estoniaOld,
		estonia,
		eu("FI", "Finland", "0.255"),
		eu("FR", "France", "0.20"),
		eu("DE", "Germany", "0.19"),
		eu("GR", "Greece", "0.24"),
		eu("HU", "Hungary", "0.27"),
		eu("IE", "Ireland", "0.23"),
		eu("IT", "Italy", "0.22"),
		eu("LV", "Latvia", "0.21"),
		eu("LT", "Lithuania", "0.21"),
		eu("LU", "Luxembourg", "0.17"),
		eu("MT", "Malta", "0.18"),
		eu("NL", "Netherlands", "0.21"),
		eu("PL", "Poland", "0.23"),
		eu("PT", "Portugal", "0.23"),
		romaniaOld,
		romania,
		eu("SK", "Slovakia", "0.23"),
		eu("SI", "Slovenia", "0.22"),
		eu("ES", "Spain", "0.21"),
		eu("SE", "Sweden", "0.25"),
		nonEU("GB", "United Kingdom", "0.20"),
		nonEU("CH", "Switzerland", "0.081"),
		nonEU("NO", "Norway", "0.25"),
		nonEU("US", "United States", "0"),
	)
}
