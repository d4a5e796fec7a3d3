// internal/domain/vat/loader.go
package vat

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const rateDateLayout = "2006-01-02"

type rateFile struct {
	Rates []rateFileEntry `yaml:"rates"`
}

type rateFileEntry struct {
	CountryCode string `yaml:"country_code"`
	Name        string `yaml:"name"`
	Rate        string `yaml:"rate"`
	IsEUMember  bool   `yaml:"is_eu_member"`
	ValidFrom   string `yaml:"valid_from"`
	ValidTo     string `yaml:"valid_to"`
}

// LoadRatesFile reads a YAML rate table. Rates are decimal strings so no
// float ever enters the table.
func LoadRatesFile(path string) (*RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rates file: %w", err)
	}
	return ParseRates(data)
}

// BuildTable returns the built-in rates, overridden per country by the YAML
// file at overridePath when one is given
func BuildTable(overridePath string) (*RateTable, error) {
	if overridePath == "" {
		return DefaultRates(), nil
	}
	override, err := LoadRatesFile(overridePath)
	if err != nil {
		return nil, err
	}
	return MergeRates(DefaultRates(), override), nil
}

// ParseRates decodes a YAML rate table document
func ParseRates(data []byte) (*RateTable, error) {
	var file rateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rates: %w", err)
	}

	rates := make([]Rate, 0, len(file.Rates))
	for i, entry := range file.Rates {
		if entry.CountryCode == "" {
			return nil, fmt.Errorf("rates[%d]: country_code is required", i)
		}

		rate, err := decimal.NewFromString(entry.Rate)
		if err != nil {
			return nil, fmt.Errorf("rates[%d] (%s): invalid rate %q: %w", i, entry.CountryCode, entry.Rate, err)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("rates[%d] (%s): rate must be a fraction in [0, 1)", i, entry.CountryCode)
		}

		r := Rate{
			CountryCode: entry.CountryCode,
			Name:        entry.Name,
			Rate:        rate,
			IsEUMember:  entry.IsEUMember,
		}
		if r.ValidFrom, err = parseRateDate(entry.ValidFrom); err != nil {
			return nil, fmt.Errorf("rates[%d] (%s): valid_from: %w", i, entry.CountryCode, err)
		}
		if r.ValidTo, err = parseRateDate(entry.ValidTo); err != nil {
			return nil, fmt.Errorf("rates[%d] (%s): valid_to: %w", i, entry.CountryCode, err)
		}
		rates = append(rates, r)
	}

	return NewRateTable(rates...), nil
}

func parseRateDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(rateDateLayout, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
