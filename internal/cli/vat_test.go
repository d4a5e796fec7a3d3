package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vineyard-shop/internal/domain/vat"
)

func TestVATCommand_Text(t *testing.T) {
	out, _, err := execute(t, "vat", "--amount", "100", "--shipping", "10", "--country", "de")
	require.NoError(t, err)

	assert.Contains(t, out, "Destination: Germany (DE)")
	assert.Contains(t, out, "VAT rate:    19%")
	assert.Contains(t, out, "VAT:         €20.90 (goods €19.00, shipping €1.90)")
	assert.Contains(t, out, "Total:       €130.90")
	assert.NotContains(t, out, "Reverse charge")
}

func TestVATCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "vat", "--amount", "76.50", "--country", "NL")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   vat.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(7650), resp.Data.BaseAmountMinorUnits)
	assert.Equal(t, int64(1607), resp.Data.VatAmountMinorUnits)
	assert.Equal(t, int64(9257), resp.Data.TotalAmountMinorUnits)
}

func TestVATCommand_ReverseCharge(t *testing.T) {
	out, _, err := execute(t, "vat",
		"--amount", "100",
		"--country", "DE",
		"--customer-type", "business",
		"--vat-number", "DE123456789",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Reverse charge")
	assert.Contains(t, out, "Total:       €100.00")
}

func TestVATCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{"missing amount", []string{"vat", "--country", "NL"}, CodeUsage, ExitCommandError},
		{"missing country", []string{"vat", "--amount", "10"}, CodeUsage, ExitCommandError},
		{"too many decimals", []string{"vat", "--amount", "1.234", "--country", "NL"}, CodeValidation, ExitFailure},
		{"negative amount", []string{"vat", "--amount=-5", "--country", "NL"}, CodeValidation, ExitFailure},
		{"bad customer type", []string{"vat", "--amount", "10", "--country", "NL", "--customer-type", "reseller"}, CodeUsage, ExitCommandError},
		{"bad tax point", []string{"vat", "--amount", "10", "--country", "NL", "--tax-point", "01/02/2025"}, CodeUsage, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.wantCode+"]")
		})
	}
}
