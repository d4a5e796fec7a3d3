// internal/cli/vat.go
package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/vineyard-shop/internal/domain/vat"
	"github.com/your-org/vineyard-shop/internal/pkg/money"
)

const taxPointLayout = "2006-01-02"

// VATOptions holds flags for the vat command.
type VATOptions struct {
	*RootOptions
	destinationFlags
	Amount   string
	TaxPoint string
}

// NewVATCommand creates the vat command.
func NewVATCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VATOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vat",
		Short: "Compute VAT for an amount",
		Long: `Compute VAT for an amount with the configured rate table.

Runs locally; the cart API is not contacted.

Example:
  cartctl vat --amount 100 --shipping 10 --country DE`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return computeVAT(cmd, opts)
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "net goods amount, e.g. 76.50 (required)")
	cmd.Flags().StringVar(&opts.TaxPoint, "tax-point", "", "date selecting a dated rate (YYYY-MM-DD)")

	return cmd
}

func computeVAT(cmd *cobra.Command, opts *VATOptions) error {
	out := opts.formatter(cmd)
	if opts.Amount == "" {
		return out.Fail(usageError("--amount is required"))
	}
	if opts.Country == "" {
		return out.Fail(usageError("--country is required"))
	}

	amount, err := money.ParseMajorUnits(opts.Amount)
	if err != nil {
		return out.Fail(err)
	}
	shipping, err := opts.shippingMinorUnits()
	if err != nil {
		return out.Fail(err)
	}
	customerType, err := opts.customerType()
	if err != nil {
		return out.Fail(err)
	}
	var taxPoint time.Time
	if opts.TaxPoint != "" {
		taxPoint, err = time.Parse(taxPointLayout, opts.TaxPoint)
		if err != nil {
			return out.Fail(usageError("invalid tax point %q: expected YYYY-MM-DD", opts.TaxPoint))
		}
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return out.Fail(err)
	}
	rates, err := vat.BuildTable(cfg.VAT.RatesFile)
	if err != nil {
		return out.Fail(WrapExitError(ExitCommandError, "failed to load VAT rates", err))
	}
	calculator := vat.NewCalculator(cfg.VAT.SellerCountry, rates)
	out.VerboseLog("Seller country %s, %d rates loaded", calculator.SellerCountry(), len(rates.Countries()))

	result, err := calculator.Calculate(vat.Input{
		AmountMinorUnits:         amount,
		ShippingAmountMinorUnits: shipping,
		CountryCode:              opts.Country,
		CustomerType:             customerType,
		BusinessVATNumber:        opts.VATNumber,
		TaxPoint:                 taxPoint,
	})
	if err != nil {
		return out.Fail(err)
	}

	return out.Success(result, func(w io.Writer) {
		renderVAT(w, result)
	})
}
