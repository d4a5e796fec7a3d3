// internal/cli/cart.go
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/vineyard-shop/internal/cartsession"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
	"github.com/your-org/vineyard-shop/internal/pkg/money"
	"github.com/your-org/vineyard-shop/internal/storeclient"
)

// cartRuntime is one refreshed cart session plus the client behind it
type cartRuntime struct {
	client    *storeclient.Client
	session   *cartsession.Session
	out       *OutputFormatter
	sessionID string
}

// destinationFlags select the address VAT is computed for
type destinationFlags struct {
	Country      string
	CustomerType string
	VATNumber    string
	Shipping     string
}

func (d *destinationFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.Country, "country", "", "destination country code (enables VAT figures)")
	cmd.Flags().StringVar(&d.CustomerType, "customer-type", string(vat.Consumer), "consumer|business")
	cmd.Flags().StringVar(&d.VATNumber, "vat-number", "", "business VAT number")
	cmd.Flags().StringVar(&d.Shipping, "shipping", "", "shipping amount, e.g. 6.95")
}

func (d *destinationFlags) customerType() (vat.CustomerType, error) {
	switch t := vat.CustomerType(strings.ToLower(d.CustomerType)); t {
	case vat.Consumer, vat.Business:
		return t, nil
	}
	return "", usageError("invalid customer type %q: must be consumer or business", d.CustomerType)
}

func (d *destinationFlags) shippingMinorUnits() (int64, error) {
	if d.Shipping == "" {
		return 0, nil
	}
	return money.ParseMajorUnits(d.Shipping)
}

// destination returns nil when no country was given
func (d *destinationFlags) destination() (*cartsession.Destination, error) {
	if d.Country == "" {
		return nil, nil
	}
	customerType, err := d.customerType()
	if err != nil {
		return nil, err
	}
	shipping, err := d.shippingMinorUnits()
	if err != nil {
		return nil, err
	}
	return &cartsession.Destination{
		CountryCode:              d.Country,
		CustomerType:             customerType,
		BusinessVATNumber:        d.VATNumber,
		ShippingAmountMinorUnits: shipping,
	}, nil
}

// cartView is what cart commands print
type cartView struct {
	SessionID string `json:"session_id,omitempty"`
	cartsession.Summary
}

// NewCartCommand creates the cart command group.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and edit the cart",
		Long: `Inspect and edit the cart.

Without --session or --token a new guest session is started; export the
printed CART_SESSION_ID to keep using the same cart.`,
	}

	cmd.AddCommand(newCartShowCommand(rootOpts))
	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartSetCommand(rootOpts))
	cmd.AddCommand(newCartRemoveCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))
	cmd.AddCommand(newCartMergeCommand(rootOpts))
	cmd.AddCommand(newCartQuoteCommand(rootOpts))

	return cmd
}

func newCartShowCommand(rootOpts *RootOptions) *cobra.Command {
	dest := &destinationFlags{}

	cmd := &cobra.Command{
		Use:           "show",
		Short:         "Show the cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, dest, func(ctx context.Context, rt *cartRuntime) error {
				return nil
			})
		},
	}
	dest.bind(cmd)

	return cmd
}

func newCartAddCommand(rootOpts *RootOptions) *cobra.Command {
	dest := &destinationFlags{}

	cmd := &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product to the cart",
		Long: `Add a product to the cart.

Adding a product that is already in the cart raises the quantity of its line.

Example:
  cartctl cart add 12 3`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity := 1
			if len(args) == 2 {
				n, err := parseQuantity(args[1])
				if err != nil {
					return rootOpts.formatter(cmd).Fail(err)
				}
				quantity = n
			}
			return runCart(cmd, rootOpts, dest, func(ctx context.Context, rt *cartRuntime) error {
				line, err := rt.session.AddLine(ctx, args[0], quantity)
				if err != nil {
					return err
				}
				rt.out.VerboseLog("Added %d of product %s to line %s", quantity, args[0], line.ID)
				return nil
			})
		},
	}
	dest.bind(cmd)

	return cmd
}

func newCartSetCommand(rootOpts *RootOptions) *cobra.Command {
	dest := &destinationFlags{}

	cmd := &cobra.Command{
		Use:   "set <line-id>=<quantity>...",
		Short: "Set line quantities",
		Long: `Set line quantities.

All edits are written in one batch. A quantity of 0 removes the line.

Example:
  cartctl cart set 3f1c...=2 9a0b...=0`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseAssignments(args)
			if err != nil {
				return rootOpts.formatter(cmd).Fail(err)
			}
			return runCart(cmd, rootOpts, dest, func(ctx context.Context, rt *cartRuntime) error {
				for _, u := range updates {
					if err := rt.session.SetQuantity(ctx, u.LineID, u.Quantity); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	dest.bind(cmd)

	return cmd
}

func newCartRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	dest := &destinationFlags{}

	cmd := &cobra.Command{
		Use:           "remove <line-id>...",
		Short:         "Remove lines from the cart",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, dest, func(ctx context.Context, rt *cartRuntime) error {
				for _, id := range args {
					if err := rt.session.RemoveLine(ctx, id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	dest.bind(cmd)

	return cmd
}

func newCartClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Remove every line from the cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, &destinationFlags{}, func(ctx context.Context, rt *cartRuntime) error {
				return rt.session.ClearCart(ctx)
			})
		},
	}
}

func newCartMergeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Merge the guest cart into the signed-in user's cart",
		Long: `Merge the guest cart into the signed-in user's cart.

Needs both --session (the guest cart) and --token (the user).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, &destinationFlags{}, func(ctx context.Context, rt *cartRuntime) error {
				if rt.sessionID == "" {
					return usageError("merge needs a guest session (--session)")
				}
				if _, err := rt.client.MergeGuestCart(ctx); err != nil {
					return err
				}
				return rt.session.Refresh(ctx)
			})
		},
	}
}

// QuoteOptions holds flags for the quote command.
type QuoteOptions struct {
	*RootOptions
	destinationFlags
	ShippingMethod string
}

func newCartQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Ask the API for a VAT-inclusive checkout quote",
		Long: `Ask the API for a VAT-inclusive checkout quote.

A named shipping method takes precedence over --shipping.

Example:
  cartctl cart quote --country DE --shipping-method express`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(cmd, opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.ShippingMethod, "shipping-method", "", "shipping method id (standard|express)")

	return cmd
}

func runQuote(cmd *cobra.Command, opts *QuoteOptions) error {
	out := opts.formatter(cmd)
	if opts.Country == "" {
		return out.Fail(usageError("--country is required"))
	}
	customerType, err := opts.customerType()
	if err != nil {
		return out.Fail(err)
	}
	shipping, err := opts.shippingMinorUnits()
	if err != nil {
		return out.Fail(err)
	}

	rt, err := openCart(cmd, opts.RootOptions)
	if err != nil {
		return out.Fail(err)
	}
	defer rt.session.Close()

	quote, err := rt.client.Quote(cmd.Context(), storeclient.QuoteRequest{
		CountryCode:              opts.Country,
		CustomerType:             customerType,
		BusinessVATNumber:        opts.VATNumber,
		ShippingMethodID:         opts.ShippingMethod,
		ShippingAmountMinorUnits: shipping,
	})
	if err != nil {
		return out.Fail(err)
	}

	return out.Success(quote, func(w io.Writer) {
		renderLines(w, quote.Lines)
		fmt.Fprintln(w)
		renderVAT(w, quote.Vat)
	})
}

// openCart builds a session over the API and loads the current cart
func openCart(cmd *cobra.Command, opts *RootOptions) (*cartRuntime, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	out := opts.formatter(cmd)
	logger := opts.logger(cmd)

	if cfg.Client.SessionID == "" && cfg.Client.AccessToken == "" {
		cfg.Client.SessionID = uuid.NewString()
		out.Notice("Started guest cart session; to keep using it run:\n  export CART_SESSION_ID=%s", cfg.Client.SessionID)
	}

	client, err := storeclient.NewClient(cfg.Client, logger)
	if err != nil {
		return nil, err
	}
	rates, err := vat.BuildTable(cfg.VAT.RatesFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load VAT rates", err)
	}

	session := cartsession.New(client,
		cartsession.WithConfig(cfg.Cart),
		cartsession.WithLogger(logger),
		cartsession.WithCalculator(vat.NewCalculator(cfg.VAT.SellerCountry, rates)),
	)
	out.VerboseLog("Loading cart from %s", cfg.Client.BaseURL)
	if err := session.Refresh(cmd.Context()); err != nil {
		session.Close()
		return nil, err
	}

	return &cartRuntime{
		client:    client,
		session:   session,
		out:       out,
		sessionID: cfg.Client.SessionID,
	}, nil
}

// runCart opens a session, runs action, flushes pending edits and prints the
// resulting cart
func runCart(cmd *cobra.Command, opts *RootOptions, dest *destinationFlags, action func(context.Context, *cartRuntime) error) error {
	out := opts.formatter(cmd)
	destination, err := dest.destination()
	if err != nil {
		return out.Fail(err)
	}

	rt, err := openCart(cmd, opts)
	if err != nil {
		return out.Fail(err)
	}
	defer rt.session.Close()

	ctx := cmd.Context()
	actionErr := action(ctx, rt)
	if err := rt.session.Flush(ctx); err != nil && actionErr == nil {
		actionErr = err
	}
	if actionErr != nil {
		return out.Fail(actionErr)
	}

	rt.session.SetDestination(destination)
	view := cartView{SessionID: rt.sessionID, Summary: rt.session.Summary()}
	return out.Success(view, func(w io.Writer) {
		renderSummary(w, view)
	})
}

// parseAssignments reads line-id=quantity pairs
func parseAssignments(args []string) ([]cartsession.QuantityUpdate, error) {
	updates := make([]cartsession.QuantityUpdate, 0, len(args))
	for _, arg := range args {
		lineID, value, ok := strings.Cut(arg, "=")
		if !ok || lineID == "" {
			return nil, usageError("invalid assignment %q: expected <line-id>=<quantity>", arg)
		}
		quantity, err := parseQuantity(value)
		if err != nil {
			return nil, err
		}
		updates = append(updates, cartsession.QuantityUpdate{LineID: lineID, Quantity: quantity})
	}
	return updates, nil
}

func renderSummary(w io.Writer, view cartView) {
	if view.SessionID != "" {
		fmt.Fprintf(w, "Session: %s\n", view.SessionID)
	}
	renderLines(w, view.Snapshot.Lines)
	snap := view.Snapshot
	fmt.Fprintf(w, "\nItems: %d  Quantity: %d  Subtotal: %s\n",
		snap.ItemCount, snap.TotalQuantity, money.FormatMinorUnits(snap.SubtotalMinorUnits))
	if view.Vat != nil {
		fmt.Fprintln(w)
		renderVAT(w, *view.Vat)
	}
}

func renderLines(w io.Writer, lines []cartsession.CartLine) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "Cart is empty")
		return
	}
	fmt.Fprintf(w, "%-36s  %-8s  %4s  %10s  %10s\n", "LINE", "PRODUCT", "QTY", "UNIT", "TOTAL")
	for _, line := range lines {
		fmt.Fprintf(w, "%-36s  %-8s  %4d  %10s  %10s\n",
			line.ID,
			line.ProductID,
			line.Quantity,
			money.FormatMinorUnits(line.UnitPriceMinorUnits),
			money.FormatMinorUnits(line.LineTotalMinorUnits()),
		)
	}
}

func renderVAT(w io.Writer, res vat.Result) {
	fmt.Fprintf(w, "Destination: %s (%s)\n", res.CountryName, res.CountryCode)
	fmt.Fprintf(w, "VAT rate:    %s\n", money.FormatRate(res.VatRate))
	fmt.Fprintf(w, "Net:         %s (shipping %s)\n",
		money.FormatMinorUnits(res.BaseAmountMinorUnits+res.ShippingAmountMinorUnits),
		money.FormatMinorUnits(res.ShippingAmountMinorUnits))
	fmt.Fprintf(w, "VAT:         %s (goods %s, shipping %s)\n",
		money.FormatMinorUnits(res.VatAmountMinorUnits),
		money.FormatMinorUnits(res.Breakdown.ProductVat),
		money.FormatMinorUnits(res.Breakdown.ShippingVat))
	if res.IsReverseCharge {
		fmt.Fprintln(w, "Reverse charge: VAT payable by the customer")
	}
	fmt.Fprintf(w, "Total:       %s\n", money.FormatMinorUnits(res.TotalAmountMinorUnits))
}
