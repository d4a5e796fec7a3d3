// internal/cli/products.go
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/your-org/vineyard-shop/internal/pkg/money"
	"github.com/your-org/vineyard-shop/internal/storeclient"
)

// ProductsOptions holds flags for the products command.
type ProductsOptions struct {
	*RootOptions
	Region string
	Search string
	Page   int
}

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProductsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "products",
		Short:         "List wines in the catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProducts(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Region, "region", "", "filter by wine region")
	cmd.Flags().StringVar(&opts.Search, "search", "", "search name and producer")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")

	return cmd
}

func listProducts(cmd *cobra.Command, opts *ProductsOptions) error {
	out := opts.formatter(cmd)
	if opts.Page < 1 {
		return out.Fail(usageError("invalid page %d: must be at least 1", opts.Page))
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return out.Fail(err)
	}
	client, err := storeclient.NewClient(cfg.Client, opts.logger(cmd))
	if err != nil {
		return out.Fail(err)
	}

	page, err := client.ListProducts(cmd.Context(), opts.Region, opts.Search, opts.Page)
	if err != nil {
		return out.Fail(err)
	}

	return out.Success(page, func(w io.Writer) {
		renderProducts(w, page)
	})
}

func renderProducts(w io.Writer, page *storeclient.ProductPage) {
	if len(page.Products) == 0 {
		fmt.Fprintln(w, "No products found")
		return
	}
	fmt.Fprintf(w, "%-6s  %-32s  %-7s  %-16s  %10s  %6s\n", "ID", "NAME", "VINTAGE", "REGION", "PRICE", "STOCK")
	for _, p := range page.Products {
		stock := "-"
		if p.TrackQuantity {
			stock = fmt.Sprint(p.Quantity)
		}
		fmt.Fprintf(w, "%-6d  %-32s  %-7d  %-16s  %10s  %6s\n",
			p.ID, p.Name, p.Vintage, p.Region, money.FormatMinorUnits(p.Price), stock)
	}
	fmt.Fprintf(w, "\nPage %d of %d (%d products)\n",
		page.Pagination.Page, page.Pagination.TotalPages, page.Pagination.Total)
}
