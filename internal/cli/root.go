// internal/cli/root.go
package cli

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/pkg/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	APIURL    string
	SessionID string
	Token     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for cartctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "cartctl - drive a vineyard shop cart from the terminal",
		Long: `Drive a vineyard shop cart from the terminal.

Cart commands keep an optimistic session against the cart API and flush
pending quantity edits before exiting. VAT figures are computed locally
from the configured rate table.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return usageError("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "cart API base URL (default $CART_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.SessionID, "session", "", "guest cart session id (default $CART_SESSION_ID)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "access token (default $CART_ACCESS_TOKEN)")

	// Add subcommands
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewProductsCommand(opts))
	cmd.AddCommand(NewVATCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig reads the client configuration and applies flag overrides
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.APIURL != "" {
		cfg.Client.BaseURL = o.APIURL
	}
	if o.SessionID != "" {
		cfg.Client.SessionID = o.SessionID
	}
	if o.Token != "" {
		cfg.Client.AccessToken = o.Token
	}
	return cfg, nil
}

// logger writes diagnostics to stderr; warnings only unless verbose
func (o *RootOptions) logger(cmd *cobra.Command) *logrus.Logger {
	level := logrus.WarnLevel.String()
	if o.Verbose {
		level = logrus.DebugLevel.String()
	}
	return logging.NewWithOutput(config.LoggingConfig{Level: level, Format: "text"}, cmd.ErrOrStderr())
}

func parseQuantity(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, usageError("invalid quantity %q: must be a whole number", value)
	}
	return n, nil
}
