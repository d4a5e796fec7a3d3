// internal/cli/token.go
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/your-org/vineyard-shop/internal/pkg/auth"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID uint
	Email  string
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing",
		Long: `Issue an access token for local testing.

The token is signed with JWT_SECRET, so it is only accepted by an API
sharing that secret.

Example:
  export CART_ACCESS_TOKEN=$(cartctl token --user-id 42)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return issueToken(cmd, opts)
		},
	}

	cmd.Flags().UintVar(&opts.UserID, "user-id", 0, "user id to sign in as (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email claim")

	return cmd
}

func issueToken(cmd *cobra.Command, opts *TokenOptions) error {
	out := opts.formatter(cmd)
	if opts.UserID == 0 {
		return out.Fail(usageError("--user-id is required"))
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return out.Fail(err)
	}
	if cfg.JWT.Secret == "" {
		return out.Fail(usageError("JWT_SECRET is not set"))
	}

	token, err := auth.NewJWTManager(cfg).GenerateAccessToken(opts.UserID, opts.Email)
	if err != nil {
		return out.Fail(err)
	}
	out.VerboseLog("Token valid for %s", cfg.JWT.AccessTokenExpiry)

	return out.Success(map[string]interface{}{
		"access_token": token,
		"user_id":      opts.UserID,
		"expires_in":   int(cfg.JWT.AccessTokenExpiry.Seconds()),
	}, func(w io.Writer) {
		fmt.Fprintln(w, token)
	})
}
