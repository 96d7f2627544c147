package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage login tokens of the HTTP API",
	}
	cmd.AddCommand(newTokenCreateCommand(rootOpts))
	return cmd
}

func newTokenCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var attrs []string
	cmd := &cobra.Command{
		Use:   "create <user>",
		Short: "Issue a token for a user",
		Long: `Issue a token for a user. Attributes whose name starts with '.' are
mandatory: requests must repeat them in the X-Repoql-Token-Attribute header.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes := make(map[string]string, len(attrs))
			for _, kv := range attrs {
				name, value, ok := strings.Cut(kv, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid attribute %q: want name=value", kv)
				}
				attributes[name] = value
			}
			e, err := rootOpts.open(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			token, err := e.tokens.CreateToken(args[0], attributes, time.Now())
			if err != nil {
				return err
			}
			e.log.Debug("token created", "user", args[0])
			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"user":  args[0],
					"token": token,
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "token attribute as name=value (repeatable)")
	return cmd
}
