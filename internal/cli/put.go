package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/repoql"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		nodeType string
		mixins   []string
		props    []string
	)
	cmd := &cobra.Command{
		Use:     "put <path>",
		Short:   "Store a node",
		Example: `  repoql put /content/blog --type nt:folder
  repoql put /content/blog/go --type nt:unstructured -p title="Go generics" -p size=LONG:1200`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(props)
			if err != nil {
				return err
			}
			e, err := rootOpts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.repo.AddNode(cmd.Context(), args[0], nodeType, values, mixins...); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return err
		},
	}
	cmd.Flags().StringVarP(&nodeType, "type", "t", repoql.BaseNodeType, "primary node type")
	cmd.Flags().StringArrayVarP(&mixins, "mixin", "m", nil, "mixin node type (repeatable)")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "property as name=value or name=TYPE:value (repeatable)")
	return cmd
}
