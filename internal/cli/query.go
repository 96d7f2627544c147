package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/repoql"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var binds []string
	cmd := &cobra.Command{
		Use:   "query <statement>",
		Short: "Run a query against the repository",
		Example: `  repoql query "SELECT * FROM [nt:unstructured] AS n WHERE n.[title] LIKE 'Go%'"
  repoql query "SELECT * FROM [nt:base] AS n WHERE n.[size] > \$min" --bind min=LONG:10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindings, err := parseAssignments(binds)
			if err != nil {
				return err
			}
			e, err := rootOpts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.repo.Execute(cmd.Context(), args[0], repoql.Bindings(bindings))
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, res)
		},
	}
	cmd.Flags().StringArrayVarP(&binds, "bind", "b", nil, "bind variable as name=value or name=TYPE:value (repeatable)")
	return cmd
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <statement>",
		Short: "Show how a query would be executed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			plan, err := e.repo.Explain(args[0])
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"plan": plan})
			}
			_, err = io.WriteString(cmd.OutOrStdout(), plan)
			return err
		},
	}
}

func writeResult(w io.Writer, format string, res *repoql.ExecuteResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "path\t"+strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		paths := make([]string, 0, len(row.Paths))
		for _, name := range slices.Sorted(maps.Keys(row.Paths)) {
			paths = append(paths, row.Paths[name])
		}
		cells := []string{strings.Join(paths, ",")}
		for _, col := range res.Columns {
			if v, ok := row.Values[col]; ok {
				cells = append(cells, v.Text())
			} else {
				cells = append(cells, "")
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
	return err
}
