package cmd

import (
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/catalog-console/internal/models"
	"github.com/nguyentranbao-ct/catalog-console/pkg/tmplx"
)

const (
	productTableFormat = `{{.ID}}\t{{.Name}}\t{{.ModelType}}\t{{trunc 48 .Description}}`
	productJSONFormat  = `{{json .}}`
)

func addFormatFlag(cmd *cobra.Command, target *string, def string) {
	cmd.Flags().StringVar(target, "format", def,
		"Go template applied to each item, e.g. '{{.ID}}\\t{{.Name}}' or '{{json .}}'")
}

// printEach renders items one per line through format. Tab separated
// output is aligned.
func printEach[T any](w io.Writer, format string, items []T) error {
	var sample T
	tmpl, err := tmplx.Parse("output", format, tmplx.WithSample(sample))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range items {
		if err := tmpl.Execute(tw, item); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func newTypesCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the package types a product can have",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printEach(cmd.OutOrStdout(), format, models.PackageTypes())
		},
	}
	addFormatFlag(cmd, &format, `{{.Value}}`)
	return cmd
}
