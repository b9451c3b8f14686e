package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/catalog-console/internal/app"
	"github.com/nguyentranbao-ct/catalog-console/internal/models"
)

func newProductsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product", "p"},
		Short:   "List and edit catalog products",
	}
	cmd.AddCommand(
		newProductsListCmd(opts),
		newProductsGetCmd(opts),
		newProductsCreateCmd(opts),
		newProductsUpdateCmd(opts),
		newProductsDeleteCmd(opts),
		newProductsImageCmd(opts),
	)
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", arg)
	}
	return id, nil
}

func newProductsListCmd(opts *rootOptions) *cobra.Command {
	var (
		query  string
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products, optionally filtered by name or description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d app.Deps) error {
				if err := d.Store.Load(ctx); err != nil {
					return err
				}
				return printEach(cmd.OutOrStdout(), format, d.Store.Search(query))
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive filter on name and description")
	addFormatFlag(cmd, &format, productTableFormat)
	return cmd
}

func newProductsGetCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, d app.Deps) error {
				if err := d.Store.Load(ctx); err != nil {
					return err
				}
				p, ok := d.Store.Get(id)
				if !ok {
					return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
				}
				return printEach(cmd.OutOrStdout(), format, []models.Product{p})
			})
		},
	}
	addFormatFlag(cmd, &format, productJSONFormat)
	return cmd
}

type draftFlags struct {
	name        string
	description string
	modelType   string
	image       string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "product name")
	cmd.Flags().StringVar(&f.description, "description", "", "product description")
	cmd.Flags().StringVar(&f.modelType, "type", models.DefaultPackageType().Value, "package type, one of "+strings.Join(models.PackageTypeValues(), ", "))
	cmd.Flags().StringVar(&f.image, "image", "", "path of an image to upload")
}

// apply overlays the flags the user actually set on seed.
func (f *draftFlags) apply(cmd *cobra.Command, seed models.ProductDraft) (models.ProductDraft, error) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		seed.Name = f.name
	}
	if flags.Changed("description") {
		seed.Description = f.description
	}
	if flags.Changed("type") {
		seed.ModelType = f.modelType
	}
	if f.image != "" {
		data, err := os.ReadFile(f.image)
		if err != nil {
			return seed, fmt.Errorf("read image: %w", err)
		}
		seed.Image = &models.ImageFile{Filename: filepath.Base(f.image), Data: data}
	}
	return seed, nil
}

func newProductsCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  draftFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := flags.apply(cmd, models.NewDraft())
			if err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, d app.Deps) error {
				created, err := d.Store.Create(ctx, draft)
				if err != nil {
					return err
				}
				if created == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "created; %d products after reload\n", d.Store.Count())
					return nil
				}
				return printEach(cmd.OutOrStdout(), format, []models.Product{*created})
			})
		},
	}
	flags.register(cmd)
	addFormatFlag(cmd, &format, productJSONFormat)
	return cmd
}

func newProductsUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  draftFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a product; fields not given keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, d app.Deps) error {
				if err := d.Store.Load(ctx); err != nil {
					return err
				}
				current, ok := d.Store.Get(id)
				if !ok {
					return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
				}
				draft, err := flags.apply(cmd, models.DraftFromProduct(current))
				if err != nil {
					return err
				}
				updated, err := d.Store.Update(ctx, id, draft)
				if err != nil {
					return err
				}
				return printEach(cmd.OutOrStdout(), format, []models.Product{*updated})
			})
		},
	}
	flags.register(cmd)
	addFormatFlag(cmd, &format, productJSONFormat)
	return cmd
}

func newProductsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, d app.Deps) error {
				if err := d.Store.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				return nil
			})
		},
	}
}

func newProductsImageCmd(opts *rootOptions) *cobra.Command {
	var (
		out     string
		urlOnly bool
	)
	cmd := &cobra.Command{
		Use:   "image ID",
		Short: "Download the product image, or print its address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, d app.Deps) error {
				if urlOnly {
					fmt.Fprintln(cmd.OutOrStdout(), d.Store.ImageURL(id))
					return nil
				}
				blob, err := d.Client.FetchImage(ctx, id)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, blob.Data)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "file to write, - for stdout")
	cmd.Flags().BoolVar(&urlOnly, "url", false, "print a fresh image address instead of downloading")
	return cmd
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
