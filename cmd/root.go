package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/catalog-console/internal/app"
	"github.com/nguyentranbao-ct/catalog-console/internal/config"
	"github.com/nguyentranbao-ct/catalog-console/internal/server"
	"github.com/nguyentranbao-ct/catalog-console/pkg/logger"
)

type rootOptions struct {
	logLevel string
	baseURL  string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Manage the product catalog and its 3D previews",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (default from LOG_LEVEL)")
	root.PersistentFlags().StringVar(&opts.baseURL, "api", "", "catalog api base url (default from CATALOG_API_BASE_URL)")

	root.AddCommand(
		newServeCmd(opts),
		newTypesCmd(),
		newProductsCmd(opts),
		newRenderCmd(opts),
	)
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP backend for the catalog front-end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.baseURL != "" {
				if err := os.Setenv("CATALOG_API_BASE_URL", opts.baseURL); err != nil {
					return err
				}
			}
			if opts.logLevel != "" {
				if err := os.Setenv("LOG_LEVEL", opts.logLevel); err != nil {
					return err
				}
			}
			app.Invoke(
				app.InitializeProducts,
				server.StartServer,
			).Run()
			return nil
		},
	}
}

// loadConfig applies the persistent flags on top of the environment.
// Commands other than serve are quiet unless asked otherwise.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	conf, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.baseURL != "" {
		conf.CatalogAPI.BaseURL = opts.baseURL
	}
	level := opts.logLevel
	if level == "" {
		level = "warn"
		if _, ok := os.LookupEnv("LOG_LEVEL"); ok {
			level = conf.Log.Level
		}
	}
	if err := logger.SetLevel(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return conf, nil
}

func run(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, d app.Deps) error) error {
	conf, err := loadConfig(opts)
	if err != nil {
		return err
	}
	return app.Exec(cmd.Context(), conf, fn)
}
