package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/nguyentranbao-ct/catalog-console/internal/catalogapi"
	"github.com/nguyentranbao-ct/catalog-console/internal/config"
	"github.com/nguyentranbao-ct/catalog-console/internal/preview"
	"github.com/nguyentranbao-ct/catalog-console/internal/render"
	"github.com/nguyentranbao-ct/catalog-console/internal/server"
	"github.com/nguyentranbao-ct/catalog-console/internal/store"
	"github.com/nguyentranbao-ct/catalog-console/pkg/logger"
)

const initialLoadTimeout = 30 * time.Second

// Deps is what commands get out of the graph.
type Deps struct {
	fx.In

	Config  *config.Config
	Client  catalogapi.Client
	Store   *store.Store
	Renders *render.Manager
	Preview *preview.Dir
}

func Invoke(funcs ...any) *fx.App {
	conf := config.MustLoad()
	if err := logger.SetLevel(conf.Log.Level); err != nil {
		panic(fmt.Errorf("invalid LOG_LEVEL %q: %w", conf.Log.Level, err))
	}
	return fx.New(Options(conf, funcs...))
}

func Options(conf *config.Config, funcs ...any) fx.Option {
	log := logger.MustNamed("app")
	log.Debugw("config loaded", "config", conf)
	return fx.Options(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Desugar()}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			catalogapi.NewClient,
			store.New,
			preview.NewDirFromConfig,
			newRenderManager,
			server.NewHandler,
		),
		fx.Supply(conf),
		fx.Invoke(CloseRenders),
		fx.Invoke(funcs...),
	)
}

// Exec starts the graph without serving, runs fn and stops the graph again.
func Exec(ctx context.Context, conf *config.Config, fn func(ctx context.Context, d Deps) error) error {
	var deps Deps
	a := fx.New(Options(conf, func(d Deps) { deps = d }))
	if err := a.Err(); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	runErr := fn(ctx, deps)

	stopCtx, cancel := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancel()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("stop app: %w", err)
	}
	return runErr
}

func newRenderManager(client catalogapi.Client, previews *preview.Dir) *render.Manager {
	return render.NewManager(client, previews)
}

// InitializeProducts loads the product list when the server starts. A
// failure is logged but does not block startup; the list can be reloaded
// later.
func InitializeProducts(lc fx.Lifecycle, s *store.Store) {
	log := logger.MustNamed("app")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, initialLoadTimeout)
			defer cancel()
			if err := s.Load(ctx); err != nil {
				log.Warnw("initial product load failed", "error", err)
			}
			return nil
		},
	})
}

// CloseRenders drops every render session and its artifacts on shutdown.
func CloseRenders(lc fx.Lifecycle, m *render.Manager) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			m.CloseAll()
			return nil
		},
	})
}
