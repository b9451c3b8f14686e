package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/catalog-console/internal/config"
	pkgmdw "github.com/nguyentranbao-ct/catalog-console/internal/server/middleware"
	"github.com/nguyentranbao-ct/catalog-console/pkg/ctxval"
	"github.com/nguyentranbao-ct/catalog-console/pkg/logger"
)

// NewEcho builds the BFF router without starting it.
func NewEcho(conf *config.Config, handler Controller) (*echo.Echo, error) {
	cors, err := regexp.Compile(conf.Server.CORSPattern)
	if err != nil {
		return nil, fmt.Errorf("compile cors pattern: %w", err)
	}
	log := logger.MustNamed("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = pkgmdw.ErrorHandler(log)

	logConfig := pkgmdw.LogRequestConfig{
		Logger: log,
		Enabled: func(c echo.Context) bool {
			uri := c.Request().RequestURI
			return uri != "/health" && uri != "/metrics"
		},
		KeyAndValues: func(c echo.Context) []any {
			if id, ok := ctxval.ProductID(c.Request().Context()); ok {
				return []any{"product_id", id}
			}
			return nil
		},
	}

	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.CORS(cors))
	e.Use(pkgmdw.LogRequest(logConfig))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw("PANIC RECOVER", "error", err, "stack", string(stack), "request_id", pkgmdw.GetRequestID(c))
			return err
		},
	}))

	e.GET("/health", handler.Health)
	if conf.Server.Pprof {
		pkgmdw.PprofWrap(e, "")
	}

	api := e.Group("/api/v1")
	api.GET("/package-types", handler.PackageTypes)

	products := api.Group("/products")
	products.GET("", handler.ListProducts)
	products.POST("", handler.CreateProduct)
	products.POST("/reload", handler.ReloadProducts)
	products.GET("/:id", handler.GetProduct)
	products.PUT("/:id", handler.UpdateProduct)
	products.DELETE("/:id", handler.DeleteProduct)
	products.GET("/:id/image-url", handler.ProductImageURL)
	products.GET("/:id/image", handler.ProductImage)

	products.PUT("/:id/render", handler.SetRenderParameters)
	products.GET("/:id/render", handler.GetRender)
	products.DELETE("/:id/render", handler.CloseRender)
	products.GET("/:id/render/artifact", handler.GetRenderArtifact)

	return e, nil
}

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	handler Controller,
) error {
	e, err := NewEcho(conf, handler)
	if err != nil {
		return err
	}
	log := logger.MustNamed("http")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow("starting HTTP server", "addr", conf.Server.Addr)
				if err := e.Start(conf.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("HTTP server stopped", "error", err)
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
	return nil
}
