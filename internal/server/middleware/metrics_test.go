package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/catalog-console/pkg/util"
)

func makeRequest(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func clearRegisteredMetrics(t *testing.T) {
	t.Helper()
	metrics, err := util.GetHistogramVec(httpRequestsDuration, "code", "method", "path")
	require.NoError(t, err)
	metrics.Reset()
}

func TestPrometheusMiddleware(t *testing.T) {
	clearRegisteredMetrics(t)
	e := echo.New()
	e.Use(Metrics())

	e.GET("/products/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Param("id"))
	})
	e.GET("/broken", func(c echo.Context) error {
		return fmt.Errorf("internal error")
	})

	for i := 0; i < 10; i++ {
		makeRequest(e, http.MethodGet, fmt.Sprintf("/products/%d", i))
	}
	for i := 0; i < 3; i++ {
		makeRequest(e, http.MethodGet, "/broken")
	}
	for i := 0; i < 4; i++ {
		makeRequest(e, http.MethodGet, fmt.Sprintf("/nowhere/%d", i))
	}
	makeRequest(e, http.MethodPost, "/nowhere")

	body := makeRequest(e, http.MethodGet, "/metrics").Body.String()
	assert.Contains(t, body, `request_duration_seconds_count{code="200",method="GET",path="/products/:id"} 10`)
	assert.Contains(t, body, `request_duration_seconds_count{code="500",method="GET",path="/broken"} 3`)
	assert.Contains(t, body, `request_duration_seconds_count{code="404",method="GET",path="/not-found"} 4`)
	assert.Contains(t, body, `request_duration_seconds_count{code="404",method="POST",path="/not-found"} 1`)
}

func TestNormalizeHTTPStatus(t *testing.T) {
	assert.Equal(t, "1xx", normalizeHTTPStatus(101))
	assert.Equal(t, "2xx", normalizeHTTPStatus(204))
	assert.Equal(t, "3xx", normalizeHTTPStatus(304))
	assert.Equal(t, "4xx", normalizeHTTPStatus(404))
	assert.Equal(t, "5xx", normalizeHTTPStatus(502))
}
