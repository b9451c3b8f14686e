package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/catalog-console/internal/config"
	"github.com/nguyentranbao-ct/catalog-console/internal/models"
	"github.com/nguyentranbao-ct/catalog-console/pkg/ctxval"
	"github.com/nguyentranbao-ct/catalog-console/pkg/logger"
	"github.com/nguyentranbao-ct/catalog-console/pkg/util"
)

// Client talks to the remote product service. Every method either returns
// a typed result or a *models.RemoteError / *models.NetworkError. Nothing is
// retried.
type Client interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	// CreateProduct returns nil when the service answers with an empty body.
	CreateProduct(ctx context.Context, draft models.ProductDraft) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, draft models.ProductDraft) error
	DeleteProduct(ctx context.Context, id int64) error
	// ImageURL builds a cache-busting image address. It does no I/O, so
	// callers re-derive it after any mutation that may change the image.
	ImageURL(id int64) string
	FetchImage(ctx context.Context, id int64) (*Blob, error)
	Render(ctx context.Context, id int64, params models.RenderParameters) (*Blob, error)
}

// Blob is a binary response body.
type Blob struct {
	Data        []byte
	ContentType string
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// Insecure skips TLS verification, for local services with self-signed certs.
	Insecure bool
	Now      func() time.Time
}

type client struct {
	rest    *resty.Client
	baseURL string
	now     func() time.Time
	log     *zap.SugaredLogger
	metrics *prometheus.HistogramVec
}

func NewClient(conf *config.Config) (Client, error) {
	return New(Options{
		BaseURL:  conf.CatalogAPI.BaseURL,
		Timeout:  conf.CatalogAPI.Timeout,
		Insecure: conf.CatalogAPI.Insecure,
	})
}

func New(opts Options) (Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("catalog api base url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog api base url: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	metrics, err := util.GetHistogramVec("catalog_api_request_duration_seconds", "operation", "outcome")
	if err != nil {
		return nil, fmt.Errorf("init catalog api metrics: %w", err)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	return &client{
		rest: util.NewRestyClient(util.RestyOptions{
			BaseURL:  baseURL,
			Timeout:  opts.Timeout,
			Insecure: opts.Insecure,
		}),
		baseURL: baseURL,
		now:     opts.Now,
		log:     logger.MustNamed("catalogapi"),
		metrics: metrics,
	}, nil
}

func (c *client) ListProducts(ctx context.Context) ([]models.Product, error) {
	resp, err := c.do(ctx, "list", c.rest.R().SetHeader("Accept", "application/json"), http.MethodGet, "/products")
	if err != nil {
		return nil, err
	}
	products := []models.Product{}
	if err := decodeJSON(resp.Body(), &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

func (c *client) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	resp, err := c.do(ctx, "get", c.rest.R().SetHeader("Accept", "application/json"), http.MethodGet, productPath(id))
	if err != nil {
		return nil, err
	}
	var product models.Product
	if err := decodeJSON(resp.Body(), &product); err != nil {
		return nil, fmt.Errorf("failed to decode product %d: %w", id, err)
	}
	return &product, nil
}

func (c *client) CreateProduct(ctx context.Context, draft models.ProductDraft) (*models.Product, error) {
	resp, err := c.do(ctx, "create", multipartRequest(c.rest.R(), draft), http.MethodPost, "/products")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body())) == 0 {
		return nil, nil
	}
	var product models.Product
	if err := decodeJSON(resp.Body(), &product); err != nil {
		return nil, fmt.Errorf("failed to decode created product: %w", err)
	}
	return &product, nil
}

func (c *client) UpdateProduct(ctx context.Context, id int64, draft models.ProductDraft) error {
	_, err := c.do(ctx, "update", multipartRequest(c.rest.R(), draft), http.MethodPut, productPath(id))
	return err
}

func (c *client) DeleteProduct(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete", c.rest.R(), http.MethodDelete, productPath(id))
	return err
}

func (c *client) ImageURL(id int64) string {
	q := url.Values{}
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.baseURL + productPath(id) + "/image?" + q.Encode()
}

func (c *client) FetchImage(ctx context.Context, id int64) (*Blob, error) {
	resp, err := c.do(ctx, "image", c.rest.R(), http.MethodGet, productPath(id)+"/image")
	if err != nil {
		return nil, err
	}
	return newBlob(resp), nil
}

func (c *client) Render(ctx context.Context, id int64, params models.RenderParameters) (*Blob, error) {
	req := c.rest.R().SetQueryParams(map[string]string{
		"horizontalAngle": formatFloat(params.HorizontalAngle),
		"verticalAngle":   formatFloat(params.VerticalAngle),
		"lightEnergy":     formatFloat(params.LightEnergy),
	})
	resp, err := c.do(ctx, "render", req, http.MethodPut, productPath(id)+"/render")
	if err != nil {
		return nil, err
	}
	return newBlob(resp), nil
}

func (c *client) do(ctx context.Context, op string, req *resty.Request, method, path string) (*resty.Response, error) {
	start := time.Now()
	if id := ctxval.RequestID(ctx); id != "" {
		req.SetHeader("X-Request-Id", id)
	}
	resp, err := req.SetContext(ctx).Execute(method, path)
	outcome := "ok"
	defer func() {
		c.metrics.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	if err != nil {
		outcome = "network_error"
		c.log.Warnw("catalog api request failed", "op", op, "method", method, "path", path, "error", err)
		return nil, &models.NetworkError{Op: op, Err: err}
	}

	status := resp.StatusCode()
	c.log.Debugw("catalog api request", "op", op, "method", method, "path", path,
		"status", status, "latency_ms", time.Since(start).Milliseconds())
	if status < 200 || status > 299 {
		outcome = "remote_error"
		return nil, &models.RemoteError{Status: status, Message: extractMessage(resp.Body())}
	}
	return resp, nil
}

func multipartRequest(req *resty.Request, draft models.ProductDraft) *resty.Request {
	req.SetMultipartFormData(map[string]string{
		"name":        strings.TrimSpace(draft.Name),
		"description": draft.Description,
		"modeltype":   draft.ModelType,
	})
	if draft.HasImage() {
		filename := draft.Image.Filename
		if filename == "" {
			filename = "image" + mimetype.Detect(draft.Image.Data).Extension()
		}
		req.SetMultipartField("image", filename, mimetype.Detect(draft.Image.Data).String(), bytes.NewReader(draft.Image.Data))
	}
	return req
}

func newBlob(resp *resty.Response) *Blob {
	data := resp.Body()
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = mimetype.Detect(data).String()
	}
	return &Blob{Data: data, ContentType: contentType}
}

func decodeJSON(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(body, out)
}

// extractMessage pulls a human readable message out of an error body. JSON
// bodies are searched for the usual keys, anything else is used as text.
func extractMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error", "detail", "title"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	const maxLen = 512
	text := string(body)
	if len(text) > maxLen {
		text = strings.ToValidUTF8(text[:maxLen], "")
	}
	return text
}

func productPath(id int64) string {
	return "/products/" + strconv.FormatInt(id, 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
