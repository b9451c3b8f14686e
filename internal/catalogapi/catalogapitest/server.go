// Package catalogapitest runs an in-memory remote product service for tests.
package catalogapitest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/catalog-console/internal/models"
)

// PNG is a minimal PNG signature, enough for content sniffing.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// RenderFunc produces the body of a render response. It may block on ctx to
// simulate a slow renderer.
type RenderFunc func(ctx context.Context, id int64, params models.RenderParameters) (int, []byte)

// Request is one recorded call.
type Request struct {
	Method    string
	Path      string
	RequestID string
	Query  map[string]string
	Form   map[string]string
	File   []byte
}

type Server struct {
	*httptest.Server

	mu              sync.Mutex
	products        map[int64]models.Product
	images          map[int64][]byte
	nextID          int64
	failures        map[string]failure
	emptyCreateBody bool
	render          RenderFunc
	requests        []Request
}

type failure struct {
	status int
	body   string
}

func NewServer(seed ...models.Product) *Server {
	s := &Server{
		products: make(map[int64]models.Product),
		images:   make(map[int64][]byte),
		failures: make(map[string]failure),
		nextID:   1,
	}
	for _, p := range seed {
		s.products[p.ID] = p
		if p.ID >= s.nextID {
			s.nextID = p.ID + 1
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.GET("/products", s.list)
	e.POST("/products", s.create)
	e.GET("/products/:id", s.get)
	e.PUT("/products/:id", s.update)
	e.DELETE("/products/:id", s.delete)
	e.GET("/products/:id/image", s.image)
	e.PUT("/products/:id/render", s.renderHandler)
	s.Server = httptest.NewServer(e)
	return s
}

// Fail makes every call of op ("list", "get", "create", "update", "delete",
// "image", "render") answer with status and body until Recover is called.
func (s *Server) Fail(op string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = failure{status: status, body: body}
}

func (s *Server) Recover(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
}

// EmptyCreateBody makes create answer 201 without a body.
func (s *Server) EmptyCreateBody(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyCreateBody = v
}

func (s *Server) SetRender(fn RenderFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.render = fn
}

// Put stores p directly, bypassing the HTTP surface.
func (s *Server) Put(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Server) Product(id int64) (models.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Server) Image(id int64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[id]
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) record(c echo.Context, op string) (failure, bool) {
	req := Request{
		Method:    c.Request().Method,
		Path:      c.Request().URL.Path,
		RequestID: c.Request().Header.Get("X-Request-Id"),
		Query:     map[string]string{},
		Form:      map[string]string{},
	}
	for k := range c.QueryParams() {
		req.Query[k] = c.QueryParam(k)
	}
	if form, err := c.MultipartForm(); err == nil {
		for k, v := range form.Value {
			if len(v) > 0 {
				req.Form[k] = v[0]
			}
		}
		if fh, ok := form.File["image"]; ok && len(fh) > 0 {
			if f, err := fh[0].Open(); err == nil {
				req.File, _ = io.ReadAll(f)
				_ = f.Close()
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	f, failing := s.failures[op]
	return f, failing
}

func (s *Server) fail(c echo.Context, f failure) error {
	if json.Valid([]byte(f.body)) {
		return c.JSONBlob(f.status, []byte(f.body))
	}
	return c.String(f.status, f.body)
}

func (s *Server) list(c echo.Context) error {
	if f, ok := s.record(c, "list"); ok {
		return s.fail(c, f)
	}
	s.mu.Lock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return c.JSON(http.StatusOK, out)
}

func (s *Server) get(c echo.Context) error {
	if f, ok := s.record(c, "get"); ok {
		return s.fail(c, f)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid id"})
	}
	p, ok := s.Product(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"title": fmt.Sprintf("product %d not found", id)})
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) create(c echo.Context) error {
	if f, ok := s.record(c, "create"); ok {
		return s.fail(c, f)
	}
	s.mu.Lock()
	p := models.Product{
		ID:          s.nextID,
		Name:        c.FormValue("name"),
		Description: c.FormValue("description"),
		ModelType:   c.FormValue("modeltype"),
	}
	s.nextID++
	s.products[p.ID] = p
	empty := s.emptyCreateBody
	s.mu.Unlock()
	s.storeImage(c, p.ID)

	if empty {
		return c.NoContent(http.StatusCreated)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) update(c echo.Context) error {
	if f, ok := s.record(c, "update"); ok {
		return s.fail(c, f)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid id"})
	}
	s.mu.Lock()
	_, ok := s.products[id]
	if ok {
		s.products[id] = models.Product{
			ID:          id,
			Name:        c.FormValue("name"),
			Description: c.FormValue("description"),
			ModelType:   c.FormValue("modeltype"),
		}
	}
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "product not found"})
	}
	s.storeImage(c, id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) delete(c echo.Context) error {
	if f, ok := s.record(c, "delete"); ok {
		return s.fail(c, f)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid id"})
	}
	s.mu.Lock()
	_, ok := s.products[id]
	delete(s.products, id)
	delete(s.images, id)
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "product not found"})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) image(c echo.Context) error {
	if f, ok := s.record(c, "image"); ok {
		return s.fail(c, f)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid id"})
	}
	img := s.Image(id)
	if img == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "image not found"})
	}
	return c.Blob(http.StatusOK, "image/png", img)
}

func (s *Server) renderHandler(c echo.Context) error {
	if f, ok := s.record(c, "render"); ok {
		return s.fail(c, f)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid id"})
	}
	var params models.RenderParameters
	for name, dst := range map[string]*float64{
		"horizontalAngle": &params.HorizontalAngle,
		"verticalAngle":   &params.VerticalAngle,
		"lightEnergy":     &params.LightEnergy,
	} {
		v, err := strconv.ParseFloat(c.QueryParam(name), 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid " + name})
		}
		*dst = v
	}

	s.mu.Lock()
	fn := s.render
	s.mu.Unlock()
	if fn == nil {
		fn = DefaultRender
	}
	status, body := fn(c.Request().Context(), id, params)
	if status < 200 || status > 299 {
		return c.String(status, string(body))
	}
	return c.Blob(status, "image/png", body)
}

func (s *Server) storeImage(c echo.Context, id int64) {
	fh, err := c.FormFile("image")
	if err != nil {
		return
	}
	f, err := fh.Open()
	if err != nil {
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.images[id] = data
	s.mu.Unlock()
}

// DefaultRender answers with a PNG whose trailer names the parameters, so
// tests can tell artifacts apart.
func DefaultRender(_ context.Context, id int64, params models.RenderParameters) (int, []byte) {
	return http.StatusOK, RenderBody(id, params)
}

func RenderBody(id int64, params models.RenderParameters) []byte {
	trailer := fmt.Sprintf("id=%d h=%g v=%g l=%g", id, params.HorizontalAngle, params.VerticalAngle, params.LightEnergy)
	out := make([]byte, 0, len(PNG)+len(trailer))
	out = append(out, PNG...)
	return append(out, trailer...)
}
