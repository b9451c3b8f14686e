package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/catalog-console/internal/catalogapi"
	"github.com/nguyentranbao-ct/catalog-console/internal/models"
	"github.com/nguyentranbao-ct/catalog-console/internal/render"
	"github.com/nguyentranbao-ct/catalog-console/internal/store"
	"github.com/nguyentranbao-ct/catalog-console/pkg/ctxval"
)

const maxImageSize = 20 << 20

type Controller interface {
	Health(c echo.Context) error
	PackageTypes(c echo.Context) error

	ListProducts(c echo.Context) error
	ReloadProducts(c echo.Context) error
	GetProduct(c echo.Context) error
	CreateProduct(c echo.Context) error
	UpdateProduct(c echo.Context) error
	DeleteProduct(c echo.Context) error
	ProductImageURL(c echo.Context) error
	ProductImage(c echo.Context) error

	SetRenderParameters(c echo.Context) error
	GetRender(c echo.Context) error
	GetRenderArtifact(c echo.Context) error
	CloseRender(c echo.Context) error
}

type controller struct {
	store   *store.Store
	renders *render.Manager
	client  catalogapi.Client
}

func NewHandler(s *store.Store, renders *render.Manager, client catalogapi.Client) Controller {
	return &controller{
		store:   s,
		renders: renders,
		client:  client,
	}
}

type createResponse struct {
	// Product is nil when the service did not echo the new product and the
	// list was reloaded instead.
	Product  *models.Product `json:"product"`
	Reloaded bool            `json:"reloaded"`
}

func (h *controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "catalog-console",
		"products": h.store.Count(),
	})
}

func (h *controller) PackageTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, models.PackageTypes())
}

func (h *controller) ListProducts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Search(c.QueryParam("q")))
}

func (h *controller) ReloadProducts(c echo.Context) error {
	if err := h.store.Load(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.store.Products())
}

func (h *controller) GetProduct(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	p, ok := h.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("product %d not loaded", id))
	}
	return c.JSON(http.StatusOK, p)
}

func (h *controller) CreateProduct(c echo.Context) error {
	draft, err := bindDraft(c, models.NewDraft())
	if err != nil {
		return err
	}
	if err := c.Validate(&draft); err != nil {
		return err
	}
	created, err := h.store.Create(c.Request().Context(), draft)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createResponse{Product: created, Reloaded: created == nil})
}

// UpdateProduct starts from the loaded product, so form fields left out keep
// their current value.
func (h *controller) UpdateProduct(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	seed := models.NewDraft()
	if p, ok := h.store.Get(id); ok {
		seed = models.DraftFromProduct(p)
	}
	draft, err := bindDraft(c, seed)
	if err != nil {
		return err
	}
	if err := c.Validate(&draft); err != nil {
		return err
	}
	updated, err := h.store.Update(c.Request().Context(), id, draft)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *controller) DeleteProduct(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	h.renders.Close(id)
	return c.NoContent(http.StatusNoContent)
}

func (h *controller) ProductImageURL(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"url": h.store.ImageURL(id)})
}

func (h *controller) ProductImage(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	blob, err := h.client.FetchImage(c.Request().Context(), id)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, blob.ContentType, blob.Data)
}

// SetRenderParameters accepts a partial parameter set; missing fields keep
// the session's current values. The render runs in the background.
func (h *controller) SetRenderParameters(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	params := models.DefaultRenderParameters()
	if sess, ok := h.renders.Get(id); ok {
		params = sess.Snapshot().Params
	}
	if err := c.Bind(&params); err != nil {
		return err
	}
	sess, _, err := h.renders.SetParameters(id, params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, sess.Snapshot())
}

func (h *controller) GetRender(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *controller) GetRenderArtifact(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	data, res, err := sess.Artifact()
	if errors.Is(err, render.ErrNoArtifact) {
		return echo.NewHTTPError(http.StatusNotFound, "no render available yet")
	}
	if err != nil {
		return err
	}
	c.Response().Header().Set("X-Render-Seq", strconv.FormatUint(res.Seq, 10))
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, res.ContentType, data)
}

func (h *controller) CloseRender(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	if !h.renders.Close(id) {
		return echo.NewHTTPError(http.StatusNotFound, "no render session")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *controller) session(c echo.Context) (*render.Session, error) {
	id, err := productID(c)
	if err != nil {
		return nil, err
	}
	sess, ok := h.renders.Get(id)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no render session")
	}
	return sess, nil
}

func productID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	ctxval.SetProductID(c.Request().Context(), id)
	return id, nil
}

// bindDraft overlays the submitted form fields on seed. The image part is
// optional.
func bindDraft(c echo.Context, seed models.ProductDraft) (models.ProductDraft, error) {
	form, err := c.FormParams()
	if err != nil {
		return seed, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	if v, ok := form["name"]; ok && len(v) > 0 {
		seed.Name = v[0]
	}
	if v, ok := form["description"]; ok && len(v) > 0 {
		seed.Description = v[0]
	}
	if v, ok := form["modeltype"]; ok && len(v) > 0 {
		seed.ModelType = v[0]
	}

	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return seed, nil
	}
	if err != nil {
		return seed, echo.NewHTTPError(http.StatusBadRequest, "invalid image part")
	}
	if fh.Size > maxImageSize {
		return seed, models.NewValidationError("image", "file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return seed, fmt.Errorf("open uploaded image: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageSize))
	if err != nil {
		return seed, fmt.Errorf("read uploaded image: %w", err)
	}
	seed.Image = &models.ImageFile{Filename: fh.Filename, Data: data}
	return seed, nil
}
