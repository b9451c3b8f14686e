package models

import (
	"strings"

	"github.com/nguyentranbao-ct/catalog-console/pkg/util"
)

// Product is the catalog item as the remote product service returns it.
// The image is not embedded; it is addressed by the product id.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ModelType   string `json:"modelType"`
}

// ProductDraft is the editable, not yet persisted form of a product.
type ProductDraft struct {
	Name        string     `json:"name" form:"name" validate:"required"`
	Description string     `json:"description" form:"description"`
	ModelType   string     `json:"modelType" form:"modeltype" validate:"required,packagetype"`
	Image       *ImageFile `json:"-" form:"-"`
}

// ImageFile is a pending image selected for upload.
type ImageFile struct {
	Filename string
	Data     []byte
}

// NewDraft returns an empty draft for the create flow.
func NewDraft() ProductDraft {
	return ProductDraft{ModelType: DefaultPackageType().Value}
}

// DraftFromProduct seeds a draft for the edit flow.
func DraftFromProduct(p Product) ProductDraft {
	return ProductDraft{
		Name:        p.Name,
		Description: p.Description,
		ModelType:   p.ModelType,
	}
}

// HasImage reports whether the draft carries a new image to upload.
func (d ProductDraft) HasImage() bool {
	return d.Image != nil && len(d.Image.Data) > 0
}

// Matches reports whether the product name or description contains query,
// ignoring case. An empty query matches everything.
func (p Product) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Description), q)
}

type PackageType struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var packageTypes = []PackageType{
	{Label: "Пакет", Value: "Пакет"},
	{Label: "Банка", Value: "Банка"},
	{Label: "Коробка", Value: "Коробка"},
}

// PackageTypes returns the selectable model types in display order.
func PackageTypes() []PackageType {
	out := make([]PackageType, len(packageTypes))
	copy(out, packageTypes)
	return out
}

func DefaultPackageType() PackageType {
	return packageTypes[0]
}

// PackageTypeValues returns the values the service accepts as modeltype.
func PackageTypeValues() []string {
	return util.ConvertList(packageTypes, func(t PackageType) string { return t.Value })
}

func IsPackageType(value string) bool {
	return util.SliceIncludes(PackageTypeValues(), value)
}
