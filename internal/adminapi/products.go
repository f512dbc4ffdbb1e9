package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/pkg/common"
)

type productPayload struct {
	Name             string   `json:"name" validate:"required,min=1,max=200"`
	Unit             string   `json:"unit" validate:"max=32"`
	Sizes            []string `json:"sizes"`
	Quantity         int      `json:"quantity"`
	MaterialPacked   int      `json:"materialPacked" validate:"gte=0"`
	MaterialDispatch int      `json:"materialDispatch" validate:"gte=0"`
	Images           []string `json:"images"`
}

func registerProductRoutes() {
	webserver.ApiGET("/products", listProducts)
	webserver.ApiGET("/products/:id", getProduct)
	webserver.ApiPOST("/products", createProduct, webserver.RequireRoles(domain.RoleSales))
	webserver.ApiPUT("/products/:id", updateProduct, webserver.RequireRoles(domain.RoleSales))
	webserver.ApiDELETE("/products/:id", deleteProduct, webserver.RequireRoles(domain.RoleAdmin))
}

func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)

	sortField := strings.TrimSpace(c.QueryParam("sort"))
	order := strings.ToUpper(strings.TrimSpace(c.QueryParam("order")))
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	// whitelist allowed sort columns to avoid SQL injection
	allowed := map[string]string{
		"name":       "name",
		"net_stock":  "net_stock",
		"netStock":   "net_stock",
		"quantity":   "quantity",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	sortCol, found := allowed[sortField]
	if !found {
		sortCol = "created_at"
	}

	db := likeAny(GetDB(c).Model(&domain.Product{}), c.QueryParam("q"), "name")
	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		db = db.Where("name = ?", name)
	}
	switch c.QueryParam("stockFilter") {
	case "in-stock":
		db = db.Where("net_stock > 0")
	case "out-of-stock":
		db = db.Where("net_stock <= 0")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	var rows []domain.Product
	if err := db.Order(sortCol + " " + order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func findProduct(c echo.Context) (*domain.Product, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	} else if err != nil {
		return nil, fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query product", err.Error())
	}
	return &p, nil
}

func getProduct(c echo.Context) error {
	p, err := findProduct(c)
	if p == nil {
		return err
	}
	return ok(c, p)
}

func bindProduct(c echo.Context) (*productPayload, error) {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if err := c.Validate(&payload); err != nil {
		return nil, handleValidationError(c, err)
	}
	return &payload, nil
}

func (p *productPayload) apply(prod *domain.Product) {
	prod.Name = p.Name
	prod.Unit = strings.TrimSpace(p.Unit)
	prod.Sizes = p.Sizes
	prod.Quantity = p.Quantity
	prod.MaterialPacked = p.MaterialPacked
	prod.MaterialDispatch = p.MaterialDispatch
	prod.Images = p.Images
	prod.RecomputeNetStock()
}

func createProduct(c echo.Context) error {
	payload, err := bindProduct(c)
	if payload == nil {
		return err
	}
	var n int64
	GetDB(c).Model(&domain.Product{}).Where("name = ?", payload.Name).Count(&n)
	if n > 0 {
		return fail(c, http.StatusConflict, "DUPLICATE_NAME", "A product with this name already exists", nil)
	}

	now := time.Now()
	p := domain.Product{ID: common.UUIDint64(), CreatedAt: now, UpdatedAt: now}
	payload.apply(&p)
	if err := GetDB(c).Create(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create product", err.Error())
	}
	return ok(c, p)
}

func updateProduct(c echo.Context) error {
	p, err := findProduct(c)
	if p == nil {
		return err
	}
	payload, err := bindProduct(c)
	if payload == nil {
		return err
	}
	var n int64
	GetDB(c).Model(&domain.Product{}).Where("name = ? AND id <> ?", payload.Name, p.ID).Count(&n)
	if n > 0 {
		return fail(c, http.StatusConflict, "DUPLICATE_NAME", "A product with this name already exists", nil)
	}
	payload.apply(p)
	p.UpdatedAt = time.Now()
	if err := GetDB(c).Save(p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product", err.Error())
	}
	return ok(c, p)
}

func deleteProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Product{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete product", err.Error())
	}
	return ok(c, map[string]interface{}{"id": strconv.FormatInt(id, 10)})
}
