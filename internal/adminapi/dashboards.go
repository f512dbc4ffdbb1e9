package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/internal/workflow"
)

func registerDashboardRoutes() {
	webserver.ApiGET("/orders/production-dashboard", productionDashboard)
	webserver.ApiGET("/orders/packaging-dashboard", packagingDashboard)
	webserver.ApiGET("/orders/dispatch-dashboard", dispatchDashboard)
}

// dashboardQuery applies the filters every dashboard shares
func dashboardQuery(c echo.Context) (*gorm.DB, error) {
	db := GetDB(c).Model(&domain.Order{})
	db = likeAny(db, c.QueryParam("q"), "customer_name", "po_number", "short_id", "product_name")
	from, to, err := parseDateRange(c)
	if err != nil {
		return nil, err
	}
	if !from.IsZero() {
		db = db.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		db = db.Where("created_at <= ?", to)
	}
	return db, nil
}

// statusFilter narrows on an enum column; unknown values are rejected
func statusFilter(db *gorm.DB, column, value string, enum []string) (*gorm.DB, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "all" {
		return db, true
	}
	for _, v := range enum {
		if v == value {
			return db.Where(column+" = ?", value), true
		}
	}
	return db, false
}

func renderDashboard(c echo.Context, db *gorm.DB) error {
	page, pageSize := parsePagination(c)
	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}
	var orders []domain.Order
	if err := db.Order("updated_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&orders).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}
	rows, err := withActions(c, orders)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query stock", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func productionDashboard(c echo.Context) error {
	db, err := dashboardQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse date filter", err.Error())
	}
	db = db.Where("stage IN ?", []string{
		string(workflow.StageProduction),
		string(workflow.StagePackaging),
		string(workflow.StageDispatch),
		string(workflow.StageDispatched),
	}).Where("sent_to_production IS NOT NULL AND sent_to_production <> ?", "[]")

	db, valid := statusFilter(db, "status", c.QueryParam("status"), domain.ProductionStatuses)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_STATUS", "Unknown production status", nil)
	}
	return renderDashboard(c, db)
}

func packagingDashboard(c echo.Context) error {
	db, err := dashboardQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse date filter", err.Error())
	}
	db = db.Where("ready_for_packaging = ?", true)

	db, valid := statusFilter(db, "packaging_status", c.QueryParam("packagingStatus"), domain.PackagingStatuses)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_STATUS", "Unknown packaging status", nil)
	}
	return renderDashboard(c, db)
}

func dispatchDashboard(c echo.Context) error {
	db, err := dashboardQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse date filter", err.Error())
	}
	db = db.Where("stage IN ?", []string{string(workflow.StageDispatch), string(workflow.StageDispatched)})

	db, valid := statusFilter(db, "dispatch_status", c.QueryParam("dispatchStatus"), domain.DispatchStatuses)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_STATUS", "Unknown dispatch status", nil)
	}
	return renderDashboard(c, db)
}
