package adminapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
)

func registerOprLogRoutes() {
	webserver.ApiGET("/system/opr-logs", listOprLogs, webserver.RequireRoles(domain.RoleAdmin))
}

func listOprLogs(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c).Model(&domain.SysOprLog{})
	if raw := c.QueryParam("order_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
		}
		db = db.Where("order_id = ?", id)
	}
	if name := c.QueryParam("opr_name"); name != "" {
		db = db.Where("opr_name = ?", name)
	}
	db = likeAny(db, c.QueryParam("q"), "opt_action", "opt_desc")
	from, to, err := parseDateRange(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse date filter", err.Error())
	}
	if !from.IsZero() {
		db = db.Where("opt_time >= ?", from)
	}
	if !to.IsZero() {
		db = db.Where("opt_time <= ?", to)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query logs", err.Error())
	}
	var rows []domain.SysOprLog
	if err := db.Order("opt_time DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query logs", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}
