package adminapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/talkincode/packflow/internal/app"
	"github.com/talkincode/packflow/internal/fulfillment"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/internal/workflow"
)

// Init registers every admin API route on the current web server
func Init() {
	registerAuthRoutes()
	registerOrderRoutes()
	registerSlipRoutes()
	registerWorkflowRoutes()
	registerDashboardRoutes()
	registerProductRoutes()
	registerReportRoutes()
	registerOprLogRoutes()
	registerSystemRoutes()
}

func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB().WithContext(c.Request().Context())
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"data": data})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":     data,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	return c.JSON(status, body)
}

// parsePagination reads page and pageSize (or perPage) with sane bounds
func parsePagination(c echo.Context) (int, int) {
	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	raw := c.QueryParam("pageSize")
	if raw == "" {
		raw = c.QueryParam("perPage")
	}
	if ps, err := strconv.Atoi(raw); err == nil && ps > 0 && ps <= 500 {
		pageSize = ps
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// parseDateRange reads free-form from/to query values. A date-only "to"
// covers the whole day.
func parseDateRange(c echo.Context) (from, to time.Time, err error) {
	if s := strings.TrimSpace(c.QueryParam("from")); s != "" {
		if from, err = dateparse.ParseLocal(s); err != nil {
			return
		}
	}
	if s := strings.TrimSpace(c.QueryParam("to")); s != "" {
		if to, err = dateparse.ParseLocal(s); err != nil {
			return
		}
		if to.Hour() == 0 && to.Minute() == 0 && to.Second() == 0 {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return
}

// likeAny adds a case-insensitive OR match over columns
func likeAny(db *gorm.DB, q string, columns ...string) *gorm.DB {
	q = strings.TrimSpace(q)
	if q == "" {
		return db
	}
	conds := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	if strings.EqualFold(db.Dialector.Name(), "postgres") {
		for i, col := range columns {
			conds[i] = col + " ILIKE ?"
			args[i] = "%" + q + "%"
		}
	} else {
		for i, col := range columns {
			conds[i] = "LOWER(" + col + ") LIKE ?"
			args[i] = "%" + strings.ToLower(q) + "%"
		}
	}
	return db.Where(strings.Join(conds, " OR "), args...)
}

// opCtx carries the authenticated operator into service calls
func opCtx(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if claims := webserver.CurrentOpr(c); claims != nil {
		ctx = fulfillment.WithOperator(ctx, claims.Username)
	}
	return ctx
}

func handleValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			msg := fe.Tag()
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}
			fields[fe.Field()] = msg
		}
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", fields)
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", err.Error())
}

// handleServiceError maps fulfillment and workflow errors to API responses
func handleServiceError(c echo.Context, err error) error {
	var details interface{}
	var serr *workflow.StepError
	if errors.As(err, &serr) {
		details = map[string]interface{}{"step": serr.Step, "completed": serr.Completed}
	}

	var verr *workflow.ValidationError
	var terr *workflow.TransitionError
	switch {
	case errors.As(err, &verr):
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid slip form", verr.Fields)
	case errors.Is(err, fulfillment.ErrOrderNotFound):
		return fail(c, http.StatusNotFound, "ORDER_NOT_FOUND", err.Error(), details)
	case errors.Is(err, fulfillment.ErrSlipNotFound):
		return fail(c, http.StatusNotFound, "SLIP_NOT_FOUND", err.Error(), details)
	case errors.Is(err, fulfillment.ErrAlreadySent):
		return fail(c, http.StatusConflict, "ALREADY_SENT", err.Error(), details)
	case errors.Is(err, fulfillment.ErrPathConflict):
		return fail(c, http.StatusConflict, "PATH_CONFLICT", err.Error(), details)
	case errors.Is(err, fulfillment.ErrKeyReused):
		return fail(c, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED", err.Error(), details)
	case errors.As(err, &terr):
		return fail(c, http.StatusConflict, "INVALID_TRANSITION", err.Error(), details)
	case errors.Is(err, fulfillment.ErrSectionNotRequired):
		return fail(c, http.StatusBadRequest, "SECTION_NOT_REQUIRED", err.Error(), details)
	case errors.Is(err, fulfillment.ErrInvalidStatus):
		return fail(c, http.StatusBadRequest, "INVALID_STATUS", err.Error(), details)
	case errors.Is(err, fulfillment.ErrNoOrders), errors.Is(err, workflow.ErrNoRequiredSection):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), details)
	}
	return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Workflow step failed", err.Error())
}
