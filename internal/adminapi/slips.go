package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/internal/workflow"
)

func registerSlipRoutes() {
	webserver.ApiPOST("/slips/production", createShapeSlip)
	webserver.ApiPOST("/slips/dana", createDanaSlip)
	webserver.ApiPOST("/slips/dispatch", createDispatchSlip)
	webserver.ApiPOST("/slips/packaging", createPackagingSlip)
	webserver.ApiGET("/slips/:kind/:id", getSlip)
}

func missingOrder(c echo.Context) error {
	return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid slip form", map[string]string{"orderId": "required"})
}

func createShapeSlip(c echo.Context) error {
	var req workflow.ShapeSlipRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse slip", err.Error())
	}
	if req.OrderID == 0 {
		return missingOrder(c)
	}
	slip, err := GetAppContext(c).Fulfillment().CreateShapeSlip(opCtx(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, slip)
}

func createDanaSlip(c echo.Context) error {
	var req workflow.DanaSlipRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse slip", err.Error())
	}
	if req.OrderID == 0 {
		return missingOrder(c)
	}
	slip, err := GetAppContext(c).Fulfillment().CreateDanaSlip(opCtx(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, slip)
}

func createDispatchSlip(c echo.Context) error {
	var req workflow.DispatchSlipRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse slip", err.Error())
	}
	if req.OrderID == 0 {
		return missingOrder(c)
	}
	slip, err := GetAppContext(c).Fulfillment().CreateDispatchSlip(opCtx(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, slip)
}

func createPackagingSlip(c echo.Context) error {
	var req workflow.PackagingSlipRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse slip", err.Error())
	}
	if req.OrderID == 0 {
		return missingOrder(c)
	}
	slip, err := GetAppContext(c).Fulfillment().CreatePackagingSlip(opCtx(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, slip)
}

func getSlip(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid slip ID", nil)
	}
	var slip interface{}
	switch c.Param("kind") {
	case domain.SlipKindShape:
		slip = &domain.ShapeSlip{}
	case domain.SlipKindDana:
		slip = &domain.DanaSlip{}
	case domain.SlipKindDispatch:
		slip = &domain.DispatchSlip{}
	case domain.SlipKindPackaging:
		slip = &domain.PackagingSlip{}
	default:
		return fail(c, http.StatusNotFound, "SLIP_NOT_FOUND", "Unknown slip kind", nil)
	}
	if err := GetDB(c).Where("id = ?", id).First(slip).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SLIP_NOT_FOUND", "Slip not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query slip", err.Error())
	}
	return ok(c, slip)
}
