package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/internal/workflow"
)

// IdempotencyHeader lets a client retry an advance without repeating it
const IdempotencyHeader = "Idempotency-Key"

type advancePayload struct {
	Type    string                 `json:"type" validate:"required"`
	OrderID int64                  `json:"orderId,string" validate:"required"`
	Payload map[string]interface{} `json:"payload"`
}

func registerWorkflowRoutes() {
	webserver.ApiPOST("/workflow/advance", advanceWorkflow)
}

// advanceWorkflow runs a whole slip modal submission server side in one transaction
func advanceWorkflow(c echo.Context) error {
	var payload advancePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	slipType, err := workflow.ParseSlipType(payload.Type)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_SLIP_TYPE", err.Error(), nil)
	}
	forms, err := workflow.DecodePayload(payload.Payload)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to decode slip forms", err.Error())
	}

	key := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader))
	if len(key) > 64 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Idempotency key too long", nil)
	}
	res, err := GetAppContext(c).Fulfillment().Advance(opCtx(c), key, workflow.Submission{
		Type:    slipType,
		Order:   domain.Order{ID: payload.OrderID},
		Payload: forms,
	})
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, res)
}
