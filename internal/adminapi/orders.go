package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/fulfillment"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/internal/workflow"
	"github.com/talkincode/packflow/pkg/common"
)

type orderPayload struct {
	CustomerName    string                  `json:"customer_name" validate:"required,max=200"`
	PONumber        string                  `json:"po_number" validate:"required,max=64"`
	ProductID       int64                   `json:"product_id,string"`
	ProductName     string                  `json:"product_name" validate:"required_without=ProductID,max=200"`
	Size            string                  `json:"size" validate:"max=64"`
	Quantity        int                     `json:"quantity" validate:"gte=1"`
	Price           decimal.Decimal         `json:"price"`
	Density         float64                 `json:"density" validate:"gte=0"`
	PackagingCharge decimal.Decimal         `json:"packaging_charge"`
	FreightTerms    string                  `json:"freight_terms" validate:"omitempty,oneof=paid to-pay included"`
	FreightAmount   decimal.Decimal         `json:"freight_amount"`
	Required        domain.RequiredSections `json:"requiredSections"`
	Remark          string                  `json:"remark" validate:"omitempty,max=500"`
}

type statusPayload struct {
	Status          string `json:"status"`
	PackagingStatus string `json:"packagingStatus"`
	DispatchStatus  string `json:"dispatchStatus"`
}

func (p statusPayload) value() string {
	for _, v := range []string{p.Status, p.PackagingStatus, p.DispatchStatus} {
		if v != "" {
			return v
		}
	}
	return ""
}

// orderRow is an order as listed, with its current row action
type orderRow struct {
	domain.Order
	Stock  int             `json:"stock"`
	Action workflow.Action `json:"action"`
}

// orderGroup is one purchase order in the grouped listing
type orderGroup struct {
	PONumber     string     `json:"po_number"`
	CustomerName string     `json:"customer_name"`
	Orders       []orderRow `json:"orders"`
}

func registerOrderRoutes() {
	webserver.ApiGET("/orders", listOrders)
	webserver.ApiGET("/orders/:id", getOrder)
	webserver.ApiGET("/orders/:id/action", getOrderAction)
	webserver.ApiGET("/orders/:id/slips", listOrderSlips)
	webserver.ApiPOST("/orders", createOrder, webserver.RequireRoles(domain.RoleSales))
	webserver.ApiPUT("/orders/:id", updateOrder, webserver.RequireRoles(domain.RoleSales))
	webserver.ApiDELETE("/orders/:id", deleteOrder, webserver.RequireRoles(domain.RoleAdmin))

	webserver.ApiPUT("/orders/send-to-production/:orderId", sendToProduction)
	webserver.ApiPOST("/orders/send-to-packaging", sendToPackaging)
	webserver.ApiPOST("/orders/send-to-dispatch", sendToDispatch)

	webserver.ApiPUT("/orders/:id/status", updateOrderStatus, webserver.RequireRoles(domain.RoleProduction))
	webserver.ApiPUT("/orders/packaging-status/:id", updatePackagingStatus, webserver.RequireRoles(domain.RolePackaging))
	webserver.ApiPUT("/orders/dispatch-status/:id", updateDispatchStatus, webserver.RequireRoles(domain.RoleDispatch))
}

// orderQuery applies the shared list filters; the product join backs the stock filter
func orderQuery(c echo.Context) (*gorm.DB, error) {
	db := GetDB(c).Table("pf_order").
		Joins(fulfillment.ProductJoin)
	db = likeAny(db, c.QueryParam("q"), "pf_order.customer_name", "pf_order.po_number", "pf_order.short_id")

	switch c.QueryParam("stockFilter") {
	case "in-stock":
		db = db.Where("COALESCE(pf_product.net_stock, 0) >= pf_order.quantity")
	case "out-of-stock":
		db = db.Where("COALESCE(pf_product.net_stock, 0) < pf_order.quantity")
	}

	from, to, err := parseDateRange(c)
	if err != nil {
		return nil, err
	}
	if !from.IsZero() {
		db = db.Where("pf_order.created_at >= ?", from)
	}
	if !to.IsZero() {
		db = db.Where("pf_order.created_at <= ?", to)
	}
	return db, nil
}

// withActions attaches stock and the row action to each order
func withActions(c echo.Context, orders []domain.Order) ([]orderRow, error) {
	stocks, err := GetAppContext(c).Fulfillment().Stocks(c.Request().Context(), orders)
	if err != nil {
		return nil, err
	}
	rows := make([]orderRow, len(orders))
	for i, o := range orders {
		stock := stocks[o.ID]
		rows[i] = orderRow{Order: o, Stock: stock, Action: workflow.Decide(o, stock)}
	}
	return rows, nil
}

// listOrders pages by purchase order number; each group holds all its matching lines
func listOrders(c echo.Context) error {
	page, pageSize := parsePagination(c)

	base, err := orderQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse date filter", err.Error())
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Distinct("pf_order.po_number").Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}

	var poNumbers []string
	if err := base.Session(&gorm.Session{}).
		Group("pf_order.po_number").
		Order("MAX(pf_order.created_at) DESC").
		Offset((page-1)*pageSize).Limit(pageSize).
		Pluck("pf_order.po_number", &poNumbers).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
	}

	groups := make([]orderGroup, 0, len(poNumbers))
	if len(poNumbers) > 0 {
		var orders []domain.Order
		if err := base.Session(&gorm.Session{}).
			Select("pf_order.*").
			Where("pf_order.po_number IN ?", poNumbers).
			Order("pf_order.created_at ASC").
			Find(&orders).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query orders", err.Error())
		}
		rows, err := withActions(c, orders)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query stock", err.Error())
		}
		byPO := map[string]*orderGroup{}
		for _, po := range poNumbers {
			groups = append(groups, orderGroup{PONumber: po})
			byPO[po] = &groups[len(groups)-1]
		}
		for _, r := range rows {
			g := byPO[r.PONumber]
			if g.CustomerName == "" {
				g.CustomerName = r.CustomerName
			}
			g.Orders = append(g.Orders, r)
		}
	}

	return paged(c, groups, total, page, pageSize)
}

func loadOrder(c echo.Context, param string) (*domain.Order, error) {
	id, err := parseIDParam(c, param)
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var order domain.Order
	if err := GetDB(c).Where("id = ?", id).First(&order).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(c, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found", nil)
	} else if err != nil {
		return nil, fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query order", err.Error())
	}
	return &order, nil
}

func getOrder(c echo.Context) error {
	order, err := loadOrder(c, "id")
	if order == nil {
		return err
	}
	rows, err := withActions(c, []domain.Order{*order})
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query stock", err.Error())
	}
	return ok(c, rows[0])
}

// getOrderAction returns the row action with the modal layout and pre-filled forms
func getOrderAction(c echo.Context) error {
	order, err := loadOrder(c, "id")
	if order == nil {
		return err
	}
	stock, err := GetAppContext(c).Fulfillment().Stock(c.Request().Context(), order)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query stock", err.Error())
	}
	action := workflow.Decide(*order, stock)
	resp := map[string]interface{}{"action": action}
	if layout, err := workflow.LayoutFor(*order, action.SlipType, stock); err == nil {
		resp["layout"] = layout
		resp["title"] = layout.Title()
		resp["forms"] = workflow.NewForms(*order, layout)
	}
	return ok(c, resp)
}

func listOrderSlips(c echo.Context) error {
	order, err := loadOrder(c, "id")
	if order == nil {
		return err
	}
	db := GetDB(c)
	var (
		shape     []domain.ShapeSlip
		dana      []domain.DanaSlip
		dispatch  []domain.DispatchSlip
		packaging []domain.PackagingSlip
	)
	for _, q := range []interface{}{&shape, &dana, &dispatch, &packaging} {
		if err := db.Where("order_id = ?", order.ID).Order("created_at ASC").Find(q).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query slips", err.Error())
		}
	}
	return ok(c, map[string]interface{}{
		domain.SlipKindShape:     shape,
		domain.SlipKindDana:      dana,
		domain.SlipKindDispatch:  dispatch,
		domain.SlipKindPackaging: packaging,
	})
}

func bindOrder(c echo.Context) (*orderPayload, error) {
	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse order", err.Error())
	}
	payload.CustomerName = strings.TrimSpace(payload.CustomerName)
	payload.PONumber = strings.TrimSpace(payload.PONumber)
	if err := c.Validate(&payload); err != nil {
		return nil, handleValidationError(c, err)
	}
	if payload.FreightTerms == "" {
		payload.FreightTerms = "included"
	}
	if payload.ProductID != 0 {
		var p domain.Product
		if err := GetDB(c).Where("id = ?", payload.ProductID).First(&p).Error; err != nil {
			return nil, fail(c, http.StatusBadRequest, "PRODUCT_NOT_FOUND", "Product not found", nil)
		}
		payload.ProductName = p.Name
	} else {
		// link a catalog product entered by name
		var p domain.Product
		if err := GetDB(c).Where("name = ?", payload.ProductName).First(&p).Error; err == nil {
			payload.ProductID = p.ID
		}
	}
	return &payload, nil
}

func (p *orderPayload) apply(o *domain.Order) {
	o.CustomerName = p.CustomerName
	o.PONumber = p.PONumber
	o.ProductID = p.ProductID
	o.ProductName = p.ProductName
	o.Size = p.Size
	o.Quantity = p.Quantity
	o.Price = p.Price
	o.Density = p.Density
	o.PackagingCharge = p.PackagingCharge
	o.FreightTerms = p.FreightTerms
	o.FreightAmount = p.FreightAmount
	o.Required = p.Required
	o.Remark = p.Remark
}

func createOrder(c echo.Context) error {
	payload, err := bindOrder(c)
	if payload == nil {
		return err
	}
	id := common.UUIDint64()
	now := time.Now()
	order := domain.Order{
		ID:              id,
		ShortID:         "ORD-" + strings.ToUpper(strconv.FormatInt(id, 36)),
		Stage:           string(workflow.StageCreated),
		Status:          domain.StatusPending,
		PackagingStatus: domain.PackagingUnpackaged,
		DispatchStatus:  domain.DispatchNotDispatched,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if claims := webserver.CurrentOpr(c); claims != nil {
		order.CreatedBy = claims.Username
	}
	payload.apply(&order)
	if err := GetDB(c).Create(&order).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create order", err.Error())
	}
	return ok(c, order)
}

// updateOrder edits commercial fields; orders already in the workflow are frozen
func updateOrder(c echo.Context) error {
	order, err := loadOrder(c, "id")
	if order == nil {
		return err
	}
	if workflow.ParseStage(order.Stage) != workflow.StageCreated {
		return fail(c, http.StatusConflict, "ORDER_IN_PROGRESS", "Order already entered the workflow", nil)
	}
	payload, err := bindOrder(c)
	if payload == nil {
		return err
	}
	payload.apply(order)
	order.UpdatedAt = time.Now()
	if err := GetDB(c).Save(order).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update order", err.Error())
	}
	return ok(c, order)
}

func deleteOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Order{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete order", err.Error())
	}
	return ok(c, map[string]interface{}{"id": strconv.FormatInt(id, 10)})
}

func sendToProduction(c echo.Context) error {
	id, err := parseIDParam(c, "orderId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var req workflow.ProductionRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	req.OrderID = id
	order, err := GetAppContext(c).Fulfillment().SendToProduction(opCtx(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, order)
}

func sendToPackaging(c echo.Context) error {
	var req workflow.PackagingRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if req.OrderID == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "orderId is required", nil)
	}
	order, err := GetAppContext(c).Fulfillment().SendToPackaging(opCtx(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, order)
}

func sendToDispatch(c echo.Context) error {
	var req workflow.DispatchRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	orders, err := GetAppContext(c).Fulfillment().SendToDispatch(opCtx(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, orders)
}

// bindStatus reads the order id and status value; bound is false once a
// response has been written
func bindStatus(c echo.Context) (id int64, status string, bound bool, err error) {
	id, perr := parseIDParam(c, "id")
	if perr != nil {
		return 0, "", false, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload statusPayload
	if berr := c.Bind(&payload); berr != nil {
		return 0, "", false, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse status", berr.Error())
	}
	return id, strings.TrimSpace(payload.value()), true, nil
}

func updateOrderStatus(c echo.Context) error {
	id, status, bound, err := bindStatus(c)
	if !bound {
		return err
	}
	order, err := GetAppContext(c).Fulfillment().UpdateStatus(opCtx(c), id, status)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, order)
}

func updatePackagingStatus(c echo.Context) error {
	id, status, bound, err := bindStatus(c)
	if !bound {
		return err
	}
	order, err := GetAppContext(c).Fulfillment().UpdatePackagingStatus(opCtx(c), id, status)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, order)
}

func updateDispatchStatus(c echo.Context) error {
	id, status, bound, err := bindStatus(c)
	if !bound {
		return err
	}
	order, err := GetAppContext(c).Fulfillment().UpdateDispatchStatus(opCtx(c), id, status)
	if err != nil {
		return handleServiceError(c, err)
	}
	return ok(c, order)
}
