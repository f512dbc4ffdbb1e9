package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/packflow/config"
	"github.com/talkincode/packflow/internal/app"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/webserver"
	"github.com/talkincode/packflow/pkg/common"
)

const testSecret = "adminapi-test-secret"

type testEnv struct {
	t   *testing.T
	app *app.Application
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	cfg := *config.DefaultAppConfig
	cfg.Web.Secret = testSecret
	a := app.NewApplication(&cfg)
	a.OverrideDB(db)
	require.NoError(t, a.MigrateDB(false))
	a.InitServices()
	t.Cleanup(a.Release)

	webserver.Init(&cfg, a)
	Init()
	return &testEnv{t: t, app: a}
}

func (e *testEnv) token(username, role string) string {
	tok, err := webserver.IssueToken(testSecret, username, role, time.Hour)
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, webserver.ApiPrefix+path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	webserver.Echo().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (e *testEnv) seedOpr(username, password, role, status string) {
	hash, err := common.HashPassword(password)
	require.NoError(e.t, err)
	require.NoError(e.t, e.app.DB().Create(&domain.SysOpr{
		ID:       common.UUIDint64(),
		Username: username,
		Password: hash,
		Role:     role,
		Status:   status,
	}).Error)
}

func dataOf(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return data
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpr("meera", "secret1", domain.RoleSales, common.ENABLED)
	env.seedOpr("gone", "secret1", domain.RoleSales, common.DISABLED)

	rec, body := env.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "meera", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataOf(t, body)
	assert.Equal(t, "sales", data["role"])
	claims, err := webserver.ParseToken(testSecret, data["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "meera", claims.Username)

	rec, body = env.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "meera", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])

	rec, _ = env.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "gone", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = env.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "meera"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestPackagingBranchEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	sales := env.token("meera", domain.RoleSales)

	rec, body := env.do(http.MethodPost, "/products", sales, map[string]interface{}{
		"name": "EPS Corner Block", "unit": "pcs", "quantity": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	product := dataOf(t, body)
	assert.EqualValues(t, 100, product["netStock"])

	rec, body = env.do(http.MethodPost, "/orders", sales, map[string]interface{}{
		"customer_name":    "Acme Foods",
		"po_number":        "PO-77",
		"product_id":       product["id"],
		"quantity":         5,
		"price":            "12.50",
		"requiredSections": map[string]bool{"shapeMoulding": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order := dataOf(t, body)
	orderID := order["id"].(string)
	assert.True(t, strings.HasPrefix(order["short_id"].(string), "ORD-"))
	assert.Equal(t, "EPS Corner Block", order["product_name"])

	rec, body = env.do(http.MethodGet, "/orders?stockFilter=in-stock", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
	groups := body["data"].([]interface{})
	require.Len(t, groups, 1)
	group := groups[0].(map[string]interface{})
	assert.Equal(t, "PO-77", group["po_number"])
	row := group["orders"].([]interface{})[0].(map[string]interface{})
	action := row["action"].(map[string]interface{})
	assert.Equal(t, "send-to-packaging", action["kind"])
	assert.Equal(t, false, action["disabled"])

	rec, body = env.do(http.MethodGet, "/orders?stockFilter=out-of-stock", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["total"])

	rec, body = env.do(http.MethodGet, "/orders/"+orderID+"/action", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "packaging", dataOf(t, body)["layout"])

	advance := map[string]interface{}{
		"type":    "packaging",
		"orderId": orderID,
		"payload": map[string]interface{}{
			"packagingFormData": map[string]interface{}{
				"productName": "EPS Corner Block",
				"size":        "100x100",
				"quantity":    "5",
				"weight":      2.5,
			},
		},
	}
	rec, body = env.do(http.MethodPost, "/workflow/advance", sales, advance, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := dataOf(t, body)
	assert.Equal(t, false, res["replayed"])
	assert.Len(t, res["result"].(map[string]interface{})["steps"], 2)
	assert.Equal(t, true, res["order"].(map[string]interface{})["readyForPackaging"])

	rec, body = env.do(http.MethodPost, "/workflow/advance", sales, advance, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, dataOf(t, body)["replayed"])

	var slips int64
	env.app.DB().Model(&domain.PackagingSlip{}).Count(&slips)
	assert.Equal(t, int64(1), slips)

	rec, body = env.do(http.MethodPost, "/orders/send-to-packaging", sales, map[string]interface{}{"orderId": orderID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_SENT", body["code"])

	rec, body = env.do(http.MethodGet, "/orders/packaging-dashboard?packagingStatus=unpackaged", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, body = env.do(http.MethodGet, "/orders/packaging-dashboard?packagingStatus=bogus", sales, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS", body["code"])

	rec, _ = env.do(http.MethodPut, "/orders/"+orderID, sales, map[string]interface{}{
		"customer_name": "Acme Foods", "po_number": "PO-77", "product_name": "x", "quantity": 9,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = env.do(http.MethodGet, "/orders/"+orderID+"/slips", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, dataOf(t, body)["packaging"], 1)
}

func TestStatusRoutesEnforceRoles(t *testing.T) {
	env := newTestEnv(t)
	order := domain.Order{ID: 9001, ShortID: "ORD-9001", PONumber: "PO-1", Quantity: 3}
	require.NoError(t, env.app.DB().Create(&order).Error)

	rec, body := env.do(http.MethodPut, "/orders/9001/status", env.token("meera", domain.RoleSales), map[string]string{"status": "processed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", body["code"])

	prod := env.token("ravi", domain.RoleProduction)
	rec, body = env.do(http.MethodPut, "/orders/9001/status", prod, map[string]string{"status": "processed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "processed", dataOf(t, body)["status"])

	rec, body = env.do(http.MethodPut, "/orders/9001/status", prod, map[string]string{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS", body["code"])

	rec, _ = env.do(http.MethodPut, "/orders/dispatch-status/9001", env.token("dev", domain.RoleDispatch), map[string]string{"dispatchStatus": "ready to dispatch"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(http.MethodPut, "/orders/9999/status", prod, map[string]string{"status": "processed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", body["code"])
}

func TestSlipValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token("ravi", domain.RoleProduction)

	rec, body := env.do(http.MethodPost, "/slips/dispatch", tok, map[string]interface{}{"row": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	rec, _ = env.do(http.MethodGet, "/slips/unknown/1", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	orders := []domain.Order{
		{ID: 1, ShortID: "ORD-1", PONumber: "PO-1", CustomerName: "Acme", Quantity: 10, Stage: "dispatch", DispatchStatus: "ready to dispatch", CreatedAt: now},
		{ID: 2, ShortID: "ORD-2", PONumber: "PO-2", CustomerName: "Beta", Quantity: 30, Stage: "dispatched", DispatchStatus: "dispatched", DispatchedAt: &now, CreatedAt: now},
		{ID: 3, ShortID: "ORD-3", PONumber: "PO-3", CustomerName: "Gamma", Quantity: 20, Stage: "production", CreatedAt: now},
	}
	require.NoError(t, env.app.DB().Create(&orders).Error)
	tok := env.token("admin", domain.RoleAdmin)

	rec, _ := env.do(http.MethodGet, "/reports/dispatch.csv", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Order,PO Number,Customer"))
	assert.Contains(t, lines[1], "Ready To Dispatch")

	rec, _ = env.do(http.MethodGet, "/reports/dispatch.xlsx", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec, body := env.do(http.MethodGet, "/reports/summary", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataOf(t, body)
	assert.EqualValues(t, 3, data["orders"])
	stages := data["stages"].(map[string]interface{})
	assert.EqualValues(t, 1, stages["dispatch"])
	assert.EqualValues(t, 1, stages["dispatched"])
	assert.EqualValues(t, 1, stages["production"])
	quantity := data["quantity"].(map[string]interface{})
	assert.EqualValues(t, 60, quantity["sum"])
	assert.EqualValues(t, 20, quantity["median"])
}

func TestSystemJobs(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token("admin", domain.RoleAdmin)

	rec, body := env.do(http.MethodGet, "/system/jobs", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 3)

	require.NoError(t, env.app.DB().Create(&domain.Product{ID: 5, Name: "Drift", Quantity: 4, NetStock: 40}).Error)
	rec, _ = env.do(http.MethodPost, "/system/jobs/reconcile-stock/run", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	var p domain.Product
	require.NoError(t, env.app.DB().First(&p, 5).Error)
	assert.Equal(t, 4, p.NetStock)

	rec, body = env.do(http.MethodPost, "/system/jobs/nope/run", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", body["code"])

	rec, _ = env.do(http.MethodGet, "/system/jobs", env.token("ravi", domain.RoleProduction), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = env.do(http.MethodGet, "/system/metrics/packflow_workflow_advance", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "packflow_workflow_advance", dataOf(t, body)["name"])
}

func TestStockResolvedByProductName(t *testing.T) {
	env := newTestEnv(t)
	sales := env.token("meera", domain.RoleSales)
	require.NoError(t, env.app.DB().Create(&domain.Product{ID: 70, Name: "EPS Block", Quantity: 100, NetStock: 100}).Error)
	legacy := domain.Order{
		ID: 7001, ShortID: "ORD-7001", PONumber: "PO-9", CustomerName: "Acme",
		ProductName: "EPS Block", Quantity: 50,
		Required: domain.RequiredSections{ShapeMoulding: true},
	}
	require.NoError(t, env.app.DB().Create(&legacy).Error)

	rec, body := env.do(http.MethodGet, "/orders", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	row := body["data"].([]interface{})[0].(map[string]interface{})["orders"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, 100, row["stock"])
	listed := row["action"].(map[string]interface{})
	assert.Equal(t, "send-to-packaging", listed["kind"])

	rec, body = env.do(http.MethodGet, "/orders/7001/action", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	single := dataOf(t, body)
	assert.Equal(t, listed["kind"], single["action"].(map[string]interface{})["kind"])
	assert.Equal(t, "packaging", single["layout"])

	rec, body = env.do(http.MethodGet, "/orders?stockFilter=in-stock", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
	rec, body = env.do(http.MethodGet, "/orders?stockFilter=out-of-stock", sales, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["total"])

	rec, body = env.do(http.MethodPost, "/orders", sales, map[string]interface{}{
		"customer_name": "Beta", "po_number": "PO-10", "product_name": "EPS Block", "quantity": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "70", dataOf(t, body)["product_id"])
}

func TestProductRenameRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	sales := env.token("meera", domain.RoleSales)
	require.NoError(t, env.app.DB().Create(&[]domain.Product{
		{ID: 1, Name: "EPS Block"},
		{ID: 2, Name: "EPS Sheet"},
	}).Error)

	rec, body := env.do(http.MethodPut, "/products/2", sales, map[string]interface{}{"name": "EPS Block"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_NAME", body["code"])

	rec, _ = env.do(http.MethodPut, "/products/2", sales, map[string]interface{}{"name": "EPS Sheet", "quantity": 3})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestProductionAndDispatchDashboards(t *testing.T) {
	env := newTestEnv(t)
	orders := []domain.Order{
		{ID: 1, ShortID: "ORD-1", PONumber: "PO-1", Quantity: 1, Stage: "production",
			SentTo: domain.SentTo{Production: domain.SectionList{domain.SectionPreExpander}},
			Status: domain.StatusInProcess, DispatchStatus: domain.DispatchNotDispatched},
		{ID: 2, ShortID: "ORD-2", PONumber: "PO-2", Quantity: 1, Stage: "dispatch",
			SentTo: domain.SentTo{Production: domain.SectionList{domain.SectionShapeMoulding}},
			Status: domain.StatusProcessed, DispatchStatus: domain.DispatchReady},
		{ID: 3, ShortID: "ORD-3", PONumber: "PO-3", Quantity: 1, Stage: "created",
			Status: domain.StatusPending, DispatchStatus: domain.DispatchNotDispatched},
		{ID: 4, ShortID: "ORD-4", PONumber: "PO-4", Quantity: 1, Stage: "dispatched",
			SentTo: domain.SentTo{Dispatch: domain.SectionList{domain.SectionHandMoulding}},
			Status: domain.StatusPending, DispatchStatus: domain.DispatchDispatched},
	}
	require.NoError(t, env.app.DB().Create(&orders).Error)
	tok := env.token("admin", domain.RoleAdmin)

	cases := []struct {
		path  string
		total int
	}{
		{"/orders/production-dashboard", 2},
		{"/orders/production-dashboard?status=all", 2},
		{"/orders/production-dashboard?status=processed", 1},
		{"/orders/production-dashboard?status=in%20process", 1},
		{"/orders/production-dashboard?status=pending", 0},
		{"/orders/dispatch-dashboard", 2},
		{"/orders/dispatch-dashboard?dispatchStatus=dispatched", 1},
		{"/orders/dispatch-dashboard?dispatchStatus=ready%20to%20dispatch", 1},
		{"/orders/dispatch-dashboard?dispatchStatus=not%20dispatched", 0},
	}
	for _, tc := range cases {
		rec, body := env.do(http.MethodGet, tc.path, tok, nil)
		require.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.EqualValues(t, tc.total, body["total"], tc.path)
	}

	rec, body := env.do(http.MethodGet, "/orders/production-dashboard?status=done", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS", body["code"])
	rec, body = env.do(http.MethodGet, "/orders/dispatch-dashboard?dispatchStatus=lost", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS", body["code"])
}
