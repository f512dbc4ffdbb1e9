package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/workflow"
)

const (
	apiPrefix = "/api/v1"

	// LoginPath is where the operator is sent after a 401
	LoginPath = "/login"

	idempotencyHeader = "Idempotency-Key"
)

// ErrUnauthorized is returned for any 401; the stored token is already cleared
var ErrUnauthorized = errors.New("session expired, please log in again")

// APIError is a non-2xx response decoded from the error envelope
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	baseURL        string
	hc             *http.Client
	store          SessionStore
	timeout        time.Duration
	onUnauthorized func(loginPath string)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUnauthorizedHook is called with LoginPath whenever a request gets a 401
func WithUnauthorizedHook(fn func(loginPath string)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func New(baseURL string, store SessionStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      http.DefaultClient,
		store:   store,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the session store backing the client
func (c *Client) Store() SessionStore {
	return c.store
}

type envelope struct {
	Data     jsoniter.RawMessage `json:"data"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// call performs one API request and decodes the data member into out
func (c *Client) call(ctx context.Context, method, path string, query map[string]interface{}, body interface{}, out interface{}, headers ...string) (*envelope, error) {
	h := map[string]interface{}{"Accept": "application/json"}
	if token := c.store.Token(); token != "" {
		h["Authorization"] = "Bearer " + token
	}
	for i := 0; i+1 < len(headers); i += 2 {
		h[headers[i]] = headers[i+1]
	}

	var (
		code int
		raw  []byte
	)
	df := gout.New(c.hc).
		SetMethod(method).
		SetURL(c.baseURL + apiPrefix + path).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(gout.H(h))
	if len(query) > 0 {
		df = df.SetQuery(gout.H(query))
	}
	if body != nil {
		df = df.SetJSON(body)
	}
	if err := df.BindBody(&raw).Code(&code).Do(); err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}

	if code == http.StatusUnauthorized {
		if err := c.store.ClearToken(); err != nil {
			zap.L().Warn("clear token", zap.String("namespace", "client"), zap.Error(err))
		}
		if c.onUnauthorized != nil {
			c.onUnauthorized(LoginPath)
		}
		return nil, ErrUnauthorized
	}
	if code < 200 || code > 299 {
		apiErr := &APIError{Status: code}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrapf(err, "decode %s %s", method, path)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, errors.Wrapf(err, "decode %s %s", method, path)
		}
	}
	return &env, nil
}

// LoginResult is the body of a successful login
type LoginResult struct {
	Token    string    `json:"token"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	Expires  time.Time `json:"expires"`
}

// Login authenticates and stores the token
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var res LoginResult
	_, err := c.call(ctx, http.MethodPost, "/auth/login", nil,
		map[string]string{"username": username, "password": password}, &res)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetToken(res.Token); err != nil {
		return nil, errors.Wrap(err, "store token")
	}
	return &res, nil
}

func (c *Client) Logout() error {
	return c.store.ClearToken()
}

func (c *Client) Me(ctx context.Context) (*domain.SysOpr, error) {
	var opr domain.SysOpr
	if _, err := c.call(ctx, http.MethodGet, "/auth/me", nil, nil, &opr); err != nil {
		return nil, err
	}
	return &opr, nil
}

// OrderRow is an order with its computed row action
type OrderRow struct {
	domain.Order
	Stock  int             `json:"stock"`
	Action workflow.Action `json:"action"`
}

// OrderGroup is one purchase order of the grouped order list
type OrderGroup struct {
	PONumber     string     `json:"po_number"`
	CustomerName string     `json:"customer_name"`
	Orders       []OrderRow `json:"orders"`
}

// ListOptions filters the order list. Empty StockFilter and zero Page fall
// back to the values stored in the session.
type ListOptions struct {
	Query       string
	StockFilter string
	Page        int
	PerPage     int
	From, To    string
}

// Page of results with its total
type Page[T any] struct {
	Items    []T
	Total    int64
	Page     int
	PageSize int
}

func (o ListOptions) query() map[string]interface{} {
	q := map[string]interface{}{}
	if o.Query != "" {
		q["q"] = o.Query
	}
	if o.StockFilter != "" && o.StockFilter != StockFilterAll {
		q["stockFilter"] = o.StockFilter
	}
	if o.Page > 0 {
		q["page"] = o.Page
	}
	if o.PerPage > 0 {
		q["perPage"] = o.PerPage
	}
	if o.From != "" {
		q["from"] = o.From
	}
	if o.To != "" {
		q["to"] = o.To
	}
	return q
}

// ListOrders fetches the grouped order list and remembers the filter and page
func (c *Client) ListOrders(ctx context.Context, opts ListOptions) (*Page[OrderGroup], error) {
	if opts.StockFilter == "" {
		opts.StockFilter = c.store.StockFilter()
	}
	if opts.Page == 0 {
		opts.Page = c.store.CurrentPage()
	}
	var groups []OrderGroup
	env, err := c.call(ctx, http.MethodGet, "/orders", opts.query(), nil, &groups)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetStockFilter(opts.StockFilter); err != nil {
		return nil, err
	}
	if err := c.store.SetCurrentPage(opts.Page); err != nil {
		return nil, err
	}
	return &Page[OrderGroup]{Items: groups, Total: env.Total, Page: env.Page, PageSize: env.PageSize}, nil
}

func (c *Client) GetOrder(ctx context.Context, id int64) (*OrderRow, error) {
	var row OrderRow
	if _, err := c.call(ctx, http.MethodGet, "/orders/"+strconv.FormatInt(id, 10), nil, nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// OrderAction is the row action with the slip modal it opens
type OrderAction struct {
	Action workflow.Action  `json:"action"`
	Layout workflow.Layout  `json:"layout"`
	Title  string           `json:"title"`
	Forms  workflow.Payload `json:"forms"`
}

func (c *Client) GetOrderAction(ctx context.Context, id int64) (*OrderAction, error) {
	var act OrderAction
	if _, err := c.call(ctx, http.MethodGet, "/orders/"+strconv.FormatInt(id, 10)+"/action", nil, nil, &act); err != nil {
		return nil, err
	}
	return &act, nil
}

// DashboardQuery filters a department dashboard; Status maps to the
// dashboard's own status parameter
type DashboardQuery struct {
	Query   string
	Status  string
	From    string
	To      string
	Page    int
	PerPage int
}

func (c *Client) dashboard(ctx context.Context, name, statusParam string, dq DashboardQuery) (*Page[OrderRow], error) {
	q := ListOptions{Query: dq.Query, Page: dq.Page, PerPage: dq.PerPage, From: dq.From, To: dq.To}.query()
	if dq.Status != "" {
		q[statusParam] = dq.Status
	}
	var rows []OrderRow
	env, err := c.call(ctx, http.MethodGet, "/orders/"+name+"-dashboard", q, nil, &rows)
	if err != nil {
		return nil, err
	}
	return &Page[OrderRow]{Items: rows, Total: env.Total, Page: env.Page, PageSize: env.PageSize}, nil
}

func (c *Client) ProductionDashboard(ctx context.Context, q DashboardQuery) (*Page[OrderRow], error) {
	return c.dashboard(ctx, "production", "status", q)
}

func (c *Client) PackagingDashboard(ctx context.Context, q DashboardQuery) (*Page[OrderRow], error) {
	return c.dashboard(ctx, "packaging", "packagingStatus", q)
}

func (c *Client) DispatchDashboard(ctx context.Context, q DashboardQuery) (*Page[OrderRow], error) {
	return c.dashboard(ctx, "dispatch", "dispatchStatus", q)
}

func (c *Client) putStatus(ctx context.Context, path, key, status string) (*domain.Order, error) {
	var order domain.Order
	if _, err := c.call(ctx, http.MethodPut, path, nil, map[string]string{key: status}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UpdateStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	return c.putStatus(ctx, "/orders/"+strconv.FormatInt(orderID, 10)+"/status", "status", status)
}

func (c *Client) UpdatePackagingStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	return c.putStatus(ctx, "/orders/packaging-status/"+strconv.FormatInt(orderID, 10), "packagingStatus", status)
}

func (c *Client) UpdateDispatchStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	return c.putStatus(ctx, "/orders/dispatch-status/"+strconv.FormatInt(orderID, 10), "dispatchStatus", status)
}

// AdvanceResult is the server side outcome of a whole workflow submission
type AdvanceResult struct {
	Result   *workflow.Result `json:"result"`
	Order    *domain.Order    `json:"order"`
	Replayed bool             `json:"replayed"`
}

// AdvanceWorkflow submits a slip modal to the server, which runs the whole
// branch in one transaction. An empty key gets a fresh one; reuse a key to
// retry safely.
func (c *Client) AdvanceWorkflow(ctx context.Context, key string, sub workflow.Submission) (*AdvanceResult, error) {
	if key == "" {
		key = uuid.NewString()
	}
	body := map[string]interface{}{
		"type":    sub.Type,
		"orderId": strconv.FormatInt(sub.Order.ID, 10),
		"payload": sub.Payload,
	}
	var res AdvanceResult
	if _, err := c.call(ctx, http.MethodPost, "/workflow/advance", nil, body, &res, idempotencyHeader, key); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if _, err := c.call(ctx, http.MethodGet, "/products/"+strconv.FormatInt(id, 10), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// slipRef is the part of a created slip the workflow needs
type slipRef struct {
	ID int64 `json:"id,string"`
}

func (c *Client) createSlip(ctx context.Context, kind string, req interface{}) (int64, error) {
	var ref slipRef
	if _, err := c.call(ctx, http.MethodPost, "/slips/"+kind, nil, req, &ref); err != nil {
		return 0, err
	}
	return ref.ID, nil
}

func (c *Client) CreateShapeSlip(ctx context.Context, req workflow.ShapeSlipRequest) (int64, error) {
	return c.createSlip(ctx, domain.SlipKindShape, req)
}

func (c *Client) CreateDanaSlip(ctx context.Context, req workflow.DanaSlipRequest) (int64, error) {
	return c.createSlip(ctx, domain.SlipKindDana, req)
}

func (c *Client) CreateDispatchSlip(ctx context.Context, req workflow.DispatchSlipRequest) (int64, error) {
	return c.createSlip(ctx, domain.SlipKindDispatch, req)
}

func (c *Client) CreatePackagingSlip(ctx context.Context, req workflow.PackagingSlipRequest) (int64, error) {
	return c.createSlip(ctx, domain.SlipKindPackaging, req)
}

func (c *Client) SendToProduction(ctx context.Context, req workflow.ProductionRequest) error {
	_, err := c.call(ctx, http.MethodPut, "/orders/send-to-production/"+strconv.FormatInt(req.OrderID, 10), nil, req, nil)
	return err
}

func (c *Client) SendToPackaging(ctx context.Context, req workflow.PackagingRequest) error {
	_, err := c.call(ctx, http.MethodPost, "/orders/send-to-packaging", nil, req, nil)
	return err
}

func (c *Client) SendToDispatch(ctx context.Context, req workflow.DispatchRequest) error {
	_, err := c.call(ctx, http.MethodPost, "/orders/send-to-dispatch", nil, req, nil)
	return err
}

var _ workflow.Gateway = (*Client)(nil)
