package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/workflow"
	"github.com/talkincode/packflow/pkg/common"
	"github.com/talkincode/packflow/pkg/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var newID = common.UUIDint64

// unit is one transaction's worth of fulfillment work. It implements
// workflow.Gateway so the orchestrator's branches run against the database.
type unit struct {
	repo     Repository
	operator string
	events   []workflow.Event
}

var _ workflow.Gateway = (*unit)(nil)

func (u *unit) emit(topic string, order *domain.Order, action, detail string) {
	u.events = append(u.events, workflow.Event{
		Topic:    topic,
		OrderID:  order.ID,
		ShortID:  order.ShortID,
		Operator: u.operator,
		Action:   action,
		Detail:   detail,
		At:       time.Now(),
	})
}

func (u *unit) lockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := u.repo.GetOrder(ctx, id, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	return order, nil
}

func (u *unit) stockOf(ctx context.Context, order *domain.Order) (int, error) {
	p, err := u.repo.GetProduct(ctx, order)
	if err != nil {
		return 0, errors.Wrap(err, "load product")
	}
	if p == nil {
		return 0, nil
	}
	return p.NetStock, nil
}

// moveStage moves the order forward. An order already past the target stays
// where it is; a dispatched order cannot move back.
func moveStage(order *domain.Order, to workflow.Stage) error {
	cur := workflow.ParseStage(order.Stage)
	next, err := cur.Advance(to)
	if err == nil {
		order.Stage = string(next)
		return nil
	}
	if cur != workflow.StageDispatched && cur.Rank() > to.Rank() {
		return nil
	}
	return err
}

func (u *unit) linkSlip(ctx context.Context, orderID int64, kind string, link func(o *domain.Order)) (*domain.Order, error) {
	order, err := u.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	link(order)
	if err := u.repo.SaveOrder(ctx, order); err != nil {
		return nil, errors.Wrap(err, "link slip")
	}
	metrics.Incr("packflow_slip_" + kind)
	return order, nil
}

func (u *unit) shapeSlip(ctx context.Context, req workflow.ShapeSlipRequest) (*domain.ShapeSlip, error) {
	slip := &domain.ShapeSlip{
		ID:          newID(),
		OrderID:     req.OrderID,
		ProductName: req.ProductName,
		Size:        req.Size,
		Density:     req.Density,
		Weight:      req.Weight,
		Quantity:    req.Quantity,
		Remarks:     req.Remarks,
		CreatedBy:   u.operator,
		CreatedAt:   time.Now(),
	}
	order, err := u.linkSlip(ctx, req.OrderID, domain.SlipKindShape, func(o *domain.Order) { o.ShapeSlipID = &slip.ID })
	if err != nil {
		return nil, err
	}
	if err := u.repo.CreateSlip(ctx, slip); err != nil {
		return nil, errors.Wrap(err, "create shape slip")
	}
	u.emit(workflow.TopicSlipCreated, order, "create-shape-slip", fmt.Sprintf("slip %d qty %d", slip.ID, slip.Quantity))
	return slip, nil
}

func (u *unit) danaSlip(ctx context.Context, req workflow.DanaSlipRequest) (*domain.DanaSlip, error) {
	slip := &domain.DanaSlip{
		ID:        newID(),
		OrderID:   req.OrderID,
		Density:   req.Density,
		Weight:    req.Weight,
		Quantity:  req.Quantity,
		BatchNo:   req.BatchNo,
		Remarks:   req.Remarks,
		CreatedBy: u.operator,
		CreatedAt: time.Now(),
	}
	order, err := u.linkSlip(ctx, req.OrderID, domain.SlipKindDana, func(o *domain.Order) { o.DanaSlipID = &slip.ID })
	if err != nil {
		return nil, err
	}
	if err := u.repo.CreateSlip(ctx, slip); err != nil {
		return nil, errors.Wrap(err, "create dana slip")
	}
	u.emit(workflow.TopicSlipCreated, order, "create-dana-slip", fmt.Sprintf("slip %d qty %d", slip.ID, slip.Quantity))
	return slip, nil
}

func (u *unit) dispatchSlip(ctx context.Context, req workflow.DispatchSlipRequest) (*domain.DispatchSlip, error) {
	if len(req.Row) == 0 {
		return nil, &workflow.ValidationError{Fields: map[string]string{"row": "required"}}
	}
	rows, err := json.Marshal(req.Row)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, r := range req.Row {
		total += r.Quantity
	}
	slip := &domain.DispatchSlip{
		ID:        newID(),
		OrderID:   req.OrderID,
		Rows:      datatypes.JSON(rows),
		TotalQty:  total,
		CreatedBy: u.operator,
		CreatedAt: time.Now(),
	}
	order, err := u.linkSlip(ctx, req.OrderID, domain.SlipKindDispatch, func(o *domain.Order) { o.DispatchSlipID = &slip.ID })
	if err != nil {
		return nil, err
	}
	if err := u.repo.CreateSlip(ctx, slip); err != nil {
		return nil, errors.Wrap(err, "create dispatch slip")
	}
	u.emit(workflow.TopicSlipCreated, order, "create-dispatch-slip", fmt.Sprintf("slip %d qty %d", slip.ID, total))
	return slip, nil
}

// packagingSlip also adds the packed quantity to the product's stock
func (u *unit) packagingSlip(ctx context.Context, req workflow.PackagingSlipRequest) (*domain.PackagingSlip, error) {
	slip := &domain.PackagingSlip{
		ID:          newID(),
		OrderID:     req.OrderID,
		ProductName: req.ProductName,
		Size:        req.Size,
		Quantity:    req.Quantity,
		Weight:      req.Weight,
		PackingType: req.PackingType,
		Remarks:     req.Remarks,
		CreatedBy:   u.operator,
		CreatedAt:   time.Now(),
	}
	order, err := u.linkSlip(ctx, req.OrderID, domain.SlipKindPackaging, func(o *domain.Order) { o.PackagingSlipID = &slip.ID })
	if err != nil {
		return nil, err
	}
	if err := u.repo.CreateSlip(ctx, slip); err != nil {
		return nil, errors.Wrap(err, "create packaging slip")
	}
	product, err := u.repo.GetProduct(ctx, order)
	if err != nil {
		return nil, errors.Wrap(err, "load product")
	}
	if product != nil {
		product.MaterialPacked += slip.Quantity
		if err := u.repo.SaveProduct(ctx, product); err != nil {
			return nil, errors.Wrap(err, "update packed stock")
		}
	}
	u.emit(workflow.TopicSlipCreated, order, "create-packaging-slip", fmt.Sprintf("slip %d qty %d", slip.ID, slip.Quantity))
	return slip, nil
}

// checkSections validates requested sections against the order's required keys
func checkSections(order *domain.Order, sections []string) ([]string, error) {
	required := order.Required.Keys()
	if len(sections) == 0 {
		sections = required
	}
	if len(sections) == 0 {
		return nil, errors.Wrapf(ErrSectionNotRequired, "order %s has no required section", order.ShortID)
	}
	for _, s := range sections {
		if !common.InSlice(s, required) {
			return nil, errors.Wrapf(ErrSectionNotRequired, "section %q", s)
		}
	}
	return sections, nil
}

func (u *unit) sendToProduction(ctx context.Context, req workflow.ProductionRequest) (*domain.Order, error) {
	order, err := u.lockOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	sections, err := checkSections(order, req.Sections)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		if order.SentTo.Dispatch.Has(s) {
			return nil, errors.Wrapf(ErrPathConflict, "section %q already sent to dispatch", s)
		}
	}
	if order.SentTo.Production.HasAll(sections) {
		return nil, errors.Wrapf(ErrAlreadySent, "order %s already sent to production", order.ShortID)
	}
	if err := moveStage(order, workflow.StageProduction); err != nil {
		return nil, err
	}
	order.SentTo.Production = order.SentTo.Production.Append(sections...)
	order.Status = domain.StatusInProcess
	if req.DanaSlip != nil {
		order.DanaSlipID = req.DanaSlip
	}
	if req.DispatchSlip != nil {
		order.DispatchSlipID = req.DispatchSlip
	}
	if req.ShapeSlip != nil {
		order.ShapeSlipID = req.ShapeSlip
	}
	if err := u.repo.SaveOrder(ctx, order); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	u.emit(workflow.TopicSentToProduction, order, "send-to-production", strings.Join(sections, ","))
	return order, nil
}

func (u *unit) sendToPackaging(ctx context.Context, req workflow.PackagingRequest) (*domain.Order, error) {
	order, err := u.lockOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ReadyForPackaging {
		return nil, errors.Wrapf(ErrAlreadySent, "order %s already sent to packaging", order.ShortID)
	}
	if err := moveStage(order, workflow.StagePackaging); err != nil {
		return nil, err
	}
	order.ReadyForPackaging = true
	order.SentTo.Packaging = order.SentTo.Packaging.Append(order.Required.Keys()...)
	if req.PackagingSlip != nil {
		order.PackagingSlipID = req.PackagingSlip
	}
	if err := u.repo.SaveOrder(ctx, order); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	qty := 0
	for _, r := range req.PackagingRows {
		qty += r.Quantity
	}
	u.emit(workflow.TopicSentToPackaging, order, "send-to-packaging", fmt.Sprintf("qty %d", qty))
	return order, nil
}

func (u *unit) sendToDispatch(ctx context.Context, req workflow.DispatchRequest) ([]domain.Order, error) {
	if len(req.OrderIDs) == 0 {
		return nil, ErrNoOrders
	}
	out := make([]domain.Order, 0, len(req.OrderIDs))
	for _, id := range req.OrderIDs {
		order, err := u.lockOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		sections, err := checkSections(order, req.Sections)
		if err != nil {
			return nil, err
		}
		for _, s := range sections {
			if order.SentTo.Dispatch.Has(s) {
				return nil, errors.Wrapf(ErrAlreadySent, "order %s section %q already sent to dispatch", order.ShortID, s)
			}
		}
		if err := moveStage(order, workflow.StageDispatch); err != nil {
			return nil, err
		}
		order.SentTo.Dispatch = order.SentTo.Dispatch.Append(sections...)
		order.DispatchStatus = domain.DispatchReady
		if req.DispatchSlip != nil {
			order.DispatchSlipID = req.DispatchSlip
		}
		if err := u.repo.SaveOrder(ctx, order); err != nil {
			return nil, errors.Wrap(err, "save order")
		}
		u.emit(workflow.TopicSentToDispatch, order, "send-to-dispatch", strings.Join(sections, ","))
		u.emit(workflow.TopicDispatchReady, order, "dispatch-ready", "")
		out = append(out, *order)
	}
	return out, nil
}

// bookDispatch moves the order quantity out of product stock, once per order
func (u *unit) bookDispatch(ctx context.Context, order *domain.Order) error {
	if order.StockBooked {
		return nil
	}
	product, err := u.repo.GetProduct(ctx, order)
	if err != nil {
		return errors.Wrap(err, "load product")
	}
	if product != nil {
		product.MaterialDispatch += order.Quantity
		if err := u.repo.SaveProduct(ctx, product); err != nil {
			return errors.Wrap(err, "book dispatched stock")
		}
	}
	order.StockBooked = true
	return nil
}

// workflow.Gateway

func (u *unit) CreateShapeSlip(ctx context.Context, req workflow.ShapeSlipRequest) (int64, error) {
	slip, err := u.shapeSlip(ctx, req)
	if err != nil {
		return 0, err
	}
	return slip.ID, nil
}

func (u *unit) CreateDanaSlip(ctx context.Context, req workflow.DanaSlipRequest) (int64, error) {
	slip, err := u.danaSlip(ctx, req)
	if err != nil {
		return 0, err
	}
	return slip.ID, nil
}

func (u *unit) CreateDispatchSlip(ctx context.Context, req workflow.DispatchSlipRequest) (int64, error) {
	slip, err := u.dispatchSlip(ctx, req)
	if err != nil {
		return 0, err
	}
	return slip.ID, nil
}

func (u *unit) CreatePackagingSlip(ctx context.Context, req workflow.PackagingSlipRequest) (int64, error) {
	slip, err := u.packagingSlip(ctx, req)
	if err != nil {
		return 0, err
	}
	return slip.ID, nil
}

func (u *unit) SendToProduction(ctx context.Context, req workflow.ProductionRequest) error {
	_, err := u.sendToProduction(ctx, req)
	return err
}

func (u *unit) SendToPackaging(ctx context.Context, req workflow.PackagingRequest) error {
	_, err := u.sendToPackaging(ctx, req)
	return err
}

func (u *unit) SendToDispatch(ctx context.Context, req workflow.DispatchRequest) error {
	_, err := u.sendToDispatch(ctx, req)
	return err
}
