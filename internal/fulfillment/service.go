package fulfillment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/workflow"
	"github.com/talkincode/packflow/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher is the part of the event bus the service needs
type Publisher interface {
	Publish(topic string, args ...interface{})
}

type operatorKey struct{}

// WithOperator attaches the acting operator's username to ctx
func WithOperator(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, operatorKey{}, username)
}

// OperatorFrom returns the operator attached by WithOperator
func OperatorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(operatorKey{}).(string); ok {
		return v
	}
	return "system"
}

// Service executes fulfillment steps server side. Every public mutation
// runs in its own transaction; Advance runs a whole workflow branch in one.
type Service struct {
	repo Repository
	bus  Publisher
}

func NewService(repo Repository, bus Publisher) *Service {
	return &Service{repo: repo, bus: bus}
}

// run executes fn in a transaction and publishes the collected events
// once it has committed.
func (s *Service) run(ctx context.Context, fn func(u *unit) error) error {
	var events []workflow.Event
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		u := &unit{repo: repo, operator: OperatorFrom(ctx)}
		if err := fn(u); err != nil {
			return err
		}
		events = u.events
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(events)
	return nil
}

func (s *Service) publish(events []workflow.Event) {
	if s.bus == nil {
		return
	}
	for _, e := range events {
		s.bus.Publish(e.Topic, e)
	}
}

func (s *Service) CreateShapeSlip(ctx context.Context, req workflow.ShapeSlipRequest) (slip *domain.ShapeSlip, err error) {
	err = s.run(ctx, func(u *unit) error {
		slip, err = u.shapeSlip(ctx, req)
		return err
	})
	return slip, err
}

func (s *Service) CreateDanaSlip(ctx context.Context, req workflow.DanaSlipRequest) (slip *domain.DanaSlip, err error) {
	err = s.run(ctx, func(u *unit) error {
		slip, err = u.danaSlip(ctx, req)
		return err
	})
	return slip, err
}

func (s *Service) CreateDispatchSlip(ctx context.Context, req workflow.DispatchSlipRequest) (slip *domain.DispatchSlip, err error) {
	err = s.run(ctx, func(u *unit) error {
		slip, err = u.dispatchSlip(ctx, req)
		return err
	})
	return slip, err
}

func (s *Service) CreatePackagingSlip(ctx context.Context, req workflow.PackagingSlipRequest) (slip *domain.PackagingSlip, err error) {
	err = s.run(ctx, func(u *unit) error {
		slip, err = u.packagingSlip(ctx, req)
		return err
	})
	return slip, err
}

func (s *Service) SendToProduction(ctx context.Context, req workflow.ProductionRequest) (order *domain.Order, err error) {
	err = s.run(ctx, func(u *unit) error {
		order, err = u.sendToProduction(ctx, req)
		return err
	})
	return order, err
}

func (s *Service) SendToPackaging(ctx context.Context, req workflow.PackagingRequest) (order *domain.Order, err error) {
	err = s.run(ctx, func(u *unit) error {
		order, err = u.sendToPackaging(ctx, req)
		return err
	})
	return order, err
}

// SendToDispatch marks every listed order; one failure rejects them all
func (s *Service) SendToDispatch(ctx context.Context, req workflow.DispatchRequest) (orders []domain.Order, err error) {
	err = s.run(ctx, func(u *unit) error {
		orders, err = u.sendToDispatch(ctx, req)
		return err
	})
	return orders, err
}

// UpdateStatus sets the production status; any enum value is accepted at any time
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	return s.updateField(ctx, orderID, "status", status, domain.ProductionStatuses, func(o *domain.Order) {
		o.Status = status
	})
}

func (s *Service) UpdatePackagingStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	return s.updateField(ctx, orderID, "packagingStatus", status, domain.PackagingStatuses, func(o *domain.Order) {
		o.PackagingStatus = status
	})
}

// UpdateDispatchStatus sets the dispatch status. Reaching "dispatched" closes
// the lifecycle and books the order quantity out of stock once.
func (s *Service) UpdateDispatchStatus(ctx context.Context, orderID int64, status string) (order *domain.Order, err error) {
	if !inEnum(status, domain.DispatchStatuses) {
		return nil, errors.Wrapf(ErrInvalidStatus, "dispatchStatus %q", status)
	}
	err = s.run(ctx, func(u *unit) error {
		order, err = u.lockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order.DispatchStatus = status
		switch status {
		case domain.DispatchDispatched:
			order.Stage = string(workflow.StageDispatched)
			now := time.Now()
			order.DispatchedAt = &now
			if err := u.bookDispatch(ctx, order); err != nil {
				return err
			}
		case domain.DispatchReady:
			u.emit(workflow.TopicDispatchReady, order, "dispatch-ready", "")
		}
		if err := u.repo.SaveOrder(ctx, order); err != nil {
			return errors.Wrap(err, "save order")
		}
		u.emit(workflow.TopicStatusChanged, order, "update-dispatch-status", status)
		return nil
	})
	return order, err
}

func (s *Service) updateField(ctx context.Context, orderID int64, field, value string, enum []string, set func(*domain.Order)) (order *domain.Order, err error) {
	if !inEnum(value, enum) {
		return nil, errors.Wrapf(ErrInvalidStatus, "%s %q", field, value)
	}
	err = s.run(ctx, func(u *unit) error {
		order, err = u.lockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		set(order)
		if err := u.repo.SaveOrder(ctx, order); err != nil {
			return errors.Wrap(err, "save order")
		}
		u.emit(workflow.TopicStatusChanged, order, "update-"+field, value)
		return nil
	})
	return order, err
}

// AdvanceResult is the outcome of an idempotent workflow advance
type AdvanceResult struct {
	Result   *workflow.Result `json:"result"`
	Order    *domain.Order    `json:"order"`
	Replayed bool             `json:"replayed"`
}

// Advance runs a slip submission's whole branch in one transaction. The order
// and its stock are reloaded from the database, so the caller's copy only
// supplies the id. A key seen before returns the stored outcome without
// executing anything; a failing step rolls back every step.
func (s *Service) Advance(ctx context.Context, key string, sub workflow.Submission) (*AdvanceResult, error) {
	if key != "" {
		if res, err := s.replay(ctx, key, sub.Order.ID); res != nil || err != nil {
			return res, err
		}
	}

	var out AdvanceResult
	err := s.run(ctx, func(u *unit) error {
		order, err := u.lockOrder(ctx, sub.Order.ID)
		if err != nil {
			return err
		}
		stock, err := u.stockOf(ctx, order)
		if err != nil {
			return err
		}
		sub.Order = *order
		sub.Stock = stock

		res, err := workflow.NewOrchestrator(u, nil).Execute(ctx, sub)
		if err != nil {
			return err
		}
		final, err := u.repo.GetOrder(ctx, order.ID, false)
		if err != nil {
			return errors.Wrap(err, "reload order")
		}
		out = AdvanceResult{Result: res, Order: final}

		if key == "" {
			return nil
		}
		resJSON, err := json.MarshalToString(res)
		if err != nil {
			return err
		}
		orderJSON, err := json.MarshalToString(final)
		if err != nil {
			return err
		}
		return u.repo.CreateRun(ctx, &domain.WorkflowRun{
			ID:        newID(),
			Key:       key,
			OrderID:   order.ID,
			SlipType:  string(sub.Type),
			Steps:     resJSON,
			Result:    orderJSON,
			CreatedBy: u.operator,
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		// a concurrent request with the same key may have won the insert
		if key != "" {
			if res, rerr := s.replay(ctx, key, sub.Order.ID); res != nil {
				return res, nil
			} else if rerr != nil && errors.Is(rerr, ErrKeyReused) {
				return nil, rerr
			}
		}
		return nil, err
	}
	metrics.Incr("packflow_workflow_advance")
	zap.L().Info("workflow advanced",
		zap.String("namespace", "fulfillment"),
		zap.Int64("order_id", sub.Order.ID),
		zap.String("type", string(sub.Type)),
		zap.Int("steps", len(out.Result.Steps)))
	return &out, nil
}

func (s *Service) replay(ctx context.Context, key string, orderID int64) (*AdvanceResult, error) {
	run, err := s.repo.FindRun(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find workflow run")
	}
	if run.OrderID != orderID {
		return nil, ErrKeyReused
	}
	out := &AdvanceResult{Result: &workflow.Result{}, Order: &domain.Order{}, Replayed: true}
	if err := json.UnmarshalFromString(run.Steps, out.Result); err != nil {
		return nil, errors.Wrap(err, "decode workflow run")
	}
	if err := json.UnmarshalFromString(run.Result, out.Order); err != nil {
		return nil, errors.Wrap(err, "decode workflow run")
	}
	return out, nil
}

// Stocks returns the net stock of each order's product keyed by order id.
// Products resolve as in GetProduct: by id, or by name when the order has no id.
func (s *Service) Stocks(ctx context.Context, orders []domain.Order) (map[int64]int, error) {
	var (
		ids   []int64
		names []string
	)
	for _, o := range orders {
		switch {
		case o.ProductID != 0:
			ids = append(ids, o.ProductID)
		case o.ProductName != "":
			names = append(names, o.ProductName)
		}
	}
	products, err := s.repo.ListProducts(ctx, ids, names)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	byID := make(map[int64]int, len(products))
	byName := make(map[string]int, len(products))
	for _, p := range products {
		byID[p.ID] = p.NetStock
		if _, seen := byName[p.Name]; !seen {
			byName[p.Name] = p.NetStock
		}
	}
	out := make(map[int64]int, len(orders))
	for _, o := range orders {
		if o.ProductID != 0 {
			out[o.ID] = byID[o.ProductID]
		} else {
			out[o.ID] = byName[o.ProductName]
		}
	}
	return out, nil
}

// Stock returns the net stock of one order's product
func (s *Service) Stock(ctx context.Context, order *domain.Order) (int, error) {
	p, err := s.repo.GetProduct(ctx, order)
	if err != nil || p == nil {
		return 0, err
	}
	return p.NetStock, nil
}

// PurgeRuns drops idempotency records older than ttl
func (s *Service) PurgeRuns(ctx context.Context, ttl time.Duration) (int64, error) {
	return s.repo.DeleteRunsBefore(ctx, time.Now().Add(-ttl))
}

func inEnum(v string, enum []string) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}
	return false
}
