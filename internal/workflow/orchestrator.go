package workflow

import (
	"context"
	"strconv"

	"github.com/talkincode/packflow/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type StepKind string

const (
	StepShapeSlip        StepKind = "create-shape-slip"
	StepDanaSlip         StepKind = "create-dana-slip"
	StepDispatchSlip     StepKind = "create-dispatch-slip"
	StepPackagingSlip    StepKind = "create-packaging-slip"
	StepSendToProduction StepKind = "send-to-production"
	StepSendToPackaging  StepKind = "send-to-packaging"
	StepSendToDispatch   StepKind = "send-to-dispatch"
)

// StepResult one completed step; SlipID is set for slip creation steps
type StepResult struct {
	Step   StepKind `json:"step"`
	SlipID int64    `json:"slipId,string,omitempty"`
}

// Submission is one slip modal submission for one order
type Submission struct {
	Type    SlipType     `json:"type"`
	Order   domain.Order `json:"order"`
	Stock   int          `json:"stock"`
	Payload Payload      `json:"payload"`
}

// Result of a successful submission
type Result struct {
	OrderID int64        `json:"orderId,string"`
	Layout  Layout       `json:"layout"`
	Steps   []StepResult `json:"steps"`
}

// Orchestrator turns one modal submission into the ordered gateway calls
// of its branch.
type Orchestrator struct {
	gw       Gateway
	disabled DisabledSet
	group    singleflight.Group
}

// NewOrchestrator disabled may be nil when no session gating is wanted
func NewOrchestrator(gw Gateway, disabled DisabledSet) *Orchestrator {
	return &Orchestrator{gw: gw, disabled: disabled}
}

// IsDisabled reports whether the order's action already ran
func (o *Orchestrator) IsDisabled(orderID int64) bool {
	return o.disabled != nil && o.disabled.IsDisabled(orderID)
}

// Submit validates and executes a submission. Concurrent submissions for
// the same order collapse into one execution; once one succeeds the order
// is disabled and later submissions return ErrAlreadySubmitted.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if o.IsDisabled(sub.Order.ID) {
		return nil, ErrAlreadySubmitted
	}
	v, err, _ := o.group.Do(strconv.FormatInt(sub.Order.ID, 10), func() (interface{}, error) {
		if o.IsDisabled(sub.Order.ID) {
			return nil, ErrAlreadySubmitted
		}
		res, err := o.run(ctx, sub)
		if err != nil {
			return nil, err
		}
		if o.disabled != nil {
			if err := o.disabled.Disable(sub.Order.ID); err != nil {
				zap.L().Warn("failed to persist disabled order",
					zap.String("namespace", "workflow"),
					zap.Int64("order_id", sub.Order.ID),
					zap.Error(err))
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Execute runs a submission without session gating. The fulfillment
// service uses it inside its own transaction.
func (o *Orchestrator) Execute(ctx context.Context, sub Submission) (*Result, error) {
	return o.run(ctx, sub)
}

type chain struct {
	done []StepResult
}

func (c *chain) fail(step StepKind, err error) error {
	completed := make([]StepResult, len(c.done))
	copy(completed, c.done)
	return &StepError{Step: step, Completed: completed, Err: err}
}

func (c *chain) slip(step StepKind, fn func() (int64, error)) (int64, error) {
	id, err := fn()
	if err != nil {
		return 0, c.fail(step, err)
	}
	c.done = append(c.done, StepResult{Step: step, SlipID: id})
	return id, nil
}

func (c *chain) call(step StepKind, fn func() error) error {
	if err := fn(); err != nil {
		return c.fail(step, err)
	}
	c.done = append(c.done, StepResult{Step: step})
	return nil
}

// pendingSections are the required sections not yet sent to production;
// all of them when every one was already sent, so the backend can reject
// the duplicate.
func pendingSections(order domain.Order) []string {
	keys := order.Required.Keys()
	var out []string
	for _, k := range keys {
		if !order.SentTo.Production.Has(k) {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return keys
	}
	return out
}

func (o *Orchestrator) run(ctx context.Context, sub Submission) (*Result, error) {
	order := sub.Order
	layout, err := LayoutFor(order, sub.Type, sub.Stock)
	if err != nil {
		return nil, err
	}
	p := sub.Payload
	if err := p.Validate(layout); err != nil {
		return nil, err
	}

	c := &chain{}
	id := order.ID
	req := order.Required

	switch {
	case sub.Type == SlipProduction && req.ShapeMoulding:
		shapeID, err := c.slip(StepShapeSlip, func() (int64, error) {
			return o.gw.CreateShapeSlip(ctx, ShapeSlipRequest{OrderID: id, ShapeForm: *p.Shape})
		})
		if err != nil {
			return nil, err
		}
		prod := ProductionRequest{
			OrderID:   id,
			Sections:  pendingSections(order),
			ShapeSlip: &shapeID,
			ShapeRows: []ShapeForm{*p.Shape},
		}
		if p.Cutting != nil {
			prod.CuttingRows = []CuttingForm{*p.Cutting}
		}
		if err := c.call(StepSendToProduction, func() error { return o.gw.SendToProduction(ctx, prod) }); err != nil {
			return nil, err
		}
		pack := packagingFromShape(p.Shape)
		if p.Packaging != nil {
			pack = *p.Packaging
		}
		if err := c.call(StepSendToPackaging, func() error {
			return o.gw.SendToPackaging(ctx, PackagingRequest{OrderID: id, PackagingRows: []PackagingForm{pack}})
		}); err != nil {
			return nil, err
		}

	case sub.Type == SlipProduction && req.IsBlockMoulding():
		danaID, err := c.slip(StepDanaSlip, func() (int64, error) {
			return o.gw.CreateDanaSlip(ctx, DanaSlipRequest{OrderID: id, DanaForm: *p.Dana})
		})
		if err != nil {
			return nil, err
		}
		rows := []CuttingForm{*p.Cutting}
		dispatchID, err := c.slip(StepDispatchSlip, func() (int64, error) {
			return o.gw.CreateDispatchSlip(ctx, DispatchSlipRequest{OrderID: id, Row: rows})
		})
		if err != nil {
			return nil, err
		}
		sections := pendingSections(order)
		if err := c.call(StepSendToProduction, func() error {
			return o.gw.SendToProduction(ctx, ProductionRequest{
				OrderID:      id,
				Sections:     sections,
				DanaSlip:     &danaID,
				DispatchSlip: &dispatchID,
				Dana:         p.Dana,
				CuttingRows:  rows,
			})
		}); err != nil {
			return nil, err
		}
		if err := c.call(StepSendToDispatch, func() error {
			return o.gw.SendToDispatch(ctx, DispatchRequest{
				OrderIDs:     IDList{id},
				Sections:     sections,
				DispatchSlip: &dispatchID,
				CuttingRows:  rows,
			})
		}); err != nil {
			return nil, err
		}

	case sub.Type == SlipShapePackaging:
		shapeID, err := c.slip(StepShapeSlip, func() (int64, error) {
			return o.gw.CreateShapeSlip(ctx, ShapeSlipRequest{OrderID: id, ShapeForm: *p.Shape})
		})
		if err != nil {
			return nil, err
		}
		packID, err := c.slip(StepPackagingSlip, func() (int64, error) {
			return o.gw.CreatePackagingSlip(ctx, PackagingSlipRequest{OrderID: id, PackagingForm: *p.Packaging})
		})
		if err != nil {
			return nil, err
		}
		if err := c.call(StepSendToProduction, func() error {
			return o.gw.SendToProduction(ctx, ProductionRequest{
				OrderID:   id,
				Sections:  pendingSections(order),
				ShapeSlip: &shapeID,
				ShapeRows: []ShapeForm{*p.Shape},
			})
		}); err != nil {
			return nil, err
		}
		if err := c.call(StepSendToPackaging, func() error {
			return o.gw.SendToPackaging(ctx, PackagingRequest{
				OrderID:       id,
				PackagingSlip: &packID,
				PackagingRows: []PackagingForm{*p.Packaging},
			})
		}); err != nil {
			return nil, err
		}

	case sub.Type == SlipPackaging:
		packID, err := c.slip(StepPackagingSlip, func() (int64, error) {
			return o.gw.CreatePackagingSlip(ctx, PackagingSlipRequest{OrderID: id, PackagingForm: *p.Packaging})
		})
		if err != nil {
			return nil, err
		}
		if err := c.call(StepSendToPackaging, func() error {
			return o.gw.SendToPackaging(ctx, PackagingRequest{
				OrderID:       id,
				PackagingSlip: &packID,
				PackagingRows: []PackagingForm{*p.Packaging},
			})
		}); err != nil {
			return nil, err
		}

	case sub.Type == SlipDispatch:
		rows := []CuttingForm{*p.Cutting}
		dispatchID, err := c.slip(StepDispatchSlip, func() (int64, error) {
			return o.gw.CreateDispatchSlip(ctx, DispatchSlipRequest{OrderID: id, Row: rows})
		})
		if err != nil {
			return nil, err
		}
		if err := c.call(StepSendToDispatch, func() error {
			return o.gw.SendToDispatch(ctx, DispatchRequest{
				OrderIDs:     IDList{id},
				Sections:     req.Keys(),
				DispatchSlip: &dispatchID,
				CuttingRows:  rows,
			})
		}); err != nil {
			return nil, err
		}

	default:
		// production, hand moulding only
		rows := []CuttingForm{*p.Cutting}
		dispatchID, err := c.slip(StepDispatchSlip, func() (int64, error) {
			return o.gw.CreateDispatchSlip(ctx, DispatchSlipRequest{OrderID: id, Row: rows})
		})
		if err != nil {
			return nil, err
		}
		if err := c.call(StepSendToProduction, func() error {
			return o.gw.SendToProduction(ctx, ProductionRequest{
				OrderID:      id,
				Sections:     pendingSections(order),
				DispatchSlip: &dispatchID,
				CuttingRows:  rows,
			})
		}); err != nil {
			return nil, err
		}
	}

	zap.L().Info("workflow submission completed",
		zap.String("namespace", "workflow"),
		zap.Int64("order_id", id),
		zap.String("type", string(sub.Type)),
		zap.String("layout", string(layout)),
		zap.Int("steps", len(c.done)))

	return &Result{OrderID: id, Layout: layout, Steps: c.done}, nil
}
