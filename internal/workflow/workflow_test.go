package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/packflow/internal/domain"
)

// recordingGateway records every call in order and can fail a chosen step
type recordingGateway struct {
	mu     sync.Mutex
	calls  []string
	failOn string
	nextID int64

	production []ProductionRequest
	packaging  []PackagingRequest
	dispatch   []DispatchRequest
	slips      []DispatchSlipRequest
}

func (g *recordingGateway) record(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, name)
	if name == g.failOn {
		return errors.New("boom")
	}
	return nil
}

func (g *recordingGateway) id() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return 100 + g.nextID
}

func (g *recordingGateway) CreateShapeSlip(_ context.Context, _ ShapeSlipRequest) (int64, error) {
	if err := g.record("POST /slips/production"); err != nil {
		return 0, err
	}
	return g.id(), nil
}

func (g *recordingGateway) CreateDanaSlip(_ context.Context, _ DanaSlipRequest) (int64, error) {
	if err := g.record("POST /slips/dana"); err != nil {
		return 0, err
	}
	return g.id(), nil
}

func (g *recordingGateway) CreateDispatchSlip(_ context.Context, req DispatchSlipRequest) (int64, error) {
	if err := g.record("POST /slips/dispatch"); err != nil {
		return 0, err
	}
	g.slips = append(g.slips, req)
	return g.id(), nil
}

func (g *recordingGateway) CreatePackagingSlip(_ context.Context, _ PackagingSlipRequest) (int64, error) {
	if err := g.record("POST /slips/packaging"); err != nil {
		return 0, err
	}
	return g.id(), nil
}

func (g *recordingGateway) SendToProduction(_ context.Context, req ProductionRequest) error {
	g.production = append(g.production, req)
	return g.record("PUT /orders/send-to-production")
}

func (g *recordingGateway) SendToPackaging(_ context.Context, req PackagingRequest) error {
	g.packaging = append(g.packaging, req)
	return g.record("POST /orders/send-to-packaging")
}

func (g *recordingGateway) SendToDispatch(_ context.Context, req DispatchRequest) error {
	g.dispatch = append(g.dispatch, req)
	return g.record("POST /orders/send-to-dispatch")
}

func testOrder(req domain.RequiredSections) domain.Order {
	return domain.Order{
		ID:          7001,
		ShortID:     "ORD-7001",
		ProductName: "EPS Block 600",
		Size:        "1000x500x100",
		Quantity:    50,
		Density:     18,
		Required:    req,
	}
}

func filled(order domain.Order, layout Layout) Payload {
	p := NewForms(order, layout)
	if p.Shape != nil {
		p.Shape.Weight = 2.5
	}
	if p.Dana != nil {
		p.Dana.Weight = 300
		p.Dana.Quantity = 4
	}
	return p
}

func TestDecideShapeInStockSendsToPackaging(t *testing.T) {
	o := testOrder(domain.RequiredSections{ShapeMoulding: true})
	a := Decide(o, 50)
	assert.Equal(t, ActionSendToPackaging, a.Kind)
	assert.Equal(t, SlipPackaging, a.SlipType)
	assert.False(t, a.Disabled)
	assert.Equal(t, "Send to Packaging", a.Label)

	a = Decide(o, 500)
	assert.Equal(t, ActionSendToPackaging, a.Kind)
}

func TestDecideInStockDispatch(t *testing.T) {
	o := testOrder(domain.RequiredSections{PreExpander: true})
	a := Decide(o, 60)
	assert.Equal(t, ActionDispatchInStock, a.Kind)
	assert.Equal(t, SlipDispatch, a.SlipType)

	o = testOrder(domain.RequiredSections{ShapeMoulding: true, HandMoulding: true})
	a = Decide(o, 60)
	assert.Equal(t, ActionDispatchInStock, a.Kind)
	assert.Equal(t, SlipPackaging, a.SlipType)
}

func TestDecideInStockPackagingDisabledOnceReady(t *testing.T) {
	o := testOrder(domain.RequiredSections{ShapeMoulding: true, PreExpander: true})
	a := Decide(o, 60)
	assert.Equal(t, ActionDispatchInStock, a.Kind)
	assert.Equal(t, SlipPackaging, a.SlipType)
	assert.False(t, a.Disabled)

	o.ReadyForPackaging = true
	a = Decide(o, 60)
	assert.True(t, a.Disabled)
	assert.Equal(t, "already sent to packaging", a.Reason)

	// the dispatch slip path is gated by sentTo.dispatch only
	o = testOrder(domain.RequiredSections{PreExpander: true})
	o.ReadyForPackaging = true
	assert.False(t, Decide(o, 60).Disabled)
}

func TestDecideSendToProductionDisabledWhenSent(t *testing.T) {
	o := testOrder(domain.RequiredSections{PreExpander: true})
	a := Decide(o, 10)
	assert.Equal(t, ActionSendToProduction, a.Kind)
	assert.False(t, a.Disabled)

	o.SentTo.Production = domain.SectionList{domain.SectionPreExpander}
	a = Decide(o, 10)
	assert.True(t, a.Disabled)
	assert.Equal(t, "already sent to production", a.Reason)

	o.SentTo.Production = nil
	o.SentTo.Dispatch = domain.SectionList{domain.SectionPreExpander}
	assert.True(t, Decide(o, 10).Disabled)

	// partially sent is still enabled
	o = testOrder(domain.RequiredSections{PreExpander: true, HandMoulding: true})
	o.SentTo.Production = domain.SectionList{domain.SectionPreExpander}
	assert.False(t, Decide(o, 10).Disabled)
}

func TestDecideNoRequiredKeysIsDisabled(t *testing.T) {
	a := Decide(testOrder(domain.RequiredSections{}), 0)
	assert.Equal(t, ActionSendToProduction, a.Kind)
	assert.True(t, a.Disabled)
}

func TestLayoutFor(t *testing.T) {
	block := testOrder(domain.RequiredSections{PreExpander: true})
	shape := testOrder(domain.RequiredSections{ShapeMoulding: true, PreExpander: true})
	hand := testOrder(domain.RequiredSections{HandMoulding: true})

	cases := []struct {
		order domain.Order
		typ   SlipType
		stock int
		want  Layout
	}{
		{block, SlipProduction, 0, LayoutDanaCutting},
		{shape, SlipProduction, 0, LayoutShapeCutting},
		{shape, SlipProduction, 50, LayoutShapePackaging},
		{hand, SlipProduction, 0, LayoutCutting},
		{block, SlipPackaging, 0, LayoutPackaging},
		{block, SlipDispatch, 0, LayoutCutting},
		{block, SlipShapePackaging, 0, LayoutShapePackaging},
	}
	for _, tc := range cases {
		got, err := LayoutFor(tc.order, tc.typ, tc.stock)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s/%v", tc.typ, tc.order.Required)
	}

	_, err := LayoutFor(testOrder(domain.RequiredSections{}), SlipProduction, 0)
	assert.ErrorIs(t, err, ErrNoRequiredSection)
}

func TestNewFormsPrefill(t *testing.T) {
	o := testOrder(domain.RequiredSections{PreExpander: true})
	p := NewForms(o, LayoutDanaCutting)
	require.NotNil(t, p.Cutting)
	require.NotNil(t, p.Dana)
	assert.Nil(t, p.Shape)
	assert.Equal(t, "EPS Block 600", p.Cutting.ProductName)
	assert.Equal(t, 50, p.Cutting.Quantity)
	assert.Equal(t, float64(18), p.Dana.Density)
	assert.Zero(t, p.Dana.Weight)

	p = NewForms(o, LayoutShapeCutting)
	assert.NotNil(t, p.Packaging, "shape+cutting carries the packaging sub-form")
}

func TestPayloadValidate(t *testing.T) {
	o := testOrder(domain.RequiredSections{PreExpander: true})
	p := NewForms(o, LayoutDanaCutting)
	err := p.Validate(LayoutDanaCutting)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "gt=0", verr.Fields["danaFormData.weight"])
	assert.Equal(t, "gte=1", verr.Fields["danaFormData.quantity"])

	p = filled(o, LayoutDanaCutting)
	assert.NoError(t, p.Validate(LayoutDanaCutting))

	p.Cutting = nil
	require.ErrorAs(t, p.Validate(LayoutDanaCutting), &verr)
	assert.Equal(t, "required", verr.Fields[FormCutting])

	// optional packaging sub-form is checked only when present
	shape := filled(testOrder(domain.RequiredSections{ShapeMoulding: true}), LayoutShapeCutting)
	shape.Packaging = nil
	assert.NoError(t, shape.Validate(LayoutShapeCutting))
	shape.Packaging = &PackagingForm{ProductName: "x"}
	assert.Error(t, shape.Validate(LayoutShapeCutting))
}

func TestDecodePayloadWeaklyTyped(t *testing.T) {
	p, err := DecodePayload(map[string]interface{}{
		"cuttingFormData": map[string]interface{}{
			"productName": "Sheet",
			"size":        "8x4",
			"density":     "12.5",
			"quantity":    "20",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, p.Cutting)
	assert.Equal(t, 12.5, p.Cutting.Density)
	assert.Equal(t, 20, p.Cutting.Quantity)
	assert.Nil(t, p.Dana)
}

func TestSubmitBlockMouldingChain(t *testing.T) {
	gw := &recordingGateway{}
	orch := NewOrchestrator(gw, NewMemoryDisabled())
	o := testOrder(domain.RequiredSections{PreExpander: true})

	res, err := orch.Submit(context.Background(), Submission{
		Type:    SlipProduction,
		Order:   o,
		Stock:   10,
		Payload: filled(o, LayoutDanaCutting),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"POST /slips/dana",
		"POST /slips/dispatch",
		"PUT /orders/send-to-production",
		"POST /orders/send-to-dispatch",
	}, gw.calls)
	assert.Equal(t, LayoutDanaCutting, res.Layout)
	require.Len(t, res.Steps, 4)

	prod := gw.production[0]
	require.NotNil(t, prod.DanaSlip)
	require.NotNil(t, prod.DispatchSlip)
	assert.Equal(t, res.Steps[0].SlipID, *prod.DanaSlip)
	assert.Equal(t, res.Steps[1].SlipID, *prod.DispatchSlip)
	assert.Equal(t, []string{domain.SectionPreExpander}, prod.Sections)
	assert.Equal(t, IDList{o.ID}, gw.dispatch[0].OrderIDs)
	assert.Equal(t, o.ID, gw.slips[0].OrderID)
	assert.Len(t, gw.slips[0].Row, 1)
}

func TestSubmitShapeProductionChainsIntoPackaging(t *testing.T) {
	gw := &recordingGateway{}
	orch := NewOrchestrator(gw, nil)
	o := testOrder(domain.RequiredSections{ShapeMoulding: true})
	p := filled(o, LayoutShapeCutting)
	p.Packaging = nil

	_, err := orch.Submit(context.Background(), Submission{Type: SlipProduction, Order: o, Payload: p})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"POST /slips/production",
		"PUT /orders/send-to-production",
		"POST /orders/send-to-packaging",
	}, gw.calls)
	require.Len(t, gw.production[0].CuttingRows, 1)
	require.Len(t, gw.packaging[0].PackagingRows, 1)
	// packaging hand-off derived from the shape form
	assert.Equal(t, 50, gw.packaging[0].PackagingRows[0].Quantity)
	assert.Equal(t, 2.5, gw.packaging[0].PackagingRows[0].Weight)
}

func TestSubmitShapePackaging(t *testing.T) {
	gw := &recordingGateway{}
	o := testOrder(domain.RequiredSections{ShapeMoulding: true})
	_, err := NewOrchestrator(gw, nil).Submit(context.Background(), Submission{
		Type:    SlipShapePackaging,
		Order:   o,
		Payload: filled(o, LayoutShapePackaging),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"POST /slips/production",
		"POST /slips/packaging",
		"PUT /orders/send-to-production",
		"POST /orders/send-to-packaging",
	}, gw.calls)
	require.NotNil(t, gw.packaging[0].PackagingSlip)
}

func TestSubmitPackagingOnly(t *testing.T) {
	gw := &recordingGateway{}
	o := testOrder(domain.RequiredSections{ShapeMoulding: true})
	_, err := NewOrchestrator(gw, nil).Submit(context.Background(), Submission{
		Type:    SlipPackaging,
		Order:   o,
		Payload: filled(o, LayoutPackaging),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /slips/packaging", "POST /orders/send-to-packaging"}, gw.calls)
	assert.Equal(t, o.ID, gw.packaging[0].OrderID)
}

func TestSubmitDispatch(t *testing.T) {
	gw := &recordingGateway{}
	o := testOrder(domain.RequiredSections{PreExpander: true})
	_, err := NewOrchestrator(gw, nil).Submit(context.Background(), Submission{
		Type:    SlipDispatch,
		Order:   o,
		Payload: filled(o, LayoutCutting),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /slips/dispatch", "POST /orders/send-to-dispatch"}, gw.calls)
	assert.Equal(t, []string{domain.SectionPreExpander}, gw.dispatch[0].Sections)
}

func TestSubmitHandMouldingProduction(t *testing.T) {
	gw := &recordingGateway{}
	o := testOrder(domain.RequiredSections{HandMoulding: true})
	_, err := NewOrchestrator(gw, nil).Submit(context.Background(), Submission{
		Type:    SlipProduction,
		Order:   o,
		Payload: filled(o, LayoutCutting),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /slips/dispatch", "PUT /orders/send-to-production"}, gw.calls)
}

func TestSubmitAbortsChainWithoutRollback(t *testing.T) {
	gw := &recordingGateway{failOn: "PUT /orders/send-to-production"}
	disabled := NewMemoryDisabled()
	o := testOrder(domain.RequiredSections{PreExpander: true})

	_, err := NewOrchestrator(gw, disabled).Submit(context.Background(), Submission{
		Type:    SlipProduction,
		Order:   o,
		Payload: filled(o, LayoutDanaCutting),
	})
	var serr *StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StepSendToProduction, serr.Step)
	assert.Len(t, serr.Completed, 2)
	assert.NotContains(t, gw.calls, "POST /orders/send-to-dispatch")
	assert.False(t, disabled.IsDisabled(o.ID), "failed submissions keep the button enabled")
}

func TestSubmitIsNoopOnceDisabled(t *testing.T) {
	gw := &recordingGateway{}
	disabled := NewMemoryDisabled()
	orch := NewOrchestrator(gw, disabled)
	o := testOrder(domain.RequiredSections{PreExpander: true})
	sub := Submission{Type: SlipDispatch, Order: o, Payload: filled(o, LayoutCutting)}

	_, err := orch.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, disabled.IsDisabled(o.ID))
	n := len(gw.calls)

	_, err = orch.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, gw.calls, n)
}

// blockingGateway holds the first packaging slip call until released
type blockingGateway struct {
	*recordingGateway
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) CreatePackagingSlip(ctx context.Context, req PackagingSlipRequest) (int64, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.recordingGateway.CreatePackagingSlip(ctx, req)
}

func TestSubmitCollapsesConcurrentCallsForOneOrder(t *testing.T) {
	gw := &blockingGateway{
		recordingGateway: &recordingGateway{},
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	orch := NewOrchestrator(gw, nil)
	o := testOrder(domain.RequiredSections{ShapeMoulding: true})
	sub := Submission{Type: SlipPackaging, Order: o, Payload: filled(o, LayoutPackaging)}

	var (
		wg      sync.WaitGroup
		results [2]*Result
		errs    [2]error
	)
	submit := func(i int) {
		defer wg.Done()
		results[i], errs[i] = orch.Submit(context.Background(), sub)
	}
	wg.Add(1)
	go submit(0)
	<-gw.entered
	wg.Add(1)
	go submit(1)
	time.Sleep(50 * time.Millisecond)
	close(gw.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Same(t, results[0], results[1])
	assert.Equal(t, []string{"POST /slips/packaging", "POST /orders/send-to-packaging"}, gw.calls)
}

func TestSubmitValidationMakesNoCalls(t *testing.T) {
	gw := &recordingGateway{}
	o := testOrder(domain.RequiredSections{PreExpander: true})
	_, err := NewOrchestrator(gw, nil).Submit(context.Background(), Submission{
		Type:    SlipProduction,
		Order:   o,
		Payload: NewForms(o, LayoutDanaCutting),
	})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, gw.calls)
}

func TestTriggerDeclinedMakesNoCalls(t *testing.T) {
	gw := &recordingGateway{}
	collected := false
	actions := NewActions(NewOrchestrator(gw, nil), ConfirmFunc(func(context.Context, string) (bool, error) {
		return false, nil
	}))
	o := testOrder(domain.RequiredSections{PreExpander: true})
	_, err := actions.Trigger(context.Background(), o, 0, func(ctx context.Context, l Layout, f Payload) (Payload, error) {
		collected = true
		return f, nil
	})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.False(t, collected)
	assert.Empty(t, gw.calls)
}

func TestTriggerConfirmedSubmits(t *testing.T) {
	gw := &recordingGateway{}
	var prompt string
	actions := NewActions(NewOrchestrator(gw, NewMemoryDisabled()), ConfirmFunc(func(_ context.Context, p string) (bool, error) {
		prompt = p
		return true, nil
	}))
	o := testOrder(domain.RequiredSections{ShapeMoulding: true})
	res, err := actions.Trigger(context.Background(), o, 80, func(ctx context.Context, l Layout, f Payload) (Payload, error) {
		assert.Equal(t, LayoutPackaging, l)
		return f, nil
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Send to Packaging")
	assert.Equal(t, LayoutPackaging, res.Layout)

	_, err = actions.Trigger(context.Background(), o, 80, nil)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestTriggerDisabledAction(t *testing.T) {
	o := testOrder(domain.RequiredSections{PreExpander: true})
	o.SentTo.Production = domain.SectionList{domain.SectionPreExpander}
	_, err := NewActions(NewOrchestrator(&recordingGateway{}, nil), nil).Trigger(context.Background(), o, 0, nil)
	assert.ErrorIs(t, err, ErrActionDisabled)
}

func TestStageTransitions(t *testing.T) {
	s, err := StageCreated.Advance(StageProduction)
	require.NoError(t, err)
	s, err = s.Advance(StageDispatch)
	require.NoError(t, err)
	s, err = s.Advance(StageDispatched)
	require.NoError(t, err)
	assert.Equal(t, StageDispatched, s)

	_, err = StageDispatched.Advance(StageProduction)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StageDispatched, terr.From)

	assert.False(t, StagePackaging.CanAdvance(StageProduction))
	assert.Equal(t, StageCreated, ParseStage(""))
	assert.Greater(t, StageDispatch.Rank(), StagePackaging.Rank())
}

func TestIDListJSON(t *testing.T) {
	var l IDList
	require.NoError(t, l.UnmarshalJSON([]byte(`["1624000000000000001", 42]`)))
	assert.Equal(t, IDList{1624000000000000001, 42}, l)
	b, err := l.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["1624000000000000001","42"]`, string(b))
}
