package workflow

import (
	"context"

	"github.com/talkincode/packflow/internal/domain"
)

// Confirmer asks the operator to confirm an action before the slip modal opens
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Collector plays the slip modal: it receives the layout and the pre-filled
// forms and returns what the operator entered.
type Collector func(ctx context.Context, layout Layout, forms Payload) (Payload, error)

// Actions drives an order-list row button end to end
type Actions struct {
	orch    *Orchestrator
	confirm Confirmer
}

func NewActions(orch *Orchestrator, confirm Confirmer) *Actions {
	return &Actions{orch: orch, confirm: confirm}
}

// Trigger decides the order's action, asks for confirmation, collects the
// slip forms and submits them. Declining the confirmation returns
// ErrDeclined before any gateway call is made.
func (a *Actions) Trigger(ctx context.Context, order domain.Order, stock int, collect Collector) (*Result, error) {
	act := Decide(order, stock)
	if act.Disabled {
		return nil, ErrActionDisabled
	}
	if a.orch.IsDisabled(order.ID) {
		return nil, ErrAlreadySubmitted
	}
	if a.confirm != nil {
		ok, err := a.confirm.Confirm(ctx, act.Prompt(order))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDeclined
		}
	}
	layout, err := LayoutFor(order, act.SlipType, stock)
	if err != nil {
		return nil, err
	}
	payload, err := collect(ctx, layout, NewForms(order, layout))
	if err != nil {
		return nil, err
	}
	return a.orch.Submit(ctx, Submission{
		Type:    act.SlipType,
		Order:   order,
		Stock:   stock,
		Payload: payload,
	})
}
