package workflow

import (
	"fmt"

	"github.com/talkincode/packflow/internal/domain"
)

type ActionKind string

const (
	ActionSendToPackaging  ActionKind = "send-to-packaging"
	ActionDispatchInStock  ActionKind = "dispatch-in-stock"
	ActionSendToProduction ActionKind = "send-to-production"
)

func (k ActionKind) Label() string {
	switch k {
	case ActionSendToPackaging:
		return "Send to Packaging"
	case ActionDispatchInStock:
		return "Dispatch (In Stock)"
	default:
		return "Send to Production"
	}
}

// Action is the row button an order gets in the order list
type Action struct {
	Kind         ActionKind `json:"kind"`
	Label        string     `json:"label"`
	SlipType     SlipType   `json:"slipType"`
	Disabled     bool       `json:"disabled"`
	Reason       string     `json:"reason,omitempty"`
	Stock        int        `json:"stock"`
	RequiredKeys []string   `json:"requiredKeys"`
}

// Prompt is the confirmation question shown before the slip modal opens
func (a Action) Prompt(order domain.Order) string {
	return fmt.Sprintf("%s for order %s (%s, qty %d)?", a.Label, order.ShortID, order.ProductName, order.Quantity)
}

// Decide computes the row action of an order from its flags and the
// product's current stock.
func Decide(order domain.Order, stock int) Action {
	keys := order.Required.Keys()
	alreadySentToProduction := order.SentTo.Production.HasAll(keys)
	alreadyDispatched := order.SentTo.Dispatch.HasAll(keys)
	inStock := stock >= order.Quantity

	a := Action{Stock: stock, RequiredKeys: keys}
	switch {
	case len(keys) == 1 && keys[0] == domain.SectionShapeMoulding && inStock:
		a.Kind = ActionSendToPackaging
		a.SlipType = SlipPackaging
		if order.ReadyForPackaging {
			a.Disabled, a.Reason = true, "already sent to packaging"
		}
	case inStock:
		a.Kind = ActionDispatchInStock
		if order.Required.ShapeMoulding {
			a.SlipType = SlipPackaging
		} else {
			a.SlipType = SlipDispatch
		}
		switch {
		case len(keys) > 0 && alreadyDispatched:
			a.Disabled, a.Reason = true, "already dispatched"
		case a.SlipType == SlipPackaging && order.ReadyForPackaging:
			a.Disabled, a.Reason = true, "already sent to packaging"
		}
	default:
		a.Kind = ActionSendToProduction
		a.SlipType = SlipProduction
		switch {
		case alreadySentToProduction:
			a.Disabled, a.Reason = true, "already sent to production"
		case alreadyDispatched:
			a.Disabled, a.Reason = true, "already dispatched"
		}
	}
	a.Label = a.Kind.Label()
	return a
}
