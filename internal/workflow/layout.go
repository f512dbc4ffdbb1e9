package workflow

import (
	"fmt"

	"github.com/talkincode/packflow/internal/domain"
)

// SlipType is the workflow branch a slip submission belongs to
type SlipType string

const (
	SlipProduction     SlipType = "production"
	SlipPackaging      SlipType = "packaging"
	SlipDispatch       SlipType = "dispatch"
	SlipShapePackaging SlipType = "shape-packaging"
)

func ParseSlipType(s string) (SlipType, error) {
	switch t := SlipType(s); t {
	case SlipProduction, SlipPackaging, SlipDispatch, SlipShapePackaging:
		return t, nil
	}
	return "", fmt.Errorf("unknown slip type %q", s)
}

// Layout is the set of forms the slip modal shows for a branch
type Layout string

const (
	LayoutCutting        Layout = "cutting"
	LayoutPackaging      Layout = "packaging"
	LayoutDanaCutting    Layout = "dana+cutting"
	LayoutShapeCutting   Layout = "shape+cutting"
	LayoutShapePackaging Layout = "shape+packaging"
)

// Form names as they appear in the aggregated payload
const (
	FormCutting   = "cuttingFormData"
	FormShape     = "shapeFormData"
	FormPackaging = "packagingFormData"
	FormDana      = "danaFormData"
)

// Forms lists the required forms of the layout
func (l Layout) Forms() []string {
	switch l {
	case LayoutPackaging:
		return []string{FormPackaging}
	case LayoutDanaCutting:
		return []string{FormDana, FormCutting}
	case LayoutShapeCutting:
		return []string{FormShape, FormCutting}
	case LayoutShapePackaging:
		return []string{FormShape, FormPackaging}
	default:
		return []string{FormCutting}
	}
}

// Optional lists forms the layout shows but does not require.
// Shape+cutting carries a packaging sub-form for the packaging hand-off.
func (l Layout) Optional() []string {
	if l == LayoutShapeCutting {
		return []string{FormPackaging}
	}
	return nil
}

// Title is the modal heading
func (l Layout) Title() string {
	switch l {
	case LayoutPackaging:
		return "Packaging"
	case LayoutDanaCutting:
		return "Dana + Cutting"
	case LayoutShapeCutting:
		return "Shape + Cutting"
	case LayoutShapePackaging:
		return "Shape + Packaging"
	default:
		return "Cutting"
	}
}

// LayoutFor picks the modal layout for an order and slip type.
// stock is the current net stock of the order's product.
func LayoutFor(order domain.Order, t SlipType, stock int) (Layout, error) {
	switch t {
	case SlipDispatch:
		return LayoutCutting, nil
	case SlipPackaging:
		return LayoutPackaging, nil
	case SlipShapePackaging:
		return LayoutShapePackaging, nil
	case SlipProduction:
		req := order.Required
		switch {
		case req.IsBlockMoulding():
			return LayoutDanaCutting, nil
		case req.ShapeMoulding:
			if stock >= order.Quantity {
				return LayoutShapePackaging, nil
			}
			return LayoutShapeCutting, nil
		case req.HandMoulding:
			return LayoutCutting, nil
		}
		return "", ErrNoRequiredSection
	}
	return "", fmt.Errorf("unknown slip type %q", t)
}
