package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var numberJSON = jsoniter.Config{UseNumber: true}.Froze()

// IDList encodes ids as JSON strings and accepts strings or numbers
type IDList []int64

func (l IDList) MarshalJSON() ([]byte, error) {
	out := make([]string, len(l))
	for i, id := range l {
		out[i] = strconv.FormatInt(id, 10)
	}
	return jsoniter.Marshal(out)
}

func (l *IDList) UnmarshalJSON(b []byte) error {
	var raw []interface{}
	if err := numberJSON.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(IDList, 0, len(raw))
	for _, v := range raw {
		var s string
		switch n := v.(type) {
		case json.Number:
			s = n.String()
		case string:
			s = n
		default:
			return fmt.Errorf("invalid id %v", v)
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		out = append(out, id)
	}
	*l = out
	return nil
}

// ShapeSlipRequest body of POST /slips/production
type ShapeSlipRequest struct {
	OrderID int64 `json:"orderId,string"`
	ShapeForm
}

// DanaSlipRequest body of POST /slips/dana
type DanaSlipRequest struct {
	OrderID int64 `json:"orderId,string"`
	DanaForm
}

// DispatchSlipRequest body of POST /slips/dispatch
type DispatchSlipRequest struct {
	OrderID int64         `json:"orderId,string"`
	Row     []CuttingForm `json:"row"`
}

// PackagingSlipRequest body of POST /slips/packaging
type PackagingSlipRequest struct {
	OrderID int64 `json:"orderId,string"`
	PackagingForm
}

// ProductionRequest body of PUT /orders/send-to-production/:orderId
type ProductionRequest struct {
	OrderID      int64         `json:"-"`
	Sections     []string      `json:"sections"`
	DanaSlip     *int64        `json:"danaSlip,string,omitempty"`
	DispatchSlip *int64        `json:"dispatchSlip,string,omitempty"`
	ShapeSlip    *int64        `json:"shapeSlip,string,omitempty"`
	Dana         *DanaForm     `json:"danaFormData,omitempty"`
	ShapeRows    []ShapeForm   `json:"shapeRows,omitempty"`
	CuttingRows  []CuttingForm `json:"cuttingRows,omitempty"`
}

// PackagingRequest body of POST /orders/send-to-packaging
type PackagingRequest struct {
	OrderID       int64           `json:"orderId,string"`
	PackagingSlip *int64          `json:"packagingSlip,string,omitempty"`
	PackagingRows []PackagingForm `json:"packagingRows"`
}

// DispatchRequest body of POST /orders/send-to-dispatch
type DispatchRequest struct {
	OrderIDs     IDList        `json:"orderIds"`
	Sections     []string      `json:"sections"`
	DispatchSlip *int64        `json:"dispatchSlip,string,omitempty"`
	CuttingRows  []CuttingForm `json:"cuttingRows"`
}

// Gateway executes single workflow steps. The REST client implements it
// against the backend; the fulfillment service implements it inside a
// database transaction.
type Gateway interface {
	CreateShapeSlip(ctx context.Context, req ShapeSlipRequest) (int64, error)
	CreateDanaSlip(ctx context.Context, req DanaSlipRequest) (int64, error)
	CreateDispatchSlip(ctx context.Context, req DispatchSlipRequest) (int64, error)
	CreatePackagingSlip(ctx context.Context, req PackagingSlipRequest) (int64, error)
	SendToProduction(ctx context.Context, req ProductionRequest) error
	SendToPackaging(ctx context.Context, req PackagingRequest) error
	SendToDispatch(ctx context.Context, req DispatchRequest) error
}
