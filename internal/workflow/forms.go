package workflow

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/talkincode/packflow/internal/domain"
)

// CuttingForm one cutting row; also the row shape of a dispatch slip
type CuttingForm struct {
	ProductName string  `json:"productName" validate:"required"`
	Size        string  `json:"size" validate:"required"`
	Density     float64 `json:"density" validate:"gt=0"`
	Quantity    int     `json:"quantity" validate:"gte=1"`
	Remarks     string  `json:"remarks"`
}

// ShapeForm shape-moulding production measurements
type ShapeForm struct {
	ProductName string  `json:"productName" validate:"required"`
	Size        string  `json:"size" validate:"required"`
	Density     float64 `json:"density" validate:"gt=0"`
	Weight      float64 `json:"weight" validate:"gt=0"`
	Quantity    int     `json:"quantity" validate:"gte=1"`
	Remarks     string  `json:"remarks"`
}

// PackagingForm packaging measurements
type PackagingForm struct {
	ProductName string  `json:"productName" validate:"required"`
	Size        string  `json:"size" validate:"required"`
	Quantity    int     `json:"quantity" validate:"gte=1"`
	Weight      float64 `json:"weight" validate:"gte=0"`
	PackingType string  `json:"packingType"`
	Remarks     string  `json:"remarks"`
}

// DanaForm raw-block (dana) production measurements
type DanaForm struct {
	Density  float64 `json:"density" validate:"gt=0"`
	Weight   float64 `json:"weight" validate:"gt=0"`
	Quantity int     `json:"quantity" validate:"gte=1"`
	BatchNo  string  `json:"batchNo"`
	Remarks  string  `json:"remarks"`
}

// Payload is the aggregated output of the slip modal
type Payload struct {
	Cutting   *CuttingForm   `json:"cuttingFormData,omitempty"`
	Shape     *ShapeForm     `json:"shapeFormData,omitempty"`
	Packaging *PackagingForm `json:"packagingFormData,omitempty"`
	Dana      *DanaForm      `json:"danaFormData,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewForms builds the modal's initial state: product name is pre-filled
// read-only, size/density/quantity default from the order, the rest is left
// for the operator.
func NewForms(order domain.Order, layout Layout) Payload {
	var p Payload
	for _, name := range append(layout.Forms(), layout.Optional()...) {
		switch name {
		case FormCutting:
			p.Cutting = &CuttingForm{
				ProductName: order.ProductName,
				Size:        order.Size,
				Density:     order.Density,
				Quantity:    order.Quantity,
			}
		case FormShape:
			p.Shape = &ShapeForm{
				ProductName: order.ProductName,
				Size:        order.Size,
				Density:     order.Density,
				Quantity:    order.Quantity,
			}
		case FormPackaging:
			p.Packaging = &PackagingForm{
				ProductName: order.ProductName,
				Size:        order.Size,
				Quantity:    order.Quantity,
			}
		case FormDana:
			p.Dana = &DanaForm{Density: order.Density}
		}
	}
	return p
}

func (p Payload) form(name string) interface{} {
	switch name {
	case FormCutting:
		if p.Cutting != nil {
			return p.Cutting
		}
	case FormShape:
		if p.Shape != nil {
			return p.Shape
		}
	case FormPackaging:
		if p.Packaging != nil {
			return p.Packaging
		}
	case FormDana:
		if p.Dana != nil {
			return p.Dana
		}
	}
	return nil
}

// Validate checks presence and numeric minimums of the forms the layout
// requires, plus any optional form that was filled in.
func (p Payload) Validate(layout Layout) error {
	fields := map[string]string{}
	check := func(name string, required bool) {
		f := p.form(name)
		if f == nil {
			if required {
				fields[name] = "required"
			}
			return
		}
		if err := validate.Struct(f); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				fields[name] = err.Error()
				return
			}
			for _, fe := range verrs {
				msg := fe.Tag()
				if fe.Param() != "" {
					msg += "=" + fe.Param()
				}
				fields[name+"."+fe.Field()] = msg
			}
		}
	}
	for _, name := range layout.Forms() {
		check(name, true)
	}
	for _, name := range layout.Optional() {
		check(name, false)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// DecodePayload decodes loosely typed modal output; numeric strings are
// accepted for numeric fields.
func DecodePayload(raw map[string]interface{}) (Payload, error) {
	var p Payload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &p,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(raw); err != nil {
		return p, fmt.Errorf("decode slip payload: %w", err)
	}
	return p, nil
}

// packagingFromShape derives the packaging hand-off when the operator left
// the packaging sub-form empty
func packagingFromShape(s *ShapeForm) PackagingForm {
	return PackagingForm{
		ProductName: s.ProductName,
		Size:        s.Size,
		Quantity:    s.Quantity,
		Weight:      s.Weight,
		Remarks:     s.Remarks,
	}
}
