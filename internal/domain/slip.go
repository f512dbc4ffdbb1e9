package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Slip kinds, also the path segment under /slips
const (
	SlipKindShape     = "production"
	SlipKindDana      = "dana"
	SlipKindDispatch  = "dispatch"
	SlipKindPackaging = "packaging"
)

var SlipKinds = []string{SlipKindShape, SlipKindDana, SlipKindDispatch, SlipKindPackaging}

// DanaSlip raw-block (pre-expander) production record
type DanaSlip struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	OrderID   int64     `gorm:"index" json:"orderId,string"`
	Density   float64   `json:"density"`
	Weight    float64   `json:"weight"`
	Quantity  int       `json:"quantity"`
	BatchNo   string    `gorm:"size:64" json:"batchNo"`
	Remarks   string    `json:"remarks"`
	CreatedBy string    `gorm:"size:64" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (DanaSlip) TableName() string {
	return "pf_slip_dana"
}

// ShapeSlip shape-moulding production record
type ShapeSlip struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	OrderID     int64     `gorm:"index" json:"orderId,string"`
	ProductName string    `gorm:"size:200" json:"productName"`
	Size        string    `gorm:"size:64" json:"size"`
	Density     float64   `json:"density"`
	Weight      float64   `json:"weight"`
	Quantity    int       `json:"quantity"`
	Remarks     string    `json:"remarks"`
	CreatedBy   string    `gorm:"size:64" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ShapeSlip) TableName() string {
	return "pf_slip_shape"
}

// DispatchSlip cutting/dispatch record; Rows holds the cutting rows as JSON
type DispatchSlip struct {
	ID        int64          `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	OrderID   int64          `gorm:"index" json:"orderId,string"`
	Rows      datatypes.JSON `json:"row"`
	TotalQty  int            `json:"totalQty"`
	CreatedBy string         `gorm:"size:64" json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}

func (DispatchSlip) TableName() string {
	return "pf_slip_dispatch"
}

// PackagingSlip packaging record
type PackagingSlip struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	OrderID     int64     `gorm:"index" json:"orderId,string"`
	ProductName string    `gorm:"size:200" json:"productName"`
	Size        string    `gorm:"size:64" json:"size"`
	Quantity    int       `json:"quantity"`
	Weight      float64   `json:"weight"`
	PackingType string    `gorm:"size:64" json:"packingType"`
	Remarks     string    `json:"remarks"`
	CreatedBy   string    `gorm:"size:64" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func (PackagingSlip) TableName() string {
	return "pf_slip_packaging"
}
