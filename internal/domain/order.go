package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Required section keys
const (
	SectionShapeMoulding = "shapeMoulding"
	SectionPreExpander   = "preExpander"
	SectionHandMoulding  = "handMoulding"
)

// Production status values (Order.Status)
const (
	StatusPending   = "pending"
	StatusInProcess = "in process"
	StatusProcessed = "processed"
)

// Packaging status values (Order.PackagingStatus)
const (
	PackagingUnpackaged = "unpackaged"
	PackagingPackaged   = "packaged"
)

// Dispatch status values (Order.DispatchStatus)
const (
	DispatchNotDispatched = "not dispatched"
	DispatchReady         = "ready to dispatch"
	DispatchDispatched    = "dispatched"
)

var (
	ProductionStatuses = []string{StatusPending, StatusInProcess, StatusProcessed}
	PackagingStatuses  = []string{PackagingUnpackaged, PackagingPackaged}
	DispatchStatuses   = []string{DispatchNotDispatched, DispatchReady, DispatchDispatched}
)

// SectionList is a list of section keys stored as a JSON array
type SectionList []string

func (s SectionList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SectionList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = SectionList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported SectionList source %T", src)
	}
	if len(raw) == 0 {
		*s = SectionList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// Has reports whether key is in the list
func (s SectionList) Has(key string) bool {
	for _, v := range s {
		if v == key {
			return true
		}
	}
	return false
}

// HasAll reports whether every key is in the list. An empty key set yields true.
func (s SectionList) HasAll(keys []string) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Append returns the list with keys appended, skipping ones already present
func (s SectionList) Append(keys ...string) SectionList {
	out := append(SectionList{}, s...)
	for _, k := range keys {
		if !out.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// RequiredSections flags the production lines an order has to pass through
type RequiredSections struct {
	ShapeMoulding bool `json:"shapeMoulding"`
	PreExpander   bool `json:"preExpander"`
	HandMoulding  bool `json:"handMoulding"`
}

// Keys returns the set flags in fixed order
func (r RequiredSections) Keys() []string {
	keys := make([]string, 0, 3)
	if r.ShapeMoulding {
		keys = append(keys, SectionShapeMoulding)
	}
	if r.PreExpander {
		keys = append(keys, SectionPreExpander)
	}
	if r.HandMoulding {
		keys = append(keys, SectionHandMoulding)
	}
	return keys
}

// IsBlockMoulding is the raw-block line: pre-expander without shape moulding
func (r RequiredSections) IsBlockMoulding() bool {
	return r.PreExpander && !r.ShapeMoulding
}

// SentTo append-only markers of stages already notified, per section
type SentTo struct {
	Production SectionList `gorm:"type:text" json:"production"`
	Packaging  SectionList `gorm:"type:text" json:"packaging"`
	Dispatch   SectionList `gorm:"type:text" json:"dispatch"`
}

// Order one product line of a purchase order
type Order struct {
	ID              int64            `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	ShortID         string           `gorm:"size:32;uniqueIndex" json:"short_id"`
	CustomerName    string           `gorm:"size:200;index" json:"customer_name"`
	PONumber        string           `gorm:"column:po_number;size:64;index" json:"po_number"`
	ProductID       int64            `gorm:"index" json:"product_id,string"`
	ProductName     string           `gorm:"size:200" json:"product_name"`
	Size            string           `gorm:"size:64" json:"size"`
	Quantity        int              `json:"quantity"`
	Price           decimal.Decimal  `gorm:"type:decimal(14,2)" json:"price"`
	Density         float64          `json:"density"`
	PackagingCharge decimal.Decimal  `gorm:"type:decimal(14,2)" json:"packaging_charge"`
	FreightTerms    string           `gorm:"size:32" json:"freight_terms"` // paid | to-pay | included
	FreightAmount   decimal.Decimal  `gorm:"type:decimal(14,2)" json:"freight_amount"`
	Required        RequiredSections `gorm:"embedded;embeddedPrefix:required_" json:"requiredSections"`
	SentTo          SentTo           `gorm:"embedded;embeddedPrefix:sent_to_" json:"sentTo"`
	Stage           string           `gorm:"size:20;index;default:created" json:"stage"`
	Status          string           `gorm:"size:20;index;default:pending" json:"status"`
	PackagingStatus string           `gorm:"size:20;index;default:unpackaged" json:"packagingStatus"`
	DispatchStatus  string           `gorm:"size:20;index;default:'not dispatched'" json:"dispatchStatus"`
	DanaSlipID      *int64           `json:"danaSlip,string,omitempty"`
	ShapeSlipID     *int64           `json:"shapeSlip,string,omitempty"`
	DispatchSlipID  *int64           `json:"dispatchSlip,string,omitempty"`
	PackagingSlipID *int64           `json:"packagingSlip,string,omitempty"`
	// ReadyForPackaging is set once the order has been sent to packaging
	ReadyForPackaging bool       `gorm:"index" json:"readyForPackaging"`
	StockBooked       bool       `json:"-"`
	Remark            string     `json:"remark"`
	CreatedBy         string     `gorm:"size:64" json:"created_by"`
	DispatchedAt      *time.Time `json:"dispatched_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName Specify table name
func (Order) TableName() string {
	return "pf_order"
}

// Total is price × quantity plus packaging charge and freight
func (o Order) Total() decimal.Decimal {
	total := o.Price.Mul(decimal.NewFromInt(int64(o.Quantity))).Add(o.PackagingCharge)
	if o.FreightTerms != "included" {
		total = total.Add(o.FreightAmount)
	}
	return total
}

// WorkflowRun stores the outcome of an idempotent workflow advance
type WorkflowRun struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Key       string    `gorm:"column:idem_key;size:64;uniqueIndex" json:"key"`
	OrderID   int64     `gorm:"index" json:"order_id,string"`
	SlipType  string    `gorm:"size:32" json:"slip_type"`
	Steps     string    `gorm:"type:text" json:"steps"`  // JSON encoded step results
	Result    string    `gorm:"type:text" json:"result"` // JSON encoded order snapshot
	CreatedBy string    `gorm:"size:64" json:"created_by"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (WorkflowRun) TableName() string {
	return "pf_workflow_run"
}
