package domain

import "time"

// Product catalog item with running stock counters.
// NetStock = Quantity + MaterialPacked - MaterialDispatch, where Quantity is
// the opening (previous) quantity; it is recomputed on every write.
type Product struct {
	ID               int64       `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Name             string      `gorm:"size:200;uniqueIndex" json:"name"`
	Unit             string      `gorm:"size:32" json:"unit"`
	Sizes            SectionList `gorm:"type:text" json:"sizes"`
	Quantity         int         `json:"quantity"`
	MaterialPacked   int         `json:"materialPacked"`
	MaterialDispatch int         `json:"materialDispatch"`
	NetStock         int         `gorm:"index" json:"netStock"`
	Images           SectionList `gorm:"type:text" json:"images"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (Product) TableName() string {
	return "pf_product"
}

// RecomputeNetStock refreshes NetStock from the counters
func (p *Product) RecomputeNetStock() {
	p.NetStock = p.Quantity + p.MaterialPacked - p.MaterialDispatch
}
