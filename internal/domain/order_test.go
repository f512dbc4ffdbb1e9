package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionListValueScan(t *testing.T) {
	v, err := SectionList{SectionShapeMoulding, SectionPreExpander}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["shapeMoulding","preExpander"]`, v)

	var nilList SectionList
	v, err = nilList.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var s SectionList
	require.NoError(t, s.Scan([]byte(`["handMoulding"]`)))
	assert.Equal(t, SectionList{SectionHandMoulding}, s)
	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)
	assert.Error(t, s.Scan(42))
}

func TestSectionListAppendIsSetLike(t *testing.T) {
	s := SectionList{SectionPreExpander}
	out := s.Append(SectionPreExpander, SectionShapeMoulding)
	assert.Equal(t, SectionList{SectionPreExpander, SectionShapeMoulding}, out)
	// receiver untouched
	assert.Equal(t, SectionList{SectionPreExpander}, s)

	assert.True(t, out.HasAll([]string{SectionShapeMoulding}))
	assert.False(t, out.HasAll([]string{SectionHandMoulding}))
	assert.True(t, SectionList{}.HasAll(nil))
}

func TestRequiredSectionsKeysOrder(t *testing.T) {
	r := RequiredSections{HandMoulding: true, ShapeMoulding: true, PreExpander: true}
	assert.Equal(t, []string{SectionShapeMoulding, SectionPreExpander, SectionHandMoulding}, r.Keys())
	assert.False(t, r.IsBlockMoulding())
	assert.True(t, RequiredSections{PreExpander: true}.IsBlockMoulding())
}

func TestOrderTotal(t *testing.T) {
	o := Order{
		Quantity:        10,
		Price:           decimal.RequireFromString("12.50"),
		PackagingCharge: decimal.RequireFromString("5"),
		FreightTerms:    "paid",
		FreightAmount:   decimal.RequireFromString("20"),
	}
	assert.Equal(t, "150", o.Total().String())
	o.FreightTerms = "included"
	assert.Equal(t, "130", o.Total().String())
}

func TestProductRecomputeNetStock(t *testing.T) {
	p := Product{Quantity: 100, MaterialPacked: 30, MaterialDispatch: 45}
	p.RecomputeNetStock()
	assert.Equal(t, 85, p.NetStock)
}
