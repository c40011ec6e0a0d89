package fixtures

import (
	"testing"

	"menu360/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEveryKindNonEmpty(t *testing.T) {
	g := MustNew()
	for _, k := range domain.AllKinds {
		recs := g.Generate(domain.NewQueryKey(k, "r1"))
		assert.NotEmpty(t, recs, k)
		for _, r := range recs {
			assert.NotEmpty(t, r.RecordID(), k)
			assert.Equal(t, "r1", r.RecordRestaurantID(), k)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := MustNew()
	key := domain.NewQueryKey(domain.KindMenuItems, "r1")
	assert.Equal(t, g.Generate(key), g.Generate(key))

	other := g.Generate(domain.NewQueryKey(domain.KindMenuItems, "r2"))
	assert.NotEqual(t, g.Generate(key)[0].RecordID(), other[0].RecordID())
}

func TestMenuItemsReferenceGeneratedCategories(t *testing.T) {
	g := MustNew()
	cats := map[string]bool{}
	for _, c := range g.Generate(domain.NewQueryKey(domain.KindCategories, "r1")) {
		cats[c.RecordID()] = true
	}
	for _, r := range g.Generate(domain.NewQueryKey(domain.KindMenuItems, "r1")) {
		m := r.(domain.MenuItem)
		require.NotNil(t, m.CategoryID)
		assert.True(t, cats[*m.CategoryID], m.Name)
		assert.NotNil(t, m.Tags)
	}
}

func TestOrdersRespectTableScope(t *testing.T) {
	g := MustNew()
	for _, r := range g.Generate(domain.NewQueryKey(domain.KindOrders, "r1").WithScope("T9")) {
		o := r.(domain.Order)
		assert.Equal(t, "T9", o.TableID)
		assert.NoError(t, o.Validate())
		assert.InDelta(t, o.ItemsTotal(), o.Total, 1e-9)
	}
}

func TestParseRejectsEmptyCatalog(t *testing.T) {
	_, err := Parse([]byte("restaurant: {name: x}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("::"))
	assert.Error(t, err)
}
