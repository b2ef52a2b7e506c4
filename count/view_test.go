package count_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-count/count"
)

func bigSession(n int) *count.Session {
	counted := make([]count.CountedLine, n)
	facts := make(map[string]count.CatalogStockFact)
	for i := 0; i < n; i++ {
		ref := fmt.Sprintf("REF-%03d", i)
		counted[i] = count.CountedLine{Reference: ref, CountedQuantity: 5}
		switch i % 3 {
		case 0:
			facts[ref] = stocked(ref, 5)
		case 1:
			facts[ref] = stocked(ref, 2)
		}
	}
	return count.NewSession("s", "loc", count.TypeFull, count.Reconcile(counted, facts))
}

func TestFilter_ReferenceCaseInsensitive(t *testing.T) {
	s := newFullSession(t)
	got := s.Filter(count.Filter{Reference: "ref-2"})
	require.Len(t, got, 1)
	assert.Equal(t, "REF-2", got[0].Reference)
}

func TestFilter_Combinations(t *testing.T) {
	s := newFullSession(t)

	unknown := s.Filter(count.Filter{InCatalog: count.BoolFalse})
	require.Len(t, unknown, 1)
	assert.Equal(t, "REF-2", unknown[0].Reference)

	notStocked := s.Filter(count.Filter{InCatalog: count.BoolTrue, InStock: count.BoolFalse})
	require.Len(t, notStocked, 1)
	assert.Equal(t, "REF-3", notStocked[0].Reference)

	negative := s.Filter(count.Filter{Difference: count.SignNegative, InStock: count.BoolTrue})
	require.Len(t, negative, 1)
	assert.Equal(t, "REF-4", negative[0].Reference)

	mismatch := s.Filter(count.Filter{Status: count.StatusQuantityMismatch})
	require.Len(t, mismatch, 1)
	assert.Equal(t, "REF-4", mismatch[0].Reference)

	assert.Len(t, s.Filter(count.Filter{}), 4)
}

func TestFilter_DoesNotMutate(t *testing.T) {
	s := newFullSession(t)
	view := s.Filter(count.Filter{})
	view[0].ManualQuantity = 99

	l, _ := s.Line(view[0].Reference)
	assert.Equal(t, 0, l.ManualQuantity)
}

func TestParseFilters(t *testing.T) {
	sign, err := count.ParseSignFilter("Positive")
	require.NoError(t, err)
	assert.Equal(t, count.SignPositive, sign)

	b, err := count.ParseBoolFilter("")
	require.NoError(t, err)
	assert.Equal(t, count.BoolAll, b)

	_, err = count.ParseBoolFilter("maybe")
	assert.ErrorIs(t, err, count.ErrInvalidFilter)

	_, err = count.ParseStatusFilter("broken")
	assert.ErrorIs(t, err, count.ErrInvalidFilter)
}

func TestPaginate_Slices(t *testing.T) {
	s := bigSession(25)
	view := s.Filter(count.Filter{})

	p := count.Paginate(view, 3, 10)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 25, p.TotalItems)
	assert.Len(t, p.Items, 5)
	assert.Equal(t, 20, p.StartIndex)
	assert.Equal(t, 25, p.EndIndex)
}

func TestPaginate_ClampsOutOfRange(t *testing.T) {
	view := bigSession(25).Filter(count.Filter{})

	assert.Equal(t, 3, count.Paginate(view, 99, 10).Page)
	assert.Equal(t, 1, count.Paginate(view, -2, 10).Page)
	assert.Equal(t, count.DefaultPageSize, count.Paginate(view, 1, 0).PageSize)

	empty := count.Paginate(nil, 4, 10)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 1, empty.TotalPages)
	assert.Empty(t, empty.Items)
}

func TestSetFilter_ResetsPage(t *testing.T) {
	// GIVEN: A session browsed to page 3 of all lines
	s := bigSession(30)
	s.SetPage(3)
	require.Equal(t, 3, s.CurrentPage(10).Page)

	// WHEN: The filter narrows the view to fewer pages
	s.SetFilter(count.Filter{Difference: count.SignPositive})

	// THEN: Page is reset to 1 and within range
	p := s.CurrentPage(10)
	assert.Equal(t, 1, p.Page)
	assert.LessOrEqual(t, p.Page, p.TotalPages)
}

func TestFilterPaginationBound(t *testing.T) {
	s := bigSession(47)
	filters := []count.Filter{
		{},
		{Difference: count.SignPositive},
		{Difference: count.SignNegative},
		{InCatalog: count.BoolFalse},
		{Reference: "REF-04"},
		{Reference: "nothing"},
	}
	for _, f := range filters {
		for _, requested := range []int{1, 2, 5, 50} {
			s.SetPage(requested)
			s.SetFilter(f)
			p := s.CurrentPage(10)
			require.Equal(t, 1, p.Page, "filter %+v", f)
			require.LessOrEqual(t, p.Page, count.TotalPages(len(s.Filter(f)), 10))

			s.SetPage(requested)
			p = s.CurrentPage(10)
			require.LessOrEqual(t, p.Page, p.TotalPages)
		}
	}
}

func TestFilter_Normalized(t *testing.T) {
	assert.Equal(t, count.Filter{Difference: count.SignAll, InCatalog: count.BoolAll, InStock: count.BoolAll},
		count.Filter{}.Normalized())
	assert.Equal(t, count.Filter{}.Normalized(), newFullSession(t).CurrentFilter())

	s := newFullSession(t)
	s.SetFilter(count.Filter{Reference: " ref-1 "})
	assert.Equal(t, "ref-1", s.CurrentFilter().Reference)
}
