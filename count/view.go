/*
view.go - Read-only filtered and paginated views over session lines

PURPOSE:
  Views never own or mutate lines. A view is a fresh copy filtered by any
  combination of reference substring, difference sign, catalog existence,
  stock existence and status.

PAGINATION:
  Pages are 1-based and always clamped to [1, max(1, ceil(n/size))], so a
  filter change can never leave a caller on an out-of-range page.

SEE ALSO:
  - session.go: Holds the filter/page state and resets page on filter change
*/
package count

import (
	"fmt"
	"strings"
)

// DefaultPageSize matches the review table's page size.
const DefaultPageSize = 10

// SignFilter selects lines by the sign of their difference.
type SignFilter string

const (
	SignAll      SignFilter = "all"
	SignPositive SignFilter = "positive"
	SignNegative SignFilter = "negative"
)

// BoolFilter selects lines by a boolean field.
type BoolFilter string

const (
	BoolAll   BoolFilter = "all"
	BoolTrue  BoolFilter = "true"
	BoolFalse BoolFilter = "false"
)

// ParseSignFilter parses "", all, positive or negative.
func ParseSignFilter(s string) (SignFilter, error) {
	switch SignFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", SignAll:
		return SignAll, nil
	case SignPositive:
		return SignPositive, nil
	case SignNegative:
		return SignNegative, nil
	}
	return "", fmt.Errorf("%w: difference %q", ErrInvalidFilter, s)
}

// ParseBoolFilter parses "", all, true or false.
func ParseBoolFilter(s string) (BoolFilter, error) {
	switch BoolFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", BoolAll:
		return BoolAll, nil
	case BoolTrue:
		return BoolTrue, nil
	case BoolFalse:
		return BoolFalse, nil
	}
	return "", fmt.Errorf("%w: %q is not all/true/false", ErrInvalidFilter, s)
}

// ParseStatusFilter parses "" (any) or a status name.
func ParseStatusFilter(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: status %q", ErrInvalidFilter, s)
}

func (b BoolFilter) accepts(v bool) bool {
	switch b {
	case BoolTrue:
		return v
	case BoolFalse:
		return !v
	}
	return true
}

// Filter is a predicate set. The zero value matches every line.
type Filter struct {
	Reference  string     `json:"reference,omitempty"`
	Difference SignFilter `json:"difference,omitempty"`
	InCatalog  BoolFilter `json:"in_catalog,omitempty"`
	InStock    BoolFilter `json:"in_stock,omitempty"`
	Status     Status     `json:"status,omitempty"`
}

// Match reports whether l satisfies every predicate.
func (f Filter) Match(l ReconciledLine) bool {
	if f.Reference != "" &&
		!strings.Contains(strings.ToLower(l.Reference), strings.ToLower(f.Reference)) {
		return false
	}
	switch f.Difference {
	case SignPositive:
		if l.Difference <= 0 {
			return false
		}
	case SignNegative:
		if l.Difference >= 0 {
			return false
		}
	}
	if !f.InCatalog.accepts(l.ExistsInCatalog) || !f.InStock.accepts(l.ExistsInLocationStock) {
		return false
	}
	if f.Status != "" && Classify(l) != f.Status {
		return false
	}
	return true
}

// Normalized spells out the defaults of f, so equal predicates compare equal.
func (f Filter) Normalized() Filter {
	f.Reference = strings.TrimSpace(f.Reference)
	if f.Difference == "" {
		f.Difference = SignAll
	}
	if f.InCatalog == "" {
		f.InCatalog = BoolAll
	}
	if f.InStock == "" {
		f.InStock = BoolAll
	}
	return f
}

// Apply returns the lines matching f, as a copy.
func Apply(lines []ReconciledLine, f Filter) []ReconciledLine {
	out := make([]ReconciledLine, 0, len(lines))
	for _, l := range lines {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

// Page is one slice of a view.
type Page struct {
	Items      []ReconciledLine `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalItems int              `json:"total_items"`
	TotalPages int              `json:"total_pages"`
	StartIndex int              `json:"start_index"`
	EndIndex   int              `json:"end_index"`
}

// TotalPages returns ceil(n/size), at least 1.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := (n + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// ClampPage brings page into [1, TotalPages(n, pageSize)].
func ClampPage(page, n, pageSize int) int {
	if page < 1 {
		return 1
	}
	if last := TotalPages(n, pageSize); page > last {
		return last
	}
	return page
}

// Paginate slices view. Out-of-range pages are clamped.
func Paginate(view []ReconciledLine, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page = ClampPage(page, len(view), pageSize)

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(view) {
		end = len(view)
	}
	items := make([]ReconciledLine, end-start)
	copy(items, view[start:end])

	return Page{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(view),
		TotalPages: TotalPages(len(view), pageSize),
		StartIndex: start,
		EndIndex:   end,
	}
}
