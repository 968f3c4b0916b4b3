package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const AllCategories = "All"

type SortKey string

const (
	SortDefault   SortKey = ""
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
	SortName      SortKey = "name"
	SortNewest    SortKey = "newest"
)

// PriceRange is a half-open interval [Min, Max). A nil Max is unbounded.
type PriceRange struct {
	Label string
	Min   decimal.Decimal
	Max   *decimal.Decimal
}

func (r PriceRange) Contains(price decimal.Decimal) bool {
	if price.LessThan(r.Min) {
		return false
	}
	return r.Max == nil || price.LessThan(*r.Max)
}

func bound(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// PriceRanges are the named ranges offered on the product listing.
var PriceRanges = []PriceRange{
	{Label: "Under 500", Min: decimal.Zero, Max: bound(500)},
	{Label: "500-1000", Min: decimal.NewFromInt(500), Max: bound(1000)},
	{Label: "1000-5000", Min: decimal.NewFromInt(1000), Max: bound(5000)},
	{Label: "Above 5000", Min: decimal.NewFromInt(5000)},
}

// ParsePriceRange resolves a range label. Empty and "All" mean no range.
func ParsePriceRange(label string) (*PriceRange, error) {
	if label == "" || label == AllCategories {
		return nil, nil
	}
	for i := range PriceRanges {
		if PriceRanges[i].Label == label {
			r := PriceRanges[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("unknown price range %q", label)
}

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortDefault, SortPriceAsc, SortPriceDesc, SortName, SortNewest:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

type Filter struct {
	SearchTerm string
	Category   string
	PriceRange *PriceRange
	SortKey    SortKey
}

// Apply filters and sorts products without touching the input slice. Ties
// keep the input order.
func Apply(products []domain.Product, f Filter) []domain.Product {
	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if term != "" &&
			!strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) {
			continue
		}
		if f.Category != "" && f.Category != AllCategories && p.Category != f.Category {
			continue
		}
		if f.PriceRange != nil && !f.PriceRange.Contains(p.Price) {
			continue
		}
		out = append(out, p)
	}

	switch f.SortKey {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case SortName:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out
}

// Categories lists distinct categories in first-seen order.
func Categories(products []domain.Product) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}
