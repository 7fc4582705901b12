// Package shared holds list filter types common to the catalog entities.
package shared

import "strings"

// ListFilters represents standard list page filters.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string
	Active  *bool

	CategoryID *int64
}

// Offset returns the SQL offset for the current page.
func (f ListFilters) Offset() int {
	offset := (f.Page - 1) * f.Limit
	if offset < 0 {
		return 0
	}
	return offset
}

// SortOrder builds an ORDER BY clause from a whitelist of sortable columns.
// Unknown columns fall back to the first allowed column.
func SortOrder(sortBy, sortDir string, allowed ...string) string {
	column := allowed[0]
	for _, candidate := range allowed {
		if candidate == sortBy {
			column = candidate
			break
		}
	}
	if strings.EqualFold(sortDir, "desc") {
		return column + " DESC"
	}
	return column + " ASC"
}
