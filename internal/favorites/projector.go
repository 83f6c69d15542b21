package favorites

import "sort"

// DefaultPageSize is used when a caller asks for a page size below one.
const DefaultPageSize = 5

// Page is a read-only slice of the registry prepared for display.
type Page struct {
	Items      []Record `json:"items"`
	TotalCount int      `json:"total_count"`
	TotalPages int      `json:"total_pages"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// Project sorts records by message reference, highest position first,
// and returns the requested page clamped into range. Non-numeric
// references sort after numeric ones; ties keep insertion order. The
// input slice is never modified.
func Project(records []Record, page, pageSize int) Page {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(a, b int) bool {
		ia, okA := parseIndex(sorted[a].MessageRef)
		ib, okB := parseIndex(sorted[b].MessageRef)
		switch {
		case okA && okB:
			return ia > ib
		case okA:
			return true
		default:
			return false
		}
	})

	total := len(sorted)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	items := []Record{}
	if start < end {
		items = sorted[start:end:end]
	}
	return Page{
		Items:      items,
		TotalCount: total,
		TotalPages: totalPages,
		Page:       page,
		PageSize:   pageSize,
	}
}
