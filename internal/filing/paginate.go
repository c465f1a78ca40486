package filing

import (
	"sort"
	"strings"
)

// Matches reports whether s passes the status and search parts of f. Search
// is a case-insensitive substring match on the owner's name or NSTIN.
func Matches(s Submission, f Filter) bool {
	if f.Status != "" && f.Status != StatusAll && string(s.Status) != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Owner.Name), q) ||
		strings.Contains(strings.ToLower(s.Owner.NSTIN), q)
}

// SortRecentFirst orders submissions by SubmittedAt descending, breaking ties
// by id descending so the order is stable.
func SortRecentFirst(items []Submission) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.After(b.SubmittedAt)
		}
		return a.ID > b.ID
	})
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Paginate filters, orders and slices items. page is 1-indexed; a page past
// the end yields no items.
func Paginate(items []Submission, f Filter, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	matched := make([]Submission, 0, len(items))
	for _, s := range items {
		if Matches(s, f) {
			matched = append(matched, s)
		}
	}
	SortRecentFirst(matched)

	out := Page{Items: []Submission{}, TotalPages: TotalPages(len(matched), pageSize), CurrentPage: page}
	if len(matched) == 0 || page-1 > (len(matched)-1)/pageSize {
		return out
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	out.Items = append(out.Items, matched[start:end]...)
	return out
}
