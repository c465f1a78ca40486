package filing

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func sample(n int) []Submission {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Submission, n)
	for i := range out {
		st := StatusPending
		if i%3 == 1 {
			st = StatusApproved
		}
		out[i] = Submission{
			ID:          fmt.Sprintf("s-%02d", i),
			Owner:       Owner{Name: fmt.Sprintf("Payer %d", i), NSTIN: fmt.Sprintf("NSTIN%05d", i)},
			Status:      st,
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestPaginate(t *testing.T) {
	items := sample(25)
	cases := []struct {
		name      string
		filter    Filter
		page      int
		size      int
		wantLen   int
		wantPages int
		wantFirst string
	}{
		{name: "first page", page: 1, size: 10, wantLen: 10, wantPages: 3, wantFirst: "s-24"},
		{name: "last page", page: 3, size: 10, wantLen: 5, wantPages: 3, wantFirst: "s-04"},
		{name: "beyond last", page: 4, size: 10, wantLen: 0, wantPages: 3},
		{name: "huge page", page: math.MaxInt/10 + 2, size: 10, wantLen: 0, wantPages: 3},
		{name: "max page", page: math.MaxInt, size: 7, wantLen: 0, wantPages: 4},
		{name: "zero page clamps", page: 0, size: 10, wantLen: 10, wantPages: 3, wantFirst: "s-24"},
		{name: "default size", page: 1, size: 0, wantLen: 10, wantPages: 3, wantFirst: "s-24"},
		{name: "status filter", filter: Filter{Status: "approved"}, page: 1, size: 10, wantLen: 8, wantPages: 1, wantFirst: "s-22"},
		{name: "search nstin", filter: Filter{Search: "nstin00007"}, page: 1, size: 10, wantLen: 1, wantPages: 1, wantFirst: "s-07"},
		{name: "search name", filter: Filter{Search: "PAYER 1"}, page: 1, size: 10, wantLen: 10, wantPages: 2, wantFirst: "s-19"},
		{name: "no match", filter: Filter{Search: "nobody"}, page: 1, size: 10, wantLen: 0, wantPages: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Paginate(items, tc.filter, tc.page, tc.size)
			if len(got.Items) != tc.wantLen {
				t.Fatalf("len = %d, want %d", len(got.Items), tc.wantLen)
			}
			if got.TotalPages != tc.wantPages {
				t.Fatalf("pages = %d, want %d", got.TotalPages, tc.wantPages)
			}
			if tc.wantFirst != "" && got.Items[0].ID != tc.wantFirst {
				t.Fatalf("first = %s, want %s", got.Items[0].ID, tc.wantFirst)
			}
			if got.Items == nil {
				t.Fatal("items must be non-nil")
			}
		})
	}
}

func TestTotalPages(t *testing.T) {
	cases := map[[2]int]int{
		{0, 10}:  0,
		{1, 10}:  1,
		{10, 10}: 1,
		{11, 10}: 2,
		{5, 0}:   0,
	}
	for in, want := range cases {
		if got := TotalPages(in[0], in[1]); got != want {
			t.Fatalf("TotalPages(%d,%d) = %d, want %d", in[0], in[1], got, want)
		}
	}
}
