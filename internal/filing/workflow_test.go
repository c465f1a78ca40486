package filing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
)

var (
	taxpayer = auth.Identity{ID: "u-1", NSTIN: "AB12345678", Name: "Tom Payer", Email: "tom@example.com", Role: auth.RoleUser}
	other    = auth.Identity{ID: "u-2", NSTIN: "CD98765432", Name: "Sue Filer", Email: "sue@example.com", Role: auth.RoleUser}
	admin    = auth.Identity{ID: "a-1", NSTIN: "ADMIN00001", Name: "Ada Admin", Email: "ada@tax.gov", Role: auth.RoleAdmin}
	admin2   = auth.Identity{ID: "a-2", NSTIN: "ADMIN00002", Name: "Bo Admin", Email: "bo@tax.gov", Role: auth.RoleAdmin}
)

func fixedNow() time.Time { return time.Date(2024, 4, 2, 10, 30, 0, 0, time.UTC) }

func newWorkflow(b *memBackend) *Workflow {
	return NewWorkflow(b, b, WithClock(fixedNow))
}

func annualReturn() Payload {
	return Payload{
		TemplateType: "annual_returns",
		TaxPeriod:    "2024-03",
		MainFile:     &Document{Filename: "return.xlsx", Body: strings.NewReader("data")},
	}
}

func TestCreateScenario(t *testing.T) {
	b := newMemBackend()
	w := newWorkflow(b)

	sub, err := w.Create(context.Background(), &taxpayer, annualReturn())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := Submission{
		ID:           sub.ID,
		Owner:        Owner{ID: "u-1", Name: "Tom Payer", NSTIN: "AB12345678", Email: "tom@example.com"},
		TemplateType: "annual_returns",
		TaxPeriod:    TaxPeriod{Year: 2024, Month: time.March},
		MainFile:     FileRef{URL: "memory://" + sub.ID + "/return.xlsx", OriginalFilename: "return.xlsx", Extension: "xlsx"},
		Status:       StatusPending,
		SubmittedAt:  fixedNow(),
	}
	if diff := cmp.Diff(want, sub); diff != "" {
		t.Fatalf("submission mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRequiresAuthor(t *testing.T) {
	b := newMemBackend()
	_, err := newWorkflow(b).Create(context.Background(), nil, annualReturn())
	if !errors.Is(err, fault.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if b.callCount() != 0 {
		t.Fatal("backend must not be called")
	}
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Payload)
	}{
		{"unknown type", func(p *Payload) { p.TemplateType = "vat_return" }},
		{"missing type", func(p *Payload) { p.TemplateType = "  " }},
		{"bad period", func(p *Payload) { p.TaxPeriod = "2024-13" }},
		{"empty period", func(p *Payload) { p.TaxPeriod = "" }},
		{"no main file", func(p *Payload) { p.MainFile = nil }},
		{"unnamed main file", func(p *Payload) { p.MainFile = &Document{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newMemBackend()
			p := annualReturn()
			tc.mutate(&p)
			_, err := newWorkflow(b).Create(context.Background(), &taxpayer, p)
			if !errors.Is(err, fault.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(b.subs) != 0 {
				t.Fatal("nothing must be stored")
			}
		})
	}
}

func TestCreateCatalogFailureIsTransport(t *testing.T) {
	b := newMemBackend()
	b.failOn = errors.New("connection reset")
	_, err := newWorkflow(b).Create(context.Background(), &taxpayer, annualReturn())
	if !errors.Is(err, fault.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestApproveThenRejectScenario(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	w := newWorkflow(b)
	sub, err := w.Create(ctx, &taxpayer, annualReturn())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := w.Approve(ctx, sub.ID, &admin, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != StatusApproved || approved.ReviewComments != "" {
		t.Fatalf("unexpected approval: %+v", approved)
	}
	if approved.ReviewedAt == nil || !approved.ReviewedAt.Equal(fixedNow()) {
		t.Fatalf("reviewedAt = %v", approved.ReviewedAt)
	}

	_, err = w.Reject(ctx, sub.ID, &admin2, "bad data")
	if !errors.Is(err, fault.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if got := b.get(sub.ID).Status; got != StatusApproved {
		t.Fatalf("status = %q, want approved", got)
	}
}

func TestReviewAtMostOnce(t *testing.T) {
	type step func(w *Workflow, id string) error
	approve := func(w *Workflow, id string) error {
		_, err := w.Approve(context.Background(), id, &admin, "ok")
		return err
	}
	reject := func(w *Workflow, id string) error {
		_, err := w.Reject(context.Background(), id, &admin, "missing schedule")
		return err
	}
	cases := map[string][2]step{
		"approve,approve": {approve, approve},
		"approve,reject":  {approve, reject},
		"reject,approve":  {reject, approve},
		"reject,reject":   {reject, reject},
	}
	for name, steps := range cases {
		t.Run(name, func(t *testing.T) {
			b := newMemBackend()
			w := newWorkflow(b)
			sub, err := w.Create(context.Background(), &taxpayer, annualReturn())
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := steps[0](w, sub.ID); err != nil {
				t.Fatalf("first review: %v", err)
			}
			if err := steps[1](w, sub.ID); !errors.Is(err, fault.ErrInvalidStateTransition) {
				t.Fatalf("second review: expected invalid transition, got %v", err)
			}
		})
	}
}

func TestConcurrentReviewHasOneWinner(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	w := newWorkflow(b)
	sub, err := w.Create(ctx, &taxpayer, annualReturn())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const reviewers = 8
	var wg sync.WaitGroup
	errs := make(chan error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = w.Approve(ctx, sub.ID, &admin, "")
			} else {
				_, err = w.Reject(ctx, sub.ID, &admin2, "bad data")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, fault.ErrInvalidStateTransition):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful review, got %d", wins)
	}
}

func TestRejectRequiresComments(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	w := newWorkflow(b)
	sub, err := w.Create(ctx, &taxpayer, annualReturn())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := b.callCount()
	for _, comments := range []string{"", "   ", "\n\t"} {
		_, err := w.Reject(ctx, sub.ID, &admin, comments)
		if !errors.Is(err, fault.ErrValidation) {
			t.Fatalf("comments %q: expected validation error, got %v", comments, err)
		}
	}
	if b.callCount() != before {
		t.Fatal("backend must not be called")
	}
	if got := b.get(sub.ID).Status; got != StatusPending {
		t.Fatalf("status = %q, want pending", got)
	}
}

func TestReviewRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	w := newWorkflow(b)
	sub, err := w.Create(ctx, &taxpayer, annualReturn())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := w.Approve(ctx, sub.ID, &taxpayer, ""); !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := w.Reject(ctx, sub.ID, nil, "x"); !errors.Is(err, fault.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if got := b.get(sub.ID).Status; got != StatusPending {
		t.Fatalf("status = %q, want pending", got)
	}
}

func TestReviewUnknownID(t *testing.T) {
	w := newWorkflow(newMemBackend())
	if _, err := w.Approve(context.Background(), "missing", &admin, ""); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListScopeAllRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	w := newWorkflow(b)
	if _, err := w.Create(ctx, &taxpayer, annualReturn()); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := b.callCount()
	page, err := w.List(ctx, &taxpayer, Filter{Scope: ScopeAll}, 1, 10)
	if !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if len(page.Items) != 0 || page.TotalPages != 0 {
		t.Fatalf("no data must be returned: %+v", page)
	}
	if b.callCount() != before {
		t.Fatal("backend must not be called")
	}
}

func TestListMineAndAll(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	clock := fixedNow()
	w := NewWorkflow(b, b, WithClock(func() time.Time { return clock }))

	for i := 0; i < 3; i++ {
		if _, err := w.Create(ctx, &taxpayer, annualReturn()); err != nil {
			t.Fatalf("create: %v", err)
		}
		clock = clock.Add(time.Minute)
	}
	if _, err := w.Create(ctx, &other, annualReturn()); err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := w.List(ctx, &taxpayer, Filter{}, 1, 2)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine.Items) != 2 || mine.TotalPages != 2 || mine.CurrentPage != 1 {
		t.Fatalf("unexpected page: %+v", mine)
	}
	if !mine.Items[0].SubmittedAt.After(mine.Items[1].SubmittedAt) {
		t.Fatal("expected most recent first")
	}
	for _, s := range mine.Items {
		if s.Owner.ID != taxpayer.ID {
			t.Fatalf("foreign submission in mine: %+v", s)
		}
	}

	all, err := w.List(ctx, &admin, Filter{Scope: ScopeAll, Search: "sue"}, 1, 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all.Items) != 1 || all.Items[0].Owner.ID != other.ID {
		t.Fatalf("search mismatch: %+v", all.Items)
	}

	beyond, err := w.List(ctx, &taxpayer, Filter{}, 9, 2)
	if err != nil {
		t.Fatalf("page beyond last: %v", err)
	}
	if len(beyond.Items) != 0 || beyond.CurrentPage != 9 {
		t.Fatalf("expected empty page: %+v", beyond)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	w := newWorkflow(newMemBackend())
	_, err := w.List(context.Background(), &admin, Filter{Status: "archived", Scope: ScopeAll}, 1, 10)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := w.List(context.Background(), nil, Filter{}, 1, 10); !errors.Is(err, fault.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
