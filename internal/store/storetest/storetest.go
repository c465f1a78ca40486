// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"efiling.org/internal/auth"
	"efiling.org/internal/filing"
	"efiling.org/internal/store"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func user(id, nstin, name string, role auth.Role, at time.Time) store.UserRecord {
	return store.UserRecord{
		User: auth.User{
			ID: id, NSTIN: nstin, Name: name, Email: id + "@example.com",
			Phone: "08012345678", Role: role, CreatedAt: at,
		},
		PasswordHash: "hash-" + id,
	}
}

func submission(id string, owner auth.User, at time.Time) filing.Submission {
	return filing.Submission{
		ID:           id,
		Owner:        filing.OwnerOf(owner.Identity()),
		TemplateType: filing.TypeAnnualReturns,
		TaxPeriod:    filing.TaxPeriod{Year: 2024, Month: time.February},
		MainFile:     filing.NewFileRef("/files/"+id+"/main.xlsx", "main.xlsx"),
		Status:       filing.StatusPending,
		SubmittedAt:  at,
	}
}

// Run exercises s, a fresh empty store per call of open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("templates", func(t *testing.T) { testTemplates(t, open(t)) })
	t.Run("submissions", func(t *testing.T) { testSubmissions(t, open(t)) })
	t.Run("review once", func(t *testing.T) { testReviewOnce(t, open(t)) })
	t.Run("concurrent review", func(t *testing.T) { testConcurrentReview(t, open(t)) })
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := user("u1", "ALICE00001", "Alice Adams", auth.RoleUser, base)
	if _, err := s.CreateUser(ctx, alice); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := user("u2", "alice00001", "Other", auth.RoleUser, base)
	if _, err := s.CreateUser(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	bob := user("u3", "BOB0000001", "Bob Brown", auth.RoleAdmin, base.Add(time.Hour))
	if _, err := s.CreateUser(ctx, bob); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	got, err := s.UserByNSTIN(ctx, "alice00001")
	if err != nil {
		t.Fatalf("by nstin: %v", err)
	}
	if got.ID != "u1" || got.PasswordHash != "hash-u1" || !got.CreatedAt.Equal(base) {
		t.Fatalf("unexpected user %+v", got)
	}
	if _, err := s.UserByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, total, err := s.ListUsers(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(list) != 2 || list[0].ID != "u3" {
		t.Fatalf("list = %+v total %d", list, total)
	}
	list, total, err = s.ListUsers(ctx, "adams", 0, 10)
	if err != nil || total != 1 || list[0].ID != "u1" {
		t.Fatalf("search = %+v total %d err %v", list, total, err)
	}
	list, _, err = s.ListUsers(ctx, "", 1, 10)
	if err != nil || len(list) != 1 || list[0].ID != "u1" {
		t.Fatalf("offset = %+v err %v", list, err)
	}

	alice.Name = "Alice Archer"
	updated, err := s.UpdateUser(ctx, alice.User, "")
	if err != nil || updated.Name != "Alice Archer" {
		t.Fatalf("update = %+v err %v", updated, err)
	}
	rec, _ := s.UserByID(ctx, "u1")
	if rec.PasswordHash != "hash-u1" {
		t.Fatal("empty hash must keep password")
	}
	if _, err := s.UpdateUser(ctx, alice.User, "new-hash"); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	rec, _ = s.UserByID(ctx, "u1")
	if rec.PasswordHash != "new-hash" {
		t.Fatal("hash not replaced")
	}
	clash := bob.User
	clash.NSTIN = "ALICE00001"
	if _, err := s.UpdateUser(ctx, clash, ""); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate on update, got %v", err)
	}

	if err := s.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteUser(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testTemplates(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, typ := range []string{filing.TypeWithholdingTax, filing.TypeAnnualReturns, filing.TypeWithholdingTax} {
		_, err := s.CreateTemplate(ctx, filing.Template{
			ID: fmt.Sprintf("t%d", i), Name: fmt.Sprintf("Form %d", i), Type: typ, Version: "1",
			FileURL: fmt.Sprintf("/files/t%d.xlsx", i), OriginalFilename: "form.xlsx", FileExtension: "xlsx",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create template: %v", err)
		}
	}
	list, err := s.ListTemplates(ctx)
	if err != nil || len(list) != 3 || list[0].ID != "t2" {
		t.Fatalf("list = %+v err %v", list, err)
	}
	types := store.TemplateTypes(list)
	if len(types) != 2 || types[0] != filing.TypeWithholdingTax || types[1] != filing.TypeAnnualReturns {
		t.Fatalf("types = %v", types)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.RecordDownload(ctx, "t1"); err != nil {
			t.Fatalf("record download: %v", err)
		}
	}
	got, err := s.Template(ctx, "t1")
	if err != nil || got.DownloadCount != 2 {
		t.Fatalf("template = %+v err %v", got, err)
	}
	if _, err := s.RecordDownload(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.DeleteTemplate(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Template(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testSubmissions(t *testing.T, s store.Store) {
	ctx := context.Background()
	tom := user("u1", "TOM0000001", "Tom Payer", auth.RoleUser, base)
	sue := user("u2", "SUE0000001", "Sue Filer", auth.RoleUser, base)
	for _, u := range []store.UserRecord{tom, sue} {
		if _, err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		owner := tom.User
		if i == 3 {
			owner = sue.User
		}
		sub := submission(fmt.Sprintf("s%d", i), owner, base.Add(time.Duration(i)*time.Hour))
		if i == 0 {
			sub.SupportingDoc = &filing.FileRef{URL: "/files/s0/doc.pdf", OriginalFilename: "doc.pdf", Extension: "pdf"}
		}
		if _, err := s.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("create submission: %v", err)
		}
	}

	got, err := s.Submission(ctx, "s0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Owner.Name != "Tom Payer" || got.SupportingDoc == nil || got.SupportingDoc.Extension != "pdf" {
		t.Fatalf("unexpected submission %+v", got)
	}
	if got.TaxPeriod.String() != "2024-02" || got.Status != filing.StatusPending || got.ReviewedAt != nil {
		t.Fatalf("unexpected submission %+v", got)
	}

	mine, err := s.SubmissionsByOwner(ctx, "u1")
	if err != nil || len(mine) != 3 || mine[0].ID != "s2" {
		t.Fatalf("by owner = %+v err %v", mine, err)
	}

	page, total, err := s.ListSubmissions(ctx, filing.Filter{Status: filing.StatusAll}, 0, 2)
	if err != nil || total != 4 || len(page) != 2 || page[0].ID != "s3" {
		t.Fatalf("list = %+v total %d err %v", page, total, err)
	}
	page, total, err = s.ListSubmissions(ctx, filing.Filter{Search: "SUE"}, 0, 10)
	if err != nil || total != 1 || page[0].ID != "s3" {
		t.Fatalf("search = %+v total %d err %v", page, total, err)
	}
	page, _, err = s.ListSubmissions(ctx, filing.Filter{}, 10, 10)
	if err != nil || len(page) != 0 {
		t.Fatalf("beyond last = %+v err %v", page, err)
	}

	if _, err := s.ReviewSubmission(ctx, "s1", filing.Decision{Status: filing.StatusApproved, ReviewedAt: base.Add(5 * time.Hour)}); err != nil {
		t.Fatalf("review: %v", err)
	}
	page, total, err = s.ListSubmissions(ctx, filing.Filter{Status: string(filing.StatusPending)}, 0, 10)
	if err != nil || total != 3 {
		t.Fatalf("pending filter = %+v total %d err %v", page, total, err)
	}

	recent, err := s.RecentSubmissions(ctx, 2)
	if err != nil || len(recent) != 2 || recent[0].ID != "s3" {
		t.Fatalf("recent = %+v err %v", recent, err)
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Users != 2 || counts.Submissions[filing.StatusPending] != 3 || counts.Submissions[filing.StatusApproved] != 1 {
		t.Fatalf("counts = %+v", counts)
	}

	if err := s.DeleteUser(ctx, "u2"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := s.Submission(ctx, "s3"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("submissions of deleted user must go, got %v", err)
	}
}

func testReviewOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	tom := user("u1", "TOM0000001", "Tom Payer", auth.RoleUser, base)
	if _, err := s.CreateUser(ctx, tom); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateSubmission(ctx, submission("s1", tom.User, base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	at := base.Add(time.Hour)
	reviewer := auth.Identity{ID: "a1", Role: auth.RoleAdmin}
	got, err := s.ReviewSubmission(ctx, "s1", filing.Decision{Status: filing.StatusApproved, ReviewedAt: at, Reviewer: reviewer})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != filing.StatusApproved || got.ReviewedAt == nil || !got.ReviewedAt.Equal(at) || got.ReviewComments != "" {
		t.Fatalf("unexpected review %+v", got)
	}
	_, err = s.ReviewSubmission(ctx, "s1", filing.Decision{Status: filing.StatusRejected, Comments: "bad data", ReviewedAt: at, Reviewer: reviewer})
	if !errors.Is(err, store.ErrAlreadyReviewed) {
		t.Fatalf("expected already reviewed, got %v", err)
	}
	again, _ := s.Submission(ctx, "s1")
	if again.Status != filing.StatusApproved {
		t.Fatalf("status changed to %s", again.Status)
	}
	if _, err := s.ReviewSubmission(ctx, "nope", filing.Decision{Status: filing.StatusApproved, ReviewedAt: at}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testConcurrentReview(t *testing.T, s store.Store) {
	ctx := context.Background()
	tom := user("u1", "TOM0000001", "Tom Payer", auth.RoleUser, base)
	if _, err := s.CreateUser(ctx, tom); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateSubmission(ctx, submission("s1", tom.User, base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	const n = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := filing.StatusApproved
			if i%2 == 1 {
				status = filing.StatusRejected
			}
			_, err := s.ReviewSubmission(ctx, "s1", filing.Decision{Status: status, Comments: "x", ReviewedAt: base})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrAlreadyReviewed):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected one winning review, got %d", wins)
	}
}
