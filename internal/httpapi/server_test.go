package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"efiling.org/internal/auth"
	"efiling.org/internal/blob"
	"efiling.org/internal/filing"
	"efiling.org/internal/store"
)

const (
	adminNSTIN = "ADMIN00001"
	password   = "secret1"
)

func TestMain(m *testing.M) {
	auth.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type harness struct {
	t      *testing.T
	ts     *httptest.Server
	store  *store.Memory
	blobs  *blob.Disk
	issuer *auth.Issuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemory()
	blobs, err := blob.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("blob: %v", err)
	}
	issuer, err := auth.NewIssuer("test-secret-0123456789", auth.WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	if _, err := EnsureAdmin(context.Background(), st, AdminSeed{NSTIN: adminNSTIN, Password: password}, time.Now()); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	srv := New(st, blobs, issuer, WithRateLimit(0, 0), WithVersion("test"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{t: t, ts: ts, store: st, blobs: blobs, issuer: issuer}
}

func (h *harness) do(method, path, token string, body io.Reader, contentType string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(method, h.ts.URL+path, body)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.ts.Client().Do(req)
	if err != nil {
		h.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (h *harness) json(method, path, token string, in any) *http.Response {
	h.t.Helper()
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return h.do(method, path, token, body, "application/json")
}

type upload struct {
	name string
	data string
}

func (h *harness) multipart(path, token string, fields map[string]string, files map[string]upload) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	for field, f := range files {
		part, err := mw.CreateFormFile(field, f.name)
		if err != nil {
			h.t.Fatalf("form file: %v", err)
		}
		_, _ = part.Write([]byte(f.data))
	}
	_ = mw.Close()
	return h.do(http.MethodPost, path, token, &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, resp *http.Response, wantStatus int) T {
	t.Helper()
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, wantStatus, data)
	}
	var out T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, data)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
}

func (h *harness) login(nstin string) string {
	h.t.Helper()
	out := decode[tokenResponse](h.t, h.json(http.MethodPost, "/api/auth/login", "", loginRequest{NSTIN: nstin, Password: password}), http.StatusOK)
	return out.Token
}

func (h *harness) enroll(nstin string) string {
	h.t.Helper()
	out := decode[tokenResponse](h.t, h.json(http.MethodPost, "/api/auth/enroll", "", map[string]string{
		"nstin":    nstin,
		"name":     "Taxpayer " + nstin,
		"email":    "tp@example.com",
		"phone":    "08012345678",
		"password": password,
	}), http.StatusCreated)
	return out.Token
}

func (h *harness) publishTemplate(token, typ string) filing.Template {
	h.t.Helper()
	return decode[filing.Template](h.t, h.multipart("/api/templates", token,
		map[string]string{"name": "Annual return", "type": typ, "version": "2024.1", "description": "Form A"},
		map[string]upload{"file": {name: "annual.xlsx", data: "template-bytes"}}), http.StatusCreated)
}

func (h *harness) submit(token string) filing.Submission {
	h.t.Helper()
	return decode[filing.Submission](h.t, h.multipart("/api/submissions", token,
		map[string]string{"templateType": filing.TypeAnnualReturns, "taxPeriod": "2024-03", "comments": "Q1"},
		map[string]upload{"mainFile": {name: "return.pdf", data: "main"}, "supportingDoc": {name: "receipt.png", data: "doc"}}), http.StatusCreated)
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t)
	health := decode[map[string]any](t, h.do(http.MethodGet, "/healthz", "", nil, ""), http.StatusOK)
	if health["version"] != "test" {
		t.Fatalf("health = %v", health)
	}
	ready := decode[map[string]any](t, h.do(http.MethodGet, "/readyz", "", nil, ""), http.StatusOK)
	if ready["status"] != "ready" {
		t.Fatalf("ready = %v", ready)
	}
	resp := h.do(http.MethodGet, "/metrics", "", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestEnrollAndLogin(t *testing.T) {
	h := newHarness(t)
	tok := h.enroll("user000001")
	claims, err := h.issuer.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.NSTIN != "USER000001" || claims.Role != auth.RoleUser {
		t.Fatalf("claims = %+v", claims)
	}
	if h.login("USER000001") == "" {
		t.Fatal("empty token")
	}

	dup := h.json(http.MethodPost, "/api/auth/enroll", "", map[string]string{
		"nstin": "USER000001", "name": "Other", "email": "o@example.com", "phone": "08012345678", "password": password,
	})
	expectStatus(t, dup, http.StatusConflict)

	bad := h.json(http.MethodPost, "/api/auth/login", "", loginRequest{NSTIN: "USER000001", Password: "wrong-pass"})
	body := decode[errorBody](t, bad, http.StatusUnauthorized)
	if body.Message == "" {
		t.Fatal("expected message")
	}
	unknown := h.json(http.MethodPost, "/api/auth/login", "", loginRequest{NSTIN: "NOBODY0001", Password: password})
	expectStatus(t, unknown, http.StatusUnauthorized)

	invalid := h.json(http.MethodPost, "/api/auth/enroll", "", map[string]string{"nstin": "x"})
	fields := decode[errorBody](t, invalid, http.StatusBadRequest)
	if fields.Fields["nstin"] == "" || fields.Fields["email"] == "" {
		t.Fatalf("expected field errors, got %+v", fields)
	}
}

func TestAuthIsEnforced(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.do(http.MethodGet, "/api/templates", "", nil, ""), http.StatusUnauthorized)
	expectStatus(t, h.do(http.MethodGet, "/api/templates", "garbage", nil, ""), http.StatusUnauthorized)

	user := h.enroll("USER000001")
	expectStatus(t, h.do(http.MethodGet, "/api/admin/dashboard", user, nil, ""), http.StatusForbidden)
	expectStatus(t, h.do(http.MethodGet, "/api/admin/submissions", user, nil, ""), http.StatusForbidden)
	expectStatus(t, h.multipart("/api/templates", user, map[string]string{"name": "x"}, nil), http.StatusForbidden)
	expectStatus(t, h.do(http.MethodGet, "/api/nowhere", user, nil, ""), http.StatusNotFound)

	admin := h.login(adminNSTIN)
	expectStatus(t, h.do(http.MethodGet, "/api/submissions/recent", admin, nil, ""), http.StatusForbidden)
	expectStatus(t, h.multipart("/api/submissions", admin, map[string]string{"templateType": filing.TypeAnnualReturns}, nil), http.StatusForbidden)

	rec, err := h.store.UserByNSTIN(context.Background(), "USER000001")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, h.do(http.MethodDelete, "/api/admin/users/"+rec.ID, admin, nil, ""), http.StatusOK)
	expectStatus(t, h.do(http.MethodGet, "/api/templates", user, nil, ""), http.StatusUnauthorized)
}

func TestTemplates(t *testing.T) {
	h := newHarness(t)
	admin := h.login(adminNSTIN)
	user := h.enroll("USER000001")

	types := decode[[]string](t, h.do(http.MethodGet, "/api/templates/types", user, nil, ""), http.StatusOK)
	if len(types) != len(filing.DefaultTemplateTypes) {
		t.Fatalf("default types = %v", types)
	}

	tpl := h.publishTemplate(admin, filing.TypeWithholdingTax)
	if tpl.FileExtension != "xlsx" || tpl.FileURL == "" {
		t.Fatalf("template = %+v", tpl)
	}
	expectStatus(t, h.multipart("/api/templates", admin,
		map[string]string{"name": "Bad", "type": "unknown", "version": "1"},
		map[string]upload{"file": {name: "a.pdf", data: "x"}}), http.StatusBadRequest)

	list := decode[[]filing.Template](t, h.do(http.MethodGet, "/api/templates", user, nil, ""), http.StatusOK)
	if len(list) != 1 || list[0].ID != tpl.ID {
		t.Fatalf("list = %+v", list)
	}
	types = decode[[]string](t, h.do(http.MethodGet, "/api/templates/types", user, nil, ""), http.StatusOK)
	if len(types) != 1 || types[0] != filing.TypeWithholdingTax {
		t.Fatalf("types = %v", types)
	}
	count := decode[map[string]int](t, h.do(http.MethodGet, "/api/templates/count", user, nil, ""), http.StatusOK)
	if count["count"] != 1 {
		t.Fatalf("count = %v", count)
	}

	logged := decode[map[string]any](t, h.json(http.MethodPost, "/api/templates/download-log", user, downloadLogRequest{TemplateID: tpl.ID}), http.StatusOK)
	if logged["downloadCount"] != float64(1) {
		t.Fatalf("download log = %v", logged)
	}
	expectStatus(t, h.json(http.MethodPost, "/api/templates/download-log", user, downloadLogRequest{TemplateID: "missing"}), http.StatusNotFound)

	resp := h.do(http.MethodGet, "/api"+tpl.FileURL, user, nil, "")
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "template-bytes" {
		t.Fatalf("download = %d %q", resp.StatusCode, data)
	}

	expectStatus(t, h.do(http.MethodDelete, "/api/templates/"+tpl.ID, admin, nil, ""), http.StatusNoContent)
	expectStatus(t, h.do(http.MethodDelete, "/api/templates/"+tpl.ID, admin, nil, ""), http.StatusNotFound)
	expectStatus(t, h.do(http.MethodGet, "/api"+tpl.FileURL, user, nil, ""), http.StatusNotFound)
}

func TestSubmissionLifecycle(t *testing.T) {
	h := newHarness(t)
	admin := h.login(adminNSTIN)
	user := h.enroll("USER000001")
	other := h.enroll("USER000002")

	sub := h.submit(user)
	if sub.Status != filing.StatusPending || sub.Owner.NSTIN != "USER000001" || sub.TaxPeriod.String() != "2024-03" {
		t.Fatalf("submission = %+v", sub)
	}
	if sub.SupportingDoc == nil || sub.SupportingDoc.Extension != "png" {
		t.Fatalf("supporting doc = %+v", sub.SupportingDoc)
	}

	expectStatus(t, h.multipart("/api/submissions", user,
		map[string]string{"templateType": filing.TypeAnnualReturns, "taxPeriod": "2024-13"},
		map[string]upload{"mainFile": {name: "r.pdf", data: "x"}}), http.StatusBadRequest)

	mine := decode[[]filing.Submission](t, h.do(http.MethodGet, "/api/submissions/recent", user, nil, ""), http.StatusOK)
	if len(mine) != 1 || mine[0].ID != sub.ID {
		t.Fatalf("mine = %+v", mine)
	}
	theirs := decode[[]filing.Submission](t, h.do(http.MethodGet, "/api/submissions/recent", other, nil, ""), http.StatusOK)
	if len(theirs) != 0 {
		t.Fatalf("other sees %+v", theirs)
	}

	expectStatus(t, h.do(http.MethodGet, "/api"+sub.MainFile.URL, other, nil, ""), http.StatusForbidden)
	expectStatus(t, h.do(http.MethodGet, "/api"+sub.MainFile.URL, user, nil, ""), http.StatusOK)
	expectStatus(t, h.do(http.MethodGet, "/api"+sub.MainFile.URL, admin, nil, ""), http.StatusOK)

	page := decode[filing.Page](t, h.do(http.MethodGet, "/api/admin/submissions?status=pending&search=user000001", admin, nil, ""), http.StatusOK)
	if len(page.Items) != 1 || page.TotalPages != 1 || page.CurrentPage != 1 {
		t.Fatalf("page = %+v", page)
	}
	expectStatus(t, h.do(http.MethodGet, "/api/admin/submissions?status=weird", admin, nil, ""), http.StatusBadRequest)

	expectStatus(t, h.json(http.MethodPut, "/api/admin/submissions/"+sub.ID+"/reject", admin, reviewRequest{}), http.StatusBadRequest)
	approved := decode[filing.Submission](t, h.json(http.MethodPut, "/api/admin/submissions/"+sub.ID+"/approve", admin, reviewRequest{ReviewComments: "ok"}), http.StatusOK)
	if approved.Status != filing.StatusApproved || approved.ReviewedAt == nil {
		t.Fatalf("approved = %+v", approved)
	}
	expectStatus(t, h.json(http.MethodPut, "/api/admin/submissions/"+sub.ID+"/reject", admin, reviewRequest{ReviewComments: "late"}), http.StatusConflict)
	expectStatus(t, h.json(http.MethodPut, "/api/admin/submissions/"+sub.ID+"/approve", admin, nil), http.StatusConflict)
	expectStatus(t, h.json(http.MethodPut, "/api/admin/submissions/missing/approve", admin, nil), http.StatusNotFound)

	dash := decode[filing.Dashboard](t, h.do(http.MethodGet, "/api/admin/dashboard", admin, nil, ""), http.StatusOK)
	if dash.TotalUsers != 3 || dash.ApprovedSubmissions != 1 || dash.PendingSubmissions != 0 || len(dash.RecentSubmissions) != 1 {
		t.Fatalf("dashboard = %+v", dash)
	}
}

func TestConcurrentReviewHasOneWinner(t *testing.T) {
	h := newHarness(t)
	admin := h.login(adminNSTIN)
	sub := h.submit(h.enroll("USER000001"))

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := "approve"
			if i%2 == 1 {
				action = "reject"
			}
			data, _ := json.Marshal(reviewRequest{ReviewComments: "decided"})
			req, _ := http.NewRequest(http.MethodPut, h.ts.URL+"/api/admin/submissions/"+sub.ID+"/"+action, bytes.NewReader(data))
			req.Header.Set("Authorization", "Bearer "+admin)
			resp, err := h.ts.Client().Do(req)
			if err != nil {
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()
	wins := 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			wins++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d (%v)", wins, codes)
	}
}

func TestUserAdministration(t *testing.T) {
	h := newHarness(t)
	admin := h.login(adminNSTIN)

	created := decode[auth.User](t, h.json(http.MethodPost, "/api/admin/users", admin, auth.UserInput{
		NSTIN: "staff00001", Name: "Staff", Email: "staff@example.com", Phone: "08012345678", Password: password, Role: auth.RoleUser,
	}), http.StatusCreated)
	if created.NSTIN != "STAFF00001" || created.Role != auth.RoleUser {
		t.Fatalf("created = %+v", created)
	}
	expectStatus(t, h.json(http.MethodPost, "/api/admin/users", admin, auth.UserInput{
		NSTIN: "STAFF00001", Name: "Dup", Email: "d@example.com", Phone: "08012345678", Password: password, Role: auth.RoleUser,
	}), http.StatusConflict)

	page := decode[auth.UserPage](t, h.do(http.MethodGet, "/api/admin/users?search=staff", admin, nil, ""), http.StatusOK)
	if len(page.Users) != 1 || page.TotalPages != 1 {
		t.Fatalf("page = %+v", page)
	}

	updated := decode[auth.User](t, h.json(http.MethodPut, "/api/admin/users/"+created.ID, admin, auth.UserInput{
		NSTIN: "STAFF00001", Name: "Staff Lead", Email: "lead@example.com", Phone: "08012345678", Role: auth.RoleAdmin,
	}), http.StatusOK)
	if updated.Role != auth.RoleAdmin || updated.Name != "Staff Lead" {
		t.Fatalf("updated = %+v", updated)
	}
	if h.login("STAFF00001") == "" {
		t.Fatal("password must be kept when omitted")
	}

	adminRec, _ := h.store.UserByNSTIN(context.Background(), adminNSTIN)
	expectStatus(t, h.do(http.MethodDelete, "/api/admin/users/"+adminRec.ID, admin, nil, ""), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodDelete, "/api/admin/users/"+created.ID, admin, nil, ""), http.StatusOK)
	expectStatus(t, h.do(http.MethodDelete, "/api/admin/users/"+created.ID, admin, nil, ""), http.StatusNotFound)
}

func TestRoleChangeRequiresNewLogin(t *testing.T) {
	h := newHarness(t)
	old := h.enroll("USER000003")
	admin := h.login(adminNSTIN)

	rec, err := h.store.UserByNSTIN(context.Background(), "USER000003")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, h.json(http.MethodPut, "/api/admin/users/"+rec.ID, admin, auth.UserInput{
		NSTIN: "USER000003", Name: rec.Name, Email: rec.Email, Phone: rec.Phone, Role: auth.RoleAdmin,
	}), http.StatusOK)

	expectStatus(t, h.do(http.MethodGet, "/api/admin/submissions", old, nil, ""), http.StatusUnauthorized)
	expectStatus(t, h.do(http.MethodGet, "/api/templates", old, nil, ""), http.StatusUnauthorized)

	fresh := h.login("USER000003")
	expectStatus(t, h.do(http.MethodGet, "/api/admin/submissions", fresh, nil, ""), http.StatusOK)
}

func TestDeleteUserRemovesSubmissionFiles(t *testing.T) {
	h := newHarness(t)
	user := h.enroll("USER000002")
	sub := h.submit(user)
	admin := h.login(adminNSTIN)

	rec, err := h.store.UserByNSTIN(context.Background(), "USER000002")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, h.do(http.MethodDelete, "/api/admin/users/"+rec.ID, admin, nil, ""), http.StatusOK)

	if _, err := h.store.Submission(context.Background(), sub.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("submission after owner delete: %v", err)
	}
	if _, err := h.blobs.Open(context.Background(), keyOf(sub.MainFile.URL)); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("main file after owner delete: %v", err)
	}
}

func TestProfileAndPassword(t *testing.T) {
	h := newHarness(t)
	user := h.enroll("USER000001")
	claims, _ := h.issuer.Verify(user)
	other := h.enroll("USER000002")

	me := decode[auth.User](t, h.do(http.MethodGet, "/api/users/profile/"+claims.UserID, user, nil, ""), http.StatusOK)
	if me.NSTIN != "USER000001" {
		t.Fatalf("profile = %+v", me)
	}
	expectStatus(t, h.do(http.MethodGet, "/api/users/profile/"+claims.UserID, other, nil, ""), http.StatusForbidden)

	updated := decode[auth.User](t, h.json(http.MethodPut, "/api/users/profile", user, auth.ProfileUpdate{
		Name: " New Name ", Email: "new@example.com", Phone: "08099999999",
	}), http.StatusOK)
	if updated.Name != "New Name" || updated.NSTIN != "USER000001" {
		t.Fatalf("updated = %+v", updated)
	}
	expectStatus(t, h.json(http.MethodPut, "/api/users/profile", user, auth.ProfileUpdate{Name: "x"}), http.StatusBadRequest)

	expectStatus(t, h.json(http.MethodPut, "/api/users/password", user, auth.PasswordChange{CurrentPassword: "wrong1", NewPassword: "newpass1"}), http.StatusBadRequest)
	expectStatus(t, h.json(http.MethodPut, "/api/users/password", user, auth.PasswordChange{CurrentPassword: password, NewPassword: "newpass1"}), http.StatusOK)
	expectStatus(t, h.json(http.MethodPost, "/api/auth/login", "", loginRequest{NSTIN: "USER000001", Password: "newpass1"}), http.StatusOK)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodPost, "/api/auth/login", "", bytes.NewReader([]byte(`{"nstin":"A","password":"b","extra":1}`)), "application/json")
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	seed := AdminSeed{NSTIN: "root000001", Password: password}
	created, err := EnsureAdmin(context.Background(), st, seed, time.Now())
	if err != nil || !created {
		t.Fatalf("first = %v, %v", created, err)
	}
	created, err = EnsureAdmin(context.Background(), st, seed, time.Now())
	if err != nil || created {
		t.Fatalf("second = %v, %v", created, err)
	}
	if _, err := EnsureAdmin(context.Background(), st, AdminSeed{NSTIN: "x", Password: "p"}, time.Now()); err == nil {
		t.Fatal("invalid seed should fail")
	}
}
