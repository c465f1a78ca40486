package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
	"efiling.org/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL+"/api/", WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://example.com", "://bad"} {
		if _, err := New(in); err == nil {
			t.Fatalf("New(%q) expected error", in)
		}
	}
}

func TestLoginSendsCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var in credentials
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		if in.NSTIN != "AB12345678" || in.Password != "secret1" {
			t.Errorf("unexpected credentials %+v", in)
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "tok-1"})
	}))
	tok, err := c.Login(context.Background(), "AB12345678", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok != "tok-1" {
		t.Fatalf("token = %q", tok)
	}
}

func TestLoginEmptyTokenIsTransport(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	}))
	if _, err := c.Login(context.Background(), "AB12345678", "secret1"); !errors.Is(err, fault.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		call   func(c *Client) error
		kind   error
		msg    string
	}{
		{
			name: "login rejected", status: http.StatusUnauthorized, body: `{"message":"Invalid NSTIN or password"}`,
			call: func(c *Client) error { _, err := c.Login(context.Background(), "AB12345678", "secret1"); return err },
			kind: fault.ErrAuthentication, msg: "Invalid NSTIN or password",
		},
		{
			name: "enroll duplicate", status: http.StatusConflict, body: `{"message":"NSTIN already registered"}`,
			call: func(c *Client) error { _, err := c.Enroll(context.Background(), session.Registration{}); return err },
			kind: fault.ErrEnrollmentConflict, msg: "NSTIN already registered",
		},
		{
			name: "review conflict", status: http.StatusConflict, body: `{"message":"Submission already approved"}`,
			call: func(c *Client) error {
				_, err := c.Review(context.Background(), "s1", filing.Decision{Status: filing.StatusRejected, Comments: "x"})
				return err
			},
			kind: fault.ErrInvalidStateTransition, msg: "Submission already approved",
		},
		{
			name: "expired token", status: http.StatusUnauthorized, body: `{"message":"Token expired"}`,
			call: func(c *Client) error { _, err := c.ListTemplates(context.Background()); return err },
			kind: fault.ErrUnauthenticated, msg: "Token expired",
		},
		{
			name: "forbidden", status: http.StatusForbidden, body: `{}`,
			call: func(c *Client) error { _, err := c.Dashboard(context.Background()); return err },
			kind: fault.ErrAuthorization, msg: fault.GenericMessage(fault.ErrAuthorization),
		},
		{
			name: "bad request", status: http.StatusBadRequest, body: `{"message":"Invalid tax period"}`,
			call: func(c *Client) error { _, err := c.TemplateTypes(context.Background()); return err },
			kind: fault.ErrValidation, msg: "Invalid tax period",
		},
		{
			name: "not found", status: http.StatusNotFound, body: `not json`,
			call: func(c *Client) error { return c.DeleteTemplate(context.Background(), "t1") },
			kind: fault.ErrNotFound, msg: fault.GenericMessage(fault.ErrNotFound),
		},
		{
			name: "server error", status: http.StatusInternalServerError, body: `{"message":"db down"}`,
			call: func(c *Client) error { _, err := c.TemplateCount(context.Background()); return err },
			kind: fault.ErrTransport, msg: "db down",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			err := tc.call(c)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if err.Error() != tc.msg {
				t.Fatalf("message = %q, want %q", err.Error(), tc.msg)
			}
		})
	}
}

func TestNetworkFailureIsTransport(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	c, err := New(url)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.CloseIdleConnections()
	if _, err := c.Login(context.Background(), "AB12345678", "secret1"); !errors.Is(err, fault.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestBearerHeader(t *testing.T) {
	var got []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []filing.Template{})
	}))
	ctx := context.Background()
	_, _ = c.ListTemplates(ctx)
	c.SetBearer("tok-1")
	if !c.Authorized() {
		t.Fatal("expected authorized")
	}
	_, _ = c.ListTemplates(ctx)
	c.ClearBearer()
	_, _ = c.ListTemplates(ctx)

	want := []string{"", "Bearer tok-1", ""}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("headers = %q, want %q", got, want)
	}
}

func TestAllSubmissionsQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/submissions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("limit") != "5" || q.Get("search") != "tom payer" || q.Get("status") != "all" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{"submissions": nil, "totalPages": 1, "currentPage": 2})
	}))
	page, err := c.AllSubmissions(context.Background(), filing.Filter{Search: "tom payer"}, 2, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.CurrentPage != 2 || page.TotalPages != 1 || page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestSubmitMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("templateType") != "annual_returns" || r.FormValue("taxPeriod") != "2024-03" {
			t.Errorf("fields = %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("mainFile")
		if err != nil {
			t.Errorf("mainFile: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			f.Close()
			if hdr.Filename != "return.xlsx" || string(data) != "payload" {
				t.Errorf("mainFile = %s %q", hdr.Filename, data)
			}
		}
		if _, _, err := r.FormFile("supportingDoc"); err == nil {
			t.Errorf("supportingDoc must be absent")
		}
		writeJSON(w, http.StatusCreated, filing.Submission{ID: "s1", Status: filing.StatusPending})
	}))
	sub, err := c.Submit(context.Background(), auth.Identity{}, filing.Payload{
		TemplateType: "annual_returns",
		TaxPeriod:    "2024-03",
		MainFile:     &filing.Document{Filename: "return.xlsx", Body: strings.NewReader("payload")},
	}, time.Time{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ID != "s1" || sub.Status != filing.StatusPending {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestReviewPaths(t *testing.T) {
	var paths []string
	var comments []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		var in reviewRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		comments = append(comments, in.ReviewComments)
		writeJSON(w, http.StatusOK, filing.Submission{ID: "s1"})
	}))
	ctx := context.Background()
	if _, err := c.Review(ctx, "s1", filing.Decision{Status: filing.StatusApproved}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := c.Review(ctx, "s2", filing.Decision{Status: filing.StatusRejected, Comments: "bad data"}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	want := []string{"PUT /api/admin/submissions/s1/approve", "PUT /api/admin/submissions/s2/reject"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %v", paths)
	}
	if comments[0] != "" || comments[1] != "bad data" {
		t.Fatalf("comments = %q", comments)
	}
}

func TestCreateUserValidatesLocally(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	_, err := c.CreateUser(context.Background(), auth.UserInput{NSTIN: "short", Name: "X", Email: "x@example.com", Phone: "08012345678", Password: "secret1", Role: auth.RoleUser})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if called {
		t.Fatal("server must not be called")
	}
}

func TestDownloadRelativeURL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/files/templates/t1/annual.xlsx" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer")
		}
		_, _ = io.WriteString(w, "xlsx-bytes")
	}))
	c.SetBearer("tok")
	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "/files/templates/t1/annual.xlsx", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != int64(len("xlsx-bytes")) || buf.String() != "xlsx-bytes" {
		t.Fatalf("downloaded %d %q", n, buf.String())
	}
}
