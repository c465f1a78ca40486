package portal

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"efiling.org/internal/auth"
	"efiling.org/internal/filing"
)

// Submit uploads a new return. The server stamps owner and submission time
// from the bearer token, so author and at are not sent.
func (c *Client) Submit(ctx context.Context, _ auth.Identity, p filing.Payload, _ time.Time) (filing.Submission, error) {
	form := newForm()
	form.field("templateType", p.TemplateType)
	form.field("taxPeriod", p.TaxPeriod)
	form.field("comments", p.Comments)
	form.file("mainFile", p.MainFile)
	form.file("supportingDoc", p.SupportingDoc)
	body, contentType, err := form.close()
	if err != nil {
		return filing.Submission{}, err
	}
	var out filing.Submission
	err = c.do(ctx, request{op: opSubmit, method: http.MethodPost, path: "/submissions", body: body, contentType: contentType}, &out)
	return out, err
}

// OwnSubmissions lists the caller's submissions. The owner is taken from the
// bearer token.
func (c *Client) OwnSubmissions(ctx context.Context, _ auth.Identity) ([]filing.Submission, error) {
	var out []filing.Submission
	if err := c.getJSON(ctx, opRecent, "/submissions/recent", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type adminListQuery struct {
	Page   int    `url:"page"`
	Limit  int    `url:"limit,omitempty"`
	Search string `url:"search"`
	Status string `url:"status"`
}

// AllSubmissions returns one page of every taxpayer's submissions.
func (c *Client) AllSubmissions(ctx context.Context, f filing.Filter, page, pageSize int) (filing.Page, error) {
	q := adminListQuery{Page: page, Limit: pageSize, Search: f.Search, Status: f.Status}
	if q.Status == "" {
		q.Status = filing.StatusAll
	}
	var out filing.Page
	if err := c.getJSON(ctx, opAdminList, "/admin/submissions", q, &out); err != nil {
		return filing.Page{}, err
	}
	if out.Items == nil {
		out.Items = []filing.Submission{}
	}
	return out, nil
}

type reviewRequest struct {
	ReviewComments string `json:"reviewComments"`
}

// Review applies an approval or rejection. The server performs the
// conditional transition and answers 409 when the submission was already
// reviewed.
func (c *Client) Review(ctx context.Context, id string, d filing.Decision) (filing.Submission, error) {
	op, action := opApprove, "approve"
	if d.Status == filing.StatusRejected {
		op, action = opReject, "reject"
	}
	var out filing.Submission
	path := "/admin/submissions/" + url.PathEscape(id) + "/" + action
	if err := c.sendJSON(ctx, op, http.MethodPut, path, reviewRequest{ReviewComments: d.Comments}, &out); err != nil {
		return filing.Submission{}, err
	}
	return out, nil
}
