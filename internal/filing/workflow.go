// Package filing implements the submission lifecycle: a return is created
// once as pending and reviewed at most once, after which it is terminal.
package filing

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"efiling.org/internal/audit"
	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
	"efiling.org/internal/obs"
	"efiling.org/internal/validate"
)

// DefaultPageSize is used when a listing asks for a non-positive page size.
const DefaultPageSize = 10

// Backend stores submissions. Review must be an atomic conditional update:
// it applies d only while the submission is still pending and otherwise
// fails with fault.ErrInvalidStateTransition.
type Backend interface {
	Submit(ctx context.Context, author auth.Identity, p Payload, at time.Time) (Submission, error)
	OwnSubmissions(ctx context.Context, owner auth.Identity) ([]Submission, error)
	AllSubmissions(ctx context.Context, f Filter, page, pageSize int) (Page, error)
	Review(ctx context.Context, id string, d Decision) (Submission, error)
}

// TemplateCatalog reports the template types currently published.
type TemplateCatalog interface {
	TemplateTypes(ctx context.Context) ([]string, error)
}

// Workflow enforces the create-once, review-once lifecycle.
type Workflow struct {
	backend Backend
	catalog TemplateCatalog
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(w *Workflow) {
		if fn != nil {
			w.now = fn
		}
	}
}

// WithLogger sets the workflow logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorkflow builds a Workflow over backend. catalog supplies the template
// types a new submission may use.
func NewWorkflow(backend Backend, catalog TemplateCatalog, opts ...Option) *Workflow {
	w := &Workflow{
		backend: backend,
		catalog: catalog,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create files a new pending submission for author.
func (w *Workflow) Create(ctx context.Context, author *auth.Identity, p Payload) (Submission, error) {
	if author == nil {
		return Submission{}, fault.New(fault.ErrUnauthenticated, "Please log in to submit a return.")
	}
	p.TemplateType = strings.TrimSpace(p.TemplateType)
	p.Comments = strings.TrimSpace(p.Comments)

	errs := validate.Errors{}
	errs.Check(validate.Required(p.TemplateType), "templateType", "Template type is required")
	period, err := ParseTaxPeriod(p.TaxPeriod)
	if err != nil {
		errs.Add("taxPeriod", "Tax period must be a valid month (YYYY-MM)")
	}
	if p.MainFile == nil || strings.TrimSpace(p.MainFile.Filename) == "" {
		errs.Add("mainFile", "Please upload your completed template file")
	}
	if p.SupportingDoc != nil && strings.TrimSpace(p.SupportingDoc.Filename) == "" {
		p.SupportingDoc = nil
	}
	if err := errs.Err(); err != nil {
		return Submission{}, err
	}

	types, err := w.catalog.TemplateTypes(ctx)
	if err != nil {
		return Submission{}, fault.Classify(err)
	}
	if !contains(types, p.TemplateType) {
		errs.Add("templateType", "Unknown template type "+p.TemplateType)
		return Submission{}, errs.Err()
	}
	p.TaxPeriod = period.String()

	sub, err := w.backend.Submit(ctx, *author, p, w.now().UTC())
	if err != nil {
		return Submission{}, fault.Classify(err)
	}
	obs.CountTransition(string(StatusPending))
	w.logger.Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("user_id", author.ID),
		zap.String("template_type", sub.TemplateType),
		zap.String("tax_period", sub.TaxPeriod.String()))
	_ = audit.LogEvent(auth.ContextWithIdentity(ctx, *author), "submission.created", map[string]any{
		"submission_id": sub.ID,
		"template_type": sub.TemplateType,
	})
	return sub, nil
}

// List returns one page of submissions visible to caller, most recent first.
// A page past the end is empty, not an error.
func (w *Workflow) List(ctx context.Context, caller *auth.Identity, f Filter, page, pageSize int) (Page, error) {
	if caller == nil {
		return Page{}, fault.New(fault.ErrUnauthenticated, "")
	}
	f, err := normalizeFilter(f)
	if err != nil {
		return Page{}, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if f.Scope == ScopeAll {
		if !caller.IsAdmin() {
			return Page{}, fault.New(fault.ErrAuthorization, "Only administrators can list all submissions.")
		}
		res, err := w.backend.AllSubmissions(ctx, f, page, pageSize)
		if err != nil {
			return Page{}, fault.Classify(err)
		}
		if res.Items == nil {
			res.Items = []Submission{}
		}
		return res, nil
	}
	own, err := w.backend.OwnSubmissions(ctx, *caller)
	if err != nil {
		return Page{}, fault.Classify(err)
	}
	return Paginate(own, f, page, pageSize), nil
}

// Approve moves a pending submission to approved. comments may be empty.
func (w *Workflow) Approve(ctx context.Context, id string, reviewer *auth.Identity, comments string) (Submission, error) {
	return w.review(ctx, id, reviewer, StatusApproved, comments)
}

// Reject moves a pending submission to rejected. comments are required.
func (w *Workflow) Reject(ctx context.Context, id string, reviewer *auth.Identity, comments string) (Submission, error) {
	return w.review(ctx, id, reviewer, StatusRejected, comments)
}

func (w *Workflow) review(ctx context.Context, id string, reviewer *auth.Identity, to Status, comments string) (Submission, error) {
	if reviewer == nil {
		return Submission{}, fault.New(fault.ErrUnauthenticated, "")
	}
	if !reviewer.IsAdmin() {
		return Submission{}, fault.New(fault.ErrAuthorization, "Only administrators can review submissions.")
	}
	id = strings.TrimSpace(id)
	comments = strings.TrimSpace(comments)
	errs := validate.Errors{}
	errs.Check(validate.Required(id), "id", "Submission id is required")
	if to == StatusRejected {
		errs.Check(validate.Required(comments), "reviewComments", "Please provide a reason for rejection")
	}
	if err := errs.Err(); err != nil {
		return Submission{}, err
	}

	sub, err := w.backend.Review(ctx, id, Decision{
		Status:     to,
		Comments:   comments,
		ReviewedAt: w.now().UTC(),
		Reviewer:   *reviewer,
	})
	if err != nil {
		return Submission{}, fault.Classify(err)
	}
	obs.CountTransition(string(to))
	w.logger.Info("submission reviewed",
		zap.String("submission_id", id),
		zap.String("reviewer_id", reviewer.ID),
		zap.String("status", string(to)))
	_ = audit.LogEvent(auth.ContextWithIdentity(ctx, *reviewer), "submission."+string(to), map[string]any{
		"submission_id": id,
	})
	return sub, nil
}

func normalizeFilter(f Filter) (Filter, error) {
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.Search = strings.TrimSpace(f.Search)
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.Status != StatusAll && !Status(f.Status).Valid() {
		errs := validate.Errors{}
		errs.Add("status", "Status must be all, pending, approved or rejected")
		return f, errs.Err()
	}
	switch f.Scope {
	case "":
		f.Scope = ScopeMine
	case ScopeMine, ScopeAll:
	default:
		errs := validate.Errors{}
		errs.Add("scope", "Scope must be mine or all")
		return f, errs.Err()
	}
	return f, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
