package filing

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"efiling.org/internal/auth"
	"efiling.org/internal/validate"
)

// Status is the review state of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// StatusAll disables status filtering in a Filter.
const StatusAll = "all"

// Scope selects whose submissions a listing covers.
type Scope string

const (
	ScopeMine Scope = "mine"
	ScopeAll  Scope = "all"
)

// Template types published by default.
const (
	TypeAnnualReturns      = "annual_returns"
	TypeRemittanceSchedule = "remittance_schedule"
	TypeWithholdingTax     = "withholding_tax"
)

// DefaultTemplateTypes lists the template types a fresh portal offers.
var DefaultTemplateTypes = []string{TypeAnnualReturns, TypeRemittanceSchedule, TypeWithholdingTax}

// FileRef points at a stored document.
type FileRef struct {
	URL              string `json:"url"`
	OriginalFilename string `json:"originalFilename"`
	Extension        string `json:"fileExtension"`
}

// NewFileRef derives the extension from the original filename.
func NewFileRef(url, originalFilename string) FileRef {
	return FileRef{
		URL:              url,
		OriginalFilename: originalFilename,
		Extension:        strings.TrimPrefix(strings.ToLower(filepath.Ext(originalFilename)), "."),
	}
}

// Owner is the submitting taxpayer as embedded in a submission.
type Owner struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	NSTIN string `json:"nstin"`
	Email string `json:"email"`
}

// OwnerOf copies the identity fields of id.
func OwnerOf(id auth.Identity) Owner {
	return Owner{ID: id.ID, Name: id.Name, NSTIN: id.NSTIN, Email: id.Email}
}

// Submission is a filed return.
type Submission struct {
	ID             string     `json:"_id"`
	Owner          Owner      `json:"user"`
	TemplateType   string     `json:"templateType"`
	TaxPeriod      TaxPeriod  `json:"taxPeriod"`
	MainFile       FileRef    `json:"mainFile"`
	SupportingDoc  *FileRef   `json:"supportingDoc,omitempty"`
	Comments       string     `json:"comments"`
	Status         Status     `json:"status"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	ReviewedAt     *time.Time `json:"reviewedAt,omitempty"`
	ReviewComments string     `json:"reviewComments"`
}

// Template is an administrator-published downloadable form.
type Template struct {
	ID               string    `json:"_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`
	Version          string    `json:"version"`
	FileURL          string    `json:"fileUrl"`
	OriginalFilename string    `json:"originalFilename"`
	FileExtension    string    `json:"fileExtension"`
	DownloadCount    int64     `json:"downloadCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// File returns the template document reference.
func (t Template) File() FileRef {
	return FileRef{URL: t.FileURL, OriginalFilename: t.OriginalFilename, Extension: t.FileExtension}
}

// TaxPeriod is a calendar month in YYYY-MM form.
type TaxPeriod struct {
	Year  int
	Month time.Month
}

// ParseTaxPeriod accepts YYYY-MM with a month between 01 and 12.
func ParseTaxPeriod(s string) (TaxPeriod, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return TaxPeriod{}, fmt.Errorf("tax period %q: expected YYYY-MM", s)
	}
	return TaxPeriod{Year: t.Year(), Month: t.Month()}, nil
}

func (p TaxPeriod) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether the period is unset.
func (p TaxPeriod) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// Label renders the period for display, for example "March 2024".
func (p TaxPeriod) Label() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

func (p TaxPeriod) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *TaxPeriod) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = TaxPeriod{}
		return nil
	}
	v, err := ParseTaxPeriod(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Document is a file attached to a new submission or template.
type Document struct {
	Filename string
	Body     io.Reader
}

// Payload is the input of Workflow.Create.
type Payload struct {
	TemplateType  string
	TaxPeriod     string
	Comments      string
	MainFile      *Document
	SupportingDoc *Document
}

// Filter narrows a submission listing.
type Filter struct {
	Status string `url:"status,omitempty"`
	Search string `url:"search,omitempty"`
	Scope  Scope  `url:"-"`
}

// Page is one page of a listing. CurrentPage is 1-indexed.
type Page struct {
	Items       []Submission `json:"submissions"`
	TotalPages  int          `json:"totalPages"`
	CurrentPage int          `json:"currentPage"`
}

// Decision is a review outcome applied through Backend.Review.
type Decision struct {
	Status     Status
	Comments   string
	ReviewedAt time.Time
	Reviewer   auth.Identity
}

// TemplateInput is the metadata an administrator supplies when publishing a
// template.
type TemplateInput struct {
	Name        string
	Description string
	Type        string
	Version     string
	File        *Document
}

// Validate checks the template metadata and the attached file.
func (in TemplateInput) Validate() error {
	errs := validate.Errors{}
	errs.Check(validate.Required(in.Name), "name", "Template name is required")
	errs.Check(validate.Required(in.Type), "type", "Template type is required")
	if strings.TrimSpace(in.Type) != "" && !contains(DefaultTemplateTypes, strings.TrimSpace(in.Type)) {
		errs.Add("type", "Template type must be annual_returns, remittance_schedule or withholding_tax")
	}
	errs.Check(validate.Required(in.Version), "version", "Version is required")
	if in.File == nil || strings.TrimSpace(in.File.Filename) == "" {
		errs.Add("file", "Please select a template file")
	}
	return errs.Err()
}

// Dashboard summarises portal activity for administrators.
type Dashboard struct {
	TotalUsers          int                `json:"totalUsers"`
	TotalTemplates      int                `json:"totalTemplates"`
	PendingSubmissions  int                `json:"pendingSubmissions"`
	ApprovedSubmissions int                `json:"approvedSubmissions"`
	RejectedSubmissions int                `json:"rejectedSubmissions"`
	RecentSubmissions   []RecentSubmission `json:"recentSubmissions"`
}

// RecentSubmission is the dashboard row for a submission.
type RecentSubmission struct {
	ID           string    `json:"_id"`
	NSTIN        string    `json:"nstin"`
	UserName     string    `json:"userName"`
	TemplateType string    `json:"templateType"`
	Status       Status    `json:"status"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Recent converts s to its dashboard row.
func (s Submission) Recent() RecentSubmission {
	return RecentSubmission{
		ID:           s.ID,
		NSTIN:        s.Owner.NSTIN,
		UserName:     s.Owner.Name,
		TemplateType: s.TemplateType,
		Status:       s.Status,
		SubmittedAt:  s.SubmittedAt,
	}
}
