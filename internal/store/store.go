// Package store persists accounts, templates and submissions for the
// reference API server.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"efiling.org/internal/auth"
	"efiling.org/internal/filing"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrDuplicate       = errors.New("store: duplicate")
	ErrAlreadyReviewed = errors.New("store: submission already reviewed")
)

// UserRecord is an account with its password hash.
type UserRecord struct {
	auth.User
	PasswordHash string
}

// Counts is the per-status submission tally used by the dashboard.
type Counts struct {
	Users       int
	Templates   int
	Submissions map[filing.Status]int
}

// Store is the persistence contract of the API server.
//
// ReviewSubmission is a conditional update: it applies only while the
// submission is pending and otherwise returns ErrAlreadyReviewed.
type Store interface {
	CreateUser(ctx context.Context, u UserRecord) (auth.User, error)
	UserByID(ctx context.Context, id string) (UserRecord, error)
	UserByNSTIN(ctx context.Context, nstin string) (UserRecord, error)
	ListUsers(ctx context.Context, search string, offset, limit int) ([]auth.User, int, error)
	UpdateUser(ctx context.Context, u auth.User, passwordHash string) (auth.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateTemplate(ctx context.Context, t filing.Template) (filing.Template, error)
	Template(ctx context.Context, id string) (filing.Template, error)
	ListTemplates(ctx context.Context) ([]filing.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	RecordDownload(ctx context.Context, id string) (filing.Template, error)

	CreateSubmission(ctx context.Context, s filing.Submission) (filing.Submission, error)
	Submission(ctx context.Context, id string) (filing.Submission, error)
	SubmissionsByOwner(ctx context.Context, ownerID string) ([]filing.Submission, error)
	ListSubmissions(ctx context.Context, f filing.Filter, offset, limit int) ([]filing.Submission, int, error)
	ReviewSubmission(ctx context.Context, id string, d filing.Decision) (filing.Submission, error)
	RecentSubmissions(ctx context.Context, limit int) ([]filing.Submission, error)

	Counts(ctx context.Context) (Counts, error)
	Ping(ctx context.Context) error
	Close() error
}

// TemplateTypes returns the distinct types of templates, in first-published
// order.
func TemplateTypes(templates []filing.Template) []string {
	seen := map[string]bool{}
	var out []string
	ordered := append([]filing.Template(nil), templates...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })
	for _, t := range ordered {
		if !seen[t.Type] {
			seen[t.Type] = true
			out = append(out, t.Type)
		}
	}
	return out
}

// MatchUser applies the account search: a case-insensitive substring match
// on name, NSTIN or email.
func MatchUser(u auth.User, search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Name), q) ||
		strings.Contains(strings.ToLower(u.NSTIN), q) ||
		strings.Contains(strings.ToLower(u.Email), q)
}

// Stamp returns t in UTC truncated to microseconds, the precision every
// backend round-trips.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
