package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"efiling.org/internal/filing"
	"efiling.org/internal/store"
)

const submissionSelect = `
	select s.id, s.user_id, u.name, u.nstin, u.email, s.template_type, s.tax_period,
		s.main_file_url, s.main_file_name, s.main_file_ext,
		s.supporting_url, s.supporting_name, s.supporting_ext,
		s.comments, s.status, s.submitted_at, s.reviewed_at, s.review_comments
	from submissions s
	join users u on u.id = s.user_id`

func scanSubmission(row scanner) (filing.Submission, error) {
	var (
		sub        filing.Submission
		period     string
		status     string
		supURL     sql.NullString
		supName    sql.NullString
		supExt     sql.NullString
		reviewedAt sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.Owner.ID, &sub.Owner.Name, &sub.Owner.NSTIN, &sub.Owner.Email,
		&sub.TemplateType, &period,
		&sub.MainFile.URL, &sub.MainFile.OriginalFilename, &sub.MainFile.Extension,
		&supURL, &supName, &supExt,
		&sub.Comments, &status, &sub.SubmittedAt, &reviewedAt, &sub.ReviewComments)
	if err != nil {
		return filing.Submission{}, err
	}
	if sub.TaxPeriod, err = filing.ParseTaxPeriod(period); err != nil {
		return filing.Submission{}, err
	}
	sub.Status = filing.Status(status)
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	if supURL.Valid {
		sub.SupportingDoc = &filing.FileRef{URL: supURL.String, OriginalFilename: supName.String, Extension: supExt.String}
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time.UTC()
		sub.ReviewedAt = &at
	}
	return sub, nil
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]filing.Submission, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []filing.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) CreateSubmission(ctx context.Context, sub filing.Submission) (filing.Submission, error) {
	var supURL, supName, supExt sql.NullString
	if sub.SupportingDoc != nil {
		supURL = nullString(sub.SupportingDoc.URL)
		supName = nullString(sub.SupportingDoc.OriginalFilename)
		supExt = sql.NullString{String: sub.SupportingDoc.Extension, Valid: supURL.Valid}
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		insert into submissions (id, user_id, template_type, tax_period,
			main_file_url, main_file_name, main_file_ext,
			supporting_url, supporting_name, supporting_ext,
			comments, status, submitted_at, review_comments)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')
	`), sub.ID, sub.Owner.ID, sub.TemplateType, sub.TaxPeriod.String(),
		sub.MainFile.URL, sub.MainFile.OriginalFilename, sub.MainFile.Extension,
		supURL, supName, supExt,
		sub.Comments, string(filing.StatusPending), store.Stamp(sub.SubmittedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return filing.Submission{}, store.ErrDuplicate
		}
		return filing.Submission{}, err
	}
	return s.Submission(ctx, sub.ID)
}

func (s *Store) Submission(ctx context.Context, id string) (filing.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, s.q(submissionSelect+` where s.id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return filing.Submission{}, store.ErrNotFound
	}
	return sub, err
}

func (s *Store) SubmissionsByOwner(ctx context.Context, ownerID string) ([]filing.Submission, error) {
	return s.querySubmissions(ctx, submissionSelect+` where s.user_id = ? order by s.submitted_at desc, s.id desc`, ownerID)
}

func (s *Store) ListSubmissions(ctx context.Context, f filing.Filter, offset, limit int) ([]filing.Submission, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" && f.Status != filing.StatusAll {
		conds = append(conds, `s.status = ?`)
		args = append(args, f.Status)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := escapeLike(f.Search)
		conds = append(conds, `(lower(u.name) like ? escape '\' or lower(u.nstin) like ? escape '\')`)
		args = append(args, p, p)
	}
	where := ""
	if len(conds) > 0 {
		where = ` where ` + strings.Join(conds, ` and `)
	}
	var total int
	countQuery := `select count(*) from submissions s join users u on u.id = s.user_id` + where
	if err := s.db.QueryRowContext(ctx, s.q(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = total
	}
	items, err := s.querySubmissions(ctx, submissionSelect+where+` order by s.submitted_at desc, s.id desc limit ? offset ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ReviewSubmission updates the row only while it is still pending. Zero rows
// affected means either a missing id or a lost race with another reviewer.
func (s *Store) ReviewSubmission(ctx context.Context, id string, d filing.Decision) (filing.Submission, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		update submissions
		set status = ?, reviewed_at = ?, review_comments = ?, reviewed_by = ?
		where id = ? and status = 'pending'
	`), string(d.Status), store.Stamp(d.ReviewedAt), d.Comments, nullString(d.Reviewer.ID), id)
	if err != nil {
		return filing.Submission{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return filing.Submission{}, err
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, s.q(`select status from submissions where id = ?`), id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return filing.Submission{}, store.ErrNotFound
		}
		if err != nil {
			return filing.Submission{}, err
		}
		return filing.Submission{}, store.ErrAlreadyReviewed
	}
	return s.Submission(ctx, id)
}

func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]filing.Submission, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.querySubmissions(ctx, submissionSelect+` order by s.submitted_at desc, s.id desc limit ?`, limit)
}

func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	c := store.Counts{Submissions: map[filing.Status]int{}}
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&c.Users); err != nil {
		return store.Counts{}, err
	}
	if err := s.db.QueryRowContext(ctx, `select count(*) from templates`).Scan(&c.Templates); err != nil {
		return store.Counts{}, err
	}
	rows, err := s.db.QueryContext(ctx, `select status, count(*) from submissions group by status`)
	if err != nil {
		return store.Counts{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return store.Counts{}, err
		}
		c.Submissions[filing.Status(status)] = n
	}
	return c, rows.Err()
}
