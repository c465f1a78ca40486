package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"efiling.org/internal/auth"
	"efiling.org/internal/filing"
)

func newTable(header ...any) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.Wrap = true
	table.AddRow(header...)
	return table
}

func printTemplates(w io.Writer, templates []filing.Template) {
	if len(templates) == 0 {
		fmt.Fprintln(w, "No templates published.")
		return
	}
	table := newTable("ID", "Name", "Type", "Version", "File", "Downloads", "Published")
	table.RightAlign(5)
	for _, t := range templates {
		table.AddRow(t.ID, t.Name, t.Type, t.Version, t.OriginalFilename,
			humanize.Comma(t.DownloadCount), ago(t.CreatedAt))
	}
	fmt.Fprintln(w, table)
}

func printSubmissions(w io.Writer, subs []filing.Submission, withOwner bool) {
	if len(subs) == 0 {
		fmt.Fprintln(w, "No submissions found.")
		return
	}
	header := []any{"ID", "Type", "Period", "Status", "Submitted", "Reviewed"}
	if withOwner {
		header = append([]any{"ID", "NSTIN", "Taxpayer"}, header[1:]...)
	}
	table := newTable(header...)
	for _, s := range subs {
		reviewed := "-"
		if s.ReviewedAt != nil {
			reviewed = ago(*s.ReviewedAt)
		}
		row := []any{s.ID, s.TemplateType, s.TaxPeriod.Label(), s.Status, ago(s.SubmittedAt), reviewed}
		if withOwner {
			row = append([]any{s.ID, s.Owner.NSTIN, s.Owner.Name}, row[1:]...)
		}
		table.AddRow(row...)
	}
	fmt.Fprintln(w, table)
}

func printSubmission(w io.Writer, s filing.Submission) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("ID:", s.ID)
	table.AddRow("Taxpayer:", fmt.Sprintf("%s (%s)", s.Owner.Name, s.Owner.NSTIN))
	table.AddRow("Type:", s.TemplateType)
	table.AddRow("Period:", s.TaxPeriod.Label())
	table.AddRow("Status:", s.Status)
	table.AddRow("Main file:", s.MainFile.OriginalFilename)
	if s.SupportingDoc != nil {
		table.AddRow("Supporting:", s.SupportingDoc.OriginalFilename)
	}
	if s.Comments != "" {
		table.AddRow("Comments:", s.Comments)
	}
	table.AddRow("Submitted:", ago(s.SubmittedAt))
	if s.ReviewedAt != nil {
		table.AddRow("Reviewed:", ago(*s.ReviewedAt))
		table.AddRow("Review comments:", s.ReviewComments)
	}
	fmt.Fprintln(w, table)
}

func printUsers(w io.Writer, page auth.UserPage) {
	if len(page.Users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}
	table := newTable("ID", "NSTIN", "Name", "Email", "Phone", "Role", "Created")
	for _, u := range page.Users {
		table.AddRow(u.ID, u.NSTIN, u.Name, u.Email, u.Phone, u.Role, ago(u.CreatedAt))
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "Page %d of %d\n", page.CurrentPage, max(page.TotalPages, 1))
}

func printUser(w io.Writer, u auth.User) {
	table := uitable.New()
	table.AddRow("ID:", u.ID)
	table.AddRow("NSTIN:", u.NSTIN)
	table.AddRow("Name:", u.Name)
	table.AddRow("Email:", u.Email)
	table.AddRow("Phone:", u.Phone)
	table.AddRow("Role:", u.Role)
	fmt.Fprintln(w, table)
}

func printDashboard(w io.Writer, d filing.Dashboard) {
	table := uitable.New()
	table.RightAlign(1)
	table.AddRow("Users:", humanize.Comma(int64(d.TotalUsers)))
	table.AddRow("Templates:", humanize.Comma(int64(d.TotalTemplates)))
	table.AddRow("Pending:", humanize.Comma(int64(d.PendingSubmissions)))
	table.AddRow("Approved:", humanize.Comma(int64(d.ApprovedSubmissions)))
	table.AddRow("Rejected:", humanize.Comma(int64(d.RejectedSubmissions)))
	fmt.Fprintln(w, table)
	if len(d.RecentSubmissions) == 0 {
		return
	}
	fmt.Fprintln(w)
	recent := newTable("ID", "NSTIN", "Taxpayer", "Type", "Status", "Submitted")
	for _, r := range d.RecentSubmissions {
		recent.AddRow(r.ID, r.NSTIN, r.UserName, r.TemplateType, r.Status, ago(r.SubmittedAt))
	}
	fmt.Fprintln(w, recent)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
