package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"efiling.org/internal/auth"
	"efiling.org/internal/blob"
	"efiling.org/internal/filing"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		p                    filing.Payload
		mainPath, supporting string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "File a return for a tax period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.session.RequireRole(cmd.Context(), auth.RoleUser)
			if err != nil {
				return err
			}
			mainDoc, closeMain, err := openDocument(mainPath)
			if err != nil {
				return err
			}
			defer closeMain()
			supportDoc, closeSupport, err := openDocument(supporting)
			if err != nil {
				return err
			}
			defer closeSupport()
			p.MainFile, p.SupportingDoc = mainDoc, supportDoc

			sub, err := a.workflow.Create(cmd.Context(), &id, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Submission received.")
			printSubmission(a.out, sub)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.TemplateType, "type", "", "Template type, for example annual_returns")
	f.StringVar(&p.TaxPeriod, "period", "", "Tax period as YYYY-MM")
	f.StringVar(&p.Comments, "comments", "", "Optional note for the reviewer")
	f.StringVar(&mainPath, "file", "", "Completed template file")
	f.StringVar(&supporting, "supporting", "", "Optional supporting document")
	return cmd
}

func newSubmissionsCmd(a *app) *cobra.Command {
	var (
		all        bool
		filter     filing.Filter
		page, size int
		output     string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List your submissions, or every submission with --all (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Scope = filing.ScopeMine
			allowed := auth.RoleUser
			if all {
				filter.Scope = filing.ScopeAll
				allowed = auth.RoleAdmin
			}
			id, err := a.session.RequireRole(cmd.Context(), allowed)
			if err != nil {
				return err
			}
			res, err := a.workflow.List(cmd.Context(), &id, filter, page, size)
			if err != nil {
				return err
			}
			printSubmissions(a.out, res.Items, all)
			fmt.Fprintf(a.out, "Page %d of %d\n", res.CurrentPage, max(res.TotalPages, 1))
			return nil
		},
	}
	lf := list.Flags()
	lf.BoolVar(&all, "all", false, "List submissions of every taxpayer")
	lf.StringVar(&filter.Status, "status", "", "Filter by status: pending, approved, rejected or all")
	lf.StringVar(&filter.Search, "search", "", "Match taxpayer name or NSTIN")
	lf.IntVar(&page, "page", 1, "Page number")
	lf.IntVar(&size, "size", filing.DefaultPageSize, "Page size")

	download := &cobra.Command{
		Use:   "download <id>",
		Short: "Save the main file of one of your submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session.RequireRole(cmd.Context(), auth.RoleUser)
			if err != nil {
				return err
			}
			res, err := a.workflow.List(cmd.Context(), &id, filing.Filter{Scope: filing.ScopeMine}, 1, 1<<20)
			if err != nil {
				return err
			}
			for _, s := range res.Items {
				if s.ID != args[0] {
					continue
				}
				dest := output
				if dest == "" {
					dest = blob.SafeName(s.MainFile.OriginalFilename)
				}
				if _, err := saveFile(a, cmd, s.MainFile.URL, dest); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Saved %s\n", dest)
				return nil
			}
			return fmt.Errorf("submission %s not found among your submissions", args[0])
		},
	}
	download.Flags().StringVarP(&output, "output", "o", "", "Destination path")

	cmd := &cobra.Command{
		Use:     "submissions",
		Aliases: []string{"submission"},
		Short:   "Inspect filed returns",
	}
	cmd.AddCommand(list, download)
	return cmd
}

func newReviewCmd(a *app) *cobra.Command {
	var comments string
	review := func(approve bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			id, err := a.session.RequireRole(cmd.Context(), auth.RoleAdmin)
			if err != nil {
				return err
			}
			var sub filing.Submission
			if approve {
				sub, err = a.workflow.Approve(cmd.Context(), args[0], &id, comments)
			} else {
				sub, err = a.workflow.Reject(cmd.Context(), args[0], &id, comments)
			}
			if err != nil {
				return err
			}
			printSubmission(a.out, sub)
			return nil
		}
	}
	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending submission",
		Args:  cobra.ExactArgs(1),
		RunE:  review(true),
	}
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending submission with a reason",
		Args:  cobra.ExactArgs(1),
		RunE:  review(false),
	}
	approve.Flags().StringVar(&comments, "comments", "", "Optional review comments")
	reject.Flags().StringVar(&comments, "comments", "", "Reason for rejection")

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Approve or reject submissions (admin)",
	}
	cmd.AddCommand(approve, reject)
	return cmd
}
