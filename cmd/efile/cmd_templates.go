package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"efiling.org/internal/auth"
	"efiling.org/internal/blob"
	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
)

func newTemplatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "Browse and manage filing templates",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List published templates",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				templates, err := a.client.ListTemplates(cmd.Context())
				if err != nil {
					return err
				}
				printTemplates(a.out, templates)
				return nil
			},
		},
		&cobra.Command{
			Use:   "types",
			Short: "List the template types a submission may use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				types, err := a.client.TemplateTypes(cmd.Context())
				if err != nil {
					return err
				}
				for _, t := range types {
					fmt.Fprintln(a.out, t)
				}
				return nil
			},
		},
		newTemplateDownloadCmd(a),
		newTemplateCreateCmd(a),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Remove a template (admin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.session.RequireRole(cmd.Context(), auth.RoleAdmin); err != nil {
					return err
				}
				if err := a.client.DeleteTemplate(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Template %s deleted.\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newTemplateDownloadCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save a template file and count the download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			templates, err := a.client.ListTemplates(ctx)
			if err != nil {
				return err
			}
			var tpl *filing.Template
			for i := range templates {
				if templates[i].ID == args[0] {
					tpl = &templates[i]
					break
				}
			}
			if tpl == nil {
				return fault.New(fault.ErrNotFound, "Template not found")
			}
			dest := output
			if dest == "" {
				dest = blob.SafeName(tpl.OriginalFilename)
			}
			n, err := saveFile(a, cmd, tpl.FileURL, dest)
			if err != nil {
				return err
			}
			if err := a.client.LogDownload(ctx, tpl.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved %s (%s)\n", dest, humanize.Bytes(uint64(n)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (default: the original filename)")
	return cmd
}

func newTemplateCreateCmd(a *app) *cobra.Command {
	var in filing.TemplateInput
	var path string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a template (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.session.RequireRole(cmd.Context(), auth.RoleAdmin); err != nil {
				return err
			}
			doc, closeDoc, err := openDocument(path)
			if err != nil {
				return err
			}
			defer closeDoc()
			in.File = doc
			tpl, err := a.client.CreateTemplate(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Published template %s (%s)\n", tpl.ID, tpl.Name)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "Template name")
	f.StringVar(&in.Description, "description", "", "Description")
	f.StringVar(&in.Type, "type", "", "Template type")
	f.StringVar(&in.Version, "version", "", "Version label")
	f.StringVar(&path, "file", "", "Path of the template file")
	return cmd
}

// saveFile downloads fileURL into dest, removing dest when the transfer fails.
func saveFile(a *app, cmd *cobra.Command, fileURL, dest string) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := a.client.Download(cmd.Context(), fileURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	return n, nil
}

// openDocument opens path as an upload. An empty path yields a nil document
// so that validation reports the missing file.
func openDocument(path string) (*filing.Document, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return &filing.Document{Filename: filepath.Base(path), Body: f}, func() { _ = f.Close() }, nil
}
