package httpapi

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"efiling.org/internal/auth"
	"efiling.org/internal/blob"
	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
	"efiling.org/internal/ids"
	"efiling.org/internal/store"
)

// filesPrefix is the URL path, relative to /api, under which blobs are served.
const filesPrefix = "/files/"

// storeBackend runs the filing workflow against the server's store and blob
// storage.
type storeBackend struct {
	store  store.Store
	blobs  blob.Store
	logger *zap.Logger
}

var (
	_ filing.Backend         = (*storeBackend)(nil)
	_ filing.TemplateCatalog = (*storeBackend)(nil)
)

func (b *storeBackend) Submit(ctx context.Context, author auth.Identity, p filing.Payload, at time.Time) (filing.Submission, error) {
	period, err := filing.ParseTaxPeriod(p.TaxPeriod)
	if err != nil {
		return filing.Submission{}, fault.Wrap(fault.ErrValidation, err, "Tax period must be a valid month (YYYY-MM)")
	}
	id := ids.At(at)
	var stored []string
	cleanup := func() {
		for _, key := range stored {
			if err := b.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
				b.logger.Warn("blob cleanup failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	main, err := b.put(ctx, blob.Key("submissions", id, "main-"+blob.SafeName(p.MainFile.Filename)), p.MainFile)
	if err != nil {
		return filing.Submission{}, err
	}
	stored = append(stored, keyOf(main.URL))
	sub := filing.Submission{
		ID:           id,
		Owner:        filing.OwnerOf(author),
		TemplateType: p.TemplateType,
		TaxPeriod:    period,
		MainFile:     main,
		Comments:     p.Comments,
		Status:       filing.StatusPending,
		SubmittedAt:  at,
	}
	if p.SupportingDoc != nil {
		doc, err := b.put(ctx, blob.Key("submissions", id, "supporting-"+blob.SafeName(p.SupportingDoc.Filename)), p.SupportingDoc)
		if err != nil {
			cleanup()
			return filing.Submission{}, err
		}
		stored = append(stored, keyOf(doc.URL))
		sub.SupportingDoc = &doc
	}

	created, err := b.store.CreateSubmission(ctx, sub)
	if err != nil {
		cleanup()
		return filing.Submission{}, storeFault(err, "Account not found", "")
	}
	return created, nil
}

func (b *storeBackend) put(ctx context.Context, key string, doc *filing.Document) (filing.FileRef, error) {
	if _, err := b.blobs.Put(ctx, key, doc.Body, contentType(doc.Filename)); err != nil {
		return filing.FileRef{}, fault.Wrap(fault.ErrTransport, err, "Could not store the uploaded file.")
	}
	return filing.NewFileRef(filesPrefix+key, doc.Filename), nil
}

func (b *storeBackend) OwnSubmissions(ctx context.Context, owner auth.Identity) ([]filing.Submission, error) {
	subs, err := b.store.SubmissionsByOwner(ctx, owner.ID)
	return subs, storeFault(err, "", "")
}

func (b *storeBackend) AllSubmissions(ctx context.Context, f filing.Filter, page, pageSize int) (filing.Page, error) {
	items, total, err := b.store.ListSubmissions(ctx, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return filing.Page{}, storeFault(err, "", "")
	}
	if items == nil {
		items = []filing.Submission{}
	}
	return filing.Page{Items: items, TotalPages: filing.TotalPages(total, pageSize), CurrentPage: page}, nil
}

func (b *storeBackend) Review(ctx context.Context, id string, d filing.Decision) (filing.Submission, error) {
	sub, err := b.store.ReviewSubmission(ctx, id, d)
	return sub, storeFault(err, "Submission not found", "")
}

// TemplateTypes lists the published template types, or the default types
// while nothing is published.
func (b *storeBackend) TemplateTypes(ctx context.Context) ([]string, error) {
	templates, err := b.store.ListTemplates(ctx)
	if err != nil {
		return nil, storeFault(err, "", "")
	}
	types := store.TemplateTypes(templates)
	if len(types) == 0 {
		return append([]string(nil), filing.DefaultTemplateTypes...), nil
	}
	return types, nil
}

func keyOf(fileURL string) string {
	return strings.TrimPrefix(fileURL, filesPrefix)
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
