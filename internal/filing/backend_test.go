package filing

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
)

// memBackend is an in-process Backend whose Review is serialised by a mutex.
type memBackend struct {
	mu     sync.Mutex
	seq    int
	subs   map[string]*Submission
	types  []string
	calls  int
	failOn error
}

func newMemBackend() *memBackend {
	return &memBackend{subs: map[string]*Submission{}, types: append([]string(nil), DefaultTemplateTypes...)}
}

func (b *memBackend) TemplateTypes(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failOn != nil {
		return nil, b.failOn
	}
	return append([]string(nil), b.types...), nil
}

func (b *memBackend) Submit(_ context.Context, author auth.Identity, p Payload, at time.Time) (Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.seq++
	id := fmt.Sprintf("sub-%03d", b.seq)
	period, err := ParseTaxPeriod(p.TaxPeriod)
	if err != nil {
		return Submission{}, fault.New(fault.ErrValidation, err.Error())
	}
	sub := Submission{
		ID:           id,
		Owner:        OwnerOf(author),
		TemplateType: p.TemplateType,
		TaxPeriod:    period,
		MainFile:     store(id, p.MainFile),
		Comments:     p.Comments,
		Status:       StatusPending,
		SubmittedAt:  at,
	}
	if p.SupportingDoc != nil {
		ref := store(id, p.SupportingDoc)
		sub.SupportingDoc = &ref
	}
	b.subs[id] = &sub
	return sub, nil
}

func store(id string, d *Document) FileRef {
	if d.Body != nil {
		_, _ = io.Copy(io.Discard, d.Body)
	}
	return NewFileRef("memory://"+id+"/"+d.Filename, d.Filename)
}

func (b *memBackend) OwnSubmissions(_ context.Context, owner auth.Identity) ([]Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	var out []Submission
	for _, s := range b.subs {
		if s.Owner.ID == owner.ID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (b *memBackend) AllSubmissions(_ context.Context, f Filter, page, pageSize int) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	all := make([]Submission, 0, len(b.subs))
	for _, s := range b.subs {
		all = append(all, *s)
	}
	return Paginate(all, f, page, pageSize), nil
}

func (b *memBackend) Review(_ context.Context, id string, d Decision) (Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	s, ok := b.subs[id]
	if !ok {
		return Submission{}, fault.New(fault.ErrNotFound, "Submission not found")
	}
	if s.Status != StatusPending {
		return Submission{}, fault.New(fault.ErrInvalidStateTransition, "Submission has already been "+string(s.Status))
	}
	at := d.ReviewedAt
	s.Status = d.Status
	s.ReviewComments = d.Comments
	s.ReviewedAt = &at
	return *s, nil
}

func (b *memBackend) get(id string) Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.subs[id]
}

func (b *memBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
