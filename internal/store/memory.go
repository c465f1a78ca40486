package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"efiling.org/internal/auth"
	"efiling.org/internal/filing"
)

// Memory is an in-process Store. A single mutex serialises every write, which
// makes ReviewSubmission's pending check and update atomic.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]UserRecord
	templates   map[string]filing.Template
	submissions map[string]filing.Submission
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:       map[string]UserRecord{},
		templates:   map[string]filing.Template{},
		submissions: map[string]filing.Submission{},
	}
}

func (m *Memory) CreateUser(_ context.Context, u UserRecord) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return auth.User{}, ErrDuplicate
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.NSTIN, u.NSTIN) {
			return auth.User{}, ErrDuplicate
		}
	}
	u.CreatedAt = Stamp(u.CreatedAt)
	m.users[u.ID] = u
	return u.User, nil
}

func (m *Memory) UserByID(_ context.Context, id string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) UserByNSTIN(_ context.Context, nstin string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.NSTIN, nstin) {
			return u, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (m *Memory) ListUsers(_ context.Context, search string, offset, limit int) ([]auth.User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []auth.User
	for _, u := range m.users {
		if MatchUser(u.User, search) {
			matched = append(matched, u.User)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return window(matched, offset, limit), len(matched), nil
}

func (m *Memory) UpdateUser(_ context.Context, u auth.User, passwordHash string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[u.ID]
	if !ok {
		return auth.User{}, ErrNotFound
	}
	for id, other := range m.users {
		if id != u.ID && strings.EqualFold(other.NSTIN, u.NSTIN) {
			return auth.User{}, ErrDuplicate
		}
	}
	cur.NSTIN, cur.Name, cur.Email, cur.Phone, cur.Role = u.NSTIN, u.Name, u.Email, u.Phone, u.Role
	if passwordHash != "" {
		cur.PasswordHash = passwordHash
	}
	m.users[u.ID] = cur
	return cur.User, nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for sid, s := range m.submissions {
		if s.Owner.ID == id {
			delete(m.submissions, sid)
		}
	}
	return nil
}

func (m *Memory) CreateTemplate(_ context.Context, t filing.Template) (filing.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; ok {
		return filing.Template{}, ErrDuplicate
	}
	t.CreatedAt = Stamp(t.CreatedAt)
	m.templates[t.ID] = t
	return t, nil
}

func (m *Memory) Template(_ context.Context, id string) (filing.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return filing.Template{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTemplates(context.Context) ([]filing.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]filing.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *Memory) RecordDownload(_ context.Context, id string) (filing.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return filing.Template{}, ErrNotFound
	}
	t.DownloadCount++
	m.templates[id] = t
	return t, nil
}

func (m *Memory) CreateSubmission(_ context.Context, s filing.Submission) (filing.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[s.ID]; ok {
		return filing.Submission{}, ErrDuplicate
	}
	if _, ok := m.users[s.Owner.ID]; !ok {
		return filing.Submission{}, ErrNotFound
	}
	s.SubmittedAt = Stamp(s.SubmittedAt)
	m.submissions[s.ID] = s
	return m.withOwner(s), nil
}

func (m *Memory) Submission(_ context.Context, id string) (filing.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return filing.Submission{}, ErrNotFound
	}
	return m.withOwner(s), nil
}

func (m *Memory) SubmissionsByOwner(_ context.Context, ownerID string) ([]filing.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []filing.Submission{}
	for _, s := range m.submissions {
		if s.Owner.ID == ownerID {
			out = append(out, m.withOwner(s))
		}
	}
	filing.SortRecentFirst(out)
	return out, nil
}

func (m *Memory) ListSubmissions(_ context.Context, f filing.Filter, offset, limit int) ([]filing.Submission, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []filing.Submission
	for _, s := range m.submissions {
		s = m.withOwner(s)
		if filing.Matches(s, f) {
			matched = append(matched, s)
		}
	}
	filing.SortRecentFirst(matched)
	return window(matched, offset, limit), len(matched), nil
}

func (m *Memory) ReviewSubmission(_ context.Context, id string, d filing.Decision) (filing.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return filing.Submission{}, ErrNotFound
	}
	if s.Status != filing.StatusPending {
		return filing.Submission{}, ErrAlreadyReviewed
	}
	at := Stamp(d.ReviewedAt)
	s.Status = d.Status
	s.ReviewedAt = &at
	s.ReviewComments = d.Comments
	m.submissions[id] = s
	return m.withOwner(s), nil
}

func (m *Memory) RecentSubmissions(_ context.Context, limit int) ([]filing.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]filing.Submission, 0, len(m.submissions))
	for _, s := range m.submissions {
		all = append(all, m.withOwner(s))
	}
	filing.SortRecentFirst(all)
	return window(all, 0, limit), nil
}

func (m *Memory) Counts(context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := Counts{Users: len(m.users), Templates: len(m.templates), Submissions: map[filing.Status]int{}}
	for _, s := range m.submissions {
		c.Submissions[s.Status]++
	}
	return c, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// withOwner refreshes the embedded owner from the current account, keeping
// the stored copy when the account was deleted.
func (m *Memory) withOwner(s filing.Submission) filing.Submission {
	if u, ok := m.users[s.Owner.ID]; ok {
		s.Owner = filing.OwnerOf(u.Identity())
	}
	return s
}

func window[T any](items []T, offset, limit int) []T {
	out := []T{}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return out
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append(out, items[offset:end]...)
}
