package httpapi

import (
	"net/http"
	"strings"

	"efiling.org/internal/audit"
	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
	"efiling.org/internal/ids"
	"efiling.org/internal/store"
)

const duplicateNSTIN = "An account with this NSTIN already exists"

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, 1, 1<<20)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	users, total, err := s.store.ListUsers(r.Context(), strings.TrimSpace(q.Get("search")), (page-1)*AdminPageSize, AdminPageSize)
	if err != nil {
		writeFault(w, r, storeFault(err, "", ""))
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	writeJSON(w, http.StatusOK, auth.UserPage{
		Users:       users,
		TotalPages:  filing.TotalPages(total, AdminPageSize),
		CurrentPage: page,
	})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in auth.UserInput
	if err := decodeJSON(r, &in); err != nil {
		writeFault(w, r, err)
		return
	}
	in = in.Normalize()
	if err := in.Validate(true); err != nil {
		writeFault(w, r, err)
		return
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	now := s.now().UTC()
	u, err := s.store.CreateUser(r.Context(), store.UserRecord{
		User: auth.User{
			ID:        ids.At(now),
			NSTIN:     in.NSTIN,
			Name:      in.Name,
			Email:     in.Email,
			Phone:     in.Phone,
			Role:      in.Role,
			CreatedAt: now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		writeFault(w, r, storeFault(err, "", duplicateNSTIN))
		return
	}
	_ = audit.LogEvent(r.Context(), "user.created", map[string]any{"target_id": u.ID, "role": string(u.Role)})
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var in auth.UserInput
	if err := decodeJSON(r, &in); err != nil {
		writeFault(w, r, err)
		return
	}
	in = in.Normalize()
	if err := in.Validate(false); err != nil {
		writeFault(w, r, err)
		return
	}
	id := pathID(r)
	if self := caller(r); self.ID == id && in.Role != auth.RoleAdmin {
		writeFault(w, r, fault.New(fault.ErrValidation, "You cannot remove your own administrator role"))
		return
	}
	var hash string
	if in.Password != "" {
		var err error
		if hash, err = auth.HashPassword(in.Password); err != nil {
			writeFault(w, r, err)
			return
		}
	}
	u, err := s.store.UpdateUser(r.Context(), auth.User{
		ID:    id,
		NSTIN: in.NSTIN,
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
		Role:  in.Role,
	}, hash)
	if err != nil {
		writeFault(w, r, storeFault(err, "User not found", duplicateNSTIN))
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{
		"target_id":        u.ID,
		"role":             string(u.Role),
		"password_changed": hash != "",
	})
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if caller(r).ID == id {
		writeFault(w, r, fault.New(fault.ErrValidation, "You cannot delete your own account"))
		return
	}
	owned, err := s.store.SubmissionsByOwner(r.Context(), id)
	if err != nil {
		writeFault(w, r, storeFault(err, "", ""))
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		writeFault(w, r, storeFault(err, "User not found", ""))
		return
	}
	for _, sub := range owned {
		s.dropBlob(r, keyOf(sub.MainFile.URL))
		if sub.SupportingDoc != nil {
			s.dropBlob(r, keyOf(sub.SupportingDoc.URL))
		}
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"target_id": id})
	writeMessage(w, http.StatusOK, "User deleted successfully")
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		writeFault(w, r, storeFault(err, "", ""))
		return
	}
	recent, err := s.store.RecentSubmissions(r.Context(), DashboardRecent)
	if err != nil {
		writeFault(w, r, storeFault(err, "", ""))
		return
	}
	d := filing.Dashboard{
		TotalUsers:          counts.Users,
		TotalTemplates:      counts.Templates,
		PendingSubmissions:  counts.Submissions[filing.StatusPending],
		ApprovedSubmissions: counts.Submissions[filing.StatusApproved],
		RejectedSubmissions: counts.Submissions[filing.StatusRejected],
		RecentSubmissions:   make([]filing.RecentSubmission, 0, len(recent)),
	}
	for _, sub := range recent {
		d.RecentSubmissions = append(d.RecentSubmissions, sub.Recent())
	}
	writeJSON(w, http.StatusOK, d)
}

// profile returns an account. Taxpayers may only read their own.
func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if self := caller(r); self.ID != id && !self.IsAdmin() {
		writeFault(w, r, fault.New(fault.ErrAuthorization, "You can only view your own profile"))
		return
	}
	rec, err := s.store.UserByID(r.Context(), id)
	if err != nil {
		writeFault(w, r, storeFault(err, "User not found", ""))
		return
	}
	writeJSON(w, http.StatusOK, rec.User)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in auth.ProfileUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeFault(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.Validate(); err != nil {
		writeFault(w, r, err)
		return
	}
	rec, err := s.store.UserByID(r.Context(), caller(r).ID)
	if err != nil {
		writeFault(w, r, storeFault(err, "User not found", ""))
		return
	}
	u := rec.User
	u.Name, u.Email, u.Phone = in.Name, in.Email, in.Phone
	updated, err := s.store.UpdateUser(r.Context(), u, "")
	if err != nil {
		writeFault(w, r, storeFault(err, "User not found", duplicateNSTIN))
		return
	}
	_ = audit.LogEvent(r.Context(), "profile.updated", nil)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var in auth.PasswordChange
	if err := decodeJSON(r, &in); err != nil {
		writeFault(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeFault(w, r, err)
		return
	}
	rec, err := s.store.UserByID(r.Context(), caller(r).ID)
	if err != nil {
		writeFault(w, r, storeFault(err, "User not found", ""))
		return
	}
	if auth.VerifyPassword(rec.PasswordHash, in.CurrentPassword) != nil {
		writeFault(w, r, fault.New(fault.ErrValidation, "Current password is incorrect"))
		return
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if _, err := s.store.UpdateUser(r.Context(), rec.User, hash); err != nil {
		writeFault(w, r, storeFault(err, "User not found", ""))
		return
	}
	_ = audit.LogEvent(r.Context(), "password.changed", nil)
	writeMessage(w, http.StatusOK, "Password updated successfully")
}
