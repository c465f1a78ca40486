package auth

import (
	"strings"
	"time"

	"efiling.org/internal/validate"
)

// User is a portal account as managed by administrators.
type User struct {
	ID        string    `json:"_id"`
	NSTIN     string    `json:"nstin"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity returns the session identity of the account.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, NSTIN: u.NSTIN, Name: u.Name, Email: u.Email, Role: u.Role}
}

// UserInput carries the fields an administrator sets when creating or
// updating an account. Password may be empty on update to keep the current one.
type UserInput struct {
	NSTIN    string `json:"nstin"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role"`
}

// Normalize trims free-text fields and lowercases the role.
func (in UserInput) Normalize() UserInput {
	in.NSTIN = strings.ToUpper(strings.TrimSpace(in.NSTIN))
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if r, ok := ParseRole(string(in.Role)); ok {
		in.Role = r
	}
	return in
}

// Validate checks the account fields. requirePassword is set for creation.
func (in UserInput) Validate(requirePassword bool) error {
	errs := validate.Errors{}
	errs.Check(validate.NSTIN(in.NSTIN), "nstin", "Please enter a valid NSTIN")
	validate.Contact(errs, in.Name, in.Email, in.Phone)
	if requirePassword || in.Password != "" {
		errs.Check(validate.Password(in.Password), "password", "Password must be at least 6 characters")
	}
	if _, ok := ParseRole(string(in.Role)); !ok {
		errs.Add("role", "Role must be admin or user")
	}
	return errs.Err()
}

// ProfileUpdate is the self-service contact update.
type ProfileUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate checks the profile fields after trimming them.
func (p ProfileUpdate) Validate() error {
	errs := validate.Errors{}
	validate.Contact(errs, strings.TrimSpace(p.Name), strings.TrimSpace(p.Email), strings.TrimSpace(p.Phone))
	return errs.Err()
}

// PasswordChange is the self-service password update.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Validate checks both passwords are present and the new one is long enough.
func (p PasswordChange) Validate() error {
	errs := validate.Errors{}
	errs.Check(validate.Required(p.CurrentPassword), "currentPassword", "Current password is required")
	errs.Check(validate.Password(p.NewPassword), "newPassword", "Password must be at least 6 characters")
	return errs.Err()
}

// UserPage is one page of the administrator account listing.
type UserPage struct {
	Users       []User `json:"users"`
	TotalPages  int    `json:"totalPages"`
	CurrentPage int    `json:"currentPage"`
}
