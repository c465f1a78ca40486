// Package validate holds the declarative field rules applied before any
// request leaves the process.
package validate

import (
	"regexp"
	"sort"
	"strings"

	"efiling.org/internal/fault"
)

const MinPasswordLength = 6

var (
	nstinPattern = regexp.MustCompile(`(?i)^[A-Z0-9]{10,15}$`)
	emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)
)

func NSTIN(v string) bool    { return nstinPattern.MatchString(strings.TrimSpace(v)) }
func Email(v string) bool    { return emailPattern.MatchString(strings.TrimSpace(v)) }
func Phone(v string) bool    { return phonePattern.MatchString(strings.TrimSpace(v)) }
func Password(v string) bool { return len(v) >= MinPasswordLength }

// Required reports whether v is non-empty after trimming.
func Required(v string) bool { return strings.TrimSpace(v) != "" }

// Errors collects field violations keyed by field name.
type Errors map[string]string

// Add records msg for field unless the field already has a violation.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; ok {
		return
	}
	e[field] = msg
}

// Check records msg for field when ok is false.
func (e Errors) Check(ok bool, field, msg string) {
	if !ok {
		e.Add(field, msg)
	}
}

// Err returns nil when no violation was recorded, otherwise a
// fault.ErrValidation error listing the fields in stable order.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, e[f])
	}
	return &fault.Error{Kind: fault.ErrValidation, Message: strings.Join(msgs, "; "), Err: FieldErrors(e)}
}

// FieldErrors exposes per-field messages through errors.As.
type FieldErrors map[string]string

func (f FieldErrors) Error() string { return "invalid fields" }

// Credentials validates a login attempt.
func Credentials(nstin, password string) error {
	errs := Errors{}
	errs.Check(Required(nstin), "nstin", "NSTIN is required")
	errs.Check(NSTIN(nstin), "nstin", "Please enter a valid NSTIN")
	errs.Check(Required(password), "password", "Password is required")
	errs.Check(Password(password), "password", "Password must be at least 6 characters")
	return errs.Err()
}

// Contact validates the name, email and phone fields shared by enrollment,
// admin user management and profile updates.
func Contact(errs Errors, name, email, phone string) {
	errs.Check(Required(name), "name", "Full name is required")
	errs.Check(Required(email), "email", "Email is required")
	errs.Check(Email(email), "email", "Invalid email address")
	errs.Check(Required(phone), "phone", "Phone number is required")
	errs.Check(Phone(phone), "phone", "Please enter a valid phone number")
}
