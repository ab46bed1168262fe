// Package model defines domain entities for the application.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrValidation is returned when a record does not satisfy the user schema.
var ErrValidation = errors.New("validation failed")

// DateLayout is the calendar date format produced by <input type="date">.
const DateLayout = "2006-01-02"

// User is a registered person who may receive a birthday mail.
type User struct {
	ID          string    `json:"id" bson:"_id"`
	Username    string    `json:"username" bson:"username"`
	Email       string    `json:"email" bson:"email"`
	DateOfBirth time.Time `json:"dateOfBirth" bson:"dateOfBirth"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// RegistrationInput is the raw form or JSON payload of a registration.
type RegistrationInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	DOB      string `json:"dob"`
}

// NewUser builds a User from registration input.
// Only the schema rules are enforced: every field is required and dob
// must be interpretable as a date.
func NewUser(input RegistrationInput, now time.Time) (*User, error) {
	var missing []string
	if strings.TrimSpace(input.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(input.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(input.DOB) == "" {
		missing = append(missing, "dateOfBirth")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: required fields missing: %s", ErrValidation, strings.Join(missing, ", "))
	}

	dob, err := ParseDateOfBirth(input.DOB)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:          ulid.Make().String(),
		Username:    input.Username,
		Email:       input.Email,
		DateOfBirth: dob,
		CreatedAt:   now.UTC(),
	}, nil
}

// ParseDateOfBirth interprets a date of birth.
// A bare calendar date is midnight UTC of that date; RFC 3339 timestamps
// are kept as the instant they name.
func ParseDateOfBirth(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: dateOfBirth %q is not a date", ErrValidation, raw)
}

// BirthDate returns the calendar date of birth as YYYY-MM-DD in UTC.
func (u *User) BirthDate() string {
	return u.DateOfBirth.UTC().Format(DateLayout)
}
