package auth

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Validate checks the profile attributes of a registration.
func (p Profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 256), is.Email),
		validation.Field(&p.UserName, validation.Required, validation.Length(1, 256)),
		validation.Field(&p.FirstName, validation.Length(0, 100)),
		validation.Field(&p.LastName, validation.Length(0, 100)),
		validation.Field(&p.Address, validation.Length(0, 500)),
	)
}

// normalizeRegistration trims input; a missing username defaults to the email.
func normalizeRegistration(r Registration) Registration {
	r.Email = NormalizeEmail(r.Email)
	r.UserName = strings.TrimSpace(r.UserName)
	if r.UserName == "" {
		r.UserName = r.Email
	}
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Address = strings.TrimSpace(r.Address)
	r.Roles = dedupeRoles(r.Roles)
	return r
}

func validateRegistration(r Registration) error {
	if err := r.Profile.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return ValidatePassword(r.Password)
}

func validateRoleName(name string) error {
	if err := validation.Validate(name, validation.Required, validation.Length(1, 256)); err != nil {
		return fmt.Errorf("%w: role name %v", ErrInvalidInput, err)
	}
	return nil
}
