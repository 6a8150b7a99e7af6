// Package seed bootstraps roles and accounts from a YAML file.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/obs"
)

// File is the on-disk bootstrap document.
//
//	roles: [Admin, User]
//	users:
//	  - email: admin@example.com
//	    password: change-me
//	    roles: [Admin]
type File struct {
	Roles []string `yaml:"roles"`
	Users []User   `yaml:"users"`
}

// User is one account to create when absent.
type User struct {
	UserName  string   `yaml:"username"`
	Email     string   `yaml:"email"`
	Password  string   `yaml:"password"`
	FirstName string   `yaml:"first_name"`
	LastName  string   `yaml:"last_name"`
	Address   string   `yaml:"address"`
	Roles     []string `yaml:"roles"`
}

// Bootstrapper is the subset of auth.Service used by Apply.
type Bootstrapper interface {
	CreateRole(ctx context.Context, name string) (auth.Role, error)
	Register(ctx context.Context, reg auth.Registration) (auth.UserInfo, error)
}

// Result counts what Apply created.
type Result struct {
	RolesCreated int
	UsersCreated int
}

// LoadFile reads and parses the bootstrap file at path.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a bootstrap document. Unknown keys are rejected; an empty
// document is an empty File.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	return f, nil
}

// Apply creates the roles, then the users, skipping anything that already
// exists. Running it twice is a no-op the second time.
func Apply(ctx context.Context, b Bootstrapper, f File, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = obs.Logger()
	}
	var res Result
	for _, name := range f.Roles {
		_, err := b.CreateRole(ctx, name)
		switch {
		case err == nil:
			res.RolesCreated++
		case errors.Is(err, auth.ErrConflict):
		default:
			return res, fmt.Errorf("seed role %q: %w", name, err)
		}
	}

	for _, u := range f.Users {
		_, err := b.Register(ctx, auth.Registration{
			Profile: auth.Profile{
				UserName:  u.UserName,
				Email:     u.Email,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Address:   u.Address,
			},
			Password: u.Password,
			Roles:    u.Roles,
		})
		switch {
		case err == nil:
			res.UsersCreated++
		case errors.Is(err, auth.ErrConflict):
			logger.DebugContext(ctx, "seed user exists", slog.String("email", u.Email))
		default:
			return res, fmt.Errorf("seed user %q: %w", u.Email, err)
		}
	}

	logger.InfoContext(ctx, "seed applied",
		slog.Int("roles_created", res.RolesCreated),
		slog.Int("users_created", res.UsersCreated),
	)
	return res, nil
}
