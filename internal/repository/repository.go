// Package repository provides the user store.
// The backend is chosen by the connection URL scheme.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/wishday/wishday/internal/birthday"
	"github.com/wishday/wishday/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUnsupportedScheme  = errors.New("unsupported database URL scheme")
	ErrInvalidDatabaseURL = errors.New("invalid database URL")
)

// Store persists user records and answers birthday queries.
type Store interface {
	// CreateUser inserts a new user record.
	CreateUser(ctx context.Context, user *model.User) error
	// GetUserByEmail returns the most recently created record with email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// FindBirthdays returns the users selected by q, oldest registration first.
	FindBirthdays(ctx context.Context, q birthday.Query) ([]*model.User, error)
	// Ping checks store connectivity.
	Ping(ctx context.Context) error
	// Close releases the connection.
	Close(ctx context.Context) error
}

// Options tunes backend-specific behaviour.
type Options struct {
	// DatabaseName is the MongoDB database used when the URL has no path.
	DatabaseName string
	// AutoMigrate applies pending Postgres migrations on open.
	AutoMigrate bool
	Logger      *slog.Logger
}

// Open connects to the store named by databaseURL and verifies the connection.
//
//	mongodb://, mongodb+srv://  MongoDB
//	postgres://, postgresql://  PostgreSQL
//	memory://                   in-process store
func Open(ctx context.Context, databaseURL string, opts Options) (Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	parsed, err := url.Parse(databaseURL)
	if err != nil || parsed.Scheme == "" {
		return nil, ErrInvalidDatabaseURL
	}

	switch parsed.Scheme {
	case "mongodb", "mongodb+srv":
		name := opts.DatabaseName
		if p := trimSlash(parsed.Path); p != "" {
			name = p
		}
		return NewMongo(ctx, databaseURL, name)
	case "postgres", "postgresql":
		if opts.AutoMigrate {
			if err := RunMigrations(databaseURL); err != nil {
				return nil, err
			}
			opts.Logger.Info("database migrations applied")
		}
		return NewPostgres(ctx, databaseURL)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}
