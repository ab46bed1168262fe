package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wishday/wishday/internal/birthday"
	"github.com/wishday/wishday/internal/model"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store with a connection pool.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (p *Postgres) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

// CreateUser inserts a new user into the database.
func (p *Postgres) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, username, email, date_of_birth, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := p.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.DateOfBirth,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByEmail retrieves the newest user registered with email.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		SELECT id, username, email, date_of_birth, created_at
		FROM users
		WHERE email = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	user, err := scanUser(p.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// FindBirthdays selects users for a birthday scan.
func (p *Postgres) FindBirthdays(ctx context.Context, q birthday.Query) ([]*model.User, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if q.Mode == birthday.MatchAnniversary {
		months := make([]int32, len(q.Days))
		days := make([]int32, len(q.Days))
		for i, md := range q.Days {
			months[i] = int32(md.Month)
			days[i] = int32(md.Day)
		}

		query := `
			SELECT id, username, email, date_of_birth, created_at
			FROM users
			WHERE (
				EXTRACT(MONTH FROM date_of_birth AT TIME ZONE 'UTC')::int,
				EXTRACT(DAY FROM date_of_birth AT TIME ZONE 'UTC')::int
			) IN (SELECT * FROM unnest($1::int[], $2::int[]))
			ORDER BY created_at, id
		`
		rows, err = p.pool.Query(ctx, query, months, days)
	} else {
		query := `
			SELECT id, username, email, date_of_birth, created_at
			FROM users
			WHERE date_of_birth >= $1 AND date_of_birth < $2
			ORDER BY created_at, id
		`
		rows, err = p.pool.Query(ctx, query, q.Window.Start, q.Window.End)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query birthdays: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DateOfBirth,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	user.DateOfBirth = user.DateOfBirth.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}
