package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresDirectory reads users and contacts from PostgreSQL.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a directory backed by the given database handle.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// OpenDB opens and pings a PostgreSQL connection pool.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("profile: open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: ping db: %w", err)
	}
	return db, nil
}

func (d *PostgresDirectory) Contacts(ctx context.Context) ([]Contact, error) {
	const query = `
		SELECT id, name, avatar, status, last_seen, unread
		FROM contacts
		ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("profile: list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Avatar, &c.Status, &c.LastSeen, &c.Unread); err != nil {
			return nil, fmt.Errorf("profile: scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: list contacts: %w", err)
	}
	return contacts, nil
}

func (d *PostgresDirectory) Contact(ctx context.Context, id int64) (Contact, error) {
	const query = `
		SELECT id, name, avatar, status, last_seen, unread
		FROM contacts
		WHERE id = $1`

	var c Contact
	err := d.db.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.Name, &c.Avatar, &c.Status, &c.LastSeen, &c.Unread)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("profile: get contact %d: %w", id, err)
	}
	return c, nil
}

func (d *PostgresDirectory) UserByUsername(ctx context.Context, username string) (User, error) {
	const query = `
		SELECT id, username, display_name, avatar_url, bio, followers, following, likes, created_at
		FROM users
		WHERE username = $1`

	var u User
	err := d.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Bio,
		&u.Followers, &u.Following, &u.Likes, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("profile: get user %q: %w", username, err)
	}
	return u, nil
}
