package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offsetx/carbon-tracker/internal/models"
)

// SQLSTATE codes mapped onto store errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

// PgxConn is the part of *pgxpool.Pool the store uses.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxConn = (*pgxpool.Pool)(nil)

// PostgresStore keeps users in a users table and their activity logs in an
// append-only activity_logs table ordered by a serial id.
type PostgresStore struct {
	pool PgxConn
}

func NewPostgresStore(pool PgxConn) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name       VARCHAR(255) NOT NULL,
			username   VARCHAR(100) UNIQUE NOT NULL,
			password   VARCHAR(255) NOT NULL,
			mobile     VARCHAR(32)  NOT NULL,
			created_at TIMESTAMPTZ  DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS activity_logs (
			id      BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			kind    VARCHAR(16) NOT NULL,
			entry   JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS activity_logs_user_idx ON activity_logs (user_id, id);
	`)
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Normalize()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (name, username, password, mobile)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text, created_at`,
		user.Name, user.Username, user.Password, user.Mobile,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("create user %q: %w", user.Username, ErrDuplicateUsername)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `WHERE username = $1`, username)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	return s.getUser(ctx, `WHERE id = $1::uuid`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u := models.NewUser("", "", "", "")
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, username, password, mobile, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Name, &u.Username, &u.Password, &u.Mobile, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidText {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id::text, kind, entry FROM activity_logs WHERE user_id = $1 ORDER BY id`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("get activity logs: %w", err)
	}
	if err := scanLogs(rows, map[string]*models.User{u.ID: u}); err != nil {
		return nil, err
	}
	return u, nil
}

// AppendLog inserts one activity row. A missing user surfaces as a foreign
// key violation.
func (s *PostgresStore) AppendLog(ctx context.Context, id string, entry models.Entry) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode %s log: %w", entry.Kind(), err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO activity_logs (user_id, kind, entry) VALUES ($1::uuid, $2, $3::jsonb)`,
		id, string(entry.Kind()), string(payload),
	)
	if err != nil {
		switch pgCode(err) {
		case pgForeignKeyViolation, pgInvalidText:
			return ErrNotFound
		}
		return fmt.Errorf("append %s log: %w", entry.Kind(), err)
	}
	return nil
}

// ListUsers returns every user, oldest first, without password hashes.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, name, username, mobile, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var users []*models.User
	byID := make(map[string]*models.User)
	for rows.Next() {
		u := models.NewUser("", "", "", "")
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Mobile, &u.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
		byID[u.ID] = u
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	logRows, err := s.pool.Query(ctx, `SELECT user_id::text, kind, entry FROM activity_logs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	if err := scanLogs(logRows, byID); err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// scanLogs decodes (user_id, kind, entry) rows onto the matching users and
// closes rows.
func scanLogs(rows pgx.Rows, users map[string]*models.User) error {
	defer rows.Close()
	for rows.Next() {
		var (
			userID, kind string
			raw          []byte
		)
		if err := rows.Scan(&userID, &kind, &raw); err != nil {
			return fmt.Errorf("scan activity log: %w", err)
		}
		u, ok := users[userID]
		if !ok {
			continue
		}
		k, ok := models.ParseKind(kind)
		if !ok {
			return fmt.Errorf("activity log has unknown kind %q", kind)
		}
		entry, err := models.UnmarshalEntry(k, raw)
		if err != nil {
			return fmt.Errorf("decode %s log: %w", kind, err)
		}
		u.Append(entry)
	}
	return rows.Err()
}
