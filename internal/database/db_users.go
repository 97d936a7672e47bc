package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-while/checkweb/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

const userColumns = `id, username, email, password_hash, display_name, roles, permissions,
	login_attempts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var roles, perms string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName,
		&roles, &perms, &u.LoginAttempts, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Roles = models.SplitList(roles)
	u.Permissions = models.SplitList(perms)
	return &u, nil
}

func (db *Database) getUserWhere(ctx context.Context, where string, arg any) (*models.User, error) {
	row := db.mainDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// GetUserByUsername looks a user up by username (case insensitive)
func (db *Database) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUserWhere(ctx, `username = ?`, username)
}

// GetUserByEmail looks a user up by email (case insensitive)
func (db *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUserWhere(ctx, `email = ?`, email)
}

// GetUserByID looks a user up by id
func (db *Database) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUserWhere(ctx, `id = ?`, id)
}

// GetAllUsers returns all users ordered by id
func (db *Database) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.mainDB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// InsertUser stores a new user and sets its ID
func (db *Database) InsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	res, err := db.retryableExec(ctx, `INSERT INTO users
		(username, email, password_hash, display_name, roles, permissions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.DisplayName,
		models.JoinList(user.Roles), models.JoinList(user.Permissions), now, now)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
			return fmt.Errorf("%w: %s", ErrUserExists, user.Username)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new user id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *Database) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := db.retryableExec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUserPassword replaces the stored password hash
func (db *Database) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	return db.updateUser(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), userID)
}

// UpdateUserRoles replaces roles and permissions
func (db *Database) UpdateUserRoles(ctx context.Context, userID int64, roles, permissions []string) error {
	return db.updateUser(ctx, `UPDATE users SET roles = ?, permissions = ?, updated_at = ? WHERE id = ?`,
		models.JoinList(roles), models.JoinList(permissions), time.Now().UTC(), userID)
}

// DeleteUser removes a user
func (db *Database) DeleteUser(ctx context.Context, userID int64) error {
	res, err := db.retryableExec(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// IncrementLoginAttempts increases the failed login counter.
// login may be a username or an email.
func (db *Database) IncrementLoginAttempts(ctx context.Context, login string) error {
	now := time.Now().UTC()
	_, err := db.retryableExec(ctx, `UPDATE users SET
		login_attempts = login_attempts + 1,
		last_failed_at = ?,
		updated_at = ?
		WHERE username = ? OR email = ?`, now, now, login, login)
	return err
}

// ResetLoginAttempts clears the failed login counter
func (db *Database) ResetLoginAttempts(ctx context.Context, userID int64) error {
	_, err := db.retryableExec(ctx, `UPDATE users SET
		login_attempts = 0,
		last_failed_at = NULL
		WHERE id = ?`, userID)
	return err
}

// IsUserLockedOut checks if a user is temporarily locked out due to failed attempts.
// Unknown logins are never locked out.
func (db *Database) IsUserLockedOut(ctx context.Context, login string, maxAttempts int, lockout time.Duration) (bool, error) {
	var id int64
	var attempts int
	var lastFailed sql.NullTime
	err := db.retryableQueryRowScan(ctx,
		`SELECT id, login_attempts, last_failed_at FROM users WHERE username = ? OR email = ?`,
		[]any{login, login}, &id, &attempts, &lastFailed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check lockout: %w", err)
	}

	if maxAttempts <= 0 || attempts < maxAttempts {
		return false, nil
	}
	if lastFailed.Valid && time.Now().Before(lastFailed.Time.Add(lockout)) {
		return true, nil // Still locked out
	}

	// Lockout period expired, reset attempts
	if err := db.ResetLoginAttempts(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
