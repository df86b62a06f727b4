package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mayank009/cashew/internal/models"
)

// ErrUserNotFound is returned when the users table has no matching row.
var ErrUserNotFound = errors.New("user not found")

const usersTable = "users"

// Users reads profiles from the host application's users table.
type Users struct {
	db *sql.DB
}

// NewUsers creates a user directory over db.
func NewUsers(db *sql.DB) (*Users, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Users{db: db}, nil
}

// Find returns the profile of the user with the given id.
func (u *Users) Find(ctx context.Context, userID string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT id::text, COALESCE(name, ''), email FROM %s WHERE id::text = $1`, usersTable)

	var (
		user  models.User
		email sql.NullString
	)
	err := u.db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &user.Name, &email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: find user %s: %w", userID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("store: find user: %w", err)
	}

	if !email.Valid || email.String == "" {
		return nil, fmt.Errorf("store: find user %s: no email on file", userID)
	}
	user.Email = email.String

	return &user, nil
}
