package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"realtime-chat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the presence directory: known users, their connected
// flag and the live connection currently bound to each of them.
type UserRepository interface {
	Get(ctx context.Context, userID string) (models.User, error)
	Bind(ctx context.Context, userID, username, connID string) (string, error)
	Unbind(ctx context.Context, connID string, at time.Time) (models.User, bool, error)
	SetConnected(ctx context.Context, userID string, connected bool) error
	List(ctx context.Context) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, connected, connection_id, last_seen_at, created_at`

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Bind creates the user on first sight and points it at connID, returning
// the connection it replaced ("" if none).
func (r *UserRepo) Bind(ctx context.Context, userID, username, connID string) (string, error) {
	var previous sql.NullString
	err := r.db.QueryRowxContext(ctx, `WITH prev AS (SELECT connection_id FROM users WHERE id=$1)
        INSERT INTO users (id, username, connected, connection_id) VALUES ($1, $2, TRUE, $3)
        ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, connected = TRUE, connection_id = EXCLUDED.connection_id
        RETURNING (SELECT connection_id FROM prev)`, userID, username, connID).Scan(&previous)
	if err != nil {
		return "", err
	}
	if previous.Valid && previous.String != connID {
		return previous.String, nil
	}
	return "", nil
}

// Unbind disconnects the user currently bound to connID. It is a no-op when
// a newer connection already superseded connID.
func (r *UserRepo) Unbind(ctx context.Context, connID string, at time.Time) (models.User, bool, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `UPDATE users SET connected = FALSE, connection_id = NULL, last_seen_at = $2
        WHERE connection_id=$1
        RETURNING `+userColumns, connID, at)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

// SetConnected toggles the advertised availability of a user.
func (r *UserRepo) SetConnected(ctx context.Context, userID string, connected bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET connected=$2 WHERE id=$1`, userID, connected)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns every known user.
func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	return users, err
}
