package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GHutch55/fastzero/api/v1/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var (
	ErrUserNotFound   = errors.New("user does not exist")
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
	ErrDatabaseError  = errors.New("database error occurred")
)

const uniqueViolationCode = "23505"

// UserWithPassword carries the stored bcrypt hash alongside the public fields
type UserWithPassword struct {
	models.User
	Password string
}

// UserStore persists users in Postgres
type UserStore struct {
	Pool *pgxpool.Pool
	Log  logrus.FieldLogger
}

func NewUserStore(pool *pgxpool.Pool, log logrus.FieldLogger) *UserStore {
	return &UserStore{Pool: pool, Log: log}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewConflictError reports which of username and email collided. It returns nil
// when neither did; otherwise errors.Is matches each collided field.
func NewConflictError(username, email string, usernameTaken, emailTaken bool) error {
	var err error
	if usernameTaken {
		err = multierr.Append(err, fmt.Errorf("%w: username '%s' is already taken", ErrUsernameExists, username))
	}
	if emailTaken {
		err = multierr.Append(err, fmt.Errorf("%w: email '%s' is already taken", ErrEmailExists, email))
	}
	return err
}

func IsUserNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsUsernameExistsError(err error) bool {
	return errors.Is(err, ErrUsernameExists)
}

func IsEmailExistsError(err error) bool {
	return errors.Is(err, ErrEmailExists)
}

// checkConflicts looks for other rows holding the username or email.
// excludeID is the row being updated, or 0 on create.
func (s *UserStore) checkConflicts(ctx context.Context, q querier, username, email string, excludeID int64) error {
	rows, err := q.Query(ctx,
		`SELECT username, email FROM users WHERE (username = $1 OR email = $2) AND id <> $3`,
		username, email, excludeID,
	)
	if err != nil {
		s.Log.WithError(err).Error("database error checking username and email availability")
		return fmt.Errorf("%w: failed to check username and email availability", ErrDatabaseError)
	}
	defer rows.Close()

	var usernameTaken, emailTaken bool
	for rows.Next() {
		var gotUsername, gotEmail string
		if err := rows.Scan(&gotUsername, &gotEmail); err != nil {
			s.Log.WithError(err).Error("database error scanning conflicting user")
			return fmt.Errorf("%w: failed to scan conflicting user", ErrDatabaseError)
		}
		if gotUsername == username {
			usernameTaken = true
		}
		if gotEmail == email {
			emailTaken = true
		}
	}
	if err := rows.Err(); err != nil {
		s.Log.WithError(err).Error("database error iterating conflicting users")
		return fmt.Errorf("%w: failed to iterate conflicting users", ErrDatabaseError)
	}

	return NewConflictError(username, email, usernameTaken, emailTaken)
}

// uniqueViolation maps a unique constraint failure (race with a concurrent
// writer) back to the field sentinel. It returns nil for any other error.
func uniqueViolation(err error, username, email string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}

	switch pgErr.ConstraintName {
	case "users_username_key":
		return NewConflictError(username, email, true, false)
	case "users_email_key":
		return NewConflictError(username, email, false, true)
	default:
		return NewConflictError(username, email, true, true)
	}
}

func (s *UserStore) CreateUser(ctx context.Context, user *UserWithPassword) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		s.Log.WithError(err).Error("failed to begin transaction")
		return fmt.Errorf("%w: failed to begin transaction", ErrDatabaseError)
	}
	defer tx.Rollback(ctx)

	if err := s.checkConflicts(ctx, tx, user.Username, user.Email, 0); err != nil {
		return err
	}

	insertQuery := `
		INSERT INTO users (username, email, password)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, insertQuery, user.Username, user.Email, user.Password).Scan(
		&user.ID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if conflict := uniqueViolation(err, user.Username, user.Email); conflict != nil {
			return conflict
		}
		s.Log.WithError(err).Error("database error during user creation")
		return fmt.Errorf("%w: failed to create user", ErrDatabaseError)
	}

	if err = tx.Commit(ctx); err != nil {
		if conflict := uniqueViolation(err, user.Username, user.Email); conflict != nil {
			return conflict
		}
		s.Log.WithError(err).Error("failed to commit user creation")
		return fmt.Errorf("%w: failed to commit transaction", ErrDatabaseError)
	}

	return nil
}

func (s *UserStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := `
		SELECT id, username, email, created_at, updated_at
		FROM users
		WHERE id = $1`

	var user models.User
	err := s.Pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user with ID %d not found: %w", userID, ErrUserNotFound)
		}
		s.Log.WithError(err).WithField("user_id", userID).Error("database error retrieving user")
		return nil, fmt.Errorf("%w: failed to retrieve user", ErrDatabaseError)
	}

	return &user, nil
}

// GetUserByEmail returns the user together with its password hash, for token issuance
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*UserWithPassword, error) {
	query := `
		SELECT id, username, email, password, created_at, updated_at
		FROM users
		WHERE email = $1`

	var user UserWithPassword
	err := s.Pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Password,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user with email '%s' not found: %w", email, ErrUserNotFound)
		}
		s.Log.WithError(err).Error("database error retrieving user by email")
		return nil, fmt.Errorf("%w: failed to retrieve user", ErrDatabaseError)
	}

	return &user, nil
}

func (s *UserStore) GetUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	query := `
		SELECT id, username, email, created_at, updated_at
		FROM users
		ORDER BY id ASC
		LIMIT $1 OFFSET $2`

	rows, err := s.Pool.Query(ctx, query, limit, skip)
	if err != nil {
		s.Log.WithError(err).Error("database error getting users")
		return nil, fmt.Errorf("%w: failed to get users", ErrDatabaseError)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt, &user.UpdatedAt); err != nil {
			s.Log.WithError(err).Error("database error scanning user row")
			return nil, fmt.Errorf("%w: failed to scan user data", ErrDatabaseError)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		s.Log.WithError(err).Error("database error iterating users")
		return nil, fmt.Errorf("%w: failed to iterate users", ErrDatabaseError)
	}

	return users, nil
}

// UpdateUser replaces username, email and password of an existing row and
// refreshes user with the stored values.
func (s *UserStore) UpdateUser(ctx context.Context, userID int64, user *UserWithPassword) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		s.Log.WithError(err).Error("failed to begin transaction")
		return fmt.Errorf("%w: failed to start transaction", ErrDatabaseError)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	if err != nil {
		s.Log.WithError(err).WithField("user_id", userID).Error("database error checking user existence")
		return fmt.Errorf("%w: failed to check user existence", ErrDatabaseError)
	}
	if !exists {
		return fmt.Errorf("user with ID %d does not exist: %w", userID, ErrUserNotFound)
	}

	if err := s.checkConflicts(ctx, tx, user.Username, user.Email, userID); err != nil {
		return err
	}

	updateQuery := `
		UPDATE users
		SET username = $1, email = $2, password = $3, updated_at = $4
		WHERE id = $5
		RETURNING id, username, email, created_at, updated_at`

	err = tx.QueryRow(ctx, updateQuery,
		user.Username,
		user.Email,
		user.Password,
		time.Now(),
		userID,
	).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("user with ID %d does not exist: %w", userID, ErrUserNotFound)
		}
		if conflict := uniqueViolation(err, user.Username, user.Email); conflict != nil {
			return conflict
		}
		s.Log.WithError(err).WithField("user_id", userID).Error("database error updating user")
		return fmt.Errorf("%w: failed to update user", ErrDatabaseError)
	}

	if err = tx.Commit(ctx); err != nil {
		s.Log.WithError(err).Error("failed to commit user update")
		return fmt.Errorf("%w: failed to commit update", ErrDatabaseError)
	}

	return nil
}

func (s *UserStore) DeleteUser(ctx context.Context, userID int64) error {
	result, err := s.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		s.Log.WithError(err).WithField("user_id", userID).Error("database error deleting user")
		return fmt.Errorf("%w: failed to delete user", ErrDatabaseError)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user with ID %d does not exist: %w", userID, ErrUserNotFound)
	}

	return nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}
