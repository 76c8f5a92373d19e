package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"regbot/internal/domain"
	"regbot/traits/database"
)

var (
	insertUserQuery = fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		database.UsersTable,
		strings.Join(domain.Columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(domain.Columns)), ", "),
	)
	selectUserColumns = "id, " + strings.Join(domain.Columns, ", ")
)

// UserRepository is the persistence gateway for registrations. Every
// operation runs on its own connection which is released before returning.
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a completed registration in a single transaction and
// returns the assigned id. On failure nothing is stored.
func (r *UserRepository) Insert(ctx context.Context, rec domain.UserRecord) (id int64, err error) {
	if err := rec.Validate(); err != nil {
		return 0, database.NewError(database.ErrorInsert, "validate user", err)
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		r.logger.Error("Failed to acquire database connection", zap.Error(err))
		return 0, database.NewError(database.ErrorConnection, "insert user", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			r.logger.Warn("Failed to release database connection", zap.Error(cerr))
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, database.NewError(database.ErrorConnection, "begin transaction", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
		r.logger.Error("Failed to insert user", zap.Error(err))
	}()

	res, err := tx.ExecContext(ctx, insertUserQuery, insertArgs(rec)...)
	if err != nil {
		return 0, database.NewError(database.ErrorInsert, "insert user", err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, database.NewError(database.ErrorInsert, "read insert id", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, database.NewError(database.ErrorInsert, "commit", err)
	}

	return id, nil
}

// GetUserByID retrieves a stored registration
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*domain.StoredUser, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectUserColumns, database.UsersTable)

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, database.NewError(database.ErrorConnection, "get user", err)
	}
	defer conn.Close()

	user, err := scanUser(conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.NewError(database.ErrorNotFound, "get user", nil)
		}
		r.logger.Error("Failed to get user by ID", zap.Error(err), zap.Int64("user_id", id))
		return nil, database.NewError(database.ErrorQuery, "get user", err)
	}

	return user, nil
}

// ListUsers returns the most recent registrations, newest first
func (r *UserRepository) ListUsers(ctx context.Context, limit int) ([]domain.StoredUser, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC LIMIT ?", selectUserColumns, database.UsersTable)

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, database.NewError(database.ErrorConnection, "list users", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, database.NewError(database.ErrorQuery, "list users", err)
	}
	defer rows.Close()

	users := make([]domain.StoredUser, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, database.NewError(database.ErrorQuery, "scan user", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewError(database.ErrorQuery, "list users", err)
	}

	return users, nil
}

// CountUsers returns the number of stored registrations
func (r *UserRepository) CountUsers(ctx context.Context) (int64, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, database.NewError(database.ErrorConnection, "count users", err)
	}
	defer conn.Close()

	var count int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+database.UsersTable).Scan(&count); err != nil {
		return 0, database.NewError(database.ErrorQuery, "count users", err)
	}
	return count, nil
}

func insertArgs(rec domain.UserRecord) []any {
	args := make([]any, 0, len(domain.Columns))
	for _, f := range domain.Columns {
		v := rec.Get(f)
		if f == domain.FieldPatronymic {
			args = append(args, sql.NullString{String: v, Valid: v != ""})
			continue
		}
		args = append(args, v)
	}
	return args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.StoredUser, error) {
	var (
		user       domain.StoredUser
		patronymic sql.NullString
		platform   sql.NullString
		handle     sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&patronymic,
		&user.CustomerPhone,
		&user.ContactPhone,
		&user.OrganizationName,
		&platform,
		&handle,
	)
	if err != nil {
		return nil, err
	}
	user.Patronymic = patronymic.String
	user.SocialMediaPlatform = platform.String
	user.SocialMediaHandle = handle.String
	return &user, nil
}
