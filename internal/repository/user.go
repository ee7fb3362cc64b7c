package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/courseshop-system/internal/model"
)

// CreateUser создаёт нового пользователя с указанным email.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte, firstName, lastName string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		strings.ToLower(email), passwordHash, firstName, lastName,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, is_admin, points, first_purchase_discount_used, created_at
		 FROM users WHERE email = $1`,
		strings.ToLower(email),
	))
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, is_admin, points, first_purchase_discount_used, created_at
		 FROM users WHERE id = $1`,
		id,
	))
}

func (r *PostgresRepository) scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsAdmin, &u.Points, &u.FirstPurchaseDiscountUsed, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// MarkFirstPurchaseUsed выставляет одноразовый флаг использования скидки первой покупки.
// Возвращает false, если флаг уже был выставлен ранее.
func (r *PostgresRepository) MarkFirstPurchaseUsed(ctx context.Context, userID uuid.UUID) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET first_purchase_discount_used = TRUE
		 WHERE id = $1 AND first_purchase_discount_used = FALSE`,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark first purchase used: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// SetUserPassword обновляет хэш пароля пользователя.
func (r *PostgresRepository) SetUserPassword(ctx context.Context, userID uuid.UUID, passwordHash []byte) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("set user password: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
