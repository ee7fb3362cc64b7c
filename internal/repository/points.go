package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/courseshop-system/internal/model"
)

// GetPointsBalance возвращает текущий баланс баллов пользователя.
func (r *PostgresRepository) GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var points int64
	err := r.pool.QueryRow(ctx,
		`SELECT points FROM users WHERE id = $1`,
		userID,
	).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("get points balance: %w", err)
	}
	return points, nil
}

// AdjustPoints атомарно изменяет баланс баллов пользователя и добавляет запись в журнал.
// Изменение и проверка неотрицательности выполняются одним UPDATE, поэтому
// параллельные списания не могут увести баланс ниже нуля.
func (r *PostgresRepository) AdjustPoints(ctx context.Context, userID uuid.UUID, delta int64, txType model.PointTransactionType, referenceID, description string) (int64, error) {
	var newBalance int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`UPDATE users SET points = points + $2
			 WHERE id = $1 AND points + $2 >= 0
			 RETURNING points`,
			userID, delta,
		).Scan(&newBalance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Либо пользователя нет, либо баланс недостаточен.
				var exists bool
				if checkErr := tx.QueryRow(ctx,
					`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
				).Scan(&exists); checkErr != nil {
					return fmt.Errorf("check user exists: %w", checkErr)
				}
				if !exists {
					return ErrUserNotFound
				}
				return ErrInsufficientPoints
			}
			return fmt.Errorf("adjust points: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO point_transactions (user_id, amount, type, reference_id, description)
			 VALUES ($1, $2, $3, $4, $5)`,
			userID, delta, string(txType), referenceID, description,
		)
		if err != nil {
			return fmt.Errorf("insert point transaction: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

// GetPointTransactions возвращает журнал операций с баллами пользователя, новые первыми.
func (r *PostgresRepository) GetPointTransactions(ctx context.Context, userID uuid.UUID) ([]model.PointTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, type, reference_id, description, created_at
		 FROM point_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select point transactions: %w", err)
	}
	defer rows.Close()

	var res []model.PointTransaction
	for rows.Next() {
		var (
			t      model.PointTransaction
			txType string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &txType, &t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan point transaction: %w", err)
		}
		t.Type = model.PointTransactionType(txType)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
