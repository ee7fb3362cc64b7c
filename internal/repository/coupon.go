package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/courseshop-system/internal/model"
)

const couponColumns = `id, code, discount_type, discount_value, max_uses_total, max_uses_per_user,
	 usage_count, expires_at, is_active, applies_to_all_courses, created_at`

// GetActiveCouponByCode возвращает активный купон по нормализованному коду.
func (r *PostgresRepository) GetActiveCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1 AND is_active`,
		strings.ToUpper(code),
	)

	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var (
		c            model.Coupon
		discountType string
	)
	err := row.Scan(&c.ID, &c.Code, &discountType, &c.DiscountValue, &c.MaxUsesTotal,
		&c.MaxUsesPerUser, &c.UsageCount, &c.ExpiresAt, &c.IsActive, &c.AppliesToAllCourses, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.DiscountType = model.CouponDiscountType(discountType)
	return &c, nil
}

// CouponAppliesToCourse проверяет наличие связи купона с курсом.
func (r *PostgresRepository) CouponAppliesToCourse(ctx context.Context, couponID, courseID uuid.UUID) (bool, error) {
	var applies bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupon_courses WHERE coupon_id = $1 AND course_id = $2)`,
		couponID, courseID,
	).Scan(&applies)
	if err != nil {
		return false, fmt.Errorf("check coupon course: %w", err)
	}
	return applies, nil
}

// CountCouponUsagesByUser возвращает число применений купона указанным пользователем.
func (r *PostgresRepository) CountCouponUsagesByUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count coupon usages: %w", err)
	}
	return count, nil
}

// RecordCouponUsage добавляет запись о применении купона и атомарно
// инкрементирует счётчик использований одним UPDATE.
func (r *PostgresRepository) RecordCouponUsage(ctx context.Context, couponID, userID, courseID uuid.UUID) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO coupon_usages (coupon_id, user_id, course_id) VALUES ($1, $2, $3)`,
			couponID, userID, courseID,
		)
		if err != nil {
			return fmt.Errorf("insert coupon usage: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1`,
			couponID,
		)
		if err != nil {
			return fmt.Errorf("increment coupon usage: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// GetCoupons возвращает все купоны вместе со связанными курсами, новые первыми.
func (r *PostgresRepository) GetCoupons(ctx context.Context) ([]model.Coupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select coupons: %w", err)
	}
	defer rows.Close()

	var coupons []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range coupons {
		courseIDs, err := r.couponCourseIDs(ctx, coupons[i].ID)
		if err != nil {
			return nil, err
		}
		coupons[i].CourseIDs = courseIDs
	}

	return coupons, nil
}

func (r *PostgresRepository) couponCourseIDs(ctx context.Context, couponID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT course_id FROM coupon_courses WHERE coupon_id = $1`,
		couponID,
	)
	if err != nil {
		return nil, fmt.Errorf("select coupon courses: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coupon course: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// CreateCoupon создаёт купон вместе со связями с курсами в одной транзакции.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c *model.Coupon) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO coupons (code, discount_type, discount_value, max_uses_total, max_uses_per_user, expires_at, applies_to_all_courses)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		strings.ToUpper(c.Code), string(c.DiscountType), c.DiscountValue,
		c.MaxUsesTotal, c.MaxUsesPerUser, c.ExpiresAt, c.AppliesToAllCourses,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
		}
		return uuid.Nil, fmt.Errorf("insert coupon: %w", err)
	}

	for _, courseID := range c.CourseIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO coupon_courses (coupon_id, course_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, courseID,
		); err != nil {
			return uuid.Nil, fmt.Errorf("insert coupon course: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// UpdateCoupon обновляет редактируемые поля купона.
func (r *PostgresRepository) UpdateCoupon(ctx context.Context, id uuid.UUID, isActive bool, maxUsesTotal *int64, maxUsesPerUser int64, expiresAt *time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE coupons
		 SET is_active = $2, max_uses_total = $3, max_uses_per_user = $4, expires_at = $5
		 WHERE id = $1`,
		id, isActive, maxUsesTotal, maxUsesPerUser, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// DeactivateCoupon помечает купон неактивным, не удаляя историю использований.
func (r *PostgresRepository) DeactivateCoupon(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE coupons SET is_active = FALSE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}
