package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/courseshop-system/internal/model"
)

// CreateCheckoutSession сохраняет платёжную сессию в статусе pending.
func (r *PostgresRepository) CreateCheckoutSession(ctx context.Context, s *model.CheckoutSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO checkout_sessions (gateway_session_id, course_id, user_id, email, first_name, last_name, coupon_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.GatewaySessionID, s.CourseID, s.UserID, s.Email, s.FirstName, s.LastName, s.CouponID, string(model.CheckoutPending),
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

// CompleteCheckoutSession переводит платёжную сессию в статус completed
// и привязывает её к разрешённому пользователю.
func (r *PostgresRepository) CompleteCheckoutSession(ctx context.Context, gatewaySessionID string, userID uuid.UUID) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE checkout_sessions
		 SET status = $2, user_id = $3, completed_at = now()
		 WHERE gateway_session_id = $1`,
		gatewaySessionID, string(model.CheckoutCompleted), userID,
	)
	if err != nil {
		return fmt.Errorf("complete checkout session: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpsertEnrollment создаёт или обновляет запись о доступе к курсу.
// Конфликт по паре (user_id, course_id) делает повторную запись безопасной.
func (r *PostgresRepository) UpsertEnrollment(ctx context.Context, e *model.Enrollment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO enrollments (user_id, course_id, payment_intent_id, payment_status, amount_paid_cents,
		     original_price_cents, discount_applied_cents, first_purchase_discount_applied, points_earned, coupon_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, course_id) DO UPDATE
		 SET payment_intent_id = EXCLUDED.payment_intent_id,
		     payment_status = EXCLUDED.payment_status,
		     amount_paid_cents = EXCLUDED.amount_paid_cents,
		     original_price_cents = EXCLUDED.original_price_cents,
		     discount_applied_cents = EXCLUDED.discount_applied_cents,
		     first_purchase_discount_applied = EXCLUDED.first_purchase_discount_applied,
		     points_earned = EXCLUDED.points_earned,
		     coupon_id = EXCLUDED.coupon_id`,
		e.UserID, e.CourseID, e.PaymentIntentID, e.PaymentStatus, e.AmountPaidCents,
		e.OriginalPriceCents, e.DiscountAppliedCents, e.FirstPurchaseDiscountApplied, e.PointsEarned, e.CouponID,
	)
	if err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

// GetEnrollmentsByUser возвращает записи о доступах пользователя, новые первыми.
func (r *PostgresRepository) GetEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]model.Enrollment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, course_id, payment_intent_id, payment_status, amount_paid_cents,
		     original_price_cents, discount_applied_cents, first_purchase_discount_applied, points_earned, coupon_id, created_at
		 FROM enrollments
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select enrollments: %w", err)
	}
	defer rows.Close()

	var res []model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.PaymentIntentID, &e.PaymentStatus,
			&e.AmountPaidCents, &e.OriginalPriceCents, &e.DiscountAppliedCents,
			&e.FirstPurchaseDiscountApplied, &e.PointsEarned, &e.CouponID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkWebhookEventProcessed фиксирует обработку события платёжного шлюза.
// Возвращает false, если событие с таким идентификатором уже обрабатывалось:
// повторная доставка должна быть no-op.
func (r *PostgresRepository) MarkWebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO processed_webhook_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`,
		eventID,
	)
	if err != nil {
		return false, fmt.Errorf("mark webhook event processed: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// UnmarkWebhookEventProcessed снимает отметку об обработке события.
// Используется, когда обработка сорвалась до первого побочного эффекта:
// повторная доставка такого события должна снова попасть в обработку.
func (r *PostgresRepository) UnmarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM processed_webhook_events WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("unmark webhook event: %w", err)
	}
	return nil
}
