package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/discount"
	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/payment"
	"github.com/mmeshcher/courseshop-system/internal/repository"
)

const passwordTokenTTL = 7 * 24 * time.Hour

// ProcessPaymentEvent обрабатывает событие платёжного шлюза об успешной
// оплате. Событие обрабатывается не более одного раза: повторная доставка
// с тем же идентификатором игнорируется. Сбои отдельных побочных эффектов
// логируются и не прерывают обработку остальных.
func (s *Service) ProcessPaymentEvent(ctx context.Context, event *payment.Event) error {
	if event.Type != payment.EventCheckoutCompleted {
		s.logger.Debug("ignoring webhook event", zap.String("type", event.Type))
		return nil
	}

	fresh, err := s.repo.MarkWebhookEventProcessed(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if !fresh {
		s.logger.Info("duplicate webhook event ignored", zap.String("event_id", event.ID))
		return nil
	}

	obj := event.Data.Object
	meta := obj.Metadata

	// До первого побочного эффекта сбой обработки снимает отметку
	// дедупликации: повторная доставка события не должна стать no-op
	// при том, что ничего не было сделано.
	courseID, err := uuid.Parse(meta[metaCourseID])
	if err != nil {
		s.unmarkEvent(ctx, event.ID)
		return fmt.Errorf("parse course id from metadata: %w", err)
	}

	userID, err := s.resolvePurchaser(ctx, obj)
	if err != nil {
		s.unmarkEvent(ctx, event.ID)
		return fmt.Errorf("resolve purchaser: %w", err)
	}

	refID := courseID.String()

	// Флаг первой покупки помечается условно: если между расчётом и оплатой
	// скидка уже была потрачена в другой покупке, фиксируем расхождение.
	if meta[metaFirstPurchaseApplied] == "true" && metaInt(meta, metaFirstPurchaseDiscount) > 0 {
		marked, err := s.repo.MarkFirstPurchaseUsed(ctx, userID)
		if err != nil {
			s.logger.Error("failed to mark first purchase discount used",
				zap.String("user_id", userID.String()), zap.Error(err))
		} else if !marked {
			s.logger.Warn("first purchase discount was already consumed",
				zap.String("user_id", userID.String()),
				zap.String("session_id", obj.ID))
		}
	}

	if pointsUsed := metaInt(meta, metaPointsUsed); pointsUsed > 0 {
		if _, err := s.repo.AdjustPoints(ctx, userID, -pointsUsed, model.PointSpend, refID, "Used for course purchase"); err != nil {
			s.logger.Error("failed to spend points",
				zap.String("user_id", userID.String()),
				zap.Int64("points", pointsUsed), zap.Error(err))
		}
	}

	if couponID, err := uuid.Parse(meta[metaCouponID]); err == nil {
		if err := s.repo.RecordCouponUsage(ctx, couponID, userID, courseID); err != nil {
			s.logger.Error("failed to record coupon usage",
				zap.String("coupon_id", couponID.String()), zap.Error(err))
		}
	}

	if _, err := s.repo.AdjustPoints(ctx, userID, discount.PointsPerPurchase, model.PointEarn, refID, "Earned from course purchase"); err != nil {
		s.logger.Error("failed to award points",
			zap.String("user_id", userID.String()), zap.Error(err))
	}

	original := metaInt(meta, metaOriginalPriceCents)
	if original == 0 {
		original = obj.AmountTotal
	}
	enrollment := &model.Enrollment{
		UserID:                       userID,
		CourseID:                     courseID,
		PaymentIntentID:              obj.PaymentIntentID,
		PaymentStatus:                "completed",
		AmountPaidCents:              obj.AmountTotal,
		OriginalPriceCents:           original,
		DiscountAppliedCents:         original - obj.AmountTotal,
		FirstPurchaseDiscountApplied: meta[metaFirstPurchaseApplied] == "true",
		PointsEarned:                 discount.PointsPerPurchase,
	}
	if couponID, err := uuid.Parse(meta[metaCouponID]); err == nil {
		enrollment.CouponID = &couponID
	}
	if err := s.repo.UpsertEnrollment(ctx, enrollment); err != nil {
		s.logger.Error("failed to upsert enrollment",
			zap.String("user_id", userID.String()),
			zap.String("course_id", courseID.String()), zap.Error(err))
	}

	if err := s.repo.CompleteCheckoutSession(ctx, obj.ID, userID); err != nil {
		s.logger.Error("failed to complete checkout session",
			zap.String("session_id", obj.ID), zap.Error(err))
	}

	s.logger.Info("payment processed",
		zap.String("event_id", event.ID),
		zap.String("user_id", userID.String()),
		zap.String("course_id", courseID.String()),
		zap.Int64("amount_cents", obj.AmountTotal))

	return nil
}

// resolvePurchaser определяет пользователя по данным платёжной сессии.
// Для гостя аккаунт находится по email или создаётся заново, после чего
// отправляется письмо со ссылкой на установку пароля.
func (s *Service) resolvePurchaser(ctx context.Context, obj payment.SessionObject) (uuid.UUID, error) {
	if obj.ClientReferenceID != "" {
		return uuid.Parse(obj.ClientReferenceID)
	}

	email := normalizeEmail(obj.CustomerDetails.Email)
	if email == "" {
		return uuid.Nil, errors.New("session has neither client reference nor customer email")
	}

	var userID uuid.UUID
	u, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		userID = u.ID
	case errors.Is(err, repository.ErrUserNotFound):
		userID, err = s.repo.CreateUser(ctx, email, randomPasswordHash(),
			obj.Metadata[metaFirstName], obj.Metadata[metaLastName])
		if errors.Is(err, repository.ErrUserExists) {
			// Параллельный вебхук успел создать аккаунт первым.
			u, err := s.repo.GetUserByEmail(ctx, email)
			if err != nil {
				return uuid.Nil, fmt.Errorf("get user after create race: %w", err)
			}
			userID = u.ID
		} else if err != nil {
			return uuid.Nil, fmt.Errorf("create guest user: %w", err)
		}
	default:
		return uuid.Nil, fmt.Errorf("get user by email: %w", err)
	}

	token := s.tokens.GeneratePasswordToken(userID, passwordTokenTTL)
	link := s.baseURL + "/set-password?token=" + token
	if err := s.mailer.SendPasswordSetupEmail(ctx, email, link); err != nil {
		s.logger.Error("failed to send password setup email",
			zap.String("email", email), zap.Error(err))
	}

	return userID, nil
}

func (s *Service) unmarkEvent(ctx context.Context, eventID string) {
	if err := s.repo.UnmarkWebhookEventProcessed(ctx, eventID); err != nil {
		s.logger.Error("failed to unmark webhook event",
			zap.String("event_id", eventID), zap.Error(err))
	}
}

func metaInt(meta map[string]string, key string) int64 {
	v, err := strconv.ParseInt(meta[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
