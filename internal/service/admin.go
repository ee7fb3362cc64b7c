package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/validation"
)

var knownSettings = map[string]bool{
	model.SettingFirstPurchasePercent: true,
	model.SettingPointsPercent:        true,
}

// GetSettings возвращает настройки скидок.
func (s *Service) GetSettings(ctx context.Context) ([]model.Setting, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateSettings обновляет настройки скидок. Значения процентов
// принимаются в диапазоне от 0 до 100.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]string) error {
	for key, value := range values {
		if !knownSettings[key] {
			return NewValidationError(fmt.Sprintf("Unknown setting: %s", key))
		}
		percent, err := strconv.ParseInt(value, 10, 64)
		if err != nil || percent < 0 || percent > 100 {
			return NewValidationError(fmt.Sprintf("Setting %s must be a number between 0 and 100", key))
		}
	}

	for key, value := range values {
		if err := s.repo.UpsertSetting(ctx, key, value); err != nil {
			return fmt.Errorf("upsert setting %s: %w", key, err)
		}
	}
	return nil
}

// CreateCouponParams описывает запрос на создание купона.
type CreateCouponParams struct {
	Code                string
	DiscountType        model.CouponDiscountType
	DiscountValue       int64
	MaxUsesTotal        *int64
	MaxUsesPerUser      int64
	ExpiresAt           *time.Time
	AppliesToAllCourses bool
	CourseIDs           []uuid.UUID
}

// GetCoupons возвращает все купоны, включая неактивные.
func (s *Service) GetCoupons(ctx context.Context) ([]model.Coupon, error) {
	return s.repo.GetCoupons(ctx)
}

// CreateCoupon создаёт новый купон.
func (s *Service) CreateCoupon(ctx context.Context, params CreateCouponParams) (uuid.UUID, error) {
	code := validation.NormalizeCouponCode(params.Code)
	if !validation.IsValidCouponCode(code) {
		return uuid.Nil, NewValidationError("Coupon code must be at least 3 characters (letters, digits, - and _)")
	}
	if params.DiscountType != model.CouponPercentage && params.DiscountType != model.CouponFixed {
		return uuid.Nil, NewValidationError("Discount type must be percentage or fixed")
	}
	if params.DiscountValue <= 0 {
		return uuid.Nil, NewValidationError("Discount value must be positive")
	}
	if params.DiscountType == model.CouponPercentage && params.DiscountValue > 100 {
		return uuid.Nil, NewValidationError("Percentage discount cannot exceed 100")
	}
	if !params.AppliesToAllCourses && len(params.CourseIDs) == 0 {
		return uuid.Nil, NewValidationError("Coupon must apply to all courses or list specific courses")
	}

	maxPerUser := params.MaxUsesPerUser
	if maxPerUser <= 0 {
		maxPerUser = 1
	}

	return s.repo.CreateCoupon(ctx, &model.Coupon{
		Code:                code,
		DiscountType:        params.DiscountType,
		DiscountValue:       params.DiscountValue,
		MaxUsesTotal:        params.MaxUsesTotal,
		MaxUsesPerUser:      maxPerUser,
		ExpiresAt:           params.ExpiresAt,
		IsActive:            true,
		AppliesToAllCourses: params.AppliesToAllCourses,
		CourseIDs:           params.CourseIDs,
	})
}

// UpdateCoupon обновляет изменяемые поля купона.
func (s *Service) UpdateCoupon(ctx context.Context, id uuid.UUID, isActive bool, maxUsesTotal *int64, maxUsesPerUser int64, expiresAt *time.Time) error {
	if maxUsesPerUser <= 0 {
		return NewValidationError("Per-user usage limit must be positive")
	}
	return s.repo.UpdateCoupon(ctx, id, isActive, maxUsesTotal, maxUsesPerUser, expiresAt)
}

// DeactivateCoupon отключает купон, сохраняя историю его использования.
func (s *Service) DeactivateCoupon(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateCoupon(ctx, id)
}
