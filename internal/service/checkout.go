package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/discount"
	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/payment"
	"github.com/mmeshcher/courseshop-system/internal/repository"
	"github.com/mmeshcher/courseshop-system/internal/validation"
)

// Ключи метаданных платёжной сессии. По ним вебхук восстанавливает
// контекст покупки после оплаты.
const (
	metaCourseID                  = "courseId"
	metaIsGuest                   = "isGuest"
	metaFirstName                 = "firstName"
	metaLastName                  = "lastName"
	metaOriginalPriceCents        = "originalPriceCents"
	metaFinalPriceCents           = "finalPriceCents"
	metaFirstPurchaseDiscount     = "firstPurchaseDiscountCents"
	metaFirstPurchaseApplied      = "firstPurchaseApplied"
	metaPointsDiscountCents       = "pointsDiscountCents"
	metaPointsUsed                = "pointsUsed"
	metaCouponDiscountCents       = "couponDiscountCents"
	metaCouponID                  = "couponId"
	metaCouponCode                = "couponCode"
)

// PreviewParams описывает запрос на предварительный расчёт покупки.
type PreviewParams struct {
	CourseID    uuid.UUID
	UserID      *uuid.UUID
	Email       string
	CouponCode  string
	PointsToUse int64
}

// PreviewResult содержит итог предварительного расчёта.
type PreviewResult struct {
	EmailExists bool
	Course      *model.Course
	UserPoints  int64
	Breakdown   discount.Breakdown
}

// CheckoutParams описывает запрос на создание платёжной сессии.
type CheckoutParams struct {
	CourseID    uuid.UUID
	UserID      *uuid.UUID
	Email       string
	FirstName   string
	LastName    string
	CouponCode  string
	PointsToUse int64
}

// CheckoutResult содержит ссылку на оплату и расчёт скидок.
type CheckoutResult struct {
	URL       string
	Breakdown discount.Breakdown
}

// PreviewCheckout рассчитывает цену покупки со всеми скидками без создания
// платёжной сессии. Для гостя с занятым email возвращает EmailExists.
func (s *Service) PreviewCheckout(ctx context.Context, params PreviewParams) (*PreviewResult, error) {
	course, err := s.repo.GetCourseByID(ctx, params.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}

	if params.UserID == nil && params.Email != "" {
		_, err := s.repo.GetUserByEmail(ctx, params.Email)
		if err == nil {
			return &PreviewResult{EmailExists: true, Course: course}, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
	}

	bd, err := s.calculateAllDiscounts(ctx, params.UserID, params.CourseID, course.PriceCents, params.CouponCode, params.PointsToUse)
	if err != nil {
		return nil, err
	}

	res := &PreviewResult{Course: course, Breakdown: bd}
	if params.UserID != nil {
		balance, err := s.repo.GetPointsBalance(ctx, *params.UserID)
		if err != nil {
			return nil, fmt.Errorf("get points balance: %w", err)
		}
		res.UserPoints = balance
	}

	return res, nil
}

// CreateCheckout создаёт платёжную сессию в шлюзе и возвращает ссылку
// на оплату. Расчёт скидок выполняется заново на стороне сервера.
func (s *Service) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResult, error) {
	course, err := s.repo.GetCourseByID(ctx, params.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}

	isGuest := params.UserID == nil
	if isGuest {
		_, err := s.repo.GetUserByEmail(ctx, params.Email)
		if err == nil {
			return nil, NewValidationError("An account with this email already exists. Please log in to continue your purchase.")
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
	}

	bd, err := s.calculateAllDiscounts(ctx, params.UserID, params.CourseID, course.PriceCents, params.CouponCode, params.PointsToUse)
	if err != nil {
		return nil, err
	}
	if params.CouponCode != "" && !bd.Coupon.Valid {
		return nil, NewValidationError(bd.Coupon.Error)
	}

	email := normalizeEmail(params.Email)
	clientReferenceID := ""
	if params.UserID != nil {
		clientReferenceID = params.UserID.String()
		if email == "" {
			u, err := s.repo.GetUserByID(ctx, *params.UserID)
			if err != nil {
				return nil, fmt.Errorf("get user: %w", err)
			}
			email = u.Email
		}
	}

	metadata := map[string]string{
		metaCourseID:              course.ID.String(),
		metaIsGuest:               strconv.FormatBool(isGuest),
		metaFirstName:             params.FirstName,
		metaLastName:              params.LastName,
		metaOriginalPriceCents:    strconv.FormatInt(bd.BasePriceCents, 10),
		metaFinalPriceCents:       strconv.FormatInt(bd.FinalPriceCents, 10),
		metaFirstPurchaseDiscount: strconv.FormatInt(bd.FirstPurchase.DiscountCents, 10),
		metaFirstPurchaseApplied:  strconv.FormatBool(bd.FirstPurchase.DiscountCents > 0),
		metaPointsDiscountCents:   strconv.FormatInt(bd.Points.DiscountCents, 10),
		metaPointsUsed:            strconv.FormatInt(bd.Points.PointsToUse, 10),
		metaCouponDiscountCents:   strconv.FormatInt(bd.Coupon.DiscountCents, 10),
		metaCouponID:              bd.Coupon.CouponID,
		metaCouponCode:            bd.Coupon.CouponCode,
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.SessionParams{
		AmountCents:       bd.FinalPriceCents,
		Currency:          "usd",
		ProductName:       course.Title,
		Description:       buildDescription(bd),
		CustomerEmail:     email,
		ClientReferenceID: clientReferenceID,
		SuccessURL:        s.baseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}&is_guest=" + strconv.FormatBool(isGuest),
		CancelURL:         s.baseURL + "/payment/cancel",
		Metadata:          metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway session: %w", err)
	}

	record := &model.CheckoutSession{
		GatewaySessionID: session.ID,
		CourseID:         course.ID,
		UserID:           params.UserID,
		Email:            email,
		FirstName:        params.FirstName,
		LastName:         params.LastName,
		Status:           model.CheckoutPending,
	}
	if bd.Coupon.Valid {
		if id, err := uuid.Parse(bd.Coupon.CouponID); err == nil {
			record.CouponID = &id
		}
	}
	if err := s.repo.CreateCheckoutSession(ctx, record); err != nil {
		// Платёжная сессия уже существует в шлюзе, покупку не блокируем.
		s.logger.Error("failed to record checkout session",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	return &CheckoutResult{URL: session.URL, Breakdown: bd}, nil
}

// calculateAllDiscounts применяет скидки в фиксированном порядке:
// первая покупка, затем баллы, затем купон. Каждая следующая скидка
// считается от остатка после предыдущей.
func (s *Service) calculateAllDiscounts(ctx context.Context, userID *uuid.UUID, courseID uuid.UUID, basePriceCents int64, couponCode string, pointsToUse int64) (discount.Breakdown, error) {
	remaining := basePriceCents

	fpPercent, err := s.settingPercent(ctx, model.SettingFirstPurchasePercent, discount.DefaultFirstPurchasePercent)
	if err != nil {
		return discount.Breakdown{}, err
	}
	alreadyUsed := false
	if userID != nil {
		u, err := s.repo.GetUserByID(ctx, *userID)
		if err != nil {
			return discount.Breakdown{}, fmt.Errorf("get user: %w", err)
		}
		alreadyUsed = u.FirstPurchaseDiscountUsed
	}
	fp := discount.FirstPurchase(alreadyUsed, fpPercent, remaining)
	remaining -= fp.DiscountCents

	var pts discount.PointsResult
	if userID != nil && pointsToUse > 0 {
		balance, err := s.repo.GetPointsBalance(ctx, *userID)
		if err != nil {
			return discount.Breakdown{}, fmt.Errorf("get points balance: %w", err)
		}
		ptsPercent, err := s.settingPercent(ctx, model.SettingPointsPercent, discount.DefaultPointsPercent)
		if err != nil {
			return discount.Breakdown{}, err
		}
		pts = discount.Points(balance, pointsToUse, ptsPercent, remaining)
		remaining -= pts.DiscountCents
	}

	var cp discount.CouponResult
	if couponCode != "" {
		cp, err = s.validateCoupon(ctx, couponCode, userID, courseID, remaining)
		if err != nil {
			return discount.Breakdown{}, err
		}
	}

	return discount.Compose(basePriceCents, fp, pts, cp), nil
}

// validateCoupon проверяет купон и возвращает результат с пользовательским
// сообщением об ошибке. Ошибка возвращается только при сбое хранилища.
func (s *Service) validateCoupon(ctx context.Context, code string, userID *uuid.UUID, courseID uuid.UUID, remainingCents int64) (discount.CouponResult, error) {
	normalized := validation.NormalizeCouponCode(code)

	c, err := s.repo.GetActiveCouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return discount.CouponResult{Error: "Invalid coupon code"}, nil
		}
		return discount.CouponResult{}, fmt.Errorf("get coupon: %w", err)
	}

	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return discount.CouponResult{Error: "This coupon has expired"}, nil
	}

	if c.MaxUsesTotal != nil && c.UsageCount >= *c.MaxUsesTotal {
		return discount.CouponResult{Error: "This coupon has reached its usage limit"}, nil
	}

	if !c.AppliesToAllCourses {
		ok, err := s.repo.CouponAppliesToCourse(ctx, c.ID, courseID)
		if err != nil {
			return discount.CouponResult{}, fmt.Errorf("check coupon courses: %w", err)
		}
		if !ok {
			return discount.CouponResult{Error: "This coupon is not valid for this course"}, nil
		}
	}

	// Для гостей лимит на пользователя не проверяется: аккаунта ещё нет.
	if userID != nil {
		used, err := s.repo.CountCouponUsagesByUser(ctx, c.ID, *userID)
		if err != nil {
			return discount.CouponResult{}, fmt.Errorf("count coupon usages: %w", err)
		}
		if used >= c.MaxUsesPerUser {
			return discount.CouponResult{Error: "You have already used this coupon"}, nil
		}
	}

	return discount.CouponResult{
		Valid:         true,
		DiscountCents: discount.CouponAmount(c.DiscountType, c.DiscountValue, remainingCents),
		CouponID:      c.ID.String(),
		CouponCode:    c.Code,
	}, nil
}

func (s *Service) settingPercent(ctx context.Context, key string, fallback int64) (int64, error) {
	value, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrSettingNotFound) {
			return fallback, nil
		}
		return 0, fmt.Errorf("get setting %s: %w", key, err)
	}
	return discount.ParsePercent(value, fallback), nil
}

// buildDescription собирает описание позиции для платёжного шлюза
// с перечислением применённых скидок.
func buildDescription(bd discount.Breakdown) string {
	if bd.TotalDiscountCents == 0 {
		return "Course purchase"
	}

	parts := make([]string, 0, 3)
	if bd.FirstPurchase.DiscountCents > 0 {
		parts = append(parts, fmt.Sprintf("first purchase -%s", formatCents(bd.FirstPurchase.DiscountCents)))
	}
	if bd.Points.DiscountCents > 0 {
		parts = append(parts, fmt.Sprintf("%d points -%s", bd.Points.PointsToUse, formatCents(bd.Points.DiscountCents)))
	}
	if bd.Coupon.DiscountCents > 0 {
		parts = append(parts, fmt.Sprintf("coupon %s -%s", bd.Coupon.CouponCode, formatCents(bd.Coupon.DiscountCents)))
	}
	return "Course purchase (" + strings.Join(parts, ", ") + ")"
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
