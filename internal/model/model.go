// Package model содержит доменные сущности сервиса продажи курсов.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Ключи настроек, управляемых администратором.
const (
	SettingFirstPurchasePercent = "first_purchase_discount_percent"
	SettingPointsPercent        = "points_discount_percent"
)

// User представляет зарегистрированного пользователя платформы.
type User struct {
	ID                        uuid.UUID
	Email                     string
	PasswordHash              []byte
	FirstName                 string
	LastName                  string
	IsAdmin                   bool
	Points                    int64
	FirstPurchaseDiscountUsed bool
	CreatedAt                 time.Time
}

// Course описывает продаваемый курс с ценой в центах.
type Course struct {
	ID          uuid.UUID
	Title       string
	Slug        string
	Description string
	PriceCents  int64
	IsPublished bool
	CreatedAt   time.Time
}

// CouponDiscountType определяет способ расчёта скидки купона.
type CouponDiscountType string

const (
	CouponPercentage CouponDiscountType = "percentage"
	CouponFixed      CouponDiscountType = "fixed"
)

// Coupon описывает промокод с ограничениями на использование.
type Coupon struct {
	ID                  uuid.UUID
	Code                string
	DiscountType        CouponDiscountType
	DiscountValue       int64
	MaxUsesTotal        *int64
	MaxUsesPerUser      int64
	UsageCount          int64
	ExpiresAt           *time.Time
	IsActive            bool
	AppliesToAllCourses bool
	CourseIDs           []uuid.UUID
	CreatedAt           time.Time
}

// PointTransactionType определяет направление операции с баллами.
type PointTransactionType string

const (
	PointEarn  PointTransactionType = "earn"
	PointSpend PointTransactionType = "spend"
)

// PointTransaction описывает запись журнала операций с баллами.
// Сумма Amount по всем записям пользователя всегда равна его текущему балансу.
type PointTransaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Amount      int64
	Type        PointTransactionType
	ReferenceID string
	Description string
	CreatedAt   time.Time
}

// CheckoutStatus описывает состояние платёжной сессии.
type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "pending"
	CheckoutCompleted CheckoutStatus = "completed"
	CheckoutFailed    CheckoutStatus = "failed"
)

// CheckoutSession связывает момент создания платежа с моментом его подтверждения.
type CheckoutSession struct {
	ID               uuid.UUID
	GatewaySessionID string
	CourseID         uuid.UUID
	UserID           *uuid.UUID
	Email            string
	FirstName        string
	LastName         string
	CouponID         *uuid.UUID
	Status           CheckoutStatus
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// Enrollment представляет доступ пользователя к курсу, создаваемый
// только после подтверждённой оплаты. Уникален по паре (user, course).
type Enrollment struct {
	ID                           uuid.UUID
	UserID                       uuid.UUID
	CourseID                     uuid.UUID
	PaymentIntentID              string
	PaymentStatus                string
	AmountPaidCents              int64
	OriginalPriceCents           int64
	DiscountAppliedCents         int64
	FirstPurchaseDiscountApplied bool
	PointsEarned                 int64
	CouponID                     *uuid.UUID
	CreatedAt                    time.Time
}

// Setting представляет настройку администратора в виде пары ключ-значение.
type Setting struct {
	Key         string
	Value       string
	Description string
}
