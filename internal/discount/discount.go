// Package discount содержит чистые вычисления скидок при покупке курса.
//
// Скидки применяются в фиксированном порядке: первая покупка, затем баллы,
// затем купон. Каждая следующая скидка считается от остатка цены после
// предыдущих, поэтому порядок значим.
package discount

import (
	"strconv"

	"github.com/mmeshcher/courseshop-system/internal/model"
)

const (
	// PointsPerPurchase — фиксированное число баллов, начисляемых за покупку.
	PointsPerPurchase = 1000
	// PointsIncrement — шаг, которым баллы можно тратить.
	PointsIncrement = 1000
	// DefaultPointsPercent — базовый процент скидки за 1000 баллов,
	// если настройка отсутствует.
	DefaultPointsPercent = 10
	// DefaultFirstPurchasePercent — процент скидки первой покупки,
	// если настройка отсутствует.
	DefaultFirstPurchasePercent = 0
)

// FirstPurchaseResult описывает результат проверки скидки первой покупки.
type FirstPurchaseResult struct {
	Eligible        bool  `json:"eligible"`
	DiscountPercent int64 `json:"discountPercent"`
	DiscountCents   int64 `json:"discountCents"`
}

// FirstPurchase вычисляет скидку первой покупки от остатка цены.
// Гость без аккаунта считается ранее не покупавшим, поэтому alreadyUsed=false.
func FirstPurchase(alreadyUsed bool, percent, remainingCents int64) FirstPurchaseResult {
	if alreadyUsed || percent <= 0 {
		return FirstPurchaseResult{}
	}

	return FirstPurchaseResult{
		Eligible:        true,
		DiscountPercent: percent,
		DiscountCents:   remainingCents * percent / 100,
	}
}

// PointsResult описывает результат расчёта скидки за баллы.
type PointsResult struct {
	Eligible        bool  `json:"eligible"`
	DiscountPercent int64 `json:"discountPercent"`
	DiscountCents   int64 `json:"discountCents"`
	PointsToUse     int64 `json:"pointsToUse"`
}

// Points вычисляет скидку за баллы от остатка цены.
// Запрошенная сумма ограничивается балансом, округлённым вниз до кратного 1000.
// Скидка не может превысить остаток цены.
func Points(balance, requested, basePercent, remainingCents int64) PointsResult {
	if balance < PointsIncrement || requested < PointsIncrement || basePercent <= 0 {
		return PointsResult{}
	}

	maxUsable := balance / PointsIncrement * PointsIncrement
	pointsToUse := min(requested, maxUsable)

	percent := basePercent * (pointsToUse / PointsIncrement)
	discountCents := min(remainingCents*percent/100, remainingCents)

	return PointsResult{
		Eligible:        true,
		DiscountPercent: percent,
		DiscountCents:   discountCents,
		PointsToUse:     pointsToUse,
	}
}

// CouponResult описывает результат проверки купона.
type CouponResult struct {
	Valid         bool   `json:"valid"`
	DiscountCents int64  `json:"discountCents"`
	CouponID      string `json:"couponId,omitempty"`
	CouponCode    string `json:"couponCode,omitempty"`
	Error         string `json:"error,omitempty"`
}

// CouponAmount вычисляет размер скидки купона от остатка цены.
// Процентная скидка округляется вниз, фиксированная не опускает цену ниже нуля.
func CouponAmount(discountType model.CouponDiscountType, value, remainingCents int64) int64 {
	if discountType == model.CouponPercentage {
		return remainingCents * value / 100
	}
	return min(value, remainingCents)
}

// Breakdown содержит полную разбивку скидок и итоговую цену.
type Breakdown struct {
	BasePriceCents     int64               `json:"originalPrice"`
	FirstPurchase      FirstPurchaseResult `json:"firstPurchase"`
	Points             PointsResult        `json:"points"`
	Coupon             CouponResult        `json:"coupon"`
	TotalDiscountCents int64               `json:"totalDiscount"`
	FinalPriceCents    int64               `json:"finalPrice"`
}

// Compose собирает разбивку из результатов трёх источников скидки.
// Итоговая цена не опускается ниже нуля.
func Compose(basePriceCents int64, fp FirstPurchaseResult, pts PointsResult, cp CouponResult) Breakdown {
	total := fp.DiscountCents + pts.DiscountCents + cp.DiscountCents

	final := basePriceCents - total
	if final < 0 {
		final = 0
	}

	return Breakdown{
		BasePriceCents:     basePriceCents,
		FirstPurchase:      fp,
		Points:             pts,
		Coupon:             cp,
		TotalDiscountCents: total,
		FinalPriceCents:    final,
	}
}

// ParsePercent разбирает строковое значение настройки как процент.
// Нечисловые значения и значения вне диапазона 0..100 заменяются
// значением по умолчанию.
func ParsePercent(value string, fallback int64) int64 {
	if value == "" {
		return fallback
	}
	p, err := strconv.ParseInt(value, 10, 64)
	if err != nil || p < 0 || p > 100 {
		return fallback
	}
	return p
}
