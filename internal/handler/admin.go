package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/middleware"
	"github.com/mmeshcher/courseshop-system/internal/model"
	"github.com/mmeshcher/courseshop-system/internal/repository"
	"github.com/mmeshcher/courseshop-system/internal/service"
)

// adminOnly пропускает только аутентифицированных администраторов.
func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		u, err := h.service.GetUser(r.Context(), userID)
		if err != nil {
			h.logger.Error("admin check error", zap.Error(err), zap.String("userID", userID.String()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if !u.IsAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type settingResponse struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// GetSettings возвращает настройки скидок.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("get settings error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]settingResponse, 0, len(settings))
	for _, s := range settings {
		resp = append(resp, settingResponse{Key: s.Key, Value: s.Value, Description: s.Description})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateSettings обновляет настройки скидок.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateSettings(r.Context(), req); err != nil {
		h.serviceError(w, "update settings error", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type couponResponse struct {
	ID                  string     `json:"id"`
	Code                string     `json:"code"`
	DiscountType        string     `json:"discountType"`
	DiscountValue       int64      `json:"discountValue"`
	MaxUsesTotal        *int64     `json:"maxUsesTotal"`
	MaxUsesPerUser      int64      `json:"maxUsesPerUser"`
	UsageCount          int64      `json:"usageCount"`
	ExpiresAt           *time.Time `json:"expiresAt"`
	IsActive            bool       `json:"isActive"`
	AppliesToAllCourses bool       `json:"appliesToAllCourses"`
	CourseIDs           []string   `json:"courseIds"`
}

func toCouponResponse(c *model.Coupon) couponResponse {
	ids := make([]string, 0, len(c.CourseIDs))
	for _, id := range c.CourseIDs {
		ids = append(ids, id.String())
	}
	return couponResponse{
		ID:                  c.ID.String(),
		Code:                c.Code,
		DiscountType:        string(c.DiscountType),
		DiscountValue:       c.DiscountValue,
		MaxUsesTotal:        c.MaxUsesTotal,
		MaxUsesPerUser:      c.MaxUsesPerUser,
		UsageCount:          c.UsageCount,
		ExpiresAt:           c.ExpiresAt,
		IsActive:            c.IsActive,
		AppliesToAllCourses: c.AppliesToAllCourses,
		CourseIDs:           ids,
	}
}

// GetCoupons возвращает все купоны, включая неактивные.
func (h *Handler) GetCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.GetCoupons(r.Context())
	if err != nil {
		h.logger.Error("get coupons error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]couponResponse, 0, len(coupons))
	for i := range coupons {
		resp = append(resp, toCouponResponse(&coupons[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type createCouponRequest struct {
	Code                string     `json:"code"`
	DiscountType        string     `json:"discountType"`
	DiscountValue       int64      `json:"discountValue"`
	MaxUsesTotal        *int64     `json:"maxUsesTotal"`
	MaxUsesPerUser      int64      `json:"maxUsesPerUser"`
	ExpiresAt           *time.Time `json:"expiresAt"`
	AppliesToAllCourses bool       `json:"appliesToAllCourses"`
	CourseIDs           []string   `json:"courseIds"`
}

// CreateCoupon создаёт новый купон.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	courseIDs := make([]uuid.UUID, 0, len(req.CourseIDs))
	for _, raw := range req.CourseIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid course id in course list")
			return
		}
		courseIDs = append(courseIDs, id)
	}

	id, err := h.service.CreateCoupon(r.Context(), service.CreateCouponParams{
		Code:                req.Code,
		DiscountType:        model.CouponDiscountType(req.DiscountType),
		DiscountValue:       req.DiscountValue,
		MaxUsesTotal:        req.MaxUsesTotal,
		MaxUsesPerUser:      req.MaxUsesPerUser,
		ExpiresAt:           req.ExpiresAt,
		AppliesToAllCourses: req.AppliesToAllCourses,
		CourseIDs:           courseIDs,
	})
	if err != nil {
		if errors.Is(err, repository.ErrCouponExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.serviceError(w, "create coupon error", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

type updateCouponRequest struct {
	IsActive       bool       `json:"isActive"`
	MaxUsesTotal   *int64     `json:"maxUsesTotal"`
	MaxUsesPerUser int64      `json:"maxUsesPerUser"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// UpdateCoupon обновляет изменяемые поля купона.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var req updateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateCoupon(r.Context(), id, req.IsActive, req.MaxUsesTotal, req.MaxUsesPerUser, req.ExpiresAt); err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.serviceError(w, "update coupon error", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteCoupon деактивирует купон.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	if err := h.service.DeactivateCoupon(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("deactivate coupon error", zap.Error(err), zap.String("couponID", id.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
