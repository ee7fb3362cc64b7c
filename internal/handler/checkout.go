package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/courseshop-system/internal/discount"
	"github.com/mmeshcher/courseshop-system/internal/middleware"
	"github.com/mmeshcher/courseshop-system/internal/repository"
	"github.com/mmeshcher/courseshop-system/internal/service"
)

type checkoutRequest struct {
	CourseID    string `json:"courseId"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	IsGuest     bool   `json:"isGuest"`
	CouponCode  string `json:"couponCode"`
	PointsToUse int64  `json:"pointsToUse"`
}

type previewCourse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	OriginalPrice int64  `json:"originalPrice"`
}

type previewResponse struct {
	Course     previewCourse      `json:"course"`
	UserPoints int64              `json:"userPoints"`
	Discounts  discount.Breakdown `json:"discounts"`
}

type emailExistsResponse struct {
	EmailExists bool `json:"emailExists"`
}

// PreviewCheckout возвращает расчёт цены покупки со всеми скидками.
// Аутентификация не обязательна: гость присылает email вместо cookie.
func (h *Handler) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid course id")
		return
	}

	params := service.PreviewParams{
		CourseID:    courseID,
		Email:       req.Email,
		CouponCode:  req.CouponCode,
		PointsToUse: req.PointsToUse,
	}
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		params.UserID = &userID
	}

	res, err := h.service.PreviewCheckout(r.Context(), params)
	if err != nil {
		if errors.Is(err, repository.ErrCourseNotFound) {
			h.writeError(w, http.StatusNotFound, "Course not found")
			return
		}
		h.serviceError(w, "preview checkout error", err)
		return
	}

	if res.EmailExists {
		h.writeJSON(w, http.StatusOK, emailExistsResponse{EmailExists: true})
		return
	}

	h.writeJSON(w, http.StatusOK, previewResponse{
		Course: previewCourse{
			ID:            res.Course.ID.String(),
			Title:         res.Course.Title,
			OriginalPrice: res.Course.PriceCents,
		},
		UserPoints: res.UserPoints,
		Discounts:  res.Breakdown,
	})
}

type checkoutResponse struct {
	URL       string             `json:"url"`
	Discounts discount.Breakdown `json:"discounts"`
}

// CreateCheckout создаёт платёжную сессию и возвращает ссылку на оплату.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid course id")
		return
	}

	params := service.CheckoutParams{
		CourseID:    courseID,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		CouponCode:  req.CouponCode,
		PointsToUse: req.PointsToUse,
	}
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		params.UserID = &userID
	} else if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, "Email is required for guest checkout")
		return
	}

	res, err := h.service.CreateCheckout(r.Context(), params)
	if err != nil {
		if errors.Is(err, repository.ErrCourseNotFound) {
			h.writeError(w, http.StatusNotFound, "Course not found")
			return
		}
		h.serviceError(w, "create checkout error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, checkoutResponse{URL: res.URL, Discounts: res.Breakdown})
}
