package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/middleware"
)

type pointsResponse struct {
	Points int64 `json:"points"`
}

// GetPoints возвращает текущий баланс баллов пользователя.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetPointsBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("get points error", zap.Error(err), zap.String("userID", userID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, pointsResponse{Points: balance})
}

type pointTransactionResponse struct {
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	ReferenceID string `json:"referenceId,omitempty"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

// GetPointsHistory возвращает журнал операций с баллами, новые первыми.
func (h *Handler) GetPointsHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.GetPointTransactions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get points history error", zap.Error(err), zap.String("userID", userID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]pointTransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp = append(resp, pointTransactionResponse{
			Amount:      tx.Amount,
			Type:        string(tx.Type),
			ReferenceID: tx.ReferenceID,
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type enrollmentResponse struct {
	CourseID             string `json:"courseId"`
	PaymentStatus        string `json:"paymentStatus"`
	AmountPaidCents      int64  `json:"amountPaidCents"`
	OriginalPriceCents   int64  `json:"originalPriceCents"`
	DiscountAppliedCents int64  `json:"discountAppliedCents"`
	PointsEarned         int64  `json:"pointsEarned"`
	CreatedAt            string `json:"createdAt"`
}

// GetEnrollments возвращает покупки пользователя, новые первыми.
func (h *Handler) GetEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	enrollments, err := h.service.GetEnrollments(r.Context(), userID)
	if err != nil {
		h.logger.Error("get enrollments error", zap.Error(err), zap.String("userID", userID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(enrollments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]enrollmentResponse, 0, len(enrollments))
	for _, e := range enrollments {
		resp = append(resp, enrollmentResponse{
			CourseID:             e.CourseID.String(),
			PaymentStatus:        e.PaymentStatus,
			AmountPaidCents:      e.AmountPaidCents,
			OriginalPriceCents:   e.OriginalPriceCents,
			DiscountAppliedCents: e.DiscountAppliedCents,
			PointsEarned:         e.PointsEarned,
			CreatedAt:            e.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
