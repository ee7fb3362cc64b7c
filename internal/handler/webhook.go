package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/courseshop-system/internal/payment"
)

type webhookAck struct {
	Received bool `json:"received"`
}

// PaymentWebhook принимает событие платёжного шлюза. Подпись проверяется
// по сырому телу запроса до разбора JSON. После успешной проверки подписи
// шлюз всегда получает подтверждение, иначе он будет доставлять событие
// бесконечно.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	event, err := payment.ConstructEvent(body, r.Header.Get(payment.SignatureHeader), []byte(h.webhookSecret))
	if err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessPaymentEvent(r.Context(), event); err != nil {
		h.logger.Error("process payment event error",
			zap.String("event_id", event.ID), zap.Error(err))
	}

	h.writeJSON(w, http.StatusOK, webhookAck{Received: true})
}
