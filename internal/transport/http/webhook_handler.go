package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/service/payment"
)

// Заголовок с HMAC-SHA256 подписью тела запроса от платёжного шлюза.
const headerSignature = "X-Signature"

const maxWebhookBody = 1 << 20 // 1 MiB

type webhookRequest struct {
	ID        string `json:"id"`
	EventType string `json:"eventType"`
	Amount    int64  `json:"amount"`
	Metadata  struct {
		OrderID string `json:"orderId"`
	} `json:"metadata"`
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Result   string `json:"result,omitempty"`
}

// paymentWebhook принимает событие платёжного шлюза. Единственный
// жёсткий отказ — невалидная подпись (400); всё остальное, кроме сбоев
// хранилища, отвечает 200: шлюз ретраит любые не-2xx до бесконечности,
// а битое, но корректно подписанное тело от ретраев не починится.
func (a *API) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable_body"})
		return
	}

	if !payment.VerifySignature(a.webhookSecret, body, r.Header.Get(headerSignature)) {
		if a.metrics != nil {
			a.metrics.RecordWebhookEvent("bad_signature")
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_signature"})
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.logger.WithError(err).Warn("signed webhook body is not valid JSON")
		if a.metrics != nil {
			a.metrics.RecordWebhookEvent(string(payment.ResultRejected))
		}
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Result: string(payment.ResultRejected)})
		return
	}

	result, err := a.payments.Process(domain.PaymentEvent{
		ID:          req.ID,
		Type:        req.EventType,
		OrderID:     req.Metadata.OrderID,
		AmountMinor: req.Amount,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	if result == payment.ResultApplied && a.statusCache != nil {
		a.statusCache.Invalidate(req.Metadata.OrderID)
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Result: string(result)})
}
