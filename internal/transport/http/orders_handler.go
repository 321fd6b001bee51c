package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/pcshop/internal/service/checkout"
)

type createOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
	Locale        string `json:"locale"`
	Items         []struct {
		ProductID string `json:"product_id"`
		Qty       int32  `json:"qty"`
	} `json:"items"`
}

type patchOrderRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type orderStatusResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
		return
	}

	lines := make([]checkout.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, checkout.CartLine{ProductID: item.ProductID, Qty: item.Qty})
	}

	order, err := a.checkout.Create(actorFromRequest(r), checkout.CreateOrderInput{
		PaymentMethod: req.PaymentMethod,
		Locale:        req.Locale,
		Lines:         lines,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	if a.statusCache != nil {
		a.statusCache.Set(order)
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.checkout.Get(actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (a *API) listMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.checkout.ListMine(actorFromRequest(r), defaultListLimit)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, result)
}

// getOrderStatus отдаёт статус заказа для частых опросов. Redis-кэш
// хранит статус вместе с владельцем, поэтому проверка доступа на
// попадании не требует похода в базу.
func (a *API) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	orderID := chi.URLParam(r, "id")

	if a.statusCache != nil {
		if cached, ok := a.statusCache.Get(orderID); ok {
			// То же правило, что в сервисе: владелец или админ,
			// гостевой заказ без владельца — только админ.
			if !actor.CanAccess(cached.UserID) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
				return
			}
			writeJSON(w, http.StatusOK, orderStatusResponse{OrderID: orderID, Status: string(cached.Status)})
			return
		}
	}

	order, err := a.checkout.Get(actor, orderID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if a.statusCache != nil {
		a.statusCache.Set(order)
	}
	writeJSON(w, http.StatusOK, orderStatusResponse{OrderID: order.ID, Status: string(order.Status)})
}

func (a *API) patchOrder(w http.ResponseWriter, r *http.Request) {
	var req patchOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
		return
	}
	if req.Action != "cancel" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown_action", Details: req.Action})
		return
	}

	order, err := a.checkout.Cancel(actorFromRequest(r), checkout.CancelInput{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	if a.statusCache != nil {
		a.statusCache.Invalidate(order.ID)
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
