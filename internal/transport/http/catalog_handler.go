package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/service/catalog"
)

type upsertStockItemRequest struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Quantity   int32  `json:"quantity"`
}

func (a *API) listCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := a.catalog.List()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	result := make([]stockItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, toStockItemResponse(item))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) getStockItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockItemResponse(item))
}

func (a *API) upsertStockItem(w http.ResponseWriter, r *http.Request) {
	var req upsertStockItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
		return
	}

	item, err := a.catalog.Upsert(actorFromRequest(r), chi.URLParam(r, "id"), catalog.UpsertInput{
		Kind:       domain.ProductKind(req.Kind),
		Name:       req.Name,
		PriceMinor: req.PriceMinor,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockItemResponse(item))
}
