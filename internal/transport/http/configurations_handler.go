package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/pcshop/internal/service/approval"
)

type componentsRequest struct {
	Items []struct {
		StockItemID string `json:"stock_item_id"`
		Qty         int32  `json:"qty"`
	} `json:"items"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (c componentsRequest) lines() []approval.ComponentLine {
	lines := make([]approval.ComponentLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, approval.ComponentLine{StockItemID: item.StockItemID, Qty: item.Qty})
	}
	return lines
}

func (a *API) createConfiguration(w http.ResponseWriter, r *http.Request) {
	var req componentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
		return
	}

	cfg, err := a.approval.Create(actorFromRequest(r), req.lines())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConfigurationResponse(cfg))
}

func (a *API) getConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.approval.Get(actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (a *API) listPublicConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := a.approval.ListPublic(defaultListLimit)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	result := make([]configurationResponse, 0, len(configs))
	for _, cfg := range configs {
		result = append(result, toConfigurationResponse(cfg))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) updateConfigurationComponents(w http.ResponseWriter, r *http.Request) {
	var req componentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
		return
	}

	cfg, err := a.approval.UpdateComponents(actorFromRequest(r), chi.URLParam(r, "id"), req.lines())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (a *API) submitConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.approval.Submit(actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (a *API) approveConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.approval.Approve(actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (a *API) rejectConfiguration(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
		return
	}

	cfg, err := a.approval.Reject(actorFromRequest(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}

func (a *API) publishConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.approval.Publish(actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationResponse(cfg))
}
