package http

import (
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

type stockItemResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	PriceMinor int64     `json:"price_minor"`
	Quantity   int32     `json:"quantity"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toStockItemResponse(item domain.StockItem) stockItemResponse {
	return stockItemResponse{
		ID:         item.ID,
		Kind:       string(item.Kind),
		Name:       item.Name,
		PriceMinor: item.PriceMinor,
		Quantity:   item.Quantity,
		Version:    item.Version,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

type orderItemResponse struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Kind       string `json:"kind"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id,omitempty"`
	Status        string              `json:"status"`
	TotalMinor    int64               `json:"total_minor"`
	PaymentMethod string              `json:"payment_method"`
	Locale        string              `json:"locale,omitempty"`
	Items         []orderItemResponse `json:"items"`
	Version       int64               `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Kind:       string(item.Kind),
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return orderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		TotalMinor:    order.TotalMinor,
		PaymentMethod: order.PaymentMethod,
		Locale:        order.Locale,
		Items:         items,
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

type configurationItemResponse struct {
	ID          string `json:"id"`
	StockItemID string `json:"stock_item_id"`
	Qty         int32  `json:"qty"`
	PriceMinor  int64  `json:"price_minor"`
}

type configurationResponse struct {
	ID           string                      `json:"id"`
	UserID       string                      `json:"user_id"`
	Status       string                      `json:"status"`
	IsPublic     bool                        `json:"is_public"`
	IsTemplate   bool                        `json:"is_template"`
	TotalMinor   int64                       `json:"total_minor"`
	RejectReason string                      `json:"reject_reason,omitempty"`
	Items        []configurationItemResponse `json:"items"`
	Version      int64                       `json:"version"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func toConfigurationResponse(cfg domain.Configuration) configurationResponse {
	items := make([]configurationItemResponse, 0, len(cfg.Items))
	for _, item := range cfg.Items {
		items = append(items, configurationItemResponse{
			ID:          item.ID,
			StockItemID: item.StockItemID,
			Qty:         item.Qty,
			PriceMinor:  item.PriceMinor,
		})
	}
	return configurationResponse{
		ID:           cfg.ID,
		UserID:       cfg.UserID,
		Status:       string(cfg.Status),
		IsPublic:     cfg.IsPublic,
		IsTemplate:   cfg.IsTemplate,
		TotalMinor:   cfg.TotalMinor,
		RejectReason: cfg.RejectReason,
		Items:        items,
		Version:      cfg.Version,
		CreatedAt:    cfg.CreatedAt,
		UpdatedAt:    cfg.UpdatedAt,
	}
}
