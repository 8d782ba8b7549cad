package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/pricing"
)

type itemRequest struct {
	ID       int             `json:"id"`
	Code     string          `json:"code"`
	Concept  string          `json:"concept"`
	Quantity int32           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
}

type createRequest struct {
	ClientID string        `json:"client_id"`
	Channel  string        `json:"channel"`
	Items    []itemRequest `json:"items"`
}

type reviewRequest struct {
	Items []itemRequest `json:"items"`
}

func toDomainItems(in []itemRequest) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(in))
	for _, item := range in {
		items = append(items, domain.OrderItem{
			ID:       item.ID,
			Code:     item.Code,
			Concept:  item.Concept,
			Quantity: item.Quantity,
			Price:    item.Price,
			Discount: item.Discount,
		})
	}
	return items
}

type itemResponse struct {
	ID       int             `json:"id"`
	Code     string          `json:"code"`
	Concept  string          `json:"concept"`
	Quantity int32           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type breakdownResponse struct {
	Base  decimal.Decimal `json:"base"`
	Tax   decimal.Decimal `json:"tax"`
	Total decimal.Decimal `json:"total"`
}

type orderResponse struct {
	ID            string            `json:"id"`
	ClientID      string            `json:"client_id"`
	Date          string            `json:"date"`
	Channel       string            `json:"channel,omitempty"`
	Status        domain.Status     `json:"status"`
	Items         []itemResponse    `json:"items"`
	Total         decimal.Decimal   `json:"total"`
	Breakdown     breakdownResponse `json:"breakdown"`
	FailureReason string            `json:"failure_reason,omitempty"`
	ExternalRef   string            `json:"external_ref,omitempty"`
	Actions       []domain.Action   `json:"actions"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func toOrderResponse(order domain.Order, actions []domain.Action) orderResponse {
	items := make([]itemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, itemResponse{
			ID:       item.ID,
			Code:     item.Code,
			Concept:  item.Concept,
			Quantity: item.Quantity,
			Price:    item.Price,
			Discount: item.Discount,
			Subtotal: pricing.LineSubtotal(item),
		})
	}
	breakdown := pricing.FromTotal(order.Total)
	if actions == nil {
		actions = []domain.Action{}
	}
	return orderResponse{
		ID:            order.ID,
		ClientID:      order.ClientID,
		Date:          order.Date.Format(time.DateOnly),
		Channel:       string(order.Channel),
		Status:        order.Status,
		Items:         items,
		Total:         order.Total,
		Breakdown:     breakdownResponse{Base: breakdown.Base, Tax: breakdown.Tax, Total: breakdown.Total},
		FailureReason: order.FailureReason,
		ExternalRef:   order.ExternalRef,
		Actions:       actions,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

type timelineEventResponse struct {
	Type     string        `json:"type"`
	Status   domain.Status `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Occurred time.Time     `json:"occurred"`
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}
