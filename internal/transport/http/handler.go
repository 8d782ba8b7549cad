// Package http публикует REST API альбаранов поверх echo.
package http

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/config"
	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/pricing"
	"github.com/vladislavdragonenkov/albaran/internal/service/creation"
	"github.com/vladislavdragonenkov/albaran/internal/service/document"
)

// Lifecycle — операции движка жизненного цикла, которые нужны API.
type Lifecycle interface {
	ReviewAndSave(ctx context.Context, orderID string, items []domain.OrderItem) (domain.Order, error)
	ExportToErp(ctx context.Context, orderID string) (domain.Order, error)
	RetryExport(ctx context.Context, orderID string) (domain.Order, error)
	AllowedActions(status domain.Status) []domain.Action
}

// Creator создаёт альбараны.
type Creator interface {
	CreateOrder(ctx context.Context, draft creation.Draft) (domain.Order, error)
}

// Deps — зависимости обработчиков.
type Deps struct {
	Orders    domain.OrderRepository
	Clients   domain.ClientDirectory
	Timeline  domain.TimelineRepository
	Lifecycle Lifecycle
	Creator   Creator
	Settings  *config.Settings
	Company   document.Company
	Logger    *log.Entry
}

// Handler обслуживает /api/v1.
type Handler struct {
	deps Deps
}

// NewHandler создаёт обработчик.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = log.New().WithField("component", "http")
	}
	if deps.Settings == nil {
		deps.Settings = config.DefaultSettings()
	}
	return &Handler{deps: deps}
}

// Register регистрирует маршруты в группе /api/v1.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/api/v1")

	g.GET("/albaranes", h.listOrders)
	g.POST("/albaranes", h.createOrder)
	g.GET("/albaranes/:id", h.getOrder)
	g.PUT("/albaranes/:id/review", h.reviewOrder)
	g.POST("/albaranes/:id/export", h.exportOrder)
	g.POST("/albaranes/:id/retry", h.retryExport)
	g.GET("/albaranes/:id/actions", h.orderActions)
	g.GET("/albaranes/:id/timeline", h.orderTimeline)
	g.GET("/albaranes/:id/document", h.orderDocument)

	g.GET("/clients", h.listClients)
	g.GET("/settings", h.getSettings)
}

// orderID принимает "00001", "#00001" и "%2300001".
func orderID(c echo.Context) string {
	raw := c.Param("id")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return domain.NormalizeOrderID(raw)
}

func (h *Handler) respond(c echo.Context, status int, order domain.Order) error {
	return c.JSON(status, toOrderResponse(order, h.deps.Lifecycle.AllowedActions(order.Status)))
}

func (h *Handler) listOrders(c echo.Context) error {
	status, err := domain.ParseStatusFilter(c.QueryParam("status"))
	if err != nil {
		return err
	}

	orders, err := h.deps.Orders.FindByStatus(c.Request().Context(), status)
	if err != nil {
		return err
	}

	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order, h.deps.Lifecycle.AllowedActions(order.Status)))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) getOrder(c echo.Context) error {
	order, err := h.deps.Orders.Get(c.Request().Context(), orderID(c))
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, order)
}

func (h *Handler) createOrder(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	order, err := h.deps.Creator.CreateOrder(c.Request().Context(), creation.Draft{
		ClientID: req.ClientID,
		Channel:  domain.Channel(req.Channel),
		Items:    toDomainItems(req.Items),
	})
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/albaranes/"+url.PathEscape(order.ID))
	return h.respond(c, http.StatusCreated, order)
}

func (h *Handler) reviewOrder(c echo.Context) error {
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	order, err := h.deps.Lifecycle.ReviewAndSave(c.Request().Context(), orderID(c), toDomainItems(req.Items))
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, order)
}

func (h *Handler) exportOrder(c echo.Context) error {
	order, err := h.deps.Lifecycle.ExportToErp(c.Request().Context(), orderID(c))
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, order)
}

func (h *Handler) retryExport(c echo.Context) error {
	order, err := h.deps.Lifecycle.RetryExport(c.Request().Context(), orderID(c))
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, order)
}

func (h *Handler) orderActions(c echo.Context) error {
	order, err := h.deps.Orders.Get(c.Request().Context(), orderID(c))
	if err != nil {
		return err
	}
	actions := h.deps.Lifecycle.AllowedActions(order.Status)
	if actions == nil {
		actions = []domain.Action{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":      order.ID,
		"status":  order.Status,
		"actions": actions,
	})
}

func (h *Handler) orderTimeline(c echo.Context) error {
	id := orderID(c)
	if _, err := h.deps.Orders.Get(c.Request().Context(), id); err != nil {
		return err
	}
	if h.deps.Timeline == nil {
		return c.JSON(http.StatusOK, []timelineEventResponse{})
	}

	events, err := h.deps.Timeline.List(id)
	if err != nil {
		return err
	}
	out := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, timelineEventResponse{
			Type:     event.Type,
			Status:   event.Status,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) orderDocument(c echo.Context) error {
	ctx := c.Request().Context()
	order, err := h.deps.Orders.Get(ctx, orderID(c))
	if err != nil {
		return err
	}
	client, err := h.deps.Clients.Resolve(ctx, order.ClientID)
	if err != nil {
		return err
	}

	doc := document.Build(order, client, h.deps.Company)
	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusOK, doc)
	}

	var buf bytes.Buffer
	if err := document.RenderHTML(&buf, doc); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (h *Handler) listClients(c echo.Context) error {
	clients, err := h.deps.Clients.List(c.Request().Context())
	if err != nil {
		return err
	}
	if clients == nil {
		clients = []domain.Client{}
	}
	return c.JSON(http.StatusOK, clients)
}

func (h *Handler) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"settings": h.deps.Settings.Masked(),
		"tax_rate": pricing.TaxRate,
	})
}
