// Package factusol содержит интеграцию с ERP Factusol.
package factusol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/version"
)

const (
	// DefaultTimeout ограничивает один вызов Factusol.
	DefaultTimeout = 10 * time.Second

	headerClientID     = "X-Client-Id"
	headerClientSecret = "X-Client-Secret"
	headerRequestID    = "X-Request-Id"

	maxErrorBody = 512
)

// ErrEndpointNotConfigured возвращается, если URL Factusol не задан.
var ErrEndpointNotConfigured = errors.New("factusol endpoint is not configured")

// Credentials — учётные данные клиента API.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// HTTPGateway отправляет альбараны в Factusol по HTTP.
type HTTPGateway struct {
	endpoint    string
	credentials Credentials
	client      *http.Client
	logger      *log.Entry
}

// GatewayOption настраивает HTTPGateway.
type GatewayOption func(*HTTPGateway)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(timeout time.Duration) GatewayOption {
	return func(g *HTTPGateway) {
		if timeout > 0 {
			g.client.Timeout = timeout
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) GatewayOption {
	return func(g *HTTPGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewHTTPGateway создаёт шлюз для endpoint (например, https://erp.example.com/api).
func NewHTTPGateway(endpoint string, credentials Credentials, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		endpoint:    strings.TrimRight(endpoint, "/"),
		credentials: credentials,
		client:      &http.Client{Timeout: DefaultTimeout},
		logger:      log.New().WithField("component", "factusol"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type albaranLine struct {
	Line     int    `json:"line"`
	Code     string `json:"code"`
	Concept  string `json:"concept"`
	Quantity int32  `json:"quantity"`
	Price    string `json:"price"`
	Discount string `json:"discount"`
}

type albaranClient struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

type albaranRequest struct {
	Number string        `json:"number"`
	Date   string        `json:"date"`
	Client albaranClient `json:"client"`
	Lines  []albaranLine `json:"lines"`
	Total  string        `json:"total"`
}

type albaranResponse struct {
	DocumentNumber string `json:"document_number"`
}

func newAlbaranRequest(req domain.ExportRequest) albaranRequest {
	lines := make([]albaranLine, 0, len(req.Order.Items))
	for _, item := range req.Order.Items {
		lines = append(lines, albaranLine{
			Line:     item.ID,
			Code:     item.Code,
			Concept:  item.Concept,
			Quantity: item.Quantity,
			Price:    item.Price.String(),
			Discount: item.Discount.String(),
		})
	}
	return albaranRequest{
		Number: req.Order.ID,
		Date:   req.Order.Date.Format(time.DateOnly),
		Client: albaranClient{
			ID:      req.Client.ID,
			Name:    req.Client.Name,
			TaxID:   req.Client.TaxID,
			Address: req.Client.Address,
			Email:   req.Client.Email,
		},
		Lines: lines,
		Total: req.Order.Total.String(),
	}
}

// Submit создаёт альбаран в Factusol. Любой ответ вне 2xx считается отказом ERP.
func (g *HTTPGateway) Submit(ctx context.Context, req domain.ExportRequest) (domain.ExportReceipt, error) {
	if g.endpoint == "" {
		return domain.ExportReceipt{}, ErrEndpointNotConfigured
	}

	body, err := json.Marshal(newAlbaranRequest(req))
	if err != nil {
		return domain.ExportReceipt{}, fmt.Errorf("encode albaran: %w", err)
	}

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/albaranes", bytes.NewReader(body))
	if err != nil {
		return domain.ExportReceipt{}, fmt.Errorf("build factusol request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set(headerClientID, g.credentials.ClientID)
	httpReq.Header.Set(headerClientSecret, g.credentials.ClientSecret)
	httpReq.Header.Set(headerRequestID, requestID)

	logger := g.logger.WithFields(log.Fields{
		"order_id":   req.Order.ID,
		"request_id": requestID,
	})

	resp, err := g.client.Do(httpReq)
	if err != nil {
		logger.WithError(err).Warn("factusol request failed")
		return domain.ExportReceipt{}, fmt.Errorf("factusol request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return domain.ExportReceipt{}, fmt.Errorf("read factusol response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(payload))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		logger.WithField("status_code", resp.StatusCode).Warn("factusol rejected albaran")
		if msg == "" {
			return domain.ExportReceipt{}, fmt.Errorf("factusol responded %d", resp.StatusCode)
		}
		return domain.ExportReceipt{}, fmt.Errorf("factusol responded %d: %s", resp.StatusCode, msg)
	}

	var out albaranResponse
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &out); err != nil {
			return domain.ExportReceipt{}, fmt.Errorf("decode factusol response: %w", err)
		}
	}
	logger.WithField("document_number", out.DocumentNumber).Debug("factusol accepted albaran")
	return domain.ExportReceipt{DocumentNumber: out.DocumentNumber}, nil
}

var _ domain.ExportGateway = (*HTTPGateway)(nil)
