package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/metrics"
)

const gatewayLabel = "payment"

// ClientConfig configures the payment gateway client.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

// CheckoutRequest is the checkout-session payload.
type CheckoutRequest struct {
	Amount     int64  `json:"amount"`
	ShopName   string `json:"shop_name"`
	Message    string `json:"message"`
	SuccessURL string `json:"success_url"`
	FailureURL string `json:"failure_url"`
	OrderID    string `json:"order_id"`
}

// Client creates checkout sessions on the payment gateway.
type Client struct {
	baseURL string
	apiKey  string
	header  string
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient builds a payment gateway client. m may be nil.
func NewClient(cfg ClientConfig, logger *slog.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		header:  header,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "payment-gateway"),
		metrics: m,
	}
}

// CreateCheckout opens a checkout session and returns the redirect link.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("checkout %s: %w", req.OrderID, apperrors.ErrPaymentConfig)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode checkout: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/gateway", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(c.header, c.apiKey)

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		c.observe("error", start)
		return "", fmt.Errorf("checkout %s: %w: %v", req.OrderID, apperrors.ErrPaymentTransport, err)
	}
	defer res.Body.Close()
	c.observe(strconv.Itoa(res.StatusCode), start)

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("checkout %s: %w: read response: %v", req.OrderID, apperrors.ErrPaymentTransport, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("checkout %s: %w: %d %s: %s", req.OrderID, apperrors.ErrPaymentStatus,
			res.StatusCode, http.StatusText(res.StatusCode), strings.TrimSpace(string(body)))
	}

	var out struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("checkout %s: %w: %v", req.OrderID, apperrors.ErrPaymentDecode, err)
	}
	if strings.TrimSpace(out.Link) == "" {
		return "", fmt.Errorf("checkout %s: %w: %s", req.OrderID, apperrors.ErrPaymentNoLink, strings.TrimSpace(string(body)))
	}
	return out.Link, nil
}

func (c *Client) observe(status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.GatewayRequests.WithLabelValues(gatewayLabel, "gateway", status).Inc()
	c.metrics.GatewayLatency.WithLabelValues(gatewayLabel, "gateway", status).Observe(time.Since(start).Seconds())
}
