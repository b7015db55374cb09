package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/metrics"
)

const gatewayLabel = "whatsapp"

// HTTPConfig configures the remote gateway client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Retries bounds the retries of idempotent calls.
	Retries uint64
}

// HTTPGateway is a bearer-token client for the remote messaging gateway.
type HTTPGateway struct {
	baseURL string
	token   string
	retries uint64
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHTTPGateway builds the client. m may be nil.
func NewHTTPGateway(cfg HTTPConfig, logger *slog.Logger, m *metrics.Metrics) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		retries: cfg.Retries,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "wa-gateway"),
		metrics: m,
	}
}

// QRCode implements Gateway.
func (g *HTTPGateway) QRCode(ctx context.Context, instanceID string) (*QRCode, error) {
	var raw map[string]json.RawMessage
	err := g.retry(ctx, func() error {
		return g.do(ctx, http.MethodGet, instancePath(instanceID, "qr"), nil, &raw)
	})
	if err != nil {
		return nil, err
	}
	qr := &QRCode{
		Code:  readString(raw, "code", "qr", "qrcode", "qrCode"),
		Image: readString(raw, "image", "base64", "qrImage", "url"),
	}
	if qr.Code == "" && qr.Image == "" {
		return nil, malformed("qr", errors.New("no qr code in response"))
	}
	if qr.Code != "" {
		qr.Terminal = renderTerminal(qr.Code)
	}
	return qr, nil
}

// RequestPairingCode implements Gateway.
func (g *HTTPGateway) RequestPairingCode(ctx context.Context, instanceID, phoneNumber string) (string, error) {
	body := map[string]string{"phoneNumber": phoneNumber}
	var raw map[string]json.RawMessage
	if err := g.do(ctx, http.MethodPost, instancePath(instanceID, "request-pairing-code"), body, &raw); err != nil {
		return "", err
	}
	code := readString(raw, "code", "pairingCode", "pairing_code")
	if code == "" {
		return "", malformed("request-pairing-code", errors.New("no pairing code in response"))
	}
	return code, nil
}

// Logout implements Gateway.
func (g *HTTPGateway) Logout(ctx context.Context, instanceID string) error {
	return g.do(ctx, http.MethodPost, instancePath(instanceID, "logout"), nil, nil)
}

// Reboot implements Gateway.
func (g *HTTPGateway) Reboot(ctx context.Context, instanceID string) error {
	return g.do(ctx, http.MethodPost, instancePath(instanceID, "reboot"), nil, nil)
}

func instancePath(instanceID, action string) string {
	return "/instances/" + url.PathEscape(instanceID) + "/" + action
}

// retry re-runs an idempotent call on transport failures and 5xx answers.
func (g *HTTPGateway) retry(ctx context.Context, op func() error) error {
	if g.retries == 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, g.retries), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.Is(err, ErrMalformedResponse) || (errors.As(err, &statusErr) && statusErr.StatusCode < 500) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, d time.Duration) {
		g.logger.Warn("retrying gateway call", "error", err, "after", d)
	})
}

func (g *HTTPGateway) do(ctx context.Context, method, endpoint string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("User-Agent", "wa-dashboard/gateway-client")

	label := endpointLabel(endpoint)
	start := time.Now()
	res, err := g.http.Do(req)
	if err != nil {
		g.observe(label, "error", start)
		return fmt.Errorf("gateway %s: %w: %v", label, apperrors.ErrGatewayCall, err)
	}
	defer res.Body.Close()
	g.observe(label, strconv.Itoa(res.StatusCode), start)

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("gateway %s: %w: read response: %v", label, apperrors.ErrGatewayCall, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Endpoint: label, StatusCode: res.StatusCode, Body: snippet(bodyBytes)}
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return malformed(label, err)
	}
	return nil
}

func (g *HTTPGateway) observe(endpoint, status string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.GatewayRequests.WithLabelValues(gatewayLabel, endpoint, status).Inc()
	g.metrics.GatewayLatency.WithLabelValues(gatewayLabel, endpoint, status).Observe(time.Since(start).Seconds())
}

// endpointLabel drops the instance id so metric cardinality stays bounded.
func endpointLabel(endpoint string) string {
	if i := strings.LastIndex(endpoint, "/"); i >= 0 {
		return endpoint[i+1:]
	}
	return endpoint
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

func readString(raw map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		val, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(val, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if data, ok := raw["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(data, &nested); err == nil {
			return readString(nested, keys...)
		}
	}
	return ""
}
