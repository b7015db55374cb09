package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/license"
	"wa-dashboard/internal/repo"
	"wa-dashboard/migrations"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubGateway struct {
	link string
	err  error
	reqs []CheckoutRequest
}

func (g *stubGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (string, error) {
	g.reqs = append(g.reqs, req)
	return g.link, g.err
}

type stubLicenses struct{ calls int }

func (l *stubLicenses) List(context.Context, string) ([]license.View, error) {
	l.calls++
	return []license.View{license.NewView(repo.License{ID: 1, InstanceID: "inst-1", Status: repo.LicenseConnected})}, nil
}

func newRepo(t *testing.T) (*repo.Repository, string) {
	t.Helper()
	r, err := repo.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "payment.db"), discard, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.NoError(t, r.RunMigrations(context.Background(), migrations.Files))
	op, err := r.CreateOperator(context.Background(), repo.Operator{Email: gofakeit.Email(), Provider: "password"}, "Operator")
	require.NoError(t, err)
	return r, op.ID
}

func TestNewOrderIDIsUniquePerAttempt(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a, b := NewOrderID(now), NewOrderID(now)
	assert.True(t, strings.HasPrefix(a, "order_1700000000000_"))
	assert.NotEqual(t, a, b)
}

func TestStartCheckout(t *testing.T) {
	r, owner := newRepo(t)
	gw := &stubGateway{link: "https://pay.example.com/s/abc"}
	svc := NewService(r, gw, &stubLicenses{}, Options{ShopName: "Shop", Message: "Licence", DefaultPrice: 5000}, discard, nil)

	co, err := svc.StartCheckout(context.Background(), owner, 0, "https://dash.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/s/abc", co.RedirectURL)

	require.Len(t, gw.reqs, 1)
	req := gw.reqs[0]
	assert.Equal(t, int64(5000), req.Amount)
	assert.Equal(t, co.OrderID, req.OrderID)
	assert.Equal(t, "https://dash.example.com/payments/return?orderId="+co.OrderID+"&success=true", req.SuccessURL)
	assert.Equal(t, "https://dash.example.com/payments/return?failure=true&orderId="+co.OrderID, req.FailureURL)

	order, err := r.GetPaymentOrder(context.Background(), owner, co.OrderID)
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentPending, order.Status)
	assert.Equal(t, co.RedirectURL, order.Link)
}

func TestStartCheckoutGatewayFailureMarksOrderFailed(t *testing.T) {
	r, owner := newRepo(t)
	gw := &stubGateway{err: apperrors.ErrPaymentNoLink}
	svc := NewService(r, gw, &stubLicenses{}, Options{DefaultPrice: 5000}, discard, nil)

	_, err := svc.StartCheckout(context.Background(), owner, 0, "https://dash.example.com")
	require.ErrorIs(t, err, apperrors.ErrPaymentNoLink)

	order, err := r.GetPaymentOrder(context.Background(), owner, gw.reqs[0].OrderID)
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentFailed, order.Status)
}

func TestHandleReturnSettlesExactlyOnce(t *testing.T) {
	r, owner := newRepo(t)
	_, err := r.InsertPaymentOrder(context.Background(), repo.PaymentOrder{OrderID: "order_123", OwnerID: owner, Amount: 5000})
	require.NoError(t, err)
	lic := &stubLicenses{}
	svc := NewService(r, &stubGateway{}, lic, Options{}, discard, nil)

	returnURL := "https://dash.example.com/licenses?tab=main&success=true&orderId=order_123"
	res, err := svc.HandleReturn(context.Background(), owner, returnURL)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "https://dash.example.com/licenses?tab=main", res.CleanURL)
	assert.Len(t, res.Licenses, 1)

	p, err := r.GetProfile(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, p.IsSolvent)

	again, err := svc.HandleReturn(context.Background(), owner, returnURL)
	require.NoError(t, err)
	assert.False(t, again.Settled)
	assert.Equal(t, 2, lic.calls)

	order, err := r.GetPaymentOrder(context.Background(), owner, "order_123")
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentPaid, order.Status)
}

func TestHandleReturnFailure(t *testing.T) {
	r, owner := newRepo(t)
	_, err := r.InsertPaymentOrder(context.Background(), repo.PaymentOrder{OrderID: "order_9", OwnerID: owner, Amount: 5000})
	require.NoError(t, err)
	svc := NewService(r, &stubGateway{}, &stubLicenses{}, Options{}, discard, nil)

	res, err := svc.HandleReturn(context.Background(), owner, "https://dash.example.com/?failure=true&orderId=order_9")
	require.ErrorIs(t, err, apperrors.ErrPaymentStatus)
	assert.Equal(t, "https://dash.example.com/", res.CleanURL)

	p, err := r.GetProfile(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, p.IsSolvent)
}

func TestHandleReturnUnknownOrder(t *testing.T) {
	r, owner := newRepo(t)
	svc := NewService(r, &stubGateway{}, &stubLicenses{}, Options{}, discard, nil)

	_, err := svc.HandleReturn(context.Background(), owner, "https://dash.example.com/?success=true&orderId=order_x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHandleReturnWithoutPaymentParams(t *testing.T) {
	svc := NewService(nil, &stubGateway{}, &stubLicenses{}, Options{}, discard, nil)

	res, err := svc.HandleReturn(context.Background(), "owner", "https://dash.example.com/licenses?tab=x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, res.Outcome)
	assert.Equal(t, "https://dash.example.com/licenses?tab=x", res.CleanURL)
}

func TestCleanURL(t *testing.T) {
	u, err := url.Parse("/licenses?orderId=o&success=true&failure=1&keep=me")
	require.NoError(t, err)
	assert.Equal(t, "/licenses?keep=me", CleanURL(u))
}

func TestClientErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"non ok status", http.StatusBadRequest, `{"message":"amount too low"}`, apperrors.ErrPaymentStatus},
		{"unparsable body", http.StatusOK, `not json`, apperrors.ErrPaymentDecode},
		{"missing link", http.StatusOK, `{"id":"s_1"}`, apperrors.ErrPaymentNoLink},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "k"}, discard, nil)
			_, err := c.CreateCheckout(context.Background(), CheckoutRequest{OrderID: "o"})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestClientMissingKeyAndTransport(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"}, discard, nil).CreateCheckout(context.Background(), CheckoutRequest{})
	assert.ErrorIs(t, err, apperrors.ErrPaymentConfig)

	_, err = NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k"}, discard, nil).CreateCheckout(context.Background(), CheckoutRequest{})
	assert.ErrorIs(t, err, apperrors.ErrPaymentTransport)
}

func TestClientSendsAPIKeyAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gateway", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Shop-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "order_1", body["order_id"])
		assert.Equal(t, "Shop", body["shop_name"])
		_, _ = io.WriteString(w, `{"link":"https://pay.example.com/x"}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "secret", APIKeyHeader: "X-Shop-Key"}, discard, nil)
	link, err := c.CreateCheckout(context.Background(), CheckoutRequest{OrderID: "order_1", ShopName: "Shop", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/x", link)
}
