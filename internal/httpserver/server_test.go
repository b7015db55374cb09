package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa-dashboard/internal/auth"
	"wa-dashboard/internal/dashboard"
	"wa-dashboard/internal/license"
	"wa-dashboard/internal/payment"
	"wa-dashboard/internal/profile"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/resource"
	"wa-dashboard/internal/storage"
	"wa-dashboard/internal/theme"
	"wa-dashboard/internal/wa"
	"wa-dashboard/migrations"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubWA struct{}

func (stubWA) QRCode(context.Context, string) (*wa.QRCode, error) {
	return &wa.QRCode{Code: "2@abc"}, nil
}

func (stubWA) RequestPairingCode(context.Context, string, string) (string, error) {
	return "ABCD-EFGH", nil
}

func (stubWA) Logout(context.Context, string) error { return nil }
func (stubWA) Reboot(context.Context, string) error { return nil }

type stubCheckout struct{}

func (stubCheckout) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (string, error) {
	return "https://pay.example.com/s/" + req.OrderID, nil
}

type memClaimer struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memClaimer) ClaimOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memClaimer) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

type harness struct {
	t       *testing.T
	handler http.Handler
	repo    *repo.Repository
	cookie  *http.Cookie
	owner   string
}

func newHarness(t *testing.T, basePath string) *harness {
	t.Helper()
	ctx := context.Background()
	r, err := repo.NewSQLite(ctx, filepath.Join(t.TempDir(), "http.db"), discard, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.NoError(t, r.RunMigrations(ctx, migrations.Files))
	_, err = r.AddBackground(ctx, "/bg/dark.jpg", repo.ThemeDark)
	require.NoError(t, err)

	agg, err := dashboard.New([]dashboard.Source{r.Coupons(), r.Licenses()}, 2, discard, nil)
	require.NoError(t, err)
	t.Cleanup(agg.Close)

	bucket, err := storage.NewLocalBucket(t.TempDir(), "/storage")
	require.NoError(t, err)
	uploader := storage.NewUploader(bucket, discard, nil)

	rotator := theme.NewRotator(r, time.Minute, discard)
	require.NoError(t, rotator.Reload(ctx))

	licenses := license.NewService(r.Licenses(), r, stubWA{}, license.Options{}, discard, nil)
	svc := Services{
		Auth:       auth.NewService(r, auth.NewSessions([]byte("http-test"), time.Hour), nil, discard),
		Coupons:    resource.NewService[repo.Coupon](r.Coupons(), nil, 0, resource.MatchCoupon(time.Now), discard),
		Procedures: resource.NewService[repo.Procedure](r.Procedures(), nil, 0, resource.MatchProcedure, discard),
		Problems:   resource.NewService[repo.Problem](r.Problems(), nil, 0, resource.MatchProblem, discard),
		BotInfo: &resource.BotInfo{
			Promos:   resource.NewService[repo.PromoCode](r.PromoCodes(), nil, 0, nil, discard),
			Links:    resource.NewService[repo.UsefulLink](r.UsefulLinks(), nil, 0, nil, discard),
			Examples: resource.NewService[repo.ConversationExample](r.ConversationExamples(), nil, 0, nil, discard),
			Rules:    resource.NewService[repo.BotRule](r.BotRules(), nil, 0, nil, discard),
		},
		Dashboard:   agg,
		Licenses:    licenses,
		Payments:    payment.NewService(r, stubCheckout{}, licenses, payment.Options{ShopName: "Shop", DefaultPrice: 5000}, discard, nil),
		Profiles:    profile.NewService(r, uploader, discard),
		Uploader:    uploader,
		Theme:       rotator,
		Idempotency: &memClaimer{seen: map[string]bool{}},
	}
	srv := New(Options{BasePath: basePath, PublicBaseURL: "https://dash.example.com"}, svc, discard, nil)
	return &harness{t: t, handler: srv.Handler(), repo: r}
}

func (h *harness) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) signUp(prefix string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, prefix+"/auth/sign-up", map[string]string{
		"email":    gofakeit.Email(),
		"password": "correct horse battery",
		"name":     "Operator One",
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			h.cookie = c
		}
	}
	require.NotNil(h.t, h.cookie)
	var sess sessionResponse
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &sess))
	h.owner = sess.OperatorID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, rec)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, "")
	rec := h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIRequiresSession(t *testing.T) {
	h := newHarness(t, "")
	rec := h.do(http.MethodGet, "/api/coupons", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorOf(t, rec)["kind"])
}

func TestCouponLifecycle(t *testing.T) {
	h := newHarness(t, "")
	h.signUp("")

	rec := h.do(http.MethodPost, "/api/coupons", map[string]string{
		"title":              "Summer sale",
		"visual_description": "Yellow banner with a sun",
		"code":               "sun10",
		"expiry_day":         "2099-06-30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "SUN10", created["code"])
	assert.Equal(t, "2099-06-30", created["expiry_day"])
	assert.Equal(t, false, created["expired"])
	id := int64(created["id"].(float64))

	rec = h.do(http.MethodPut, "/api/coupons/"+jsonID(id), map[string]string{
		"title":              "Summer sale ends",
		"visual_description": "Yellow banner with a sun",
		"code":               "SUN10",
		"expiry_day":         "2099-07-15",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/coupons?q=ends", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Summer sale ends", items[0].(map[string]any)["title"])

	rec = h.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tiles := decodeBody(t, rec)["tiles"].([]any)
	require.Len(t, tiles, 2)
	assert.Equal(t, float64(1), tiles[0].(map[string]any)["count"])

	rec = h.do(http.MethodDelete, "/api/coupons/"+jsonID(id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodDelete, "/api/coupons/"+jsonID(id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationErrorListsFields(t *testing.T) {
	h := newHarness(t, "")
	h.signUp("")

	rec := h.do(http.MethodPost, "/api/procedures", map[string]string{"title": "ab"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := errorOf(t, rec)
	assert.Equal(t, "validation", e["kind"])
	fields := e["fields"].(map[string]any)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "description")

	rec = h.do(http.MethodPost, "/api/procedures", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIdempotencyKeyReusableAfterFailedSubmit(t *testing.T) {
	h := newHarness(t, "")
	h.signUp("")

	rec := h.do(http.MethodPost, "/api/coupons", map[string]string{"title": "x"}, "Idempotency-Key", "dlg-1")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	form := map[string]string{
		"title":              "Winter sale",
		"visual_description": "Blue banner with snow",
		"code":               "SNOW5",
		"expiry_day":         "2099-12-31",
	}
	rec = h.do(http.MethodPost, "/api/coupons", form, "Idempotency-Key", "dlg-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/coupons", form, "Idempotency-Key", "dlg-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorOf(t, rec)["kind"])
}

func TestBotInfoRoutes(t *testing.T) {
	h := newHarness(t, "")
	h.signUp("")

	rec := h.do(http.MethodPost, "/api/bot-info/rule", map[string]string{"rule": "Always answer in French"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/bot-info?type=rule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "rule", items[0].(map[string]any)["type"])

	rec = h.do(http.MethodPost, "/api/bot-info/weather", map[string]string{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLicenseGatewayRoutes(t *testing.T) {
	h := newHarness(t, "")
	h.signUp("")

	rec := h.do(http.MethodPost, "/api/licenses", map[string]string{"instance_id": "inst-42", "label": "Shop"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(decodeBody(t, rec)["id"].(float64))

	rec = h.do(http.MethodPost, "/api/licenses/"+jsonID(id)+"/qr", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "2@abc", body["qr"].(map[string]any)["code"])
	assert.Equal(t, repo.LicenseConnecting, body["license"].(map[string]any)["status"])

	rec = h.do(http.MethodPost, "/api/licenses/"+jsonID(id)+"/pairing-code", map[string]string{"phone_number": "12"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorOf(t, rec)["fields"], "phone_number")

	rec = h.do(http.MethodPost, "/api/licenses/"+jsonID(id)+"/pairing-code", map[string]string{"phone_number": "+33 612 345 678"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ABCD-EFGH", decodeBody(t, rec)["code"])

	rec = h.do(http.MethodPost, "/api/licenses/"+jsonID(id)+"/reboot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repo.LicenseConnected, decodeBody(t, rec)["display_status"])
}

func TestCheckoutAndReturnRedirect(t *testing.T) {
	h := newHarness(t, "/dash")
	h.signUp("/dash")

	rec := h.do(http.MethodPost, "/dash/api/payments/checkout", nil, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var co payment.Checkout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &co))
	assert.Equal(t, "https://pay.example.com/s/"+co.OrderID, co.RedirectURL)

	rec = h.do(http.MethodPost, "/dash/api/payments/checkout", nil, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodGet, "/dash/payments/return?success=true&orderId="+co.OrderID+"&tab=licenses", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://dash.example.com/dash/payments/return?tab=licenses", rec.Header().Get("Location"))

	order, err := h.repo.GetPaymentOrder(context.Background(), h.owner, co.OrderID)
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentPaid, order.Status)

	rec = h.do(http.MethodPost, "/dash/api/payments/return", map[string]string{
		"url": "https://dash.example.com/dash/payments/return?success=true&orderId=" + co.OrderID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decodeBody(t, rec)["settled"])

	rec = h.do(http.MethodPost, "/dash/api/payments/return", map[string]string{
		"url": "https://dash.example.com/dash/payments/return?success=true&orderId=order_123",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "https://dash.example.com/dash/payments/return", decodeBody(t, rec)["result"].(map[string]any)["clean_url"])
}

func TestBasePathRejectsForeignPrefix(t *testing.T) {
	h := newHarness(t, "/dash")
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/dashboard/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/dash/healthz", nil).Code)
}

func TestProfilePhotoUpload(t *testing.T) {
	h := newHarness(t, "")
	h.signUp("")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/profile/photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(h.cookie)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	photo := decodeBody(t, rec)["photo_url"].(string)
	assert.True(t, strings.HasPrefix(photo, "/storage/"+h.owner+"/"), photo)

	rec = h.do(http.MethodPut, "/api/profile", map[string]string{"name": "Jo", "whatsapp_bot_number": "abc"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields := errorOf(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "whatsapp_bot_number")
}

func TestThemeCookie(t *testing.T) {
	h := newHarness(t, "")

	rec := h.do(http.MethodPut, "/api/theme", map[string]string{"mode": "dark"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "dark", body["mode"])
	assert.Equal(t, "/bg/dark.jpg", body["background"].(map[string]any)["image_url"])

	var themeCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == theme.CookieName {
			themeCookie = c
		}
	}
	require.NotNil(t, themeCookie)
	assert.Equal(t, "dark", themeCookie.Value)

	rec = h.do(http.MethodPut, "/api/theme", map[string]string{"mode": "neon"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBackgroundStreamSendsCurrentImage(t *testing.T) {
	h := newHarness(t, "")
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/backgrounds/stream?theme=dark", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "event: background")
	assert.Contains(t, string(buf[:n]), "/bg/dark.jpg")
}

func TestRecovererTurnsPanicIntoNotification(t *testing.T) {
	s := &Server{logger: discard}
	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "unexpected error, please try again", errorOf(t, rec)["message"])
}

func jsonID(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
