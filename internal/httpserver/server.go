package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wa-dashboard/internal/auth"
	"wa-dashboard/internal/dashboard"
	"wa-dashboard/internal/license"
	"wa-dashboard/internal/metrics"
	"wa-dashboard/internal/payment"
	"wa-dashboard/internal/profile"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/resource"
	"wa-dashboard/internal/storage"
	"wa-dashboard/internal/theme"
)

// Options configure the listener and cookies.
type Options struct {
	Addr          string
	BasePath      string
	PublicBaseURL string
	CookieSecure  bool
	// StorageDir is served under /storage/ when files live on local disk.
	StorageDir string
}

// Services are the application services behind the routes.
type Services struct {
	Auth       *auth.Service
	OAuth      *auth.OAuth
	Coupons    *resource.Service[repo.Coupon]
	Procedures *resource.Service[repo.Procedure]
	Problems   *resource.Service[repo.Problem]
	BotInfo    *resource.BotInfo
	Dashboard  *dashboard.Aggregator
	Licenses   *license.Service
	Payments   *payment.Service
	Profiles   *profile.Service
	Uploader   *storage.Uploader
	Theme      *theme.Rotator
	// Idempotency deduplicates mutation requests. Nil disables it.
	Idempotency Claimer
}

// Server wraps an http.Server with the dashboard routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	svc        Services
	opts       Options
	basePath   string
	now        func() time.Time
}

// New creates the HTTP server with API, auth, health and metrics routes.
func New(opts Options, svc Services, logger *slog.Logger, metricRegistry *metrics.Metrics) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		svc:      svc,
		opts:     opts,
		basePath: normaliseBasePath(opts.BasePath),
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	if opts.StorageDir != "" {
		mux.Handle("GET /storage/", http.StripPrefix("/storage/", http.FileServer(http.Dir(opts.StorageDir))))
	}
	server.routes(mux)

	handler := server.recoverer(server.accessLog(mountWithBasePath(server.basePath, mux)))

	server.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes(mux *http.ServeMux) {
	// auth
	mux.HandleFunc("POST /auth/sign-up", s.handleSignUp)
	mux.HandleFunc("POST /auth/sign-in", s.handleSignIn)
	mux.HandleFunc("GET /auth/oauth/{provider}", s.handleOAuthStart)
	mux.HandleFunc("GET /auth/oauth/{provider}/callback", s.handleOAuthCallback)
	mux.Handle("POST /auth/sign-out", s.authed(s.handleSignOut))
	mux.Handle("GET /api/session", s.authed(s.handleSession))

	// resources
	now := s.now
	mountResource(s, mux, "/api/coupons", s.svc.Coupons,
		func() resource.Form[repo.Coupon] { return &resource.CouponForm{} },
		func(c repo.Coupon) resource.CouponItem { return resource.NewCouponItem(c, now()) })
	mountResource(s, mux, "/api/procedures", s.svc.Procedures,
		func() resource.Form[repo.Procedure] { return &resource.ProcedureForm{} },
		resource.NewProcedureItem)
	mountResource(s, mux, "/api/problems", s.svc.Problems,
		func() resource.Form[repo.Problem] { return &resource.ProblemForm{} },
		resource.NewProblemItem)

	mux.Handle("GET /api/bot-info", s.authed(s.handleBotInfoList))
	mux.Handle("POST /api/bot-info/{type}", s.authed(s.idempotent(s.handleBotInfoUpsert)))
	mux.Handle("PUT /api/bot-info/{type}/{id}", s.authed(s.idempotent(s.handleBotInfoUpsert)))
	mux.Handle("DELETE /api/bot-info/{type}/{id}", s.authed(s.handleBotInfoDelete))

	mux.Handle("GET /api/dashboard", s.authed(s.handleDashboard))

	// licenses
	mux.Handle("GET /api/licenses", s.authed(s.handleLicenseList))
	mux.Handle("POST /api/licenses", s.authed(s.idempotent(s.handleLicenseCreate)))
	mux.Handle("POST /api/licenses/{id}/qr", s.authed(s.handleLicenseQR))
	mux.Handle("POST /api/licenses/{id}/pairing-code", s.authed(s.handleLicensePairing))
	mux.Handle("POST /api/licenses/{id}/logout", s.authed(s.handleLicenseLogout))
	mux.Handle("POST /api/licenses/{id}/reboot", s.authed(s.handleLicenseReboot))

	// payments
	mux.Handle("POST /api/payments/checkout", s.authed(s.idempotent(s.handleCheckout)))
	mux.Handle("POST /api/payments/return", s.authed(s.handlePaymentReturnJSON))
	mux.Handle("GET /payments/return", s.authed(s.handlePaymentReturnRedirect))

	// profile and files
	mux.Handle("POST /api/uploads", s.authed(s.handleUpload))
	mux.Handle("GET /api/profile", s.authed(s.handleProfileGet))
	mux.Handle("PUT /api/profile", s.authed(s.handleProfileUpdate))
	mux.Handle("POST /api/profile/photo", s.authed(s.handleProfilePhoto))

	// theme
	mux.HandleFunc("GET /api/theme", s.handleThemeGet)
	mux.HandleFunc("PUT /api/theme", s.handleThemeSet)
	mux.HandleFunc("GET /api/backgrounds", s.handleBackgrounds)
	mux.HandleFunc("GET /api/backgrounds/stream", s.handleBackgroundStream)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publicBaseURL is the externally visible origin plus base path.
func (s *Server) publicBaseURL(r *http.Request) string {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + s.basePath
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + s.basePath
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
