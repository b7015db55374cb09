// Package payment runs the license checkout: it opens a gateway session
// and settles the order when the browser comes back.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/license"
	"wa-dashboard/internal/metrics"
	"wa-dashboard/internal/repo"
)

// Query parameters of the return trip.
const (
	ParamSuccess = "success"
	ParamFailure = "failure"
	ParamOrderID = "orderId"
)

// Orders persists checkout attempts.
type Orders interface {
	InsertPaymentOrder(ctx context.Context, order repo.PaymentOrder) (*repo.PaymentOrder, error)
	SetPaymentOrderLink(ctx context.Context, ownerID, orderID, link string) error
	GetPaymentOrder(ctx context.Context, ownerID, orderID string) (*repo.PaymentOrder, error)
	SettlePaymentOrder(ctx context.Context, ownerID, orderID string) (bool, error)
	FailPaymentOrder(ctx context.Context, ownerID, orderID string) (bool, error)
}

// Gateway opens checkout sessions.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// Licenses reloads the operator's licenses after a successful payment.
type Licenses interface {
	List(ctx context.Context, ownerID string) ([]license.View, error)
}

// Options carry the checkout defaults.
type Options struct {
	ShopName     string
	Message      string
	DefaultPrice int64
	ReturnPath   string
}

// Service is the checkout orchestrator.
type Service struct {
	orders   Orders
	gateway  Gateway
	licenses Licenses
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService wires the orchestrator. m may be nil.
func NewService(orders Orders, gateway Gateway, licenses Licenses, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	if opts.ReturnPath == "" {
		opts.ReturnPath = "/payments/return"
	}
	return &Service{
		orders:   orders,
		gateway:  gateway,
		licenses: licenses,
		opts:     opts,
		logger:   logger.With("component", "payment"),
		metrics:  m,
		now:      time.Now,
	}
}

// Checkout is a started checkout.
type Checkout struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

// NewOrderID returns order_<unixmillis>_<random>.
func NewOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return "order_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// StartCheckout records a pending order and opens a gateway session.
// publicBaseURL is the externally reachable origin the gateway sends the
// browser back to. A non-positive amount uses the default license price.
func (s *Service) StartCheckout(ctx context.Context, ownerID string, amount int64, publicBaseURL string) (*Checkout, error) {
	if amount <= 0 {
		amount = s.opts.DefaultPrice
	}
	if amount <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive: %w", apperrors.ErrValidation)
	}
	orderID := NewOrderID(s.now())
	returnURL := strings.TrimRight(publicBaseURL, "/") + s.opts.ReturnPath

	if _, err := s.orders.InsertPaymentOrder(ctx, repo.PaymentOrder{OrderID: orderID, OwnerID: ownerID, Amount: amount}); err != nil {
		s.count("checkout", "store_error")
		return nil, err
	}

	link, err := s.gateway.CreateCheckout(ctx, CheckoutRequest{
		Amount:     amount,
		ShopName:   s.opts.ShopName,
		Message:    s.opts.Message,
		SuccessURL: withParams(returnURL, ParamSuccess, orderID),
		FailureURL: withParams(returnURL, ParamFailure, orderID),
		OrderID:    orderID,
	})
	if err != nil {
		s.logger.Error("checkout failed", "order", orderID, "error", err)
		s.count("checkout", apperrors.Kind(err))
		if _, ferr := s.orders.FailPaymentOrder(ctx, ownerID, orderID); ferr != nil {
			s.logger.Warn("marking order failed", "order", orderID, "error", ferr)
		}
		return nil, err
	}
	if err := s.orders.SetPaymentOrderLink(ctx, ownerID, orderID, link); err != nil {
		s.logger.Warn("saving checkout link failed", "order", orderID, "error", err)
	}
	s.logger.Info("checkout started", "order", orderID, "amount", amount)
	s.count("checkout", "ok")
	return &Checkout{OrderID: orderID, RedirectURL: link}, nil
}

// Return outcomes.
const (
	OutcomeNone    = "none"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ReturnResult describes a processed return trip.
type ReturnResult struct {
	Outcome string `json:"outcome"`
	OrderID string `json:"order_id,omitempty"`
	// Settled is true only for the call that marked the order paid.
	Settled bool `json:"settled"`
	// CleanURL is the return URL without the payment parameters.
	CleanURL string         `json:"clean_url"`
	Licenses []license.View `json:"licenses,omitempty"`
}

// HandleReturn finalises the order named in returnURL. The result, and in
// particular CleanURL, is returned even when err is non-nil.
func (s *Service) HandleReturn(ctx context.Context, ownerID, returnURL string) (*ReturnResult, error) {
	u, err := url.Parse(returnURL)
	if err != nil {
		return &ReturnResult{Outcome: OutcomeNone, CleanURL: returnURL}, fmt.Errorf("parse return url: %w", apperrors.ErrValidation)
	}
	q := u.Query()
	res := &ReturnResult{Outcome: OutcomeNone, OrderID: q.Get(ParamOrderID), CleanURL: CleanURL(u)}

	switch {
	case flag(q, ParamSuccess):
		res.Outcome = OutcomeSuccess
	case flag(q, ParamFailure):
		res.Outcome = OutcomeFailure
	default:
		return res, nil
	}
	if res.OrderID == "" {
		return res, fmt.Errorf("payment return without %s: %w", ParamOrderID, apperrors.ErrValidation)
	}

	if res.Outcome == OutcomeFailure {
		if _, err := s.orders.FailPaymentOrder(ctx, ownerID, res.OrderID); err != nil {
			s.logger.Warn("marking order failed", "order", res.OrderID, "error", err)
		}
		s.count("return", "failure")
		return res, fmt.Errorf("payment %s was not completed: %w", res.OrderID, apperrors.ErrPaymentStatus)
	}

	settled, err := s.orders.SettlePaymentOrder(ctx, ownerID, res.OrderID)
	if err != nil {
		s.count("return", "store_error")
		return res, err
	}
	if !settled {
		// Either a refresh of an already settled order or an unknown one.
		order, err := s.orders.GetPaymentOrder(ctx, ownerID, res.OrderID)
		if err != nil {
			return res, err
		}
		if order.Status != repo.PaymentPaid {
			return res, fmt.Errorf("payment %s is %s: %w", res.OrderID, order.Status, apperrors.ErrConflict)
		}
		s.count("return", "duplicate")
	} else {
		s.logger.Info("payment settled", "order", res.OrderID, "operator", ownerID)
		s.count("return", "ok")
	}
	res.Settled = settled

	licenses, err := s.licenses.List(ctx, ownerID)
	if err != nil {
		s.logger.Warn("reloading licenses failed", "error", err)
	} else {
		res.Licenses = licenses
	}
	return res, nil
}

// CleanURL strips the payment parameters from u, keeping everything else.
func CleanURL(u *url.URL) string {
	c := *u
	q := c.Query()
	q.Del(ParamSuccess)
	q.Del(ParamFailure)
	q.Del(ParamOrderID)
	c.RawQuery = q.Encode()
	return c.String()
}

func withParams(base, outcome, orderID string) string {
	v := url.Values{}
	v.Set(outcome, "true")
	v.Set(ParamOrderID, orderID)
	return base + "?" + v.Encode()
}

func flag(q url.Values, key string) bool {
	if !q.Has(key) {
		return false
	}
	v := strings.ToLower(q.Get(key))
	return v == "" || v == "true" || v == "1"
}

func (s *Service) count(stage, outcome string) {
	if s.metrics != nil {
		s.metrics.PaymentOutcomes.WithLabelValues(stage, outcome).Inc()
	}
}

