package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/auth"
	"wa-dashboard/internal/license"
	"wa-dashboard/internal/payment"
	"wa-dashboard/internal/resource"
)

// NoticeCookie carries a one-shot message across the payment redirect.
const NoticeCookie = "notice"

func (s *Server) handleLicenseList(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Licenses.List(r.Context(), auth.OperatorID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (s *Server) handleLicenseCreate(w http.ResponseWriter, r *http.Request) {
	var form license.Form
	if err := decodeJSON(r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.svc.Licenses.Create(r.Context(), auth.OperatorID(r.Context()), form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleLicenseQR(w http.ResponseWriter, r *http.Request) {
	id, err := resource.ParseID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Licenses.RequestQR(r.Context(), auth.OperatorID(r.Context()), id)
	s.licenseResult(w, r, res, err)
}

func (s *Server) handleLicensePairing(w http.ResponseWriter, r *http.Request) {
	id, err := resource.ParseID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Licenses.RequestPairingCode(r.Context(), auth.OperatorID(r.Context()), id, body.PhoneNumber)
	s.licenseResult(w, r, res, err)
}

func (s *Server) handleLicenseLogout(w http.ResponseWriter, r *http.Request) {
	id, err := resource.ParseID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.svc.Licenses.Logout(r.Context(), auth.OperatorID(r.Context()), id)
	s.licenseResult(w, r, view, err)
}

func (s *Server) handleLicenseReboot(w http.ResponseWriter, r *http.Request) {
	id, err := resource.ParseID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.svc.Licenses.Reboot(r.Context(), auth.OperatorID(r.Context()), id)
	s.licenseResult(w, r, view, err)
}

// licenseResult shows the gateway outcome even when saving the new state
// failed afterwards.
func (s *Server) licenseResult(w http.ResponseWriter, r *http.Request, result any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, apperrors.ErrPersistence):
		s.partial(w, r, result, err)
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount int64 `json:"amount"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	checkout, err := s.svc.Payments.StartCheckout(r.Context(), auth.OperatorID(r.Context()), body.Amount, s.publicBaseURL(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkout)
}

// handlePaymentReturnJSON processes a return URL the client page loaded.
func (s *Server) handlePaymentReturnJSON(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Payments.HandleReturn(r.Context(), auth.OperatorID(r.Context()), body.URL)
	if err != nil {
		s.partial(w, r, res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePaymentReturnRedirect is the URL the gateway sends the browser to.
// It settles the order and redirects to the same page without the payment
// parameters, so a reload does not replay them.
func (s *Server) handlePaymentReturnRedirect(w http.ResponseWriter, r *http.Request) {
	full := s.publicBaseURL(r) + r.URL.RequestURI()
	res, err := s.svc.Payments.HandleReturn(r.Context(), auth.OperatorID(r.Context()), full)

	notice := ""
	switch {
	case err != nil:
		s.logFailure(r, apperrors.HTTPStatus(err), err)
		notice = apperrors.Notification(err)
	case res.Outcome == payment.OutcomeSuccess:
		notice = "Paiement confirmé"
	}
	if notice != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     NoticeCookie,
			Value:    url.QueryEscape(notice),
			Path:     "/",
			Expires:  time.Now().Add(time.Minute),
			Secure:   s.opts.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.Redirect(w, r, res.CleanURL, http.StatusSeeOther)
}
