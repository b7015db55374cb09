package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/auth"
	"wa-dashboard/internal/profile"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/storage"
	"wa-dashboard/internal/theme"
)

// formFile reads the "file" part of a multipart upload.
func formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, fmt.Errorf("file exceeds %d bytes: %w", storage.MaxUploadBytes, apperrors.ErrValidation)
		}
		return nil, nil, fmt.Errorf("missing file field: %w", apperrors.ErrValidation)
	}
	return file, header, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := formFile(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer file.Close()

	url, err := s.svc.Uploader.Upload(r.Context(), auth.OperatorID(r.Context()), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Profiles.Get(r.Context(), auth.OperatorID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var form profile.Form
	if err := decodeJSON(r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.svc.Profiles.Update(r.Context(), auth.OperatorID(r.Context()), form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfilePhoto(w http.ResponseWriter, r *http.Request) {
	file, header, err := formFile(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer file.Close()

	p, err := s.svc.Profiles.UploadPhoto(r.Context(), auth.OperatorID(r.Context()), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleThemeGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Theme.FromRequest(r))
}

func (s *Server) handleThemeSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	mode, ok := theme.ParseMode(body.Mode)
	if !ok {
		s.fail(w, r, fmt.Errorf("unknown theme %q: %w", body.Mode, apperrors.ErrValidation))
		return
	}
	theme.SetCookie(w, mode, s.opts.CookieSecure)
	writeJSON(w, http.StatusOK, s.svc.Theme.StateFor(mode))
}

func (s *Server) handleBackgrounds(w http.ResponseWriter, r *http.Request) {
	mode := s.svc.Theme.FromRequest(r).Mode
	if q := r.URL.Query().Get("theme"); q != "" {
		mode, _ = theme.ParseMode(q)
	}
	imgs := s.svc.Theme.Images(mode)
	if imgs == nil {
		imgs = []repo.BackgroundImage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"theme": mode, "items": imgs})
}

// handleBackgroundStream pushes the current background of the requested
// theme as server-sent events until the client goes away.
func (s *Server) handleBackgroundStream(w http.ResponseWriter, r *http.Request) {
	mode := s.svc.Theme.FromRequest(r).Mode
	if q := r.URL.Query().Get("theme"); q != "" {
		mode, _ = theme.ParseMode(q)
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("streaming unsupported", "error", err)
		return
	}

	updates, cancel := s.svc.Theme.Subscribe(mode)
	defer cancel()
	for {
		select {
		case <-r.Context().Done():
			return
		case img, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(img)
			if err != nil {
				s.logger.Error("encoding background", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: background\ndata: %s\n\n", payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
