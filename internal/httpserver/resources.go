package httpserver

import (
	"net/http"

	"wa-dashboard/internal/auth"
	"wa-dashboard/internal/botinfo"
	"wa-dashboard/internal/resource"
)

// mountResource registers list, create, update and delete routes of one
// owner-scoped collection.
func mountResource[T any, V any](s *Server, mux *http.ServeMux, prefix string, svc *resource.Service[T], newForm func() resource.Form[T], view func(T) V) {
	if svc == nil {
		return
	}

	mux.Handle("GET "+prefix, s.authed(func(w http.ResponseWriter, r *http.Request) {
		q := resource.Query{Search: r.URL.Query().Get("q"), Tab: r.URL.Query().Get("tab")}
		rows, err := svc.Search(r.Context(), auth.OperatorID(r.Context()), q)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		items := make([]V, 0, len(rows))
		for _, row := range rows {
			items = append(items, view(row))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}))

	upsert := func(w http.ResponseWriter, r *http.Request) {
		var existing *int64
		status := http.StatusCreated
		if raw := r.PathValue("id"); raw != "" {
			id, err := resource.ParseID(raw)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			existing = &id
			status = http.StatusOK
		}
		form := newForm()
		if err := decodeJSON(r, form); err != nil {
			s.fail(w, r, err)
			return
		}
		row, err := svc.Upsert(r.Context(), auth.OperatorID(r.Context()), form, existing)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, status, view(*row))
	}
	mux.Handle("POST "+prefix, s.authed(s.idempotent(upsert)))
	mux.Handle("PUT "+prefix+"/{id}", s.authed(upsert))

	mux.Handle("DELETE "+prefix+"/{id}", s.authed(func(w http.ResponseWriter, r *http.Request) {
		id, err := resource.ParseID(r.PathValue("id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := svc.Remove(r.Context(), auth.OperatorID(r.Context()), id); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (s *Server) handleBotInfoList(w http.ResponseWriter, r *http.Request) {
	q := resource.Query{Search: r.URL.Query().Get("q"), Tab: r.URL.Query().Get("type")}
	if q.Tab == "" {
		q.Tab = r.URL.Query().Get("tab")
	}
	items, err := s.svc.BotInfo.List(r.Context(), auth.OperatorID(r.Context()), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleBotInfoUpsert(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r.PathValue("type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var existing *int64
	status := http.StatusCreated
	if raw := r.PathValue("id"); raw != "" {
		id, err := resource.ParseID(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		existing = &id
		status = http.StatusOK
	}
	decode := func(form any) error { return decodeJSON(r, form) }
	item, err := s.svc.BotInfo.Upsert(r.Context(), auth.OperatorID(r.Context()), kind, decode, existing)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, item)
}

func (s *Server) handleBotInfoDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r.PathValue("type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := resource.ParseID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.BotInfo.Remove(r.Context(), auth.OperatorID(r.Context()), kind, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseKind(raw string) (botinfo.Kind, error) {
	kind, err := botinfo.ParseKind(raw)
	if err != nil {
		return "", notFound(err)
	}
	return kind, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tiles := s.svc.Dashboard.Summarize(r.Context(), auth.OperatorID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"tiles": tiles})
}
