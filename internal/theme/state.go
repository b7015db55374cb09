package theme

import (
	"net/http"
	"time"

	"wa-dashboard/internal/repo"
)

// CookieName holds the operator's theme choice.
const CookieName = "theme"

// State is the theme of one request.
type State struct {
	Mode       string               `json:"mode"`
	Background *repo.BackgroundImage `json:"background,omitempty"`
}

// ParseMode returns mode when it names a theme and light otherwise.
func ParseMode(mode string) (string, bool) {
	switch mode {
	case repo.ThemeLight, repo.ThemeDark:
		return mode, true
	default:
		return repo.ThemeLight, false
	}
}

// FromRequest derives the theme state from the theme cookie.
func (r *Rotator) FromRequest(req *http.Request) State {
	mode := repo.ThemeLight
	if c, err := req.Cookie(CookieName); err == nil {
		mode, _ = ParseMode(c.Value)
	}
	return r.StateFor(mode)
}

// StateFor returns the state of mode with its current background.
func (r *Rotator) StateFor(mode string) State {
	st := State{Mode: mode}
	if img, ok := r.Current(mode); ok {
		st.Background = &img
	}
	return st
}

// SetCookie remembers mode for a year.
func SetCookie(w http.ResponseWriter, mode string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    mode,
		Path:     "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
