package http

import (
	"net/http"

	"github.com/google/uuid"
)

// SessionCookie names the cookie selecting a browser's recent-searches slot.
const SessionCookie = "dashboard_session"

// ensureSession returns the request's session id, issuing a new one when the
// cookie is missing or not a uuid. Call at most once per request.
func ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
