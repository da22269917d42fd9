// Package httpapi exposes the gateway over HTTP: the WebSocket endpoint,
// health and metrics, and a small read-only API over the directory and the
// message archive.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reelshare/dm-gateway/internal/history"
	"github.com/reelshare/dm-gateway/internal/metrics"
	"github.com/reelshare/dm-gateway/internal/profile"
)

// maxHistoryLimit caps the limit query parameter of the history endpoint.
const maxHistoryLimit = 200

// Deps are the services the routes read from. WebSocket and Archive may be
// nil, in which case their routes answer 503.
type Deps struct {
	Directory   profile.Directory
	Archive     history.Archive
	WebSocket   http.Handler
	Connections func() int
	StartedAt   time.Time
}

type api struct {
	deps Deps
}

// NewRouter wires every route.
func NewRouter(deps Deps) http.Handler {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	a := &api{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/ws", a.websocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Get("/contacts", a.listContacts)
		r.Get("/contacts/{contactID}", a.getContact)
		r.Get("/contacts/{contactID}/history", a.contactHistory)
		r.Get("/users/{username}", a.getUser)
	})

	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	conns := 0
	if a.deps.Connections != nil {
		conns = a.deps.Connections()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": conns,
		"uptime":      time.Since(a.deps.StartedAt).Round(time.Second).String(),
	})
}

func (a *api) websocket(w http.ResponseWriter, r *http.Request) {
	if a.deps.WebSocket == nil {
		respondError(w, http.StatusServiceUnavailable, "websocket unavailable")
		return
	}
	a.deps.WebSocket.ServeHTTP(w, r)
}

func (a *api) listContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := a.deps.Directory.Contacts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	if contacts == nil {
		contacts = []profile.Contact{}
	}
	respondJSON(w, http.StatusOK, contacts)
}

func (a *api) getContact(w http.ResponseWriter, r *http.Request) {
	contact, ok := a.lookupContact(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, contact)
}

func (a *api) contactHistory(w http.ResponseWriter, r *http.Request) {
	if a.deps.Archive == nil {
		respondError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		respondError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	contact, ok := a.lookupContact(w, r)
	if !ok {
		return
	}

	key := history.ConversationKey{UserID: user, ContactID: contact.ID}
	entries, err := a.deps.Archive.Recent(r.Context(), key, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"contact":  contact,
		"messages": entries,
	})
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.deps.Directory.UserByUsername(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, profile.ErrNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// lookupContact resolves {contactID}, writing the error response itself when
// it fails.
func (a *api) lookupContact(w http.ResponseWriter, r *http.Request) (profile.Contact, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "contactID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid contact id")
		return profile.Contact{}, false
	}

	contact, err := a.deps.Directory.Contact(r.Context(), id)
	if errors.Is(err, profile.ErrNotFound) {
		respondError(w, http.StatusNotFound, "contact not found")
		return profile.Contact{}, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load contact")
		return profile.Contact{}, false
	}
	return contact, true
}
