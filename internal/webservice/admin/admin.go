// Package admin implements the session-authenticated admin surface mounted at /admin.
//
// It offers a login form, HTML list and detail pages, and a JSON API to list, search, sort,
// filter and fetch aggregator records. Every route but the login and logout ones requires a
// valid session.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/periscope/aggregator-api/internal/models"
	"github.com/periscope/aggregator-api/internal/webservice/handlers"
	"github.com/periscope/aggregator-api/internal/webservice/metrics"
	"github.com/periscope/aggregator-api/internal/webservice/middleware"
	"github.com/periscope/aggregator-api/internal/webservice/session"
	"golang.org/x/time/rate"
)

const (
	loginPath = "/admin/login"
	indexPath = "/admin/"

	defaultLoginRate  = 0.2
	defaultLoginBurst = 5
)

// RecordStore is the read access the admin surface needs.
type RecordStore interface {
	List(ctx context.Context, q models.ListQuery) ([]models.AggregatorRecord, int64, error)
	Get(ctx context.Context, id string) (models.AggregatorRecord, error)
}

// Handler serves every /admin route.
type Handler struct {
	store    RecordStore
	creds    *Credentials
	sessions *session.Store
	limiter  *middleware.IPLimiter
	pages    pages

	mux *http.ServeMux
}

// New builds the admin surface over store.
func New(store RecordStore, cfg Config) (*Handler, error) {
	creds, err := NewCredentials(cfg)
	if err != nil {
		return nil, err
	}

	secret, err := SessionSecret(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	sessions, err := session.New(secret, session.WithTTL(cfg.SessionTTL), session.WithSecureCookie(cfg.SecureCookie))
	if err != nil {
		return nil, err
	}

	p, err := parsePages()
	if err != nil {
		return nil, err
	}

	loginRate, loginBurst := cfg.LoginRate, cfg.LoginBurst
	if loginRate <= 0 {
		loginRate = defaultLoginRate
	}
	if loginBurst <= 0 {
		loginBurst = defaultLoginBurst
	}

	h := &Handler{
		store:    store,
		creds:    creds,
		sessions: sessions,
		limiter:  middleware.New(rate.Limit(loginRate), loginBurst),
		pages:    p,
		mux:      http.NewServeMux(),
	}

	route := func(pattern string, f http.HandlerFunc) {
		h.mux.Handle(pattern, metrics.HandlerApplyLabels(f))
	}

	route("GET /admin", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, indexPath, http.StatusMovedPermanently)
	})
	route("GET "+loginPath, h.loginForm)
	route("POST "+loginPath, h.login)
	route("/admin/logout", h.logout)

	route("GET /admin/{$}", h.page(h.listPage))
	route("GET /admin/aggregator-data/{id}", h.page(h.detailPage))
	route("/admin/", h.page(http.NotFound))

	route("GET /admin/api/aggregator-data", h.api(h.listRecords))
	route("GET /admin/api/aggregator-data/{id}", h.api(h.getRecord))
	route("/admin/api/", h.api(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "Not found")
	}))

	slog.Info("Admin surface configured", "admin", cfg)
	return h, nil
}

// ServeHTTP dispatches to the admin routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type userKey struct{}

// page requires a session, sending anonymous visitors to the login form.
func (h *Handler) page(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.sessions.User(r)
		if !ok {
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

// api requires a session, answering 401 to anonymous clients.
func (h *Handler) api(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.sessions.User(r)
		if !ok {
			handlers.WriteError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func userFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.User(r); ok {
		http.Redirect(w, r, indexPath, http.StatusSeeOther)
		return
	}
	render(w, http.StatusOK, h.pages.login, loginPage{})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(r) {
		slog.Warn("Admin login rate limited", "remote", r.RemoteAddr)
		handlers.WriteError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	if err := r.ParseForm(); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "Invalid login form")
		return
	}

	username := r.PostForm.Get("username")
	if !h.creds.Verify(username, r.PostForm.Get("password")) {
		slog.Warn("Failed admin login", "username", username, "remote", r.RemoteAddr)
		handlers.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.sessions.Create(w, username); err != nil {
		slog.Error("Failed to create admin session", "err", err)
		handlers.WriteError(w, http.StatusInternalServerError, "Could not create session")
		return
	}

	slog.Info("Admin logged in", "username", username, "remote", r.RemoteAddr)
	http.Redirect(w, r, indexPath, http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if user, ok := h.sessions.User(r); ok {
		slog.Info("Admin logged out", "username", user)
	}
	h.sessions.Destroy(w, r)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request) {
	q, err := models.ParseListQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, total, err := h.store.List(r.Context(), q)
	if err != nil {
		slog.Error("Failed to list records", "err", err)
		http.Error(w, "Failed to list records", http.StatusInternalServerError)
		return
	}

	render(w, http.StatusOK, h.pages.list, newListPage(userFrom(r.Context()), q, records, total))
}

func (h *Handler) detailPage(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, http.StatusText(statusFor(err)), statusFor(err))
		return
	}

	render(w, http.StatusOK, h.pages.detail, detailPage{User: userFrom(r.Context()), Record: record.AdminView()})
}

type listResponse struct {
	Items []models.AdminView `json:"items"`
	Total int64              `json:"total"`
	Skip  int64              `json:"skip"`
	Limit int64              `json:"limit"`
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	q, err := models.ParseListQuery(r.URL.Query())
	if err != nil {
		handlers.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, total, err := h.store.List(r.Context(), q)
	if err != nil {
		slog.Error("Failed to list records", "err", err)
		handlers.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]models.AdminView, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.AdminView())
	}
	handlers.WriteJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Skip: q.Skip, Limit: q.Limit})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			slog.Error("Failed to get record", "id", r.PathValue("id"), "err", err)
		}
		handlers.WriteError(w, status, err.Error())
		return
	}

	handlers.WriteJSON(w, http.StatusOK, record.AdminView())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
