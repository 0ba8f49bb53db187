package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	wsadapter "rankkit/adapters/websocket"
	"rankkit/core"
	"rankkit/engine"
	"rankkit/metrics"
	"rankkit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// RateLimitCleanup evicts client buckets idle for longer than this (0 keeps them).
	RateLimitCleanup time.Duration
	// Metrics, if set, records per-route request counts and latency.
	Metrics *metrics.Recorder
	// Logger receives 5xx responses (defaults to slog.Default()).
	Logger *slog.Logger
	// Extend registers additional routes under the prefix.
	Extend func(r *mux.Router)
}

const (
	defaultPageSize = 10
	defaultRadius   = 1
)

type api struct {
	svc    *engine.Service
	logger *slog.Logger
}

// NewMux builds an http.Handler exposing the leaderboard REST API and WebSocket stream.
// Routes:
//   - GET    {prefix}/healthz
//   - GET    {prefix}/boards
//   - GET    {prefix}/boards/{board}?page=1&size=10
//   - GET    {prefix}/boards/{board}/count
//   - DELETE {prefix}/boards/{board}
//   - PUT    {prefix}/boards/{board}/entries/{name}?score=100
//   - POST   {prefix}/boards/{board}/entries/{name}/delta?delta=5
//   - DELETE {prefix}/boards/{board}/entries/{name}
//   - GET    {prefix}/boards/{board}/entries/{name}
//   - GET    {prefix}/boards/{board}/entries/{name}/neighbors?radius=1
//   - WS     {prefix}/ws?board=weekly
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	a := &api{svc: svc, logger: opts.Logger}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	router := root
	if p := trimPrefix(opts.PathPrefix); p != "" {
		router = root.PathPrefix(p).Subrouter()
	}
	if opts.Metrics != nil {
		router.Use(withMetrics(opts.Metrics))
	}

	router.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	router.HandleFunc("/boards", a.listBoards).Methods(http.MethodGet)
	router.HandleFunc("/boards/{board}", a.page).Methods(http.MethodGet)
	router.HandleFunc("/boards/{board}", a.clear).Methods(http.MethodDelete)
	router.HandleFunc("/boards/{board}/count", a.count).Methods(http.MethodGet)
	router.HandleFunc("/boards/{board}/entries/{name}", a.scoreAndRank).Methods(http.MethodGet)
	router.HandleFunc("/boards/{board}/entries/{name}", a.setScore).Methods(http.MethodPut)
	router.HandleFunc("/boards/{board}/entries/{name}", a.remove).Methods(http.MethodDelete)
	router.HandleFunc("/boards/{board}/entries/{name}/delta", a.modifyScore).Methods(http.MethodPost)
	router.HandleFunc("/boards/{board}/entries/{name}/neighbors", a.neighbors).Methods(http.MethodGet)

	// WebSocket events
	if hub != nil {
		router.Handle("/ws", wsadapter.Handler(hub)).Methods(http.MethodGet)
	}
	if opts.Extend != nil {
		opts.Extend(router)
	}

	var handler http.Handler = root
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst, opts.RateLimitCleanup)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	return withRequestID(handler)
}

// health makes one store round trip per declared board.
func (a *api) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}
	code := http.StatusOK
	if err := a.svc.Ping(r.Context()); err != nil {
		a.logger.WarnContext(r.Context(), "health check failed", "error", err)
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	}
	writeJSONStatus(w, code, status)
}

func (a *api) listBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"boards": a.svc.Boards()})
}

func (a *api) page(w http.ResponseWriter, r *http.Request) {
	number, ok := intParam(w, r, "page", 1)
	if !ok {
		return
	}
	size, ok := intParam(w, r, "size", defaultPageSize)
	if !ok {
		return
	}
	p, err := a.svc.Page(r.Context(), mux.Vars(r)["board"], number, size)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, p)
}

func (a *api) count(w http.ResponseWriter, r *http.Request) {
	board := mux.Vars(r)["board"]
	n, err := a.svc.Count(r.Context(), board)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"board": board, "count": n})
}

func (a *api) clear(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Clear(r.Context(), mux.Vars(r)["board"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) scoreAndRank(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, found, err := a.svc.ScoreAndRank(r.Context(), vars["board"], vars["name"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "entry not found", map[string]string{"name": vars["name"]})
		return
	}
	writeJSON(w, e)
}

func (a *api) setScore(w http.ResponseWriter, r *http.Request) {
	score, ok := floatParam(w, r, "score")
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := a.svc.SetScore(r.Context(), vars["board"], vars["name"], score); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, core.Entry{Name: vars["name"], Score: score})
}

func (a *api) modifyScore(w http.ResponseWriter, r *http.Request) {
	delta, ok := floatParam(w, r, "delta")
	if !ok {
		return
	}
	vars := mux.Vars(r)
	score, err := a.svc.ModifyScore(r.Context(), vars["board"], vars["name"], delta)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, core.Entry{Name: vars["name"], Score: score})
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.svc.Remove(r.Context(), vars["board"], vars["name"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) neighbors(w http.ResponseWriter, r *http.Request) {
	radius, ok := intParam(w, r, "radius", defaultRadius)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	list, err := a.svc.Neighbors(r.Context(), vars["board"], vars["name"], radius)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"list": list})
}

// fail maps service errors onto the error envelope.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownBoard):
		writeError(w, http.StatusNotFound, "unknown_board", err.Error(), nil)
	case errors.Is(err, core.ErrEmptyName):
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidScore):
		writeError(w, http.StatusBadRequest, "invalid_score", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidBoardName):
		writeError(w, http.StatusBadRequest, "invalid_board", err.Error(), nil)
	case errors.Is(err, core.ErrMalformedRange):
		a.logger.ErrorContext(r.Context(), "store returned a malformed reply",
			"path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "store_invariant", "store returned a malformed reply", nil)
	default:
		a.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

// Helpers

func intParam(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+key, key+" must be an integer", nil)
		return 0, false
	}
	return v, true
}

func floatParam(w http.ResponseWriter, r *http.Request, key string) (float64, bool) {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err == nil {
		err = core.ValidateScore(v)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+key, key+" must be a number", nil)
		return 0, false
	}
	return v, true
}

func trimPrefix(prefix string) string {
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}
