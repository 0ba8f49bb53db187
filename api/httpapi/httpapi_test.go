package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	mem "rankkit/adapters/memory"
	"rankkit/core"
	"rankkit/engine"
	"rankkit/metrics"
)

func TestPage(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(handler, http.MethodGet, "/api/boards/weekly?page=2&size=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var page core.Page
	decode(t, rec, &page)
	if page.Page != 2 || page.MaxPage != 3 || page.Total != 5 {
		t.Fatalf("unexpected page header %+v", page)
	}
	if len(page.List) != 2 || page.List[0].Name != "scott" || page.List[0].Rank != 3 {
		t.Fatalf("unexpected list %+v", page.List)
	}
}

func TestPageDefaultsAndValidation(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(handler, http.MethodGet, "/api/boards/weekly", nil)
	var page core.Page
	decode(t, rec, &page)
	if page.Page != 1 || len(page.List) != 5 {
		t.Fatalf("unexpected default page %+v", page)
	}

	rec = do(handler, http.MethodGet, "/api/boards/weekly?size=lots", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScoreAndRank(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(handler, http.MethodGet, "/api/boards/weekly/entries/bryan", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var e core.RankedEntry
	decode(t, rec, &e)
	if e.Score != 250 || e.Rank != 2 {
		t.Fatalf("unexpected entry %+v", e)
	}

	rec = do(handler, http.MethodGet, "/api/boards/weekly/entries/nobody", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSetAndModifyScore(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(handler, http.MethodPut, "/api/boards/weekly/entries/alice?score=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(handler, http.MethodPost, "/api/boards/weekly/entries/alice/delta?delta=5.5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var e core.Entry
	decode(t, rec, &e)
	if e.Score != 15.5 {
		t.Fatalf("expected 15.5, got %v", e.Score)
	}

	rec = do(handler, http.MethodPut, "/api/boards/weekly/entries/alice?score=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = do(handler, http.MethodPut, "/api/boards/weekly/entries/alice?score=NaN", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for NaN, got %d", rec.Code)
	}
	for _, v := range []string{"Inf", "-Inf", "%2BInf", "1e400"} {
		rec = do(handler, http.MethodPut, "/api/boards/weekly/entries/alice?score="+v, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", v, rec.Code)
		}
		rec = do(handler, http.MethodPost, "/api/boards/weekly/entries/alice/delta?delta="+v, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for delta %s, got %d", v, rec.Code)
		}
	}
	rec = do(handler, http.MethodGet, "/api/boards/weekly/entries/alice", nil)
	decode(t, rec, &e)
	if e.Score != 15.5 {
		t.Fatalf("rejected writes changed the score to %v", e.Score)
	}
}

func TestWhitespaceNameIsDistinct(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, Options{})

	rec := do(handler, http.MethodPut, "/api/boards/weekly/entries/%20john?score=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var e core.Entry
	decode(t, rec, &e)
	if e.Name != " john" {
		t.Fatalf("expected name echoed byte-exact, got %q", e.Name)
	}
	n, _ := svc.Count(context.Background(), "weekly")
	if n != 6 {
		t.Fatalf("expected a sixth entry, got %d", n)
	}
}

func TestRemoveAndClear(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, Options{})

	rec := do(handler, http.MethodDelete, "/boards/weekly/entries/john", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	n, _ := svc.Count(context.Background(), "weekly")
	if n != 4 {
		t.Fatalf("expected 4 entries, got %d", n)
	}

	rec = do(handler, http.MethodDelete, "/boards/weekly", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = do(handler, http.MethodGet, "/boards/weekly/count", nil)
	var body map[string]any
	decode(t, rec, &body)
	if body["count"] != float64(0) {
		t.Fatalf("expected empty board, got %v", body)
	}
}

func TestNeighbors(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(handler, http.MethodGet, "/api/boards/weekly/entries/scott/neighbors?radius=1", nil)
	var body struct {
		List []core.RankedEntry `json:"list"`
	}
	decode(t, rec, &body)
	if len(body.List) != 3 || body.List[0].Name != "bryan" || body.List[2].Name != "eric" {
		t.Fatalf("unexpected neighbors %+v", body.List)
	}

	rec = do(handler, http.MethodGet, "/api/boards/weekly/entries/ghost/neighbors", nil)
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || len(body.List) != 0 {
		t.Fatalf("expected empty list, got %d %+v", rec.Code, body.List)
	}
}

func TestUnknownBoard(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(handler, http.MethodGet, "/api/boards/monthly", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var apiErr apiError
	decode(t, rec, &apiErr)
	if apiErr.Code != "unknown_board" {
		t.Fatalf("unexpected error code %q", apiErr.Code)
	}
}

func TestListBoardsAndHealth(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(handler, http.MethodGet, "/api/boards", nil)
	var body struct {
		Boards []engine.BoardInfo `json:"boards"`
	}
	decode(t, rec, &body)
	if len(body.Boards) != 1 || body.Boards[0].Name != "weekly" || body.Boards[0].Polarity != core.Descending {
		t.Fatalf("unexpected boards %+v", body.Boards)
	}

	rec = do(handler, http.MethodGet, "/api/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{})
	rec := do(handler, http.MethodPatch, "/boards/weekly", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	rec := do(handler, http.MethodGet, "/api/boards/weekly", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = do(handler, http.MethodGet, "/api/boards/weekly", map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(handler, http.MethodGet, "/api/boards/weekly?api_key=secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query key, got %d", rec.Code)
	}

	// preflight skips auth
	rec = do(handler, http.MethodOptions, "/api/boards/weekly", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PUT") {
		t.Fatalf("missing PUT in allowed methods")
	}
}

func TestRateLimit(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	hdr := map[string]string{"X-API-Key": "k"}
	if rec := do(handler, http.MethodGet, "/api/boards/weekly", hdr); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec.Code)
	}
	if rec := do(handler, http.MethodGet, "/api/boards/weekly", hdr); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	l := newRateLimiter(1, 1, time.Minute)
	now := time.Now()
	if !l.allow("a", now) {
		t.Fatal("first request should pass")
	}
	l.allow("b", now.Add(2*time.Minute))
	if _, ok := l.b["a"]; ok {
		t.Fatal("idle bucket was not evicted")
	}
}

func TestRequestID(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{})

	rec := do(handler, http.MethodGet, "/boards", nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
	rec = do(handler, http.MethodGet, "/boards", map[string]string{RequestIDHeader: "abc-123"})
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected caller id to be echoed, got %q", got)
	}
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	rec := metrics.New()
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api", Metrics: rec})

	do(handler, http.MethodGet, "/api/boards/weekly/entries/bryan", nil)
	do(handler, http.MethodGet, "/api/boards/weekly/entries/nobody", nil)

	scrape := httptest.NewRecorder()
	rec.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	if !strings.Contains(body, `route="/api/boards/{board}/entries/{name}"`) {
		t.Fatalf("route template missing from metrics:\n%s", body)
	}
	if !strings.Contains(body, `code="404"`) {
		t.Fatalf("404 not recorded:\n%s", body)
	}
}

func TestExtend(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{
		PathPrefix: "/api",
		Extend: func(r *mux.Router) {
			r.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, map[string]string{"pong": "ok"})
			}).Methods(http.MethodGet)
		},
	})
	if rec := do(handler, http.MethodGet, "/api/ping", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func do(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func newTestService(t *testing.T) *engine.Service {
	t.Helper()
	svc := engine.NewService(mem.NewRegistry(), engine.NewEventBus(engine.DispatchSync))
	ctx := context.Background()
	if _, err := svc.Declare(ctx, "weekly", core.Descending); err != nil {
		t.Fatal(err)
	}
	for name, score := range map[string]float64{
		"michael": 300, "bryan": 250, "scott": 200, "eric": 150, "john": 100,
	} {
		if err := svc.SetScore(ctx, "weekly", name, score); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(svc.Close)
	return svc
}
