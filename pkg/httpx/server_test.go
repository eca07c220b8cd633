package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	betls "github.com/Phantawat/BreatheEasy/pkg/tls"
)

func TestWriteErrorReason(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorReason(rec, http.StatusUnprocessableEntity, "insufficient_data", "need 7 rows")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "need 7 rows" || body.Reason != "insufficient_data" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestWriteError_OmitsEmptyReason(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, errors.New("bad"))
	if got := rec.Body.String(); got != "{\"error\":\"bad\"}\n" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestHealthHandlerWithCheck(t *testing.T) {
	tests := []struct {
		name  string
		check func(context.Context) error
		want  int
	}{
		{"healthy", func(context.Context) error { return nil }, http.StatusOK},
		{"unhealthy", func(context.Context) error { return errors.New("db down") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HealthHandlerWithCheck(tt.check)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestLoggingMiddleware_ObservesRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /forecast/{variant}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	var route string
	var status int
	h := LoggingMiddleware(slog.New(slog.DiscardHandler), func(r string, s int, _ time.Duration) {
		route, status = r, s
	})(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forecast/outdoor", nil))
	if route != "GET /forecast/{variant}" {
		t.Errorf("expected route pattern, got %q", route)
	}
	if status != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", status)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if route != "unmatched" || status != http.StatusNotFound {
		t.Errorf("expected unmatched 404, got %q %d", route, status)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	h := RateLimitMiddleware(0.001, 2)(ok)
	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected third request limited, got %d", codes[2])
	}

	unlimited := RateLimitMiddleware(0, 0)(ok)
	for range 100 {
		rec := httptest.NewRecorder()
		unlimited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected no limiting, got %d", rec.Code)
		}
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected %v, got %v", want, order)
			break
		}
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(betls.Config{}, 3*time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %v", c.Timeout)
	}

	if _, err := NewClient(betls.Config{Enabled: true, CAFile: "/does/not/exist"}, time.Second); err == nil {
		t.Error("expected error for missing CA file")
	}
}
