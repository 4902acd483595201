package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.ActorRoleVendor, enums.ActorRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name string
		role enums.ActorRole
		auth bool
		want int
	}{
		{name: "vendor allowed", role: enums.ActorRoleVendor, auth: true, want: http.StatusNoContent},
		{name: "admin allowed", role: enums.ActorRoleAdmin, auth: true, want: http.StatusNoContent},
		{name: "buyer forbidden", role: enums.ActorRoleBuyer, auth: true, want: http.StatusForbidden},
		{name: "anonymous", auth: false, want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.auth {
				req = req.WithContext(WithActor(req.Context(), orders.Actor{ID: uuid.New(), Role: tc.role}))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestLoggingRecordsRouteAndStatus(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Format: "json", Output: buf})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/api/v1/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rec.Code)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected start and complete lines, got %d: %s", len(lines), buf.String())
	}
	last := lines[1]
	for _, want := range []string{`"route":"/api/v1/orders/{orderId}"`, `"status":502`, `"bytes":8`, `"level":"warn"`} {
		if !strings.Contains(last, want) {
			t.Fatalf("expected %s in %s", want, last)
		}
	}
}

func TestLoggingNilLoggerPassesThrough(t *testing.T) {
	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
}
