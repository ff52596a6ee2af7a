package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/programs", http.StatusOK, slog.LevelInfo},
		{"/api/v1/programs", http.StatusNotFound, slog.LevelWarn},
		{"/api/v1/programs", http.StatusInternalServerError, slog.LevelError},
		{"/health/live", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/metrics", http.StatusOK, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := accessLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("accessLevel(%s, %d) = %v, ожидался %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/api/v1/programs/{program_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("нет"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/programs/42", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("запись лога не JSON: %v (%s)", err, buf.String())
	}
	checks := map[string]any{
		"level":     "WARN",
		"component": "http",
		"path":      "/api/v1/programs/42",
		"route":     "/api/v1/programs/{program_id}",
		"status":    float64(http.StatusNotFound),
		"bytes":     float64(len("нет")),
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s = %v, ожидалось %v", k, entry[k], want)
		}
	}
}
