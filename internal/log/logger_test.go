package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: "json", Component: ComponentForecast})

	logger.Info("projection finished", FieldPoints, 91)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != ComponentForecast {
		t.Errorf("component = %v, want %q", rec[FieldComponent], ComponentForecast)
	}
	if rec[FieldPoints] != float64(91) {
		t.Errorf("points = %v, want 91", rec[FieldPoints])
	}
}

func TestMiddlewareRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	var seen string
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if seen == "" || rr.Header().Get(RequestIDHeader) != seen {
			t.Errorf("request id = %q, header = %q", seen, rr.Header().Get(RequestIDHeader))
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if seen != "abc-123" {
			t.Errorf("request id = %q, want abc-123", seen)
		}
	})

	out := buf.String()
	if !strings.Contains(out, "request_id=abc-123") || !strings.Contains(out, "status_code=418") {
		t.Errorf("log output missing request fields:\n%s", out)
	}
}
