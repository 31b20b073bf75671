package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetector_ClientIP(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct public peer", "203.0.113.9:4000", "", "", "203.0.113.9"},
		{"public peer cannot forward", "203.0.113.9:4000", "1.1.1.1", "", "203.0.113.9"},
		{"trusted proxy forwards", "10.0.0.2:80", "198.51.100.7, 10.0.0.2", "", "198.51.100.7"},
		{"real ip fallback", "127.0.0.1:80", "", "198.51.100.8", "198.51.100.8"},
		{"garbage header ignored", "127.0.0.1:80", "not-an-ip", "", "127.0.0.1"},
		{"no port", "192.0.2.1", "", "", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetector_AddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Error("AddTrustedProxy accepted an invalid CIDR")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("AddTrustedProxy() error = %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.7")
	if got := d.ClientIP(r); got != "198.51.100.7" {
		t.Errorf("ClientIP() = %q, want forwarded address", got)
	}
}

func TestDetector_IsSuspicious(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		target string
		ua     string
		want   bool
	}{
		{"plain api call", "/api/forecast?horizon=30", "curl/8.0", false},
		{"path traversal", "/api/../../etc/passwd", "", true},
		{"dotenv probe", "/.env", "", true},
		{"scanner agent", "/healthz", "sqlmap/1.7", true},
		{"injection in query", "/api/forecast?balance=1%20union%20select", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			r.Header.Set("User-Agent", tt.ua)
			if got := d.IsSuspicious(r); got != tt.want {
				t.Errorf("IsSuspicious() = %v, want %v", got, tt.want)
			}
		})
	}
	if got := d.GetMetrics().SuspiciousRequests; got != 3 {
		t.Errorf("SuspiciousRequests = %d, want 3", got)
	}
}

func TestDetector_Middleware(t *testing.T) {
	d := NewDetector()
	var flagged []string
	h := d.Middleware(func(r *http.Request, ip string) { flagged = append(flagged, ip) })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("TRACE", "/", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("TRACE status = %d, want 405", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("suspicious GET status = %d, want 200", rr.Code)
	}
	if len(flagged) != 1 || flagged[0] != "192.0.2.1" {
		t.Errorf("flagged = %v, want [192.0.2.1]", flagged)
	}
}

func TestHeaders(t *testing.T) {
	h := Headers(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS sent over plain HTTP")
	}
}
