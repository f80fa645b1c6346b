package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAcquireCapsConnections(t *testing.T) {
	rl := New(2, 5)

	r1, ok1 := rl.Acquire("1.2.3.4")
	_, ok2 := rl.Acquire("1.2.3.4")
	_, ok3 := rl.Acquire("1.2.3.4")
	if !ok1 || !ok2 || ok3 {
		t.Fatalf("acquire = %v %v %v, want true true false", ok1, ok2, ok3)
	}
	if _, ok := rl.Acquire("5.6.7.8"); !ok {
		t.Error("other IP limited")
	}

	r1()
	r1()
	if _, ok := rl.Acquire("1.2.3.4"); !ok {
		t.Error("slot not released")
	}
	if _, ok := rl.Acquire("1.2.3.4"); ok {
		t.Error("double release freed two slots")
	}
}

func TestCanAuthWindow(t *testing.T) {
	rl := New(10, 2)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	if !rl.CanAuth("ip") || !rl.CanAuth("ip") {
		t.Fatal("first two attempts refused")
	}
	if rl.CanAuth("ip") {
		t.Fatal("third attempt allowed")
	}

	now = now.Add(61 * time.Second)
	if !rl.CanAuth("ip") {
		t.Error("attempt refused after window")
	}
	rl.cleanup()
	if n := len(rl.authAttempts["ip"]); n != 1 {
		t.Errorf("attempts after cleanup = %d, want 1", n)
	}
}

func TestAuthLimitMiddleware(t *testing.T) {
	rl := New(10, 1)
	h := rl.AuthLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := []int{}
	for range 2 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		remote string
		want   string
	}{
		{"remote addr", nil, "192.168.1.5:4000", "192.168.1.5"},
		{"forwarded chain", http.Header{"X-Forwarded-For": {"8.8.8.8, 10.0.0.1"}}, "10.0.0.1:1", "8.8.8.8"},
		{"real ip", http.Header{"X-Real-Ip": {"9.9.9.9"}}, "10.0.0.1:1", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header[k] = v
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
