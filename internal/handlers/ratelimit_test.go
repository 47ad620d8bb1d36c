package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordingLimiter struct {
	keys  []string
	allow bool
}

func (l *recordingLimiter) Allow(key string) (bool, time.Duration) {
	l.keys = append(l.keys, key)
	return l.allow, 1500 * time.Millisecond
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "socket peer", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 , 10.0.0.9"}, remote: "10.0.0.1:5555", want: "1.2.3.4"},
		{name: "real ip wins", headers: map[string]string{"X-Real-IP": "5.6.7.8", "X-Forwarded-For": "1.2.3.4"}, remote: "10.0.0.1:5555", want: "5.6.7.8"},
		{name: "no port", remote: "10.0.0.2", want: "10.0.0.2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tc.want {
				t.Fatalf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLimitedWritesRetryAfter(t *testing.T) {
	limiter := &recordingLimiter{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	rec := httptest.NewRecorder()

	if !limited(rec, req, limiter, "posts") {
		t.Fatal("expected request to be limited")
	}
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("unexpected response %d retry-after=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "posts:9.9.9.9" {
		t.Fatalf("unexpected limiter keys %v", limiter.keys)
	}

	limiter.allow = true
	if limited(httptest.NewRecorder(), req, limiter, "posts") {
		t.Fatal("expected request to pass")
	}
	if limited(httptest.NewRecorder(), req, nil, "posts") {
		t.Fatal("nil limiter should never limit")
	}
}
