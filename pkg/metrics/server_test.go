// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticGatherer string

func (s staticGatherer) Gather() string { return string(s) }

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	if cfg.Address != ":9090" || cfg.ReadTimeout != 10*time.Second {
		t.Errorf("unexpected default config %+v", cfg)
	}
}

func TestHandleMetrics(t *testing.T) {
	s := NewServer(staticGatherer("clock_epochs_total 3\n"), ":0")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	if w.Body.String() != "clock_epochs_total 3\n" {
		t.Errorf("unexpected body %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/metrics", nil))
	if w.Body.Len() != 0 || w.Header().Get("Content-Length") != "21" {
		t.Errorf("HEAD should only set headers, got %q %q", w.Body.String(), w.Header().Get("Content-Length"))
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHandleHealthAndReady(t *testing.T) {
	s := NewServer(staticGatherer(""), ":0")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK\n" {
		t.Errorf("unexpected health response %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("server not started should not be ready, got %d", w.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Username, cfg.Password = "admin", "secret"
	s := NewServerWithConfig(staticGatherer("x 1\n"), cfg)

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong password", "admin", "nope", true, http.StatusUnauthorized},
		{"valid", "admin", "secret", true, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if tt.setAuth {
			req.SetBasicAuth(tt.user, tt.pass)
		}
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, w.Code)
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer(staticGatherer("clock_up 1\n"), "127.0.0.1:0")
	errCh := s.StartAsync()

	deadline := time.Now().Add(2 * time.Second)
	for !s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "clock_up 1\n" {
		t.Errorf("unexpected body %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("unexpected serve error: %v", err)
	}
	if s.IsRunning() {
		t.Error("server should not be running after Shutdown")
	}
}
