package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/lukelzlz/nanobot/internal/config"
)

func TestServerDisabledIsNoop(t *testing.T) {
	s := NewServer(config.MetricsConfig{Enabled: false}, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("disabled server bound %q", s.Addr())
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestServerServesMetricsAndHealth(t *testing.T) {
	s := NewServer(config.MetricsConfig{Enabled: true, Listen: "127.0.0.1:0"}, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("healthz status=%d body=%q", resp.StatusCode, body)
	}

	resp, err = http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
}
