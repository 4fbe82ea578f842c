package health

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProbe(t *testing.T) {
	t.Run("2xx is healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		p := New(Config{Timeout: time.Second}, discardLogger())
		if err := p.probe(context.Background(), srv.URL+"/health"); err != nil {
			t.Fatalf("probe: %v", err)
		}
	})

	t.Run("5xx is unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		p := New(Config{Timeout: time.Second}, discardLogger())
		if err := p.probe(context.Background(), srv.URL+"/health"); err == nil {
			t.Fatal("expected error for 502 response")
		}
	})

	t.Run("unreachable upstream is unhealthy", func(t *testing.T) {
		p := New(Config{Timeout: 200 * time.Millisecond}, discardLogger())
		if err := p.probe(context.Background(), "http://127.0.0.1:1/health"); err == nil {
			t.Fatal("expected error for unreachable upstream")
		}
	})
}

func TestObserveLogsTransitionsOnly(t *testing.T) {
	var buf bytes.Buffer
	p := New(Config{}, slog.New(slog.NewTextHandler(&buf, nil)))

	probeErr := errors.New("unexpected status 502")
	p.observe(nil)
	p.observe(nil)
	p.observe(probeErr)
	p.observe(probeErr)
	p.observe(nil)

	out := buf.String()
	if got := strings.Count(out, "upstream healthy"); got != 2 {
		t.Fatalf("expected 2 healthy transitions, got %d:\n%s", got, out)
	}
	if got := strings.Count(out, "upstream unhealthy"); got != 1 {
		t.Fatalf("expected 1 unhealthy transition, got %d:\n%s", got, out)
	}
}

func TestRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{
		UpstreamAddr: strings.TrimPrefix(srv.URL, "http://"),
		HealthPath:   "/health",
		Interval:     20 * time.Millisecond,
		Timeout:      time.Second,
	}
	p := New(cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for hits.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("prober never reached the upstream")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prober did not observe cancellation")
	}
}
