// Package health periodically probes the proxied upstream's health
// endpoint and logs state transitions. The prober is purely
// observational: it never triggers reloads or restarts.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/proxyguard/core/logger"
)

// Config holds prober configuration with environment variable support.
type Config struct {
	// UpstreamAddr is the backend host:port to probe.
	UpstreamAddr string `env:"UPSTREAM_ADDR" envDefault:"127.0.0.1:8000"`

	// HealthPath is the endpoint expected to return 2xx when healthy.
	HealthPath string `env:"UPSTREAM_HEALTH_PATH" envDefault:"/health"`

	// Interval between probes.
	Interval time.Duration `env:"HEALTH_INTERVAL" envDefault:"30s"`

	// Timeout bounds each individual probe.
	Timeout time.Duration `env:"HEALTH_TIMEOUT" envDefault:"5s"`
}

// Prober checks the upstream on a fixed interval.
type Prober struct {
	cfg     Config
	client  *http.Client
	log     *slog.Logger
	healthy bool
	known   bool
}

// New creates a Prober for the configured upstream.
func New(cfg Config, log *slog.Logger) *Prober {
	return &Prober{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With(logger.Component("health")),
	}
}

// Run probes until the context is canceled and returns ctx.Err().
// Only transitions are logged, not every probe.
func (p *Prober) Run(ctx context.Context) error {
	url := fmt.Sprintf("http://%s%s", p.cfg.UpstreamAddr, p.cfg.HealthPath)
	p.log.Info("health prober started", slog.String("url", url), slog.Duration("interval", p.cfg.Interval))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.observe(p.probe(ctx, url))
		}
	}
}

func (p *Prober) probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// observe records the probe result and logs healthy/unhealthy transitions.
func (p *Prober) observe(err error) {
	healthy := err == nil
	if p.known && healthy == p.healthy {
		return
	}

	if healthy {
		p.log.Info("upstream healthy")
	} else {
		p.log.Warn("upstream unhealthy", logger.Error(err))
	}
	p.healthy = healthy
	p.known = true
}
