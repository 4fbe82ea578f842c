package main

import (
	"github.com/dmitrymomot/proxyguard/core/acme"
	"github.com/dmitrymomot/proxyguard/core/certstore"
	"github.com/dmitrymomot/proxyguard/core/health"
	"github.com/dmitrymomot/proxyguard/core/logger"
	"github.com/dmitrymomot/proxyguard/core/nginx"
	"github.com/dmitrymomot/proxyguard/core/scheduler"
	"github.com/dmitrymomot/proxyguard/core/watcher"
)

// appConfig is the single immutable configuration struct constructed at
// startup. No component reads the process environment directly.
type appConfig struct {
	Logger    logger.Config
	Store     certstore.Config
	ACME      acme.Config
	Nginx     nginx.Config
	Watcher   watcher.Config
	Scheduler scheduler.Config
	Health    health.Config

	// Domains is the raw comma-separated domain list; empty keeps the
	// proxy HTTP-only.
	Domains string `env:"SSL_DOMAINS" envDefault:""`
}
