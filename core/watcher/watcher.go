// Package watcher observes the externally managed proxy rules file and
// triggers a validated reload when it changes. The watcher must survive
// any bad edit: reload failures are logged, never propagated.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrymomot/proxyguard/core/logger"
)

// Config holds watcher configuration with environment variable support.
type Config struct {
	// RulesFile is the rule-configuration file maintained by the
	// management application.
	RulesFile string `env:"NGINX_RULES_FILE" envDefault:"/etc/nginx/conf.d/proxy_rules.conf"`

	// Settle is how long the file must stay quiet after an event before
	// a reload fires, so a burst of partial writes triggers exactly once.
	Settle time.Duration `env:"WATCH_SETTLE" envDefault:"500ms"`
}

// Watcher debounces rules-file changes into reload requests.
type Watcher struct {
	cfg    Config
	reload func(context.Context) error
	log    *slog.Logger
}

// New creates a Watcher that invokes reload after each settled change.
func New(cfg Config, reload func(context.Context) error, log *slog.Logger) *Watcher {
	return &Watcher{
		cfg:    cfg,
		reload: reload,
		log:    log.With(logger.Component("watcher")),
	}
}

// Run watches until the context is canceled and returns ctx.Err().
// The parent directory is watched rather than the file itself because
// editors and the management app replace the file via rename, which
// would silently drop a direct watch.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.cfg.RulesFile)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.log.Info("watching rules file", logger.Path(w.cfg.RulesFile))

	settle := time.NewTimer(w.cfg.Settle)
	if !settle.Stop() {
		<-settle.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("rules file event", slog.String("op", event.Op.String()))
			settle.Reset(w.cfg.Settle)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", logger.Error(err))

		case <-settle.C:
			start := time.Now()
			if err := w.reload(ctx); err != nil {
				w.log.Error("reload after rules change failed", logger.Error(err))
				continue
			}
			w.log.Info("reloaded after rules change", logger.Elapsed(start))
		}
	}
}

// relevant reports whether the event is a content change of the rules file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(w.cfg.RulesFile) {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}
