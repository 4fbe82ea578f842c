// Command proxyguard supervises the TLS certificate lifecycle of an
// nginx reverse proxy: it issues and renews Let's Encrypt certificates,
// keeps the generated nginx fragments consistent with certificate state,
// and coordinates validated, zero-downtime reloads.
//
// Subcommands:
//
//	init   reconcile certificate state into configuration (default)
//	issue  force certificate issuance for the configured domains
//	renew  one-shot renewal attempt
//	cron   run the renewal scheduler loop in the foreground
//	run    supervise nginx with watcher, scheduler and health prober
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/proxyguard/core/acme"
	"github.com/dmitrymomot/proxyguard/core/certstore"
	"github.com/dmitrymomot/proxyguard/core/config"
	"github.com/dmitrymomot/proxyguard/core/domainset"
	"github.com/dmitrymomot/proxyguard/core/health"
	"github.com/dmitrymomot/proxyguard/core/logger"
	"github.com/dmitrymomot/proxyguard/core/nginx"
	"github.com/dmitrymomot/proxyguard/core/scheduler"
	"github.com/dmitrymomot/proxyguard/core/supervisor"
	"github.com/dmitrymomot/proxyguard/core/watcher"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	command := "init"
	if len(args) > 0 {
		command = args[0]
	}

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "proxyguard: %v\n", err)
		return 1
	}

	log := logger.New(cfg.Logger)

	domains, err := domainset.Parse(cfg.Domains)
	if err != nil {
		log.Error("invalid domain configuration", logger.Error(err))
		return 1
	}

	store, err := certstore.New(cfg.Store)
	if err != nil {
		log.Error("certificate store unavailable", logger.Error(err))
		return 1
	}

	gen := nginx.NewGenerator(cfg.Nginx)
	ctl := nginx.NewController(cfg.Nginx, log)
	issuer := acme.NewIssuer(cfg.ACME, store, log)
	renewer := acme.NewRenewer(cfg.ACME, store, issuer, log)

	// apply regenerates fragments for the current certificate state and
	// performs a validated reload. Shared by every path that changes
	// certificates or rules, so there is a single source of truth for
	// what ends up on disk.
	apply := func(ctx context.Context) error {
		if err := supervisor.Reconcile(domains, store, gen, log); err != nil {
			return err
		}
		return ctl.ApplyAndReload(ctx)
	}

	switch command {
	case "init":
		if err := supervisor.Reconcile(domains, store, gen, log); err != nil {
			log.Error("init failed", logger.Error(err))
			return 1
		}
		return 0

	case "issue":
		ctx, stop := notifyContext()
		defer stop()
		if _, err := issuer.Issue(ctx, domains); err != nil {
			log.Error("issuance failed", logger.Error(err))
			return 1
		}
		if err := apply(ctx); err != nil {
			log.Error("reload after issuance failed", logger.Error(err))
			return 1
		}
		return 0

	case "renew":
		ctx, stop := notifyContext()
		defer stop()
		outcome, err := renewer.Renew(ctx)
		switch outcome {
		case acme.OutcomeFailed:
			log.Error("renewal failed", logger.Error(err))
			return 1
		case acme.OutcomeRenewed:
			if err := apply(ctx); err != nil {
				log.Error("reload after renewal failed", logger.Error(err))
				return 1
			}
		default:
			log.Info("no certificates due for renewal")
		}
		return 0

	case "cron":
		ctx, stop := notifyContext()
		defer stop()
		sched := scheduler.New(cfg.Scheduler, renewer.Renew, apply, log)
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("scheduler stopped", logger.Error(err))
			return 1
		}
		return 0

	case "run":
		sched := scheduler.New(cfg.Scheduler, renewer.Renew, apply, log)
		watch := watcher.New(cfg.Watcher, ctl.ApplyAndReload, log)
		prober := health.New(cfg.Health, log)

		sup := supervisor.New(cfg.Nginx, domains, store, gen, ctl, log,
			supervisor.Task{Name: "watcher", Run: watch.Run},
			supervisor.Task{Name: "scheduler", Run: sched.Run},
			supervisor.Task{Name: "health", Run: prober.Run},
		)

		// The supervisor owns signal handling: termination is forwarded
		// to nginx and the exit code mirrors the proxy's.
		code, err := sup.Run(context.Background())
		if err != nil {
			log.Error("supervisor failed", logger.Error(err))
		}
		return code

	default:
		fmt.Fprintf(os.Stderr, "proxyguard: unknown command %q\nusage: proxyguard [init|issue|renew|cron|run]\n", command)
		return 2
	}
}

func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
