// Package supervisor is the process entry point of the proxy: it
// reconciles certificate state into configuration fragments, runs nginx
// as a managed child, keeps the renewal scheduler, rules watcher and
// health prober alive as background tasks, forwards termination signals
// and mirrors the child's exit code.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/proxyguard/core/certstore"
	"github.com/dmitrymomot/proxyguard/core/domainset"
	"github.com/dmitrymomot/proxyguard/core/logger"
	"github.com/dmitrymomot/proxyguard/core/nginx"
	"github.com/dmitrymomot/proxyguard/pkg/async"
)

// shutdownWait bounds how long background tasks get to observe
// cancellation before the supervisor gives up on them.
const shutdownWait = 5 * time.Second

// Task is a long-lived background job owned by the Supervisor. Run must
// return promptly once its context is canceled.
type Task struct {
	Name string
	Run  func(context.Context) error
}

// Supervisor manages the nginx child process and its background tasks.
type Supervisor struct {
	cfg     nginx.Config
	domains domainset.Set
	store   *certstore.Store
	gen     *nginx.Generator
	ctl     *nginx.Controller
	tasks   []Task
	log     *slog.Logger

	// newChild is a seam for tests; defaults to the real nginx command.
	newChild func() *exec.Cmd
}

// New creates a Supervisor. The given tasks are started once nginx is up
// and canceled on shutdown.
func New(cfg nginx.Config, domains domainset.Set, store *certstore.Store, gen *nginx.Generator, ctl *nginx.Controller, log *slog.Logger, tasks ...Task) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		domains: domains,
		store:   store,
		gen:     gen,
		ctl:     ctl,
		tasks:   tasks,
		log:     log.With(logger.Component("supervisor")),
	}
	s.newChild = func() *exec.Cmd {
		cmd := exec.Command(cfg.Bin, "-g", "daemon off;")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd
	}
	return s
}

// Reconcile renders and writes the configuration fragments matching the
// current certificate state. Used both at supervisor startup and by the
// standalone init command. It never issues certificates.
func Reconcile(domains domainset.Set, store *certstore.Store, gen *nginx.Generator, log *slog.Logger) error {
	ref, err := store.Lookup(domains.Primary())
	if err != nil {
		return err
	}

	switch {
	case ref != nil:
		log.Info("certificate present, enabling https",
			logger.Domain(ref.Primary),
			logger.Path(ref.CertFile))
	case !domains.Empty():
		log.Info("domains configured but no certificate installed, starting http-only; run the issue command to obtain one",
			logger.Domain(domains.Primary()))
	default:
		log.Info("no domains configured, staying http-only")
	}

	if err := gen.Write(gen.Render(domains, ref)); err != nil {
		return fmt.Errorf("write configuration fragments: %w", err)
	}
	return nil
}

// Run drives the full lifecycle and blocks until the child exits.
// It returns the child's exit code; any pre-start failure reports code 1.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	// Init: configuration must match certificate state before nginx
	// reads it. Failure here is the one process-fatal condition.
	if err := Reconcile(s.domains, s.store, s.gen, s.log); err != nil {
		return 1, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Starting.
	child := s.newChild()
	if err := child.Start(); err != nil {
		return 1, fmt.Errorf("start proxy: %w", err)
	}
	s.log.Info("proxy started", slog.Int("pid", child.Process.Pid))

	if err := s.ctl.WaitReady(ctx); err != nil {
		// Best effort: a missing pid marker is worth a warning, not an
		// aborted startup.
		s.log.Warn("proxy readiness not confirmed, proceeding", logger.Error(err))
	}

	// Running.
	handles := make([]*async.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		s.log.Info("starting background task", slog.String("task", t.Name))
		handles = append(handles, async.Run(ctx, t.Name, t.Run))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	waitCh := make(chan error, 1)
	go func() { waitCh <- child.Wait() }()

	for {
		select {
		case sig := <-sigCh:
			// ShuttingDown: forward the signal and keep waiting for the
			// child to exit on its own terms.
			s.log.Info("termination signal received, forwarding to proxy", slog.String("signal", sig.String()))
			s.forward(child, sig)

		case <-ctx.Done():
			s.forward(child, syscall.SIGTERM)
			waitErr := <-waitCh
			s.stopTasks(handles)
			return exitCode(waitErr), nil

		case waitErr := <-waitCh:
			// Stopped: the supervisor's lifetime is the child's.
			cancel()
			s.stopTasks(handles)
			code := exitCode(waitErr)
			s.log.Info("proxy exited", slog.Int("code", code))
			return code, nil
		}
	}
}

// forward delivers sig to the nginx master, preferring the pid marker
// (the master may have re-executed) with the child handle as fallback.
func (s *Supervisor) forward(child *exec.Cmd, sig os.Signal) {
	if err := s.ctl.TerminatePID(sig); err == nil {
		return
	}
	if child.Process != nil {
		if err := child.Process.Signal(sig); err != nil {
			s.log.Warn("failed to signal proxy", logger.Error(err))
		}
	}
}

// stopTasks waits for canceled background tasks within the shutdown bound.
func (s *Supervisor) stopTasks(handles []*async.Task) {
	if err := async.WaitAll(shutdownWait, handles...); err != nil {
		s.log.Warn("background tasks did not stop in time", logger.Error(err))
		return
	}
	for _, h := range handles {
		if err := h.Err(); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("background task ended with error",
				slog.String("task", h.Name()), logger.Error(err))
		}
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
