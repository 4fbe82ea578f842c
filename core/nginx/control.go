package nginx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/proxyguard/core/logger"
)

// readyPollInterval is how often WaitReady re-checks the pid marker.
const readyPollInterval = 100 * time.Millisecond

// Controller validates and reloads the supervised nginx process.
//
// All reload attempts, from the supervisor, the renewal scheduler and the
// rules watcher alike, serialize through a single mutex: at most one
// validate-and-reload is in flight at any time.
type Controller struct {
	cfg Config
	log *slog.Logger

	mu sync.Mutex

	// Seams for tests; default to the real implementations.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
	signalPID  func(pid int, sig os.Signal) error
}

// NewController creates a Controller for the configured nginx instance.
func NewController(cfg Config, log *slog.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		log:        log.With(logger.Component("nginx")),
		runCommand: runCombined,
		signalPID:  signalProcess,
	}
}

// ApplyAndReload validates the on-disk configuration and, only when
// validation passes, signals the master process to reload gracefully.
// On validation failure nothing is signaled and the previously loaded
// configuration continues serving. Safe to call concurrently; callers
// are serialized.
func (c *Controller) ApplyAndReload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if err := c.validate(ctx); err != nil {
		return err
	}
	if err := c.reload(); err != nil {
		return err
	}

	c.log.Info("configuration reloaded", logger.Elapsed(start))
	return nil
}

// validate runs the proxy's own syntax check (nginx -t).
func (c *Controller) validate(ctx context.Context) error {
	out, err := c.runCommand(ctx, c.cfg.Bin, "-t", "-q")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidationFailed, firstLine(out, err))
	}
	return nil
}

// reload sends SIGHUP to the master pid, which swaps configuration
// without dropping in-flight connections.
func (c *Controller) reload() error {
	pid, err := c.masterPID()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	if err := c.signalPID(pid, syscall.SIGHUP); err != nil {
		return fmt.Errorf("%w: signal pid %d: %w", ErrReloadFailed, pid, err)
	}
	return nil
}

// WaitReady polls for the pid marker until it appears, the context is
// canceled or the configured timeout elapses. Returns ErrReadinessTimeout
// on expiry; the caller decides whether that is fatal.
func (c *Controller) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.ReadyTimeout)

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if _, err := c.masterPID(); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrReadinessTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TerminatePID forwards a termination signal to the master process.
// Used by the supervisor on shutdown so nginx exits before the
// supervisor itself does.
func (c *Controller) TerminatePID(sig os.Signal) error {
	pid, err := c.masterPID()
	if err != nil {
		return err
	}
	return c.signalPID(pid, sig)
}

// masterPID reads the master process id from the pid marker file.
func (c *Controller) masterPID() (int, error) {
	data, err := os.ReadFile(c.cfg.PIDFile)
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s", c.cfg.PIDFile)
	}
	return pid, nil
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func signalProcess(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// firstLine condenses a failed command's output into a one-line cause.
func firstLine(out []byte, err error) string {
	s := strings.TrimSpace(string(out))
	if s == "" {
		return err.Error()
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
