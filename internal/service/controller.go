package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/sleepstars/ollamabridge/internal/config"
	"github.com/sleepstars/ollamabridge/internal/logger"
)

// defaultGrace bounds how long Stop waits for in-flight requests before
// open streaming connections are forcibly closed.
const defaultGrace = 5 * time.Second

// HandlerFactory builds the HTTP handler for one server instance. It is
// called once per start with the configuration that instance will live
// with; reconfiguration builds a fresh handler.
type HandlerFactory func(cfg config.Config) http.Handler

// Controller owns the listening socket, the server instance and the
// process-wide service state. All lifecycle commands go through it; the
// tray UI is a pure external caller.
type Controller struct {
	mu            sync.Mutex
	state         State
	transitioning bool
	cfg           config.Config
	srv           *http.Server
	ln            net.Listener

	build  HandlerFactory
	grace  time.Duration
	subs   []chan State
	logger *logger.Logger
}

// NewController creates a controller in the Stopped state.
func NewController(cfg config.Config, build HandlerFactory) *Controller {
	return &Controller{
		state:  Stopped,
		cfg:    cfg,
		build:  build,
		grace:  defaultGrace,
		logger: logger.GetLogger().WithComponent("lifecycle"),
	}
}

// SetGracePeriod overrides the shutdown grace period.
func (c *Controller) SetGracePeriod(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grace = d
}

// Status returns the current service state.
func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the configuration the next (or current) server instance
// uses.
func (c *Controller) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Addr returns the bound listen address, or "" when not Running.
func (c *Controller) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return ""
	}
	return c.ln.Addr().String()
}

// Subscribe returns a channel receiving every state change after the
// call. Slow subscribers miss updates rather than blocking transitions.
func (c *Controller) Subscribe() <-chan State {
	ch := make(chan State, 8)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// Start moves Stopped or Failed to Running. A failed bind leaves the
// service in Failed; Start may then be called again to retry.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.transitioning {
		st := c.state
		c.mu.Unlock()
		return &BusyError{Command: "start", State: st}
	}
	switch c.state {
	case Stopped, Failed:
	case Running:
		c.mu.Unlock()
		return ErrAlreadyRunning
	default:
		st := c.state
		c.mu.Unlock()
		return &BusyError{Command: "start", State: st}
	}
	c.transitioning = true
	cfg := c.cfg
	c.setStateLocked(Starting)
	c.mu.Unlock()

	srv, ln, err := c.listenAndServe(cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitioning = false
	if err != nil {
		c.setStateLocked(Failed)
		return err
	}
	c.srv, c.ln = srv, ln
	c.setStateLocked(Running)
	c.logger.Info("Service running on %s (upstream %s)", ln.Addr(), cfg.OllamaBaseURL)
	return nil
}

// Stop moves Running to Stopped, draining in-flight requests up to the
// grace period and then cutting whatever is still open. Stop while
// Stopped is a no-op, so repeated stops always end in Stopped.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.transitioning {
		st := c.state
		c.mu.Unlock()
		return &BusyError{Command: "stop", State: st}
	}
	switch c.state {
	case Stopped:
		c.mu.Unlock()
		return nil
	case Failed:
		// Nothing is bound; just clear the failure.
		c.setStateLocked(Stopped)
		c.mu.Unlock()
		return nil
	case Running:
	default:
		st := c.state
		c.mu.Unlock()
		return &BusyError{Command: "stop", State: st}
	}
	c.transitioning = true
	srv := c.srv
	c.setStateLocked(Stopping)
	c.mu.Unlock()

	c.shutdown(srv)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.srv, c.ln = nil, nil
	c.transitioning = false
	c.setStateLocked(Stopped)
	c.logger.Info("Service stopped")
	return nil
}

// Reconfigure installs a new configuration. While Stopped or Failed it
// only replaces the stored config; while Running it restarts the server
// under a single transition so no connection is ever accepted against a
// stale config.
func (c *Controller) Reconfigure(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.transitioning {
		st := c.state
		c.mu.Unlock()
		return &BusyError{Command: "reconfigure", State: st}
	}
	switch c.state {
	case Stopped, Failed:
		st := c.state
		c.cfg = cfg
		c.mu.Unlock()
		c.logger.Info("Config replaced while %s: port=%d", st, cfg.Port)
		return nil
	case Running:
	default:
		st := c.state
		c.mu.Unlock()
		return &BusyError{Command: "reconfigure", State: st}
	}
	c.transitioning = true
	old := c.srv
	c.cfg = cfg
	c.setStateLocked(Stopping)
	c.mu.Unlock()

	c.shutdown(old)

	c.mu.Lock()
	c.srv, c.ln = nil, nil
	c.setStateLocked(Starting)
	c.mu.Unlock()

	srv, ln, err := c.listenAndServe(cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitioning = false
	if err != nil {
		c.setStateLocked(Failed)
		return err
	}
	c.srv, c.ln = srv, ln
	c.setStateLocked(Running)
	c.logger.Info("Service reconfigured, now on %s", ln.Addr())
	return nil
}

// listenAndServe binds the configured port and starts serving on it.
// Binding explicitly (instead of ListenAndServe) makes bind failures
// synchronous, so Starting can move to Failed before anyone observes
// Running.
func (c *Controller) listenAndServe(cfg config.Config) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, nil, &PortInUseError{Port: cfg.Port, Cause: err}
		}
		return nil, nil, fmt.Errorf("bind port %d: %w", cfg.Port, err)
	}

	srv := &http.Server{Handler: c.build(cfg)}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.WithError(err).Error("HTTP server terminated unexpectedly")
		}
	}()
	return srv, ln, nil
}

// shutdown closes the listener, drains in-flight requests up to the grace
// period, then forcibly closes remaining connections (long-lived streams).
func (c *Controller) shutdown(srv *http.Server) {
	c.mu.Lock()
	grace := c.grace
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		c.logger.Warn("Grace period elapsed, closing remaining connections: %v", err)
		srv.Close()
	}
}

// setStateLocked updates the state and notifies subscribers. Callers hold mu.
func (c *Controller) setStateLocked(s State) {
	c.state = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
