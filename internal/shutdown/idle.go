// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyCheck reports whether background work is in progress. While it
// returns true the server is never considered idle, so long-running
// scrape runs and snapshot merges are not cut short.
type BusyCheck func() bool

// IdleMonitor watches request traffic and signals when the server has
// seen no activity for the configured timeout. Platforms that stop
// machines on idle (Fly.io and similar) use the signal to exit cleanly.
type IdleMonitor struct {
	timeout      time.Duration
	logger       *slog.Logger
	active       int64
	lastActivity time.Time
	mu           sync.RWMutex
	idleCh       chan struct{}
	stopCh       chan struct{}
	ignorePaths  []string
	busyCheck    BusyCheck
}

// IdleMonitorConfig holds configuration for the idle monitor.
type IdleMonitorConfig struct {
	// Timeout is how long the server must be quiet before signaling.
	// Zero disables the monitor entirely.
	Timeout time.Duration
	Logger  *slog.Logger
	// IgnorePaths lists URL path prefixes that do not count as activity,
	// typically health probes.
	IgnorePaths []string
	BusyCheck   BusyCheck
}

// NewIdleMonitor creates a new idle monitor.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleMonitor{
		timeout:      cfg.Timeout,
		logger:       logger.With("component", "idle-monitor"),
		lastActivity: time.Now(),
		idleCh:       make(chan struct{}),
		stopCh:       make(chan struct{}),
		ignorePaths:  cfg.IgnorePaths,
		busyCheck:    cfg.BusyCheck,
	}
}

// Start begins watching for idle periods.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout)
	go m.run()
}

// Stop stops the monitor.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stopCh)
}

// IdleChan returns a channel closed once the idle timeout is reached.
func (m *IdleMonitor) IdleChan() <-chan struct{} {
	return m.idleCh
}

// Middleware tracks request activity, skipping ignored path prefixes.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracked := true
		for _, prefix := range m.ignorePaths {
			if strings.HasPrefix(r.URL.Path, prefix) {
				tracked = false
				break
			}
		}
		if tracked {
			m.touch(1)
			defer m.touch(-1)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) touch(delta int64) {
	atomic.AddInt64(&m.active, delta)
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *IdleMonitor) run() {
	// Poll well under the timeout so the signal is not late, but never
	// busier than every 5s.
	interval := m.timeout / 6
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			active := atomic.LoadInt64(&m.active)
			busy := m.busyCheck != nil && m.busyCheck()

			if active > 0 || busy {
				// Grant a full grace period after work finishes.
				m.mu.Lock()
				m.lastActivity = time.Now()
				m.mu.Unlock()
				continue
			}

			m.mu.RLock()
			idle := time.Since(m.lastActivity)
			m.mu.RUnlock()

			if idle >= m.timeout {
				m.logger.Info("idle timeout reached, signaling shutdown", "idle", idle)
				close(m.idleCh)
				return
			}
		}
	}
}
