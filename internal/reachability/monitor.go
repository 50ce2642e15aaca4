package reachability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/types"
)

// Mode is the connection mode to the remote order store
type Mode string

const (
	ModeOnline  Mode = "ONLINE"
	ModeOffline Mode = "OFFLINE"

	// ModeUnprobed only appears as Transition.From for the probe result
	ModeUnprobed Mode = "UNPROBED"
)

// DefaultProbeTimeout bounds the startup health probe
const DefaultProbeTimeout = 650 * time.Millisecond

// OfflineBanner is shown to users for the rest of the session once the
// remote order store is considered unreachable
const OfflineBanner = "Offline mode: the order service is unreachable. Orders and requests are saved on this device and can still be looked up by their reference number."

// Prober checks the remote store's health endpoint
type Prober interface {
	Health(ctx context.Context) error
}

// Transition describes a mode change
type Transition struct {
	From   Mode
	To     Mode
	Reason string
	At     time.Time
}

// Listener is notified once per transition
type Listener func(Transition)

// Monitor tracks whether the remote order store is reachable.
//
// The mode is decided once by Probe. After that the only possible change is
// ONLINE -> OFFLINE through Demote; the monitor never promotes back within
// its lifetime. Reset returns it to the unprobed state.
type Monitor struct {
	prober  Prober
	timeout time.Duration
	logger  *logger.Logger

	mu        sync.RWMutex
	mode      Mode
	probed    bool
	banner    string
	reason    string
	listeners []Listener
}

// Option configures a Monitor
type Option func(*Monitor)

// WithProbeTimeout overrides DefaultProbeTimeout
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger used for transitions
func WithLogger(log *logger.Logger) Option {
	return func(m *Monitor) { m.logger = log }
}

// WithListener registers a transition listener
func WithListener(l Listener) Option {
	return func(m *Monitor) { m.listeners = append(m.listeners, l) }
}

// NewMonitor creates an unprobed monitor. Until Probe runs it reports
// OFFLINE so that no remote call is attempted before the health check.
func NewMonitor(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:  prober,
		timeout: DefaultProbeTimeout,
		mode:    ModeUnprobed,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Discard()
	}
	return m
}

// OnTransition registers a listener after construction
func (m *Monitor) OnTransition(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Probe performs the startup health check once and returns the resulting
// mode. Later calls return the current mode without probing again.
func (m *Monitor) Probe(ctx context.Context) Mode {
	if m.isProbed() {
		return m.Mode()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var err error
	if m.prober == nil {
		err = errors.New("no remote store configured")
	} else {
		err = m.prober.Health(probeCtx)
	}

	m.mu.Lock()
	if m.probed {
		m.mu.Unlock()
		return m.Mode()
	}
	m.probed = true

	var t Transition
	if err != nil {
		t = m.setOfflineLocked("health probe failed: " + err.Error())
	} else {
		t = Transition{From: m.mode, To: ModeOnline, Reason: "health probe succeeded", At: time.Now()}
		m.mode = ModeOnline
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, t)
	return t.To
}

// Demote switches to OFFLINE for the rest of the session. It reports
// whether a transition happened; demoting an offline monitor is a no-op.
func (m *Monitor) Demote(reason string) bool {
	m.mu.Lock()
	if m.mode != ModeOnline {
		m.mu.Unlock()
		return false
	}
	t := m.setOfflineLocked(reason)
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, t)
	return true
}

// ObserveFailure demotes the monitor when err indicates the remote store
// itself failed, as opposed to a missing record or a denied request.
func (m *Monitor) ObserveFailure(err error) bool {
	if !ShouldDemote(err) {
		return false
	}
	return m.Demote(err.Error())
}

// Mode returns the current mode
func (m *Monitor) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mode == ModeUnprobed {
		return ModeOffline
	}
	return m.mode
}

func (m *Monitor) isProbed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probed
}

// Online is shorthand for Mode() == ModeOnline
func (m *Monitor) Online() bool {
	return m.Mode() == ModeOnline
}

// Banner returns the user-facing offline banner, empty while online
func (m *Monitor) Banner() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.banner
}

// Reason returns why the monitor went offline, if it did
func (m *Monitor) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// Reset returns the monitor to its unprobed state. Listeners are kept.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeUnprobed
	m.probed = false
	m.banner = ""
	m.reason = ""
}

func (m *Monitor) setOfflineLocked(reason string) Transition {
	t := Transition{From: m.mode, To: ModeOffline, Reason: reason, At: time.Now()}
	m.mode = ModeOffline
	m.banner = OfflineBanner
	m.reason = reason
	return t
}

func (m *Monitor) notify(listeners []Listener, t Transition) {
	m.logger.ModeChange(string(t.From), string(t.To), t.Reason)
	for _, l := range listeners {
		l(t)
	}
}

// ShouldDemote reports whether err signals that the remote store is
// unusable: network failures, timeouts, 5xx and responses without a usable
// status. A missing record, a location-restricted request, invalid input or
// a caller that gave up do not.
func ShouldDemote(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case types.IsType(err, types.ErrorTypeNotFound),
		types.IsType(err, types.ErrorTypeAccessRestricted),
		types.IsType(err, types.ErrorTypeValidation):
		return false
	}
	return true
}
