package session

import (
	"context"
	"errors"
	"sync"

	"github.com/youme-api/internal/domain"
)

type profileWatcher interface {
	Watch(ctx context.Context, userID string, onChange func(*domain.UserProfile), onError func(error)) (cancel func())
}

// Monitor infers reachability from a live subscription to the user's own
// profile document.
type Monitor struct {
	watcher  profileWatcher
	onStatus func(domain.ConnectionStatus)

	mu     sync.Mutex
	status domain.ConnectionStatus
	cancel func()
}

// NewMonitor returns a stopped monitor. onStatus, when set, receives every
// status change.
func NewMonitor(w profileWatcher, onStatus func(domain.ConnectionStatus)) *Monitor {
	return &Monitor{watcher: w, onStatus: onStatus}
}

// Start replaces any running subscription. With no user there is nothing
// to watch and the monitor reports connected.
func (m *Monitor) Start(ctx context.Context, userID string) {
	m.Stop()
	if userID == "" {
		m.report(domain.ConnectionStatus{Connected: true})
		return
	}
	cancel := m.watcher.Watch(ctx, userID,
		func(*domain.UserProfile) { m.report(domain.ConnectionStatus{Connected: true}) },
		m.handleError,
	)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
}

// handleError treats permission-denied on the user's own document as the
// transient state right after sign-in, not as an outage. This hides a real
// rules misconfiguration as well; keep it in mind when debugging.
func (m *Monitor) handleError(err error) {
	if errors.Is(err, domain.ErrPermissionDenied) {
		m.report(domain.ConnectionStatus{Connected: true})
		return
	}
	m.report(domain.ConnectionStatus{Connected: false, Error: err.Error()})
}

func (m *Monitor) report(st domain.ConnectionStatus) {
	m.mu.Lock()
	changed := st != m.status
	m.status = st
	m.mu.Unlock()
	if changed && m.onStatus != nil {
		m.onStatus(st)
	}
}

// Stop cancels the subscription and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StartMonitor watches the signed-in user's profile. Network errors also
// move the orchestrator to an Error state.
func (o *Orchestrator) StartMonitor(ctx context.Context, w profileWatcher, onStatus func(domain.ConnectionStatus)) *Monitor {
	m := NewMonitor(w, func(st domain.ConnectionStatus) {
		if st.Error != "" {
			o.ReportConnectionError(st.Error)
		}
		if onStatus != nil {
			onStatus(st)
		}
	})
	var userID string
	if ident := o.sess.Current(); ident != nil {
		userID = ident.UserID
	}
	m.Start(ctx, userID)
	return m
}
