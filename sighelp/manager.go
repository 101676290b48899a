// Copyright © 2024 The ELPS authors

package sighelp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Deps are the collaborators a Manager drives. AutoTrigger is only
// needed for EnableAutoTrigger.
type Deps struct {
	Registry    Registry
	Documents   Documents
	Surface     Surface
	Notifier    Notifier
	AutoTrigger AutoTrigger
}

// Manager is the command surface of signature help. It owns one Session
// per buffer and routes entry points without a buffer to the current
// buffer's session.
type Manager struct {
	deps       Deps
	opts       []Option
	dispatcher *Dispatcher
	presenter  *Presenter
	log        *slog.Logger

	mu       sync.Mutex
	sessions map[int]*Session
}

// NewManager creates a manager over deps.
func NewManager(deps Deps, opts ...Option) *Manager {
	cfg := newConfig(opts...)
	return &Manager{
		deps:       deps,
		opts:       opts,
		dispatcher: NewDispatcher(deps.Registry, deps.Documents, deps.Notifier, opts...),
		presenter:  NewPresenter(deps.Surface, deps.Notifier, opts...),
		log:        cfg.logger,
		sessions:   make(map[int]*Session),
	}
}

// Session returns the session of bufferID, creating it on first use.
func (m *Manager) Session(bufferID int) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[bufferID]
	if !ok {
		s = NewSession(bufferID, m.dispatcher, m.presenter, m.opts...)
		m.sessions[bufferID] = s
	}
	return s
}

// Forget drops the session of a buffer that was closed, dismissing its
// popup.
func (m *Manager) Forget(ctx context.Context, bufferID int) error {
	m.mu.Lock()
	s, ok := m.sessions[bufferID]
	delete(m.sessions, bufferID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

func (m *Manager) current(ctx context.Context) (*Session, error) {
	id, err := m.deps.Documents.CurrentBuffer(ctx)
	if err != nil {
		return nil, fmt.Errorf("current buffer: %w", err)
	}
	return m.Session(id), nil
}

// InvokeNow shows signature help at the cursor of the current buffer.
// A non-positive timeout means DefaultTimeout.
func (m *Manager) InvokeNow(ctx context.Context, timeout time.Duration) error {
	s, err := m.current(ctx)
	if err != nil {
		return err
	}
	return s.Invoke(ctx, timeout)
}

// OnTriggerEvent forwards an automatic trigger to the current buffer's
// session.
func (m *Manager) OnTriggerEvent(ctx context.Context, ev TriggerEvent) error {
	if err := validateTriggerEvent(ev); err != nil {
		return err
	}
	s, err := m.current(ctx)
	if err != nil {
		return err
	}
	return s.OnTriggerEvent(ctx, ev)
}

// Close dismisses the current buffer's popup.
func (m *Manager) Close(ctx context.Context) error {
	s, err := m.current(ctx)
	if err != nil {
		return err
	}
	return s.Close(ctx)
}

// EnableAutoTrigger registers automatic signature help for bufferID, or
// for the current buffer when bufferID is not positive. The trigger and
// retrigger characters come from the first server attached to the buffer
// that supports signature help. When there is no such server a notice is
// shown and nil is returned.
func (m *Manager) EnableAutoTrigger(ctx context.Context, bufferID int, timeout time.Duration) error {
	if m.deps.AutoTrigger == nil {
		return errors.New("sighelp: no auto-trigger glue configured")
	}
	if bufferID <= 0 {
		id, err := m.deps.Documents.CurrentBuffer(ctx)
		if err != nil {
			return fmt.Errorf("current buffer: %w", err)
		}
		bufferID = id
	}
	server, ok := m.dispatcher.SelectServer(ctx, bufferID)
	if !ok {
		return nil
	}
	provider := server.Capabilities.SignatureHelpProvider
	s := m.Session(bufferID)
	s.SetTimeout(timeout)
	m.log.Debug("enabling automatic signature help",
		"buffer", bufferID,
		"server", server.Name,
		"trigger", provider.TriggerCharacters,
		"retrigger", provider.RetriggerCharacters)
	return m.deps.AutoTrigger.EnableAutoTrigger(ctx, bufferID,
		provider.TriggerCharacters, provider.RetriggerCharacters, s)
}

// DeclaredCapabilities returns the client capabilities for the
// initialize request.
func (m *Manager) DeclaredCapabilities() ClientCapabilities {
	return DeclaredCapabilities()
}
