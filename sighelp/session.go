// Copyright © 2024 The ELPS authors

package sighelp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// State is the popup state of a session.
type State int

const (
	StateIdle State = iota
	StateShowing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateShowing:
		return "showing"
	default:
		return "unknown"
	}
}

// Session is the signature help controller of one buffer. It implements
// EventSink.
//
// Every operation takes a sequence number before it dispatches. A
// dispatch that resolves after a newer operation has started is
// discarded, so overlapping requests cannot apply out of order.
type Session struct {
	bufferID   int
	dispatcher *Dispatcher
	presenter  *Presenter
	log        *slog.Logger

	mu      sync.Mutex
	seq     uint64
	timeout time.Duration
	last    *Result
	popup   Popup
}

var _ EventSink = (*Session)(nil)

// NewSession creates a session for bufferID.
func NewSession(bufferID int, dispatcher *Dispatcher, presenter *Presenter, opts ...Option) *Session {
	cfg := newConfig(opts...)
	return &Session{
		bufferID:   bufferID,
		dispatcher: dispatcher,
		presenter:  presenter,
		log:        cfg.logger.With("buffer", bufferID),
		timeout:    cfg.timeout,
	}
}

// SetTimeout sets the timeout used for automatic triggers.
func (s *Session) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

// State reports whether a popup is currently open.
func (s *Session) State(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.popupOpen(ctx) {
		return StateShowing
	}
	return StateIdle
}

// LastResult returns the most recently accepted result, or nil.
func (s *Session) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// OnTriggerEvent handles an automatic trigger from the editor glue.
func (s *Session) OnTriggerEvent(ctx context.Context, ev TriggerEvent) error {
	if err := validateTriggerEvent(ev); err != nil {
		return err
	}
	switch ev := ev.(type) {
	case ContentChange, *ContentChange:
		return s.onContentChange(ctx)
	case TriggerCharacter:
		return s.onTriggerCharacter(ctx, ev)
	case *TriggerCharacter:
		return s.onTriggerCharacter(ctx, *ev)
	default:
		panic("unreachable: trigger event passed validation")
	}
}

// onContentChange re-requests signature help, retriggering when a popup
// is open. A result equal to the displayed one leaves the popup alone.
func (s *Session) onContentChange(ctx context.Context) error {
	s.mu.Lock()
	seq := s.advance()
	retrigger := s.popupOpen(ctx)
	shctx := protocol.SignatureHelpContext{
		TriggerKind:         protocol.SignatureHelpTriggerKindContentChange,
		IsRetrigger:         retrigger,
		ActiveSignatureHelp: s.activeHelp(retrigger),
	}
	timeout := s.timeout
	s.mu.Unlock()

	res := s.dispatcher.Dispatch(ctx, s.bufferID, timeout, shctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(seq) {
		return nil
	}
	if res.Equal(s.last) {
		return nil
	}
	s.closePopup(ctx)
	if res == nil {
		return nil
	}
	return s.accept(ctx, res)
}

// onTriggerCharacter always replaces the popup, even when the result did
// not change.
func (s *Session) onTriggerCharacter(ctx context.Context, ev TriggerCharacter) error {
	s.mu.Lock()
	seq := s.advance()
	retrigger := ev.IsRetrigger && s.popupOpen(ctx)
	char := ev.Char
	shctx := protocol.SignatureHelpContext{
		TriggerKind:         protocol.SignatureHelpTriggerKindTriggerCharacter,
		TriggerCharacter:    &char,
		IsRetrigger:         retrigger,
		ActiveSignatureHelp: s.activeHelp(retrigger),
	}
	timeout := s.timeout
	s.mu.Unlock()

	res := s.dispatcher.Dispatch(ctx, s.bufferID, timeout, shctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(seq) {
		return nil
	}
	s.closePopup(ctx)
	if res == nil {
		return nil
	}
	return s.accept(ctx, res)
}

// Invoke shows signature help for the cursor now. Any open popup is
// closed before the request is sent.
func (s *Session) Invoke(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	seq := s.advance()
	retrigger := s.popupOpen(ctx)
	shctx := protocol.SignatureHelpContext{
		TriggerKind:         protocol.SignatureHelpTriggerKindInvoked,
		IsRetrigger:         retrigger,
		ActiveSignatureHelp: s.activeHelp(retrigger),
	}
	s.closePopup(ctx)
	s.mu.Unlock()

	res := s.dispatcher.Dispatch(ctx, s.bufferID, timeout, shctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(seq) || res == nil {
		return nil
	}
	return s.accept(ctx, res)
}

// Close dismisses the popup. The last result is kept. Requests still in
// flight are discarded when they resolve.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.closePopup(ctx)
	return nil
}

// advance starts a new operation. Callers hold mu.
func (s *Session) advance() uint64 {
	s.seq++
	return s.seq
}

func (s *Session) stale(seq uint64) bool {
	if seq != s.seq {
		s.log.Debug("discarding stale signature help", "seq", seq, "latest", s.seq)
		return true
	}
	return false
}

func (s *Session) popupOpen(ctx context.Context) bool {
	return s.popup != nil && s.popup.IsOpen(ctx)
}

// activeHelp returns the help to send back to the server on a retrigger.
func (s *Session) activeHelp(retrigger bool) *protocol.SignatureHelp {
	if !retrigger || s.last == nil {
		return nil
	}
	help := s.last.Help
	return &help
}

func (s *Session) closePopup(ctx context.Context) {
	if s.popup == nil {
		return
	}
	if err := s.popup.Close(ctx); err != nil {
		s.log.Warn("close popup", "err", err)
	}
	s.popup = nil
}

// accept stores res as the displayed result and renders it.
func (s *Session) accept(ctx context.Context, res *Result) error {
	s.last = res
	s.closePopup(ctx)
	popup, err := s.presenter.Show(ctx, &res.Help)
	if err != nil {
		s.log.Error("show signature help", "server", res.ServerName, "err", err)
	}
	s.popup = popup
	return err
}
