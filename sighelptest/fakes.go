// Copyright © 2024 The ELPS authors

// Package sighelptest provides recording fakes of the sighelp
// collaborators and test logging helpers.
package sighelptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/luthersystems/sighelp/sighelp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Handler answers a request in a Registry. The returned value is
// marshalled to JSON and decoded into the caller's result, the way a
// real transport would.
type Handler func(ctx context.Context, server, method string, params any) (any, error)

// Registry is an in-memory server registry.
type Registry struct {
	mu      sync.Mutex
	servers map[int][]sighelp.ServerInfo
	handler Handler
	calls   []Call

	// Block, when non-nil, is received from before a request is
	// answered. The request context is ignored while blocked, like a
	// server that does not support cancellation.
	Block chan struct{}
}

// Call records one Request.
type Call struct {
	Server string
	Method string
	Params any
}

// NewRegistry creates a registry answering requests with h.
func NewRegistry(h Handler) *Registry {
	return &Registry{servers: make(map[int][]sighelp.ServerInfo), handler: h}
}

// Attach attaches servers to a buffer in order.
func (r *Registry) Attach(bufferID int, servers ...sighelp.ServerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[bufferID] = append(r.servers[bufferID], servers...)
}

// SetHandler replaces the request handler.
func (r *Registry) SetHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *Registry) AttachedServers(bufferID int) []sighelp.ServerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sighelp.ServerInfo(nil), r.servers[bufferID]...)
}

func (r *Registry) Request(ctx context.Context, server, method string, params, result any) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Server: server, Method: method, Params: params})
	h := r.handler
	block := r.Block
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if h == nil {
		return fmt.Errorf("no handler for %s", method)
	}
	v, err := h(ctx, server, method, params)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, result)
}

// Calls returns the recorded requests.
func (r *Registry) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// SignatureHelpParams returns the params of the i-th request.
func (r *Registry) SignatureHelpParams(i int) *protocol.SignatureHelpParams {
	calls := r.Calls()
	if i < 0 || i >= len(calls) {
		return nil
	}
	p, _ := calls[i].Params.(*protocol.SignatureHelpParams)
	return p
}

// Returning answers every request with help.
func Returning(help *protocol.SignatureHelp) Handler {
	return func(context.Context, string, string, any) (any, error) {
		return help, nil
	}
}

// ServerWithSignatureHelp returns a server advertising signature help
// with the given trigger and retrigger characters.
func ServerWithSignatureHelp(name string, trigger, retrigger []string) sighelp.ServerInfo {
	return sighelp.ServerInfo{
		Name: name,
		Capabilities: protocol.ServerCapabilities{
			SignatureHelpProvider: &protocol.SignatureHelpOptions{
				TriggerCharacters:   trigger,
				RetriggerCharacters: retrigger,
			},
		},
	}
}

// Documents is a fixed document/cursor provider.
type Documents struct {
	mu       sync.Mutex
	Current  int
	URIs     map[int]protocol.DocumentUri
	Position protocol.Position
}

func (d *Documents) CurrentBuffer(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Current, nil
}

func (d *Documents) DocumentURI(_ context.Context, bufferID int) (protocol.DocumentUri, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	uri, ok := d.URIs[bufferID]
	if !ok {
		return "", fmt.Errorf("unknown buffer %d", bufferID)
	}
	return uri, nil
}

func (d *Documents) CursorPosition(context.Context) (protocol.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Position, nil
}

// Notice is a recorded notification.
type Notice struct {
	Message string
	Level   sighelp.NoticeLevel
}

// Notifier records notices.
type Notifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *Notifier) Notify(_ context.Context, msg string, level sighelp.NoticeLevel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, Notice{Message: msg, Level: level})
}

// Notices returns the recorded notices.
func (n *Notifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

// Messages returns the recorded notice messages.
func (n *Notifier) Messages() []string {
	var msgs []string
	for _, notice := range n.Notices() {
		msgs = append(msgs, notice.Message)
	}
	return msgs
}

// Highlight is a recorded ApplyHighlight call.
type Highlight struct {
	Popup *Popup
	Range protocol.Range
	Style sighelp.HighlightStyle
}

// Surface records popup operations.
type Surface struct {
	mu         sync.Mutex
	popups     []*Popup
	highlights []Highlight
	redraws    int

	// OpenErr, when set, is returned by Open.
	OpenErr error
}

var (
	_ sighelp.Surface  = (*Surface)(nil)
	_ sighelp.Redrawer = (*Surface)(nil)
)

// Popup is a popup opened on a Surface.
type Popup struct {
	surface    *Surface
	Contents   []string
	Placement  sighelp.Placement
	open       bool
	closeCalls int
}

func (s *Surface) Open(_ context.Context, contents []string, placement sighelp.Placement) (sighelp.Popup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	p := &Popup{surface: s, Contents: contents, Placement: placement, open: true}
	s.popups = append(s.popups, p)
	return p, nil
}

func (s *Surface) ApplyHighlight(_ context.Context, p sighelp.Popup, rng protocol.Range, style sighelp.HighlightStyle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := p.(*Popup)
	if !ok {
		return fmt.Errorf("foreign popup %T", p)
	}
	s.highlights = append(s.highlights, Highlight{Popup: fp, Range: rng, Style: style})
	return nil
}

func (s *Surface) Redraw(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redraws++
	return nil
}

// Popups returns every popup opened so far.
func (s *Surface) Popups() []*Popup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Popup(nil), s.popups...)
}

// Highlights returns every highlight applied so far.
func (s *Surface) Highlights() []Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Highlight(nil), s.highlights...)
}

// OpenPopups returns the popups that are still open.
func (s *Surface) OpenPopups() []*Popup {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*Popup
	for _, p := range s.popups {
		if p.open {
			open = append(open, p)
		}
	}
	return open
}

// CloseCalls returns the total number of Close calls on all popups.
func (s *Surface) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.popups {
		n += p.closeCalls
	}
	return n
}

// Redraws returns the number of Redraw calls.
func (s *Surface) Redraws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redraws
}

func (p *Popup) IsOpen(context.Context) bool {
	p.surface.mu.Lock()
	defer p.surface.mu.Unlock()
	return p.open
}

func (p *Popup) Close(context.Context) error {
	p.surface.mu.Lock()
	defer p.surface.mu.Unlock()
	p.closeCalls++
	p.open = false
	return nil
}

// Dismiss closes the popup from the editor side without going through
// the session, as when the user closes the window.
func (p *Popup) Dismiss() {
	p.surface.mu.Lock()
	defer p.surface.mu.Unlock()
	p.open = false
}

// CloseCalls returns how many times Close was called on p.
func (p *Popup) CloseCalls() int {
	p.surface.mu.Lock()
	defer p.surface.mu.Unlock()
	return p.closeCalls
}
