// Copyright © 2024 The ELPS authors

package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/luthersystems/sighelp/sighelp"
)

// ChangeFunc is called after every edit, before any trigger event for
// the edit is emitted, so servers see the new text first.
type ChangeFunc func(ctx context.Context, b *Buffer) error

// Glue watches buffers for automatic signature help. It implements
// sighelp.AutoTrigger.
type Glue struct {
	store    *Store
	onChange ChangeFunc
	log      *slog.Logger

	mu   sync.Mutex
	regs map[int]*registration
}

type registration struct {
	trigger   map[string]bool
	retrigger map[string]bool
	sink      sighelp.EventSink
}

var _ sighelp.AutoTrigger = (*Glue)(nil)

// GlueOption configures a Glue.
type GlueOption func(*Glue)

// WithChangeHook sets the function called after every edit.
func WithChangeHook(fn ChangeFunc) GlueOption {
	return func(g *Glue) { g.onChange = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GlueOption {
	return func(g *Glue) { g.log = l }
}

// NewGlue creates glue over the buffers of store.
func NewGlue(store *Store, opts ...GlueOption) *Glue {
	g := &Glue{
		store: store,
		regs:  make(map[int]*registration),
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// EnableAutoTrigger starts emitting events for bufferID to sink,
// replacing any earlier registration for the buffer.
func (g *Glue) EnableAutoTrigger(_ context.Context, bufferID int, triggerChars, retriggerChars []string, sink sighelp.EventSink) error {
	if g.store.Get(bufferID) == nil {
		return fmt.Errorf("%w: %d", ErrNoBuffer, bufferID)
	}
	if sink == nil {
		return fmt.Errorf("enable auto trigger for buffer %d: nil sink", bufferID)
	}
	reg := &registration{
		trigger:   charSet(triggerChars),
		retrigger: charSet(retriggerChars),
		sink:      sink,
	}
	g.mu.Lock()
	g.regs[bufferID] = reg
	g.mu.Unlock()
	return nil
}

// DisableAutoTrigger stops emitting events for bufferID.
func (g *Glue) DisableAutoTrigger(bufferID int) {
	g.mu.Lock()
	delete(g.regs, bufferID)
	g.mu.Unlock()
}

// Enabled reports whether automatic triggers are registered for bufferID.
func (g *Glue) Enabled(bufferID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.regs[bufferID]
	return ok
}

func (g *Glue) registration(bufferID int) *registration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.regs[bufferID]
}

// Type inserts text at the cursor of bufferID one character at a time.
// After each character the change hook runs and, when automatic triggers
// are enabled, the sink receives a TriggerCharacter event for trigger and
// retrigger characters and a ContentChange event otherwise.
func (g *Glue) Type(ctx context.Context, bufferID int, text string) error {
	b := g.store.Get(bufferID)
	if b == nil {
		return fmt.Errorf("%w: %d", ErrNoBuffer, bufferID)
	}
	for _, r := range text {
		ch := string(r)
		b.Insert(ch)
		if g.onChange != nil {
			if err := g.onChange(ctx, b); err != nil {
				g.log.Warn("change hook", "buffer", bufferID, "err", err)
			}
		}
		reg := g.registration(bufferID)
		if reg == nil {
			continue
		}
		if err := reg.sink.OnTriggerEvent(ctx, reg.classify(ch)); err != nil {
			return err
		}
	}
	return nil
}

// LeaveInsert tells the sink of bufferID that insert mode ended.
func (g *Glue) LeaveInsert(ctx context.Context, bufferID int) error {
	reg := g.registration(bufferID)
	if reg == nil {
		return nil
	}
	return reg.sink.Close(ctx)
}

func (r *registration) classify(ch string) sighelp.TriggerEvent {
	isTrigger := r.trigger[ch]
	isRetrigger := r.retrigger[ch]
	if !isTrigger && !isRetrigger {
		return sighelp.ContentChange{}
	}
	return sighelp.TriggerCharacter{Char: ch, IsTrigger: isTrigger, IsRetrigger: isRetrigger}
}

func charSet(chars []string) map[string]bool {
	set := make(map[string]bool, len(chars))
	for _, c := range chars {
		set[c] = true
	}
	return set
}
