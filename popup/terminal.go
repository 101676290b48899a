// Copyright © 2024 The ELPS authors

// Package popup draws signature help popups and notices on a terminal.
package popup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Terminal is a popup surface and notifier writing to a terminal. Popups
// are buffered and written by Redraw.
type Terminal struct {
	w       io.Writer
	palette palette
	width   int
	column  func() int
	log     *slog.Logger

	mu      sync.Mutex
	current *Popup
}

var (
	_ sighelp.Surface  = (*Terminal)(nil)
	_ sighelp.Redrawer = (*Terminal)(nil)
	_ sighelp.Notifier = (*Terminal)(nil)
)

// Option configures a Terminal.
type Option func(*terminalConfig)

type terminalConfig struct {
	color  ColorMode
	width  int
	column func() int
	logger *slog.Logger
}

// WithColor sets the color mode. The default is ColorAuto.
func WithColor(mode ColorMode) Option {
	return func(c *terminalConfig) { c.color = mode }
}

// WithWidth truncates popup lines to n columns. Zero means no limit.
func WithWidth(n int) Option {
	return func(c *terminalConfig) { c.width = n }
}

// WithCursorColumn sets the function reporting the display column of the
// cursor, used to anchor popups.
func WithCursorColumn(fn func() int) Option {
	return func(c *terminalConfig) { c.column = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *terminalConfig) { c.logger = l }
}

// New creates a terminal surface writing to w.
func New(w io.Writer, opts ...Option) *Terminal {
	cfg := terminalConfig{logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.column == nil {
		cfg.column = func() int { return 0 }
	}
	return &Terminal{
		w:       w,
		palette: choosePalette(cfg.color, w),
		width:   cfg.width,
		column:  cfg.column,
		log:     cfg.logger,
	}
}

// Popup is a popup drawn by a Terminal.
type Popup struct {
	t          *Terminal
	contents   []string
	placement  sighelp.Placement
	anchor     int
	highlights []highlight
	open       bool
}

type highlight struct {
	rng   protocol.Range
	style sighelp.HighlightStyle
}

// Open creates a popup anchored at the current cursor column.
func (t *Terminal) Open(_ context.Context, contents []string, placement sighelp.Placement) (sighelp.Popup, error) {
	if len(contents) == 0 {
		return nil, fmt.Errorf("popup: no contents")
	}
	p := &Popup{
		t:         t,
		contents:  append([]string(nil), contents...),
		placement: placement,
		anchor:    t.column(),
		open:      true,
	}
	t.mu.Lock()
	t.current = p
	t.mu.Unlock()
	return p, nil
}

// ApplyHighlight highlights a span of the first popup line. The range
// columns are 1-based byte columns into the content.
func (t *Terminal) ApplyHighlight(_ context.Context, sp sighelp.Popup, rng protocol.Range, style sighelp.HighlightStyle) error {
	p, ok := sp.(*Popup)
	if !ok || p.t != t {
		return fmt.Errorf("popup: foreign popup %T", sp)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p.highlights = append(p.highlights, highlight{rng: rng, style: style})
	return nil
}

// Redraw writes the open popup, if any.
func (t *Terminal) Redraw(context.Context) error {
	t.mu.Lock()
	p := t.current
	var frame string
	if p != nil && p.open {
		frame = t.render(p)
	}
	t.mu.Unlock()
	if frame == "" {
		return nil
	}
	_, err := io.WriteString(t.w, frame)
	return err
}

// Current returns the open popup, or nil.
func (t *Terminal) Current() *Popup {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || !t.current.open {
		return nil
	}
	return t.current
}

// Notify prints a notice line.
func (t *Terminal) Notify(_ context.Context, msg string, level sighelp.NoticeLevel) {
	color := ""
	if level == sighelp.NoticeWarning {
		color = t.palette.group("WarningMsg")
	}
	reset := ""
	if color != "" {
		reset = t.palette.reset
	}
	if _, err := fmt.Fprintf(t.w, "%s-- %s%s\n", color, msg, reset); err != nil {
		t.log.Warn("write notice", "err", err)
	}
}

// IsOpen reports whether the popup has not been closed.
func (p *Popup) IsOpen(context.Context) bool {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	return p.open
}

// Close closes the popup. Closing twice is a no-op.
func (p *Popup) Close(context.Context) error {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	p.open = false
	if p.t.current == p {
		p.t.current = nil
	}
	return nil
}

// Lines returns the popup as it would be drawn, without the trailing
// newline.
func (p *Popup) Lines() []string {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	return strings.Split(strings.TrimSuffix(p.t.render(p), "\n"), "\n")
}

// render draws p. Callers hold t.mu.
func (t *Terminal) render(p *Popup) string {
	left, right := p.placement.Border[3], p.placement.Border[1]
	margin := p.anchor + p.placement.Col
	if margin < 0 {
		margin = 0
	}

	var sb strings.Builder
	ew := &errWriter{w: &sb}
	for i, content := range p.contents {
		var line string
		if i == 0 {
			line = left + t.highlightSpans(content, p.highlights) + right
		} else {
			line = left + t.palette.group("Comment") + content + t.palette.reset + right
			if t.width > 0 {
				line = wordwrap.String(line, t.width)
			}
		}
		line = indent.String(line, uint(margin))
		for _, l := range strings.Split(line, "\n") {
			if t.width > 0 {
				l = truncate.StringWithTail(l, uint(margin+t.width), "…")
			}
			ew.print(l)
			ew.print("\n")
		}
	}
	return sb.String()
}

// highlightSpans wraps the highlighted byte spans of content in palette
// colors. Spans are clamped to the content and to rune boundaries.
func (t *Terminal) highlightSpans(content string, hls []highlight) string {
	if len(hls) == 0 || t.palette == noPalette {
		return content
	}
	hl := hls[len(hls)-1]
	start := clampRune(content, int(hl.rng.Start.Character)-1)
	end := clampRune(content, int(hl.rng.End.Character)-1)
	if start >= end {
		return content
	}
	return content[:start] + t.palette.group(hl.style.Group) + content[start:end] + t.palette.reset + content[end:]
}

// clampRune clamps a byte offset into s and moves it back to the start of
// a rune.
func clampRune(s string, off int) int {
	if off < 0 {
		return 0
	}
	if off > len(s) {
		return len(s)
	}
	for off > 0 && off < len(s) && !utf8.RuneStart(s[off]) {
		off--
	}
	return off
}

// errWriter wraps a writer and captures the first error, short-circuiting
// subsequent writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) print(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = io.WriteString(ew.w, s)
}
