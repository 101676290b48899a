// Copyright © 2024 The ELPS authors

package sighelp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// labelBorder pads the label with one space on each side. The left pad is
// the byte that ParameterRange skips.
var labelBorder = [4]string{"", " ", "", " "}

// Presenter turns signature help into popup surface calls.
type Presenter struct {
	surface       Surface
	notifier      Notifier
	documentation bool
	log           *slog.Logger
}

// NewPresenter creates a presenter drawing on surface.
func NewPresenter(surface Surface, notifier Notifier, opts ...Option) *Presenter {
	cfg := newConfig(opts...)
	return &Presenter{
		surface:       surface,
		notifier:      notifier,
		documentation: cfg.documentation,
		log:           cfg.logger,
	}
}

// Show displays the active signature of help with its active parameter
// highlighted. When help has no signatures it emits a warning notice and
// returns a nil popup.
func (p *Presenter) Show(ctx context.Context, help *protocol.SignatureHelp) (Popup, error) {
	if help == nil || len(help.Signatures) == 0 {
		if p.notifier != nil {
			p.notifier.Notify(ctx, ErrEmptyResult.Error(), NoticeWarning)
		}
		return nil, nil
	}
	sig := help.Signatures[ActiveSignature(help)]
	rng := ParameterRange(sig, ActiveParameter(help, sig))

	var extra []string
	if p.documentation {
		extra = documentationLines(sig.Documentation)
	}
	return p.Present(ctx, sig.Label, rng, extra...)
}

// Present opens a popup above the cursor showing content, shifted left
// so that the highlighted span starts at the cursor column. Extra lines
// are shown below the content without highlighting.
func (p *Presenter) Present(ctx context.Context, content string, highlight *protocol.Range, extra ...string) (Popup, error) {
	placement := Placement{
		Line:   -1,
		Anchor: AnchorBotLeft,
		Border: labelBorder,
	}
	if highlight != nil {
		placement.Col = -int(highlight.Start.Character)
	}
	contents := append([]string{content}, extra...)
	popup, err := p.surface.Open(ctx, contents, placement)
	if err != nil {
		return nil, fmt.Errorf("open popup: %w", err)
	}
	if highlight != nil {
		if err := p.surface.ApplyHighlight(ctx, popup, *highlight, ActiveParameterStyle); err != nil {
			p.log.Warn("highlight active parameter", "err", err)
		}
	}
	if r, ok := p.surface.(Redrawer); ok {
		if err := r.Redraw(ctx); err != nil {
			return popup, fmt.Errorf("redraw: %w", err)
		}
	}
	return popup, nil
}

// documentationLines flattens signature documentation, which is either a
// string or MarkupContent (decoded or typed).
func documentationLines(doc any) []string {
	var text string
	switch d := doc.(type) {
	case string:
		text = d
	case protocol.MarkupContent:
		text = d.Value
	case *protocol.MarkupContent:
		if d != nil {
			text = d.Value
		}
	case map[string]any:
		text, _ = d["value"].(string)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
