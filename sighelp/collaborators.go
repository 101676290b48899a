// Copyright © 2024 The ELPS authors

package sighelp

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// MethodSignatureHelp is the LSP request method issued by the dispatcher.
const MethodSignatureHelp = "textDocument/signatureHelp"

// ServerInfo describes a language server attached to a buffer.
type ServerInfo struct {
	Name         string
	Capabilities protocol.ServerCapabilities
}

// SupportsSignatureHelp reports whether the server advertised a
// signatureHelpProvider.
func (s ServerInfo) SupportsSignatureHelp() bool {
	return s.Capabilities.SignatureHelpProvider != nil
}

// Registry is the server registry. Request decodes the response into
// result, which must be a pointer.
type Registry interface {
	AttachedServers(bufferID int) []ServerInfo
	Request(ctx context.Context, server, method string, params, result any) error
}

// Documents resolves buffers to document identities and reports the
// cursor of the current buffer.
type Documents interface {
	CurrentBuffer(ctx context.Context) (int, error)
	DocumentURI(ctx context.Context, bufferID int) (protocol.DocumentUri, error)
	CursorPosition(ctx context.Context) (protocol.Position, error)
}

// Anchor names the popup corner placed at the cursor.
type Anchor string

// AnchorBotLeft places the popup's bottom left corner at the cursor.
const AnchorBotLeft Anchor = "botleft"

// Placement holds hints for the popup surface. Line and Col are relative
// to the cursor. Border lists top, right, bottom and left border glyphs;
// an empty string means no border on that side.
type Placement struct {
	Line   int
	Col    int
	Anchor Anchor
	Border [4]string
}

// HighlightStyle names a highlight type and the editor group it links to.
type HighlightStyle struct {
	Name  string
	Group string
}

// ActiveParameterStyle is applied to the active parameter span.
var ActiveParameterStyle = HighlightStyle{
	Name:  "sighelp.activeparameter",
	Group: "Type",
}

// Popup is a handle to an open popup.
type Popup interface {
	IsOpen(ctx context.Context) bool
	Close(ctx context.Context) error
}

// Surface is the popup rendering primitive.
type Surface interface {
	Open(ctx context.Context, contents []string, placement Placement) (Popup, error)
	ApplyHighlight(ctx context.Context, p Popup, rng protocol.Range, style HighlightStyle) error
}

// Redrawer is implemented by surfaces that buffer output until asked to
// redraw.
type Redrawer interface {
	Redraw(ctx context.Context) error
}

// NoticeLevel selects how a notice is emphasised.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
)

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(ctx context.Context, msg string, level NoticeLevel)
}

// EventSink receives automatic triggers from the editor glue.
type EventSink interface {
	OnTriggerEvent(ctx context.Context, ev TriggerEvent) error
	Close(ctx context.Context) error
}

// AutoTrigger is the editor glue that watches a buffer and calls the sink
// on content changes, (re)trigger characters and insert-leave.
type AutoTrigger interface {
	EnableAutoTrigger(ctx context.Context, bufferID int, triggerChars, retriggerChars []string, sink EventSink) error
}
