// Copyright © 2024 The ELPS authors

package sighelp

import protocol "github.com/tliron/glsp/protocol_3_16"

// ClientCapabilities is the part of the LSP client capabilities this
// package contributes to the initialize request.
type ClientCapabilities struct {
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// TextDocumentClientCapabilities holds the text document features the
// client declares.
type TextDocumentClientCapabilities struct {
	SignatureHelp *SignatureHelpClientCapabilities `json:"signatureHelp,omitempty"`
}

// SignatureHelpClientCapabilities is the client side of the
// textDocument/signatureHelp feature.
type SignatureHelpClientCapabilities struct {
	DynamicRegistration  *bool                             `json:"dynamicRegistration,omitempty"`
	SignatureInformation *SignatureInformationCapabilities `json:"signatureInformation,omitempty"`
	ContextSupport       *bool                             `json:"contextSupport,omitempty"`
}

// SignatureInformationCapabilities lists the signature fields the client
// understands.
type SignatureInformationCapabilities struct {
	DocumentationFormat    []protocol.MarkupKind             `json:"documentationFormat,omitempty"`
	ParameterInformation   *ParameterInformationCapabilities `json:"parameterInformation,omitempty"`
	ActiveParameterSupport *bool                             `json:"activeParameterSupport,omitempty"`
}

// ParameterInformationCapabilities reports whether parameter labels may
// be given as offsets into the signature label.
type ParameterInformationCapabilities struct {
	LabelOffsetSupport *bool `json:"labelOffsetSupport,omitempty"`
}

// DeclaredCapabilities returns the static signature help capabilities:
// markdown and plain text documentation, label offsets, active parameter
// and trigger context support, no dynamic registration.
func DeclaredCapabilities() ClientCapabilities {
	return ClientCapabilities{
		TextDocument: &TextDocumentClientCapabilities{
			SignatureHelp: &SignatureHelpClientCapabilities{
				DynamicRegistration: boolPtr(false),
				SignatureInformation: &SignatureInformationCapabilities{
					DocumentationFormat: []protocol.MarkupKind{
						protocol.MarkupKindMarkdown,
						protocol.MarkupKindPlainText,
					},
					ParameterInformation: &ParameterInformationCapabilities{
						LabelOffsetSupport: boolPtr(true),
					},
					ActiveParameterSupport: boolPtr(true),
				},
				ContextSupport: boolPtr(true),
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
