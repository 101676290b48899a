// Copyright © 2024 The ELPS authors

package sighelp

import (
	"github.com/google/go-cmp/cmp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Result is an accepted signature help answer together with the server
// that produced it.
type Result struct {
	ServerName string
	Help       protocol.SignatureHelp
}

// Equal reports whether r and other are structurally equal, server name
// included. Two nil results are equal.
func (r *Result) Equal(other *Result) bool {
	if r == nil || other == nil {
		return r == nil && other == nil
	}
	return cmp.Equal(*r, *other)
}

// ActiveSignature returns the index of the signature to display:
// help.ActiveSignature when it is within bounds, otherwise 0.
func ActiveSignature(help *protocol.SignatureHelp) int {
	if help.ActiveSignature != nil && int(*help.ActiveSignature) < len(help.Signatures) {
		return int(*help.ActiveSignature)
	}
	return 0
}

// ActiveParameter returns the index of the parameter to highlight in sig.
// The signature's own activeParameter wins over the result-level one;
// each is only used when it is within sig's parameter list.
func ActiveParameter(help *protocol.SignatureHelp, sig protocol.SignatureInformation) int {
	n := len(sig.Parameters)
	if sig.ActiveParameter != nil && int(*sig.ActiveParameter) < n {
		return int(*sig.ActiveParameter)
	}
	if help.ActiveParameter != nil && int(*help.ActiveParameter) < n {
		return int(*help.ActiveParameter)
	}
	return 0
}
