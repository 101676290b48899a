// Copyright © 2024 The ELPS authors

package sighelp

import (
	"encoding/json"
	"math"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LabelLine is the line number used in parameter ranges. It does not
// refer to a document line; it names the single rendered label line.
const LabelLine protocol.UInteger = 1

// ParameterRange computes the byte span of the active parameter within
// sig.Label, shifted by one byte for the padding glyph the popup draws in
// front of the label. It returns nil when the signature has no parameter
// list, when active is out of range, or when a string label cannot be
// found in the signature label.
//
// String labels match the first occurrence in the signature label.
// Offset labels [start, end) are returned as [start+1, end+1).
func ParameterRange(sig protocol.SignatureInformation, active int) *protocol.Range {
	if sig.Parameters == nil {
		return nil
	}
	if active < 0 || active >= len(sig.Parameters) {
		return nil
	}
	label := sig.Parameters[active].Label
	if s, ok := label.(string); ok {
		idx := strings.Index(sig.Label, s)
		if idx < 0 {
			return nil
		}
		return labelRange(safeUint(idx), safeUint(idx+len(s)))
	}
	start, end, ok := labelOffsets(label)
	if !ok {
		return nil
	}
	return labelRange(start, end)
}

func labelRange(start, end protocol.UInteger) *protocol.Range {
	return &protocol.Range{
		Start: protocol.Position{Line: LabelLine, Character: start + 1},
		End:   protocol.Position{Line: LabelLine, Character: end + 1},
	}
}

// labelOffsets extracts an offset pair from a parameter label. Labels
// built in Go arrive as []UInteger; labels decoded from JSON arrive as
// []any of float64 (or json.Number).
func labelOffsets(label any) (protocol.UInteger, protocol.UInteger, bool) {
	var pair []protocol.UInteger
	switch v := label.(type) {
	case []protocol.UInteger:
		pair = v
	case [2]protocol.UInteger:
		pair = v[:]
	case []int:
		for _, n := range v {
			pair = append(pair, safeUint(n))
		}
	case []any:
		for _, elem := range v {
			n, ok := offsetValue(elem)
			if !ok {
				return 0, 0, false
			}
			pair = append(pair, n)
		}
	default:
		return 0, 0, false
	}
	if len(pair) != 2 || pair[0] > pair[1] {
		return 0, 0, false
	}
	return pair[0], pair[1], true
}

func offsetValue(v any) (protocol.UInteger, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
			return 0, false
		}
		return protocol.UInteger(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 || i > math.MaxUint32 {
			return 0, false
		}
		return protocol.UInteger(i), true
	case int:
		if n < 0 {
			return 0, false
		}
		return safeUint(n), true
	case protocol.UInteger:
		return n, true
	default:
		return 0, false
	}
}

// safeUint converts a non-negative int to protocol.UInteger, clamping
// negative values to zero.
func safeUint(n int) protocol.UInteger {
	if n < 0 {
		return 0
	}
	return protocol.UInteger(n) // #nosec G115 -- label offsets are small
}
