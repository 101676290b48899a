// Copyright © 2024 The ELPS authors

package sighelp

import (
	"encoding/json"
	"fmt"
)

// TriggerEvent is the reason an automatic signature help request is made.
// The only implementations are ContentChange and TriggerCharacter.
type TriggerEvent interface {
	isTriggerEvent()
}

// ContentChange signals that the document text changed near the cursor.
type ContentChange struct{}

// TriggerCharacter signals that a character the server declared as a
// trigger or retrigger character was typed.
type TriggerCharacter struct {
	Char        string
	IsTrigger   bool
	IsRetrigger bool
}

func (ContentChange) isTriggerEvent()    {}
func (TriggerCharacter) isTriggerEvent() {}

// Wire names of the event kinds accepted by DecodeTriggerEvent.
const (
	KindContentChange    = "contentChange"
	KindTriggerCharacter = "triggerCharacter"
)

type wireTriggerEvent struct {
	Kind        string  `json:"kind"`
	Char        *string `json:"char,omitempty"`
	IsTrigger   *bool   `json:"isTrigger,omitempty"`
	IsRetrigger *bool   `json:"isRetrigger,omitempty"`
}

// DecodeTriggerEvent parses the JSON form of a trigger event:
//
//	{"kind":"contentChange"}
//	{"kind":"triggerCharacter","char":"(","isTrigger":true,"isRetrigger":false}
//
// Unknown kinds and missing fields yield ErrInvalidTriggerEvent.
func DecodeTriggerEvent(data []byte) (TriggerEvent, error) {
	var w wireTriggerEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTriggerEvent, err)
	}
	switch w.Kind {
	case KindContentChange:
		return ContentChange{}, nil
	case KindTriggerCharacter:
		if w.Char == nil || w.IsTrigger == nil || w.IsRetrigger == nil {
			return nil, fmt.Errorf("%w: %s requires char, isTrigger and isRetrigger", ErrInvalidTriggerEvent, w.Kind)
		}
		ev := TriggerCharacter{Char: *w.Char, IsTrigger: *w.IsTrigger, IsRetrigger: *w.IsRetrigger}
		if err := validateTriggerEvent(ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTriggerEvent, w.Kind)
	}
}

// validateTriggerEvent rejects nil events, foreign implementations and
// trigger characters without a character.
func validateTriggerEvent(ev TriggerEvent) error {
	switch ev := ev.(type) {
	case ContentChange, *ContentChange:
		return nil
	case TriggerCharacter:
		if ev.Char == "" {
			return fmt.Errorf("%w: empty trigger character", ErrInvalidTriggerEvent)
		}
		return nil
	case *TriggerCharacter:
		if ev == nil {
			return fmt.Errorf("%w: nil event", ErrInvalidTriggerEvent)
		}
		return validateTriggerEvent(*ev)
	case nil:
		return fmt.Errorf("%w: nil event", ErrInvalidTriggerEvent)
	default:
		return fmt.Errorf("%w: unexpected type %T", ErrInvalidTriggerEvent, ev)
	}
}
