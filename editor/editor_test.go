// Copyright © 2024 The ELPS authors

package editor

import (
	"context"
	"errors"
	"testing"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func TestURIConversion(t *testing.T) {
	assert.Equal(t, "file:///tmp/main.go", PathToURI("/tmp/main.go"))
	assert.Equal(t, "rel/main.go", PathToURI("rel/main.go"))
	assert.Equal(t, "/tmp/main.go", URIToPath("file:///tmp/main.go"))
	assert.Equal(t, "untitled:1", URIToPath("untitled:1"))
}

func TestBuffer_InsertAndCursor(t *testing.T) {
	s := NewStore()
	b := s.Open("/tmp/main.go", "go", "package main\n\nfunc main() {\n\t\n}\n")

	require.NoError(t, b.SetCursor(3, 1))
	b.Insert("fmt.Println(")

	line, col := b.Cursor()
	assert.Equal(t, 3, line)
	assert.Equal(t, len("\tfmt.Println("), col)
	assert.Equal(t, "\tfmt.Println(", b.CurrentLine())
	assert.Equal(t, int32(2), b.Snapshot().Version)
	assert.Equal(t, protocol.Position{Line: 3, Character: 13}, b.Position())
}

func TestBuffer_SetCursorEnd(t *testing.T) {
	s := NewStore()
	b := s.Open("/tmp/main.go", "go", "a\nbc")
	b.SetCursorEnd()
	line, col := b.Cursor()
	assert.Equal(t, 1, line)
	assert.Equal(t, 2, col)
	assert.Equal(t, "bc", b.CurrentLine())
}

func TestBuffer_PositionCountsUTF16(t *testing.T) {
	s := NewStore()
	b := s.Open("/tmp/x.go", "go", "")
	b.Insert("x := f(\"é😀\", ")

	// é is one UTF-16 unit, 😀 is two.
	assert.Equal(t, protocol.Position{Line: 0, Character: 14}, b.Position())
	_, col := b.Cursor()
	assert.Equal(t, len("x := f(\"é😀\", "), col)
}

func TestBuffer_DisplayColumn(t *testing.T) {
	s := NewStore()
	b := s.Open("/tmp/x.go", "go", "first line\n")
	b.SetCursorEnd()
	b.Insert("f(\"世界\", ")

	_, col := b.Cursor()
	assert.Equal(t, 12, col)
	assert.Equal(t, 10, b.DisplayColumn(), "wide runes take two columns")
}

func TestBuffer_SetCursor(t *testing.T) {
	s := NewStore()
	b := s.Open("/tmp/x.go", "go", "αβγ\nabc")

	require.NoError(t, b.SetCursor(0, 2))
	_, col := b.Cursor()
	assert.Equal(t, 4, col, "two 2-byte runes")

	require.NoError(t, b.SetCursor(1, 10))
	line, col := b.Cursor()
	assert.Equal(t, 1, line)
	assert.Equal(t, 3, col, "clamped to line end")

	assert.Error(t, b.SetCursor(5, 0))
	assert.Error(t, b.SetCursor(-1, 0))
}

func TestStore_Documents(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.CurrentBuffer(ctx)
	assert.ErrorIs(t, err, ErrNoBuffer)

	a := s.Open("/tmp/a.go", "go", "a")
	b := s.Open("/tmp/b.go", "go", "b")

	id, err := s.CurrentBuffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	require.NoError(t, s.SetCurrent(a.ID))
	uri, err := s.DocumentURI(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/a.go", uri)
	assert.Len(t, s.All(), 2)

	s.Close(a.ID)
	_, err = s.CurrentBuffer(ctx)
	assert.ErrorIs(t, err, ErrNoBuffer)
	_, err = s.DocumentURI(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNoBuffer)
	assert.ErrorIs(t, s.SetCurrent(a.ID), ErrNoBuffer)
}

type recordingSink struct {
	events []sighelp.TriggerEvent
	closes int
	err    error
}

func (s *recordingSink) OnTriggerEvent(_ context.Context, ev sighelp.TriggerEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Close(context.Context) error {
	s.closes++
	return nil
}

func TestGlue_Type(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := s.Open("/tmp/main.go", "go", "")
	var versions []int32
	g := NewGlue(s, WithChangeHook(func(_ context.Context, b *Buffer) error {
		versions = append(versions, b.Snapshot().Version)
		return nil
	}))
	sink := &recordingSink{}
	require.NoError(t, g.EnableAutoTrigger(ctx, b.ID, []string{"(", ","}, []string{",", ")"}, sink))
	assert.True(t, g.Enabled(b.ID))

	require.NoError(t, g.Type(ctx, b.ID, "f(a,b)"))

	assert.Equal(t, "f(a,b)", b.Content())
	assert.Equal(t, []int32{2, 3, 4, 5, 6, 7}, versions)
	assert.Equal(t, []sighelp.TriggerEvent{
		sighelp.ContentChange{},
		sighelp.TriggerCharacter{Char: "(", IsTrigger: true},
		sighelp.ContentChange{},
		sighelp.TriggerCharacter{Char: ",", IsTrigger: true, IsRetrigger: true},
		sighelp.ContentChange{},
		sighelp.TriggerCharacter{Char: ")", IsRetrigger: true},
	}, sink.events)

	require.NoError(t, g.LeaveInsert(ctx, b.ID))
	assert.Equal(t, 1, sink.closes)
}

func TestGlue_Disabled(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := s.Open("/tmp/main.go", "go", "")
	g := NewGlue(s)
	sink := &recordingSink{}
	require.NoError(t, g.EnableAutoTrigger(ctx, b.ID, []string{"("}, nil, sink))
	g.DisableAutoTrigger(b.ID)

	require.NoError(t, g.Type(ctx, b.ID, "f("))
	require.NoError(t, g.LeaveInsert(ctx, b.ID))

	assert.Equal(t, "f(", b.Content())
	assert.Empty(t, sink.events)
	assert.Equal(t, 0, sink.closes)
}

func TestGlue_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := s.Open("/tmp/main.go", "go", "")
	g := NewGlue(s)

	assert.ErrorIs(t, g.EnableAutoTrigger(ctx, 42, nil, nil, &recordingSink{}), ErrNoBuffer)
	assert.Error(t, g.EnableAutoTrigger(ctx, b.ID, nil, nil, nil))
	assert.ErrorIs(t, g.Type(ctx, 42, "x"), ErrNoBuffer)

	sink := &recordingSink{err: errors.New("stop")}
	require.NoError(t, g.EnableAutoTrigger(ctx, b.ID, nil, nil, sink))
	assert.EqualError(t, g.Type(ctx, b.ID, "xy"), "stop")
	assert.Equal(t, "x", b.Content(), "typing stops at the failing event")
}
