// Copyright © 2024 The ELPS authors

// Package editor is a minimal text editing surface for signature help: a
// buffer store with cursors that provides document identities and cursor
// positions, and glue that turns typed text into trigger events.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/mattn/go-runewidth"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ErrNoBuffer is returned when no buffer is open or an id is unknown.
var ErrNoBuffer = errors.New("no such buffer")

// Buffer is an open text buffer with a cursor.
type Buffer struct {
	mu         sync.Mutex
	ID         int
	URI        string
	LanguageID string
	version    int32
	content    string
	cursor     int // byte offset into content
}

// Snapshot is a consistent copy of a buffer's text state.
type Snapshot struct {
	URI        string
	LanguageID string
	Version    int32
	Content    string
}

// Snapshot returns the buffer's current text state.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{URI: b.URI, LanguageID: b.LanguageID, Version: b.version, Content: b.content}
}

// Content returns the buffer text.
func (b *Buffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// Insert inserts text at the cursor and moves the cursor past it.
func (b *Buffer) Insert(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = b.content[:b.cursor] + text + b.content[b.cursor:]
	b.cursor += len(text)
	b.version++
}

// SetCursor moves the cursor to a 0-based line and 0-based rune column.
// Columns past the end of the line clamp to the line end.
func (b *Buffer) SetCursor(line, col int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if line < 0 || col < 0 {
		return fmt.Errorf("invalid cursor %d:%d", line, col)
	}
	start := 0
	for i := 0; i < line; i++ {
		nl := strings.IndexByte(b.content[start:], '\n')
		if nl < 0 {
			return fmt.Errorf("line %d out of range", line)
		}
		start += nl + 1
	}
	text := b.content[start:]
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[:nl]
	}
	off := 0
	for i := 0; i < col && off < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[off:])
		off += size
	}
	b.cursor = start + off
	return nil
}

// SetCursorEnd moves the cursor to the end of the buffer.
func (b *Buffer) SetCursorEnd() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = len(b.content)
}

// Cursor returns the 0-based line and byte column of the cursor.
func (b *Buffer) Cursor() (line, byteCol int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lineCol()
}

func (b *Buffer) lineCol() (int, int) {
	before := b.content[:b.cursor]
	line := strings.Count(before, "\n")
	lineStart := strings.LastIndexByte(before, '\n') + 1
	return line, b.cursor - lineStart
}

// DisplayColumn returns the terminal width of the current line up to the
// cursor. Wide characters count two columns.
func (b *Buffer) DisplayColumn() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, byteCol := b.lineCol()
	return runewidth.StringWidth(b.content[b.cursor-byteCol : b.cursor])
}

// CurrentLine returns the text of the cursor line.
func (b *Buffer) CurrentLine() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lineStart := strings.LastIndexByte(b.content[:b.cursor], '\n') + 1
	text := b.content[lineStart:]
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[:nl]
	}
	return text
}

// Position returns the cursor as an LSP position. The character offset
// counts UTF-16 code units, the protocol's default position encoding.
func (b *Buffer) Position() protocol.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	line, byteCol := b.lineCol()
	lineStart := b.cursor - byteCol
	return protocol.Position{
		Line:      safeUint(line),
		Character: safeUint(utf16Len(b.content[lineStart:b.cursor])),
	}
}

// utf16Len returns the number of UTF-16 code units needed for s.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// safeUint converts a non-negative int to protocol.UInteger, clamping
// negative values to zero.
func safeUint(n int) protocol.UInteger {
	if n < 0 {
		return 0
	}
	return protocol.UInteger(n) // #nosec G115 -- line/col are always small positive ints
}

// Store manages open buffers with thread-safe access. It implements
// sighelp.Documents.
type Store struct {
	mu      sync.RWMutex
	bufs    map[int]*Buffer
	nextID  int
	current int
}

var _ sighelp.Documents = (*Store)(nil)

// NewStore creates an empty buffer store.
func NewStore() *Store {
	return &Store{bufs: make(map[int]*Buffer)}
}

// Open adds a buffer for path and makes it current. The cursor starts at
// the beginning of the text.
func (s *Store) Open(path, languageID, content string) *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b := &Buffer{
		ID:         s.nextID,
		URI:        PathToURI(path),
		LanguageID: languageID,
		version:    1,
		content:    content,
	}
	s.bufs[b.ID] = b
	s.current = b.ID
	return b
}

// Close removes a buffer from the store.
func (s *Store) Close(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bufs, id)
	if s.current == id {
		s.current = 0
	}
}

// Get retrieves a buffer by id. Returns nil if not found.
func (s *Store) Get(id int) *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bufs[id]
}

// All returns the open buffers ordered by id.
func (s *Store) All() []*Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bufs := make([]*Buffer, 0, len(s.bufs))
	for _, b := range s.bufs {
		bufs = append(bufs, b)
	}
	sort.Slice(bufs, func(i, j int) bool { return bufs[i].ID < bufs[j].ID })
	return bufs
}

// SetCurrent switches the current buffer.
func (s *Store) SetCurrent(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bufs[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNoBuffer, id)
	}
	s.current = id
	return nil
}

// Current returns the current buffer or nil.
func (s *Store) Current() *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bufs[s.current]
}

func (s *Store) CurrentBuffer(context.Context) (int, error) {
	if b := s.Current(); b != nil {
		return b.ID, nil
	}
	return 0, ErrNoBuffer
}

func (s *Store) DocumentURI(_ context.Context, bufferID int) (protocol.DocumentUri, error) {
	b := s.Get(bufferID)
	if b == nil {
		return "", fmt.Errorf("%w: %d", ErrNoBuffer, bufferID)
	}
	return b.URI, nil
}

func (s *Store) CursorPosition(context.Context) (protocol.Position, error) {
	b := s.Current()
	if b == nil {
		return protocol.Position{}, ErrNoBuffer
	}
	return b.Position(), nil
}

// URIToPath converts a file:// URI to a filesystem path.
func URIToPath(uri string) string {
	if path, ok := strings.CutPrefix(uri, "file://"); ok {
		return path
	}
	return uri
}

// PathToURI converts a filesystem path to a file:// URI.
func PathToURI(path string) string {
	if strings.HasPrefix(path, "/") {
		return "file://" + path
	}
	return path
}
