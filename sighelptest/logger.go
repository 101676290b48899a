// Copyright © 2018 The ELPS authors

package sighelptest

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// Logger is an io.Writer that forwards complete lines to t.Log.
type Logger struct {
	mu  sync.Mutex
	t   testing.TB
	buf []byte
}

var _ io.Writer = (*Logger)(nil)

func NewLogger(t testing.TB) *Logger {
	return &Logger{
		t: t,
	}
}

func (log *Logger) Write(b []byte) (int, error) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.buf = append(log.buf, b...)
	for {
		i := bytes.IndexByte(log.buf, '\n')
		if i < 0 {
			return len(b), nil
		}
		log.t.Log(string(log.buf[:i])) // slice does not include \n
		log.buf = log.buf[i+1:]
	}
}

func (log *Logger) Flush() {
	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.buf) == 0 {
		return
	}
	log.t.Log(string(log.buf))
	log.buf = nil
}

// NewSlog returns a debug-level slog.Logger writing to t.Log. Pending
// output is flushed when the test ends.
func NewSlog(t testing.TB) *slog.Logger {
	w := NewLogger(t)
	t.Cleanup(w.Flush)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
