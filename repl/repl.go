// Copyright © 2018 The ELPS authors

// Package repl is an interactive signature help session: typed lines are
// inserted into a buffer at the cursor and the popup follows along.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/readline"
	"github.com/luthersystems/sighelp/editor"
	"github.com/luthersystems/sighelp/popup"
	"github.com/luthersystems/sighelp/sighelp"
)

// Env holds the pieces a session drives.
type Env struct {
	Store    *editor.Store
	Glue     *editor.Glue
	Manager  *sighelp.Manager
	Terminal *popup.Terminal
	Buffer   *editor.Buffer
	Timeout  time.Duration
}

type config struct {
	stdin       io.ReadCloser
	stdout      io.Writer
	historyFile string
}

func newConfig(opts ...Option) *config {
	config := &config{
		stdout:      os.Stderr,
		historyFile: historyPath(),
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

type Option func(*config)

// WithStdin allows overriding the input to the REPL.
func WithStdin(stdin io.ReadCloser) Option {
	return func(c *config) {
		c.stdin = stdin
	}
}

// WithStdout allows overriding the output of the REPL.
func WithStdout(stdout io.Writer) Option {
	return func(c *config) {
		c.stdout = stdout
	}
}

// WithHistoryFile sets the readline history file. An empty path
// disables history.
func WithHistoryFile(path string) Option {
	return func(c *config) {
		c.historyFile = path
	}
}

const helpText = `text          insert text at the cursor
:invoke       request signature help now
:close        leave insert mode, closing the popup
:goto L C     move the cursor to line L, column C (1-based)
:event JSON   deliver a trigger event
:buffer       print the buffer
:popup        redraw the open popup
:help         print this help
:quit         exit`

// errQuit ends the loop.
var errQuit = errors.New("quit")

// Run reads lines until EOF or :quit.
func Run(ctx context.Context, env *Env, prompt string, opts ...Option) error {
	if env.Buffer == nil {
		return errors.New("repl: no buffer")
	}
	cfg := newConfig(opts...)
	ensureHistoryFilePermissions(cfg.historyFile)

	rlCfg := &readline.Config{
		Stdout:            cfg.stdout,
		Stderr:            cfg.stdout,
		Prompt:            prompt,
		HistoryFile:       cfg.historyFile,
		HistorySearchFold: true,
	}
	if cfg.stdin != nil {
		rlCfg.Stdin = cfg.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return fmt.Errorf("repl: %w", err)
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	pad := strings.Repeat(" ", len(prompt))
	for {
		line, err := rl.ReadSlice()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		err = env.eval(ctx, cfg.stdout, string(line))
		if err == errQuit {
			return nil
		}
		if err != nil {
			fmt.Fprintln(cfg.stdout, "error:", err) //nolint:errcheck // best-effort error display
			continue
		}
		fmt.Fprintf(cfg.stdout, "%s%s\n", pad, env.Buffer.CurrentLine()) //nolint:errcheck // best-effort REPL output
	}
}

func (env *Env) eval(ctx context.Context, w io.Writer, line string) error {
	id := env.Buffer.ID
	if !strings.HasPrefix(line, ":") {
		return env.Glue.Type(ctx, id, line)
	}
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ":quit", ":q":
		return errQuit
	case ":help":
		_, err := fmt.Fprintln(w, helpText)
		return err
	case ":invoke":
		if err := env.Store.SetCurrent(id); err != nil {
			return err
		}
		return env.Manager.InvokeNow(ctx, env.Timeout)
	case ":close":
		if env.Glue.Enabled(id) {
			return env.Glue.LeaveInsert(ctx, id)
		}
		return env.Manager.Session(id).Close(ctx)
	case ":goto":
		ln, col, err := parseLineCol(arg)
		if err != nil {
			return err
		}
		return env.Buffer.SetCursor(ln-1, col-1)
	case ":event":
		ev, err := sighelp.DecodeTriggerEvent([]byte(arg))
		if err != nil {
			return err
		}
		return env.Manager.Session(id).OnTriggerEvent(ctx, ev)
	case ":buffer":
		_, err := fmt.Fprintln(w, env.Buffer.Content())
		return err
	case ":popup":
		if env.Terminal == nil || env.Terminal.Current() == nil {
			_, err := fmt.Fprintln(w, "no popup open")
			return err
		}
		return env.Terminal.Redraw(ctx)
	}
	return fmt.Errorf("unknown command %s (try :help)", cmd)
}

func parseLineCol(arg string) (int, int, error) {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("usage: :goto LINE COL")
	}
	ln, err := strconv.Atoi(fields[0])
	if err != nil || ln < 1 {
		return 0, 0, fmt.Errorf("invalid line %q", fields[0])
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("invalid column %q", fields[1])
	}
	return ln, col, nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sighelp_history")
}

// ensureHistoryFilePermissions creates the history file if needed and
// restricts it to the owner.
func ensureHistoryFilePermissions(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return
	}
	_ = f.Close()
	_ = os.Chmod(path, 0600)
}
