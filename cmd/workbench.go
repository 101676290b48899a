// Copyright © 2024 The ELPS authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/luthersystems/sighelp/editor"
	"github.com/luthersystems/sighelp/lspclient"
	"github.com/luthersystems/sighelp/popup"
	"github.com/luthersystems/sighelp/sighelp"
)

// workbench wires one buffer to the language servers, the terminal popup
// and the signature help manager.
type workbench struct {
	cfg      *config
	log      *slog.Logger
	store    *editor.Store
	registry *lspclient.Registry
	glue     *editor.Glue
	term     *popup.Terminal
	manager  *sighelp.Manager
	buf      *editor.Buffer
}

type workbenchOptions struct {
	// column is added to the cursor column when anchoring popups.
	column int
	// allowMissing opens an empty buffer when the file does not exist.
	allowMissing bool
}

func newWorkbench(ctx context.Context, cfg *config, log *slog.Logger, out io.Writer, path string, wo workbenchOptions) (*workbench, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	switch {
	case err == nil:
	case wo.allowMissing && errors.Is(err, fs.ErrNotExist):
		content = nil
	default:
		return nil, err
	}

	wb := &workbench{
		cfg:      cfg,
		log:      log,
		store:    editor.NewStore(),
		registry: lspclient.NewRegistry(lspclient.WithLogger(log)),
	}
	lang := languageID(abs)
	wb.buf = wb.store.Open(abs, lang, string(content))

	root := editor.PathToURI(filepath.Dir(abs))
	if err := wb.registry.StartAll(ctx, cfg.Servers, lspclient.WithLogger(log), lspclient.WithRootURI(root)); err != nil {
		wb.shutdown()
		return nil, err
	}
	attached := wb.registry.AttachLanguage(wb.buf.ID, lang)
	log.Debug("servers attached", "buffer", wb.buf.ID, "language", lang, "servers", attached)
	if err := wb.registry.DidOpen(ctx, wb.buf.ID, document(wb.buf)); err != nil {
		wb.shutdown()
		return nil, err
	}

	wb.glue = editor.NewGlue(wb.store,
		editor.WithLogger(log),
		editor.WithChangeHook(func(ctx context.Context, b *editor.Buffer) error {
			return wb.registry.DidChange(ctx, b.ID, document(b))
		}))
	wb.term = popup.New(out,
		popup.WithColor(cfg.Color),
		popup.WithWidth(cfg.Width),
		popup.WithLogger(log),
		popup.WithCursorColumn(func() int {
			return wo.column + wb.buf.DisplayColumn()
		}))
	wb.manager = sighelp.NewManager(sighelp.Deps{
		Registry:    wb.registry,
		Documents:   wb.store,
		Surface:     wb.term,
		Notifier:    wb.term,
		AutoTrigger: wb.glue,
	},
		sighelp.WithLogger(log),
		sighelp.WithTimeout(cfg.Timeout),
		sighelp.WithDocumentation(cfg.Documentation))
	return wb, nil
}

func document(b *editor.Buffer) lspclient.Document {
	snap := b.Snapshot()
	return lspclient.Document{
		URI:        snap.URI,
		LanguageID: snap.LanguageID,
		Version:    snap.Version,
		Text:       snap.Content,
	}
}

// shutdown stops every language server.
func (wb *workbench) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), wb.cfg.Timeout)
	defer cancel()
	if err := wb.registry.Shutdown(ctx); err != nil {
		wb.log.Warn("shutdown", "err", err)
	}
}

// moveCursor places the cursor at a 1-based line and column.
func (wb *workbench) moveCursor(line, col int) error {
	if line < 1 || col < 1 {
		return fmt.Errorf("invalid position %d:%d (line and column start at 1)", line, col)
	}
	return wb.buf.SetCursor(line-1, col-1)
}
