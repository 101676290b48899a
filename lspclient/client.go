// Copyright © 2024 The ELPS authors

// Package lspclient speaks the client side of the Language Server
// Protocol: it spawns or dials language servers, performs the initialize
// handshake and keeps a registry of servers attached to editor buffers.
package lspclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const clientName = "sighelp"

// ErrNotInitialized is returned by requests issued before the initialize
// handshake completed.
var ErrNotInitialized = errors.New("server not initialized")

// ServerConfig describes how to launch a language server.
type ServerConfig struct {
	Name      string   `mapstructure:"name"`
	Command   string   `mapstructure:"command"`
	Args      []string `mapstructure:"args"`
	Filetypes []string `mapstructure:"filetypes"`
}

// Handles reports whether the server should attach to buffers of the
// given language. A server without filetypes handles every language.
func (c ServerConfig) Handles(languageID string) bool {
	return len(c.Filetypes) == 0 || slices.Contains(c.Filetypes, languageID)
}

// Document is the full text state of a buffer sent to servers.
type Document struct {
	URI        protocol.DocumentUri
	LanguageID string
	Version    int32
	Text       string
}

// Option configures a Client or Registry.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	rootURI   string
	filetypes []string
}

func newOptions(opts ...Option) *options {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRootURI sets the workspace root sent in the initialize request.
func WithRootURI(uri string) Option {
	return func(o *options) { o.rootURI = uri }
}

// WithFiletypes restricts a dialed client to buffers of the given
// languages. Start takes them from ServerConfig.
func WithFiletypes(languageIDs ...string) Option {
	return func(o *options) { o.filetypes = languageIDs }
}

// Client is a connection to one language server.
type Client struct {
	name      string
	rootURI   string
	filetypes []string
	log       *slog.Logger
	conn      *jsonrpc2.Conn
	cmd       *exec.Cmd

	mu          sync.RWMutex
	caps        protocol.ServerCapabilities
	serverInfo  *protocol.InitializeResultServerInfo
	initialized bool
}

// Start spawns the server described by cfg, connects to its stdio and
// performs the initialize handshake.
func Start(ctx context.Context, cfg ServerConfig, opts ...Option) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("lspclient: server config without a name")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("lspclient: %s: no command", cfg.Name)
	}
	opts = append(slices.Clip(opts), WithFiletypes(cfg.Filetypes...))
	o := newOptions(opts...)
	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("lspclient: %s: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("lspclient: %s: %w", cfg.Name, err)
	}
	stderr := &lineLogger{log: o.logger.With("server", cfg.Name)}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("lspclient: %s: %w", cfg.Name, err)
	}
	o.logger.Debug("language server started", "server", cfg.Name, "pid", cmd.Process.Pid)

	// The connection outlives the startup context.
	c := Dial(context.WithoutCancel(ctx), cfg.Name, stdio{ReadCloser: stdout, WriteCloser: stdin}, opts...)
	c.cmd = cmd
	if err := c.Initialize(ctx); err != nil {
		_ = c.conn.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return c, nil
}

// Dial wraps an established stream to a server. The caller must call
// Initialize before issuing requests.
func Dial(ctx context.Context, name string, rwc io.ReadWriteCloser, opts ...Option) *Client {
	o := newOptions(opts...)
	c := &Client{
		name:      name,
		rootURI:   o.rootURI,
		filetypes: o.filetypes,
		log:       o.logger.With("server", name),
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(c.handle))
	return c
}

// Name returns the server name.
func (c *Client) Name() string {
	return c.name
}

// Handles reports whether the client serves buffers of languageID.
func (c *Client) Handles(languageID string) bool {
	return ServerConfig{Filetypes: c.filetypes}.Handles(languageID)
}

// Capabilities returns the capabilities the server advertised in its
// initialize result.
func (c *Client) Capabilities() protocol.ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

// ServerInfo returns the name and version the server reported, if any.
func (c *Client) ServerInfo() *protocol.InitializeResultServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Info describes the client for the signature help dispatcher.
func (c *Client) Info() sighelp.ServerInfo {
	return sighelp.ServerInfo{Name: c.name, Capabilities: c.Capabilities()}
}

// Disconnected is closed when the connection to the server is lost.
func (c *Client) Disconnected() <-chan struct{} {
	return c.conn.DisconnectNotify()
}

type clientInfo struct {
	Name string `json:"name"`
}

type initializeParams struct {
	ProcessID    int                        `json:"processId"`
	ClientInfo   clientInfo                 `json:"clientInfo"`
	RootURI      *string                    `json:"rootUri"`
	Capabilities sighelp.ClientCapabilities `json:"capabilities"`
}

// Initialize performs the initialize handshake, records the server's
// capabilities and sends the initialized notification.
func (c *Client) Initialize(ctx context.Context) error {
	params := initializeParams{
		ProcessID:    os.Getpid(),
		ClientInfo:   clientInfo{Name: clientName},
		Capabilities: sighelp.DeclaredCapabilities(),
	}
	if c.rootURI != "" {
		root := c.rootURI
		params.RootURI = &root
	}
	var result protocol.InitializeResult
	if err := c.conn.Call(ctx, "initialize", params, &result); err != nil {
		return c.wrap("initialize", err)
	}
	c.mu.Lock()
	c.caps = result.Capabilities
	c.serverInfo = result.ServerInfo
	c.initialized = true
	c.mu.Unlock()
	if err := c.conn.Notify(ctx, "initialized", struct{}{}); err != nil {
		return c.wrap("initialized", err)
	}
	c.log.Debug("language server initialized",
		"signature_help", result.Capabilities.SignatureHelpProvider != nil)
	return nil
}

// Call sends a request and decodes the response into result.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	c.mu.RLock()
	ok := c.initialized
	c.mu.RUnlock()
	if !ok {
		return c.wrap(method, ErrNotInitialized)
	}
	if err := c.conn.Call(ctx, method, params, result); err != nil {
		return c.wrap(method, err)
	}
	return nil
}

// Notify sends a notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if err := c.conn.Notify(ctx, method, params); err != nil {
		return c.wrap(method, err)
	}
	return nil
}

// DidOpen announces a newly opened document.
func (c *Client) DidOpen(ctx context.Context, doc Document) error {
	return c.Notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        doc.URI,
			LanguageID: doc.LanguageID,
			Version:    protocol.Integer(doc.Version),
			Text:       doc.Text,
		},
	})
}

// DidChange sends the full text of a changed document.
func (c *Client) DidChange(ctx context.Context, doc Document) error {
	return c.Notify(ctx, "textDocument/didChange", protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: doc.URI},
			Version:                protocol.Integer(doc.Version),
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEventWhole{Text: doc.Text},
		},
	})
}

// Shutdown asks the server to shut down, sends exit and closes the
// connection. A spawned process is killed if it outlives ctx.
func (c *Client) Shutdown(ctx context.Context) error {
	var errs []error
	if err := c.Call(ctx, "shutdown", nil, nil); err != nil && !errors.Is(err, ErrNotInitialized) {
		errs = append(errs, err)
	}
	if err := c.Notify(ctx, "exit", nil); err != nil {
		errs = append(errs, err)
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
		errs = append(errs, c.wrap("close", err))
	}
	if c.cmd != nil {
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case <-done:
		case <-ctx.Done():
			_ = c.cmd.Process.Kill()
			<-done
		}
	}
	return errors.Join(errs...)
}

func (c *Client) wrap(method string, err error) error {
	return fmt.Errorf("lspclient: %s: %s: %w", c.name, method, err)
}

type logMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

// handle answers requests and notifications initiated by the server.
func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "window/logMessage", "window/showMessage":
		var p logMessageParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &p); err != nil {
				c.log.Warn("malformed server message", "method", req.Method, "err", err)
				return nil, nil
			}
		}
		c.log.Log(context.Background(), messageLevel(p.Type), p.Message, "method", req.Method)
		return nil, nil
	case "workspace/configuration",
		"window/workDoneProgress/create",
		"client/registerCapability",
		"client/unregisterCapability":
		return nil, nil
	}
	if req.Notif {
		c.log.Debug("ignoring server notification", "method", req.Method)
		return nil, nil
	}
	return nil, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: "method not supported: " + req.Method,
	}
}

func messageLevel(t int) slog.Level {
	switch t {
	case 1:
		return slog.LevelError
	case 2:
		return slog.LevelWarn
	case 3:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// stdio joins a child's stdout and stdin into one stream.
type stdio struct {
	io.ReadCloser
	io.WriteCloser
}

func (s stdio) Close() error {
	return errors.Join(s.WriteCloser.Close(), s.ReadCloser.Close())
}

// lineLogger logs a server's stderr line by line.
type lineLogger struct {
	mu  sync.Mutex
	log *slog.Logger
	buf []byte
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, b...)
	for {
		adv, line, err := bufio.ScanLines(l.buf, false)
		if err != nil || adv == 0 {
			return len(b), nil
		}
		l.log.Debug("server stderr", "line", string(line))
		l.buf = l.buf[adv:]
	}
}
