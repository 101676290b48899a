// Copyright © 2024 The ELPS authors

package lspclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/luthersystems/sighelp/sighelptest"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func TestMain(m *testing.M) {
	sighelptest.RunFakeServerIfRequested()
	os.Exit(m.Run())
}

// fakeServer is an in-memory language server peer.
type fakeServer struct {
	conn *jsonrpc2.Conn
	caps map[string]any
	help any

	mu       sync.Mutex
	methods  []string
	params   map[string]json.RawMessage
	sigError bool
}

func newFakeServer(t *testing.T, caps map[string]any) (*fakeServer, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	s := &fakeServer{caps: caps, params: make(map[string]json.RawMessage)}
	stream := jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{})
	s.conn = jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(s.handle))
	t.Cleanup(func() { _ = s.conn.Close() })
	return s, clientSide
}

func (s *fakeServer) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	s.mu.Lock()
	s.methods = append(s.methods, req.Method)
	if req.Params != nil {
		s.params[req.Method] = append(json.RawMessage(nil), *req.Params...)
	}
	sigError := s.sigError
	s.mu.Unlock()

	switch req.Method {
	case "initialize":
		return map[string]any{
			"capabilities": s.caps,
			"serverInfo":   map[string]any{"name": "fake", "version": "1.0"},
		}, nil
	case sighelp.MethodSignatureHelp:
		if sigError {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: "boom"}
		}
		return s.help, nil
	}
	return nil, nil
}

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func (s *fakeServer) paramsOf(method string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params[method]
}

func (s *fakeServer) hasReceived(method string) func() bool {
	return func() bool {
		for _, m := range s.received() {
			if m == method {
				return true
			}
		}
		return false
	}
}

var sigHelpCaps = map[string]any{
	"signatureHelpProvider": map[string]any{
		"triggerCharacters":   []string{"("},
		"retriggerCharacters": []string{","},
	},
}

func dialInitialized(t *testing.T, name string, caps map[string]any, opts ...Option) (*Client, *fakeServer) {
	t.Helper()
	srv, rwc := newFakeServer(t, caps)
	opts = append([]Option{WithLogger(sighelptest.NewSlog(t))}, opts...)
	c := Dial(context.Background(), name, rwc, opts...)
	require.NoError(t, c.Initialize(context.Background()))
	return c, srv
}

func TestClient_Initialize(t *testing.T) {
	c, srv := dialInitialized(t, "fake", sigHelpCaps, WithRootURI("file:///work"))

	caps := c.Capabilities()
	require.NotNil(t, caps.SignatureHelpProvider)
	assert.Equal(t, []string{"("}, caps.SignatureHelpProvider.TriggerCharacters)
	assert.Equal(t, []string{","}, caps.SignatureHelpProvider.RetriggerCharacters)
	require.NotNil(t, c.ServerInfo())
	assert.Equal(t, "fake", c.ServerInfo().Name)
	assert.True(t, c.Info().SupportsSignatureHelp())

	var params struct {
		ProcessID  int     `json:"processId"`
		RootURI    *string `json:"rootUri"`
		ClientInfo struct {
			Name string `json:"name"`
		} `json:"clientInfo"`
		Capabilities sighelp.ClientCapabilities `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(srv.paramsOf("initialize"), &params))
	assert.NotZero(t, params.ProcessID)
	require.NotNil(t, params.RootURI)
	assert.Equal(t, "file:///work", *params.RootURI)
	assert.Equal(t, clientName, params.ClientInfo.Name)
	assert.Equal(t, sighelp.DeclaredCapabilities(), params.Capabilities)

	assert.Eventually(t, srv.hasReceived("initialized"), time.Second, 5*time.Millisecond)
}

func TestClient_NullRootURI(t *testing.T) {
	_, srv := dialInitialized(t, "fake", sigHelpCaps)
	var params map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(srv.paramsOf("initialize"), &params))
	assert.Equal(t, "null", string(params["rootUri"]))
}

func TestClient_CallBeforeInitialize(t *testing.T) {
	_, rwc := newFakeServer(t, sigHelpCaps)
	c := Dial(context.Background(), "fake", rwc, WithLogger(sighelptest.NewSlog(t)))
	err := c.Call(context.Background(), sighelp.MethodSignatureHelp, nil, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestClient_AnswersServerRequests(t *testing.T) {
	_, srv := dialInitialized(t, "fake", sigHelpCaps)
	ctx := context.Background()

	for _, method := range []string{
		"workspace/configuration",
		"window/workDoneProgress/create",
		"client/registerCapability",
	} {
		var out any
		err := srv.conn.Call(ctx, method, map[string]any{}, &out)
		require.NoError(t, err, method)
		assert.Nil(t, out, method)
	}

	err := srv.conn.Call(ctx, "workspace/applyEdit", map[string]any{}, nil)
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.EqualValues(t, jsonrpc2.CodeMethodNotFound, rpcErr.Code)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestClient_LogsServerMessages(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, srv := dialInitialized(t, "fake", sigHelpCaps, WithLogger(logger))

	err := srv.conn.Notify(context.Background(), "window/logMessage", map[string]any{"type": 2, "message": "indexing slowly"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		out := logs.String()
		return bytes.Contains([]byte(out), []byte("indexing slowly")) &&
			bytes.Contains([]byte(out), []byte("level=WARN"))
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_RequestAndAttach(t *testing.T) {
	c, srv := dialInitialized(t, "fake", sigHelpCaps, WithFiletypes("go"))
	srv.help = map[string]any{
		"signatures": []any{map[string]any{
			"label":      "fn(a, b)",
			"parameters": []any{map[string]any{"label": "a"}, map[string]any{"label": "b"}},
		}},
		"activeSignature": 0,
		"activeParameter": 1,
	}
	reg := NewRegistry(WithLogger(sighelptest.NewSlog(t)))
	require.NoError(t, reg.Add(c))
	assert.Error(t, reg.Add(c))
	assert.Equal(t, []string{"fake"}, reg.Names())

	assert.Empty(t, reg.AttachedServers(1))
	assert.Empty(t, reg.AttachLanguage(1, "python"))
	assert.Equal(t, []string{"fake"}, reg.AttachLanguage(1, "go"))
	require.NoError(t, reg.Attach(1, "fake"))
	servers := reg.AttachedServers(1)
	require.Len(t, servers, 1)
	assert.Equal(t, "fake", servers[0].Name)
	assert.True(t, servers[0].SupportsSignatureHelp())
	assert.ErrorIs(t, reg.Attach(1, "missing"), ErrUnknownServer)

	var help *protocol.SignatureHelp
	params := &protocol.SignatureHelpParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///a.go"},
			Position:     protocol.Position{Line: 0, Character: 6},
		},
	}
	require.NoError(t, reg.Request(context.Background(), "fake", sighelp.MethodSignatureHelp, params, &help))
	require.NotNil(t, help)
	require.Len(t, help.Signatures, 1)
	assert.Equal(t, "fn(a, b)", help.Signatures[0].Label)

	err := reg.Request(context.Background(), "missing", sighelp.MethodSignatureHelp, params, &help)
	assert.ErrorIs(t, err, ErrUnknownServer)

	reg.Detach(1)
	assert.Empty(t, reg.AttachedServers(1))
}

func TestRegistry_NullAndErrorResponses(t *testing.T) {
	c, srv := dialInitialized(t, "fake", sigHelpCaps)
	reg := NewRegistry()
	require.NoError(t, reg.Add(c))

	var help *protocol.SignatureHelp
	require.NoError(t, reg.Request(context.Background(), "fake", sighelp.MethodSignatureHelp, struct{}{}, &help))
	assert.Nil(t, help)

	srv.mu.Lock()
	srv.sigError = true
	srv.mu.Unlock()
	err := reg.Request(context.Background(), "fake", sighelp.MethodSignatureHelp, struct{}{}, &help)
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestRegistry_DocumentSync(t *testing.T) {
	c, srv := dialInitialized(t, "fake", sigHelpCaps)
	reg := NewRegistry()
	require.NoError(t, reg.Add(c))
	require.NoError(t, reg.Attach(3, "fake"))
	ctx := context.Background()

	doc := Document{URI: "file:///a.go", LanguageID: "go", Version: 1, Text: "fn("}
	require.NoError(t, reg.DidOpen(ctx, 3, doc))
	doc.Version, doc.Text = 2, "fn(a,"
	require.NoError(t, reg.DidChange(ctx, 3, doc))
	require.NoError(t, reg.DidChange(ctx, 4, doc)) // nothing attached

	assert.Eventually(t, srv.hasReceived("textDocument/didChange"), time.Second, 5*time.Millisecond)

	var open struct {
		TextDocument struct {
			URI        string `json:"uri"`
			LanguageID string `json:"languageId"`
			Version    int    `json:"version"`
			Text       string `json:"text"`
		} `json:"textDocument"`
	}
	require.NoError(t, json.Unmarshal(srv.paramsOf("textDocument/didOpen"), &open))
	assert.Equal(t, "file:///a.go", open.TextDocument.URI)
	assert.Equal(t, "go", open.TextDocument.LanguageID)
	assert.Equal(t, 1, open.TextDocument.Version)
	assert.Equal(t, "fn(", open.TextDocument.Text)

	var change struct {
		TextDocument struct {
			Version int `json:"version"`
		} `json:"textDocument"`
		ContentChanges []struct {
			Text string `json:"text"`
		} `json:"contentChanges"`
	}
	require.NoError(t, json.Unmarshal(srv.paramsOf("textDocument/didChange"), &change))
	assert.Equal(t, 2, change.TextDocument.Version)
	require.Len(t, change.ContentChanges, 1)
	assert.Equal(t, "fn(a,", change.ContentChanges[0].Text)
}

func TestRegistry_Shutdown(t *testing.T) {
	c, srv := dialInitialized(t, "fake", sigHelpCaps)
	reg := NewRegistry()
	require.NoError(t, reg.Add(c))
	require.NoError(t, reg.Attach(1, "fake"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	assert.Eventually(t, srv.hasReceived("exit"), time.Second, 5*time.Millisecond)
	assert.Contains(t, srv.received(), "shutdown")
	assert.Empty(t, reg.Names())
	assert.Empty(t, reg.AttachedServers(1))
	select {
	case <-c.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("connection still open after shutdown")
	}
}

func TestStart_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Start(ctx, ServerConfig{Command: "true"})
	assert.Error(t, err)
	_, err = Start(ctx, ServerConfig{Name: "x"})
	assert.Error(t, err)
	_, err = Start(ctx, ServerConfig{Name: "x", Command: "/nonexistent/language-server"})
	assert.Error(t, err)

	reg := NewRegistry()
	err = reg.StartAll(ctx, []ServerConfig{{Name: "x", Command: "/nonexistent/language-server"}})
	assert.Error(t, err)
	assert.Empty(t, reg.Names())
}

func TestRegistry_StartAllDuplicateNames(t *testing.T) {
	t.Setenv(sighelptest.FakeServerEnv, "1")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := NewRegistry(WithLogger(sighelptest.NewSlog(t)))
	fake := ServerConfig{Name: "gopls", Command: os.Args[0], Args: []string{"-test.run=^$"}}
	err := reg.StartAll(ctx, []ServerConfig{fake, fake}, WithLogger(sighelptest.NewSlog(t)))
	assert.EqualError(t, err, `lspclient: duplicate server "gopls"`)
	assert.Empty(t, reg.Names())

	existing, _ := dialInitialized(t, "gopls", sigHelpCaps)
	require.NoError(t, reg.Add(existing))
	err = reg.StartAll(ctx, []ServerConfig{fake}, WithLogger(sighelptest.NewSlog(t)))
	assert.EqualError(t, err, `lspclient: duplicate server "gopls"`)
	assert.Equal(t, []string{"gopls"}, reg.Names())
	assert.Same(t, existing, reg.Client("gopls"))
}

func TestRegistry_StartAllRegistersNoneOnFailure(t *testing.T) {
	t.Setenv(sighelptest.FakeServerEnv, "1")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := NewRegistry(WithLogger(sighelptest.NewSlog(t)))
	err := reg.StartAll(ctx, []ServerConfig{
		{Name: "good", Command: os.Args[0], Args: []string{"-test.run=^$"}},
		{Name: "bad", Command: "/nonexistent/language-server"},
	}, WithLogger(sighelptest.NewSlog(t)))
	assert.Error(t, err)
	assert.Empty(t, reg.Names())
	assert.Nil(t, reg.Client("good"))
}

func TestServerConfig_Handles(t *testing.T) {
	assert.True(t, ServerConfig{}.Handles("go"))
	assert.True(t, ServerConfig{Filetypes: []string{"go", "lisp"}}.Handles("lisp"))
	assert.False(t, ServerConfig{Filetypes: []string{"go"}}.Handles("python"))
}

func TestRegistry_StartAllSpawnsServers(t *testing.T) {
	t.Setenv(sighelptest.FakeServerEnv, "1")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := NewRegistry(WithLogger(sighelptest.NewSlog(t)))
	cfgs := []ServerConfig{
		{Name: "one", Command: os.Args[0], Args: []string{"-test.run=^$"}, Filetypes: []string{"go"}},
		{Name: "two", Command: os.Args[0], Args: []string{"-test.run=^$"}},
	}
	require.NoError(t, reg.StartAll(ctx, cfgs, WithLogger(sighelptest.NewSlog(t))))
	assert.Equal(t, []string{"one", "two"}, reg.Names())
	assert.Equal(t, []string{"one", "two"}, reg.AttachLanguage(1, "go"))
	assert.Equal(t, []string{"two"}, reg.AttachLanguage(2, "lisp"))

	one := reg.Client("one")
	require.NotNil(t, one)
	require.NotNil(t, one.Capabilities().SignatureHelpProvider)
	assert.Equal(t, []string{"("}, one.Capabilities().SignatureHelpProvider.TriggerCharacters)

	require.NoError(t, reg.DidOpen(ctx, 1, Document{URI: "file:///a.go", LanguageID: "go", Version: 1, Text: "add("}))
	var help *protocol.SignatureHelp
	require.NoError(t, reg.Request(ctx, "one", sighelp.MethodSignatureHelp, &protocol.SignatureHelpParams{}, &help))
	require.NotNil(t, help)
	assert.Equal(t, "add(a int, b int) int", help.Signatures[0].Label)

	require.NoError(t, reg.Shutdown(ctx))
	assert.NotNil(t, one.cmd.ProcessState, "server process should be reaped")
	assert.Empty(t, reg.Names())
}
