// Copyright © 2024 The ELPS authors

package sighelptest

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FakeServerEnv is the environment variable that turns a test binary into
// a fake language server. See RunFakeServerIfRequested.
const FakeServerEnv = "SIGHELPTEST_FAKE_SERVER"

// AddSignature is the signature help returned by the fake server.
func AddSignature() *protocol.SignatureHelp {
	active := protocol.UInteger(0)
	return &protocol.SignatureHelp{
		Signatures: []protocol.SignatureInformation{{
			Label: "add(a int, b int) int",
			Parameters: []protocol.ParameterInformation{
				{Label: "a int"},
				{Label: "b int"},
			},
		}},
		ActiveParameter: &active,
	}
}

// FakeServer is a minimal language server answering initialize,
// signatureHelp and shutdown. It records every method it receives.
type FakeServer struct {
	Help              *protocol.SignatureHelp
	TriggerChars      []string
	RetriggerChars    []string
	DisableSignatures bool

	mu      sync.Mutex
	methods []string
	exited  chan struct{}
}

// NewFakeServer returns a server offering help for "(" and ",".
func NewFakeServer(help *protocol.SignatureHelp) *FakeServer {
	return &FakeServer{
		Help:           help,
		TriggerChars:   []string{"("},
		RetriggerChars: []string{","},
		exited:         make(chan struct{}),
	}
}

// Methods returns the methods received so far.
func (s *FakeServer) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

// Serve answers requests on rwc until the client sends exit or
// disconnects.
func (s *FakeServer) Serve(ctx context.Context, rwc io.ReadWriteCloser) {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	select {
	case <-conn.DisconnectNotify():
	case <-s.exited:
		_ = conn.Close()
	case <-ctx.Done():
		_ = conn.Close()
	}
}

func (s *FakeServer) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	s.mu.Lock()
	s.methods = append(s.methods, req.Method)
	s.mu.Unlock()

	switch req.Method {
	case "initialize":
		caps := map[string]any{"textDocumentSync": 1}
		if !s.DisableSignatures {
			caps["signatureHelpProvider"] = protocol.SignatureHelpOptions{
				TriggerCharacters:   s.TriggerChars,
				RetriggerCharacters: s.RetriggerChars,
			}
		}
		return map[string]any{
			"capabilities": caps,
			"serverInfo":   map[string]string{"name": "sighelptest"},
		}, nil
	case "textDocument/signatureHelp":
		var params protocol.SignatureHelpParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
			}
		}
		return s.Help, nil
	case "exit":
		select {
		case <-s.exited:
		default:
			close(s.exited)
		}
	}
	return nil, nil
}

type stdio struct {
	io.Reader
	io.WriteCloser
}

// RunFakeServerIfRequested serves AddSignature on stdin and stdout and
// exits when FakeServerEnv is set. Call it first thing in TestMain so a
// test can spawn its own binary as a language server.
func RunFakeServerIfRequested() {
	if os.Getenv(FakeServerEnv) == "" {
		return
	}
	NewFakeServer(AddSignature()).Serve(context.Background(), stdio{Reader: os.Stdin, WriteCloser: os.Stdout})
	os.Exit(0)
}
