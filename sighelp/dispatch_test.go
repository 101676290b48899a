// Copyright © 2024 The ELPS authors

package sighelp_test

import (
	"context"
	"testing"
	"time"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/luthersystems/sighelp/sighelptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracerProvider(t *testing.T) (*trace.TracerProvider, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
		trace.WithSampler(trace.AlwaysSample()),
	)
	t.Cleanup(func() {
		err := tp.Shutdown(context.Background())
		assert.NoError(t, err, "TracerProvider shutdown")
	})
	return tp, exporter
}

func spanAttr(span tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDispatch_Span(t *testing.T) {
	tp, exporter := newTracerProvider(t)
	reg := sighelptest.NewRegistry(sighelptest.Returning(fnHelp(1)))
	reg.Attach(testBuffer, sighelptest.ServerWithSignatureHelp("gopls", nil, nil))
	docs := &sighelptest.Documents{URIs: map[int]protocol.DocumentUri{testBuffer: testURI}}
	d := sighelp.NewDispatcher(reg, docs, &sighelptest.Notifier{}, sighelp.WithTracerProvider(tp))

	res := d.Dispatch(context.Background(), testBuffer, time.Second, protocol.SignatureHelpContext{
		TriggerKind: protocol.SignatureHelpTriggerKindInvoked,
	})
	require.NotNil(t, res)
	assert.Equal(t, "gopls", res.ServerName)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sighelp.dispatch", spans[0].Name)
	server, ok := spanAttr(spans[0], "sighelp.server")
	require.True(t, ok)
	assert.Equal(t, "gopls", server.AsString())
	outcome, ok := spanAttr(spans[0], "sighelp.outcome")
	require.True(t, ok)
	assert.Equal(t, "result", outcome.AsString())
	kind, ok := spanAttr(spans[0], "sighelp.trigger_kind")
	require.True(t, ok)
	assert.Equal(t, int64(protocol.SignatureHelpTriggerKindInvoked), kind.AsInt64())
}

func TestDispatch_SpanRecordsFailure(t *testing.T) {
	tp, exporter := newTracerProvider(t)
	reg := sighelptest.NewRegistry(nil)
	notifier := &sighelptest.Notifier{}
	d := sighelp.NewDispatcher(reg, &sighelptest.Documents{}, notifier, sighelp.WithTracerProvider(tp))

	res := d.Dispatch(context.Background(), 3, 0, protocol.SignatureHelpContext{})
	assert.Nil(t, res)
	assert.Equal(t, []string{"no client is attached to buffer: 3"}, notifier.Messages())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	outcome, ok := spanAttr(spans[0], "sighelp.outcome")
	require.True(t, ok)
	assert.Equal(t, "no_client", outcome.AsString())
}

func TestDispatch_CallerCancelIsSilent(t *testing.T) {
	reg := sighelptest.NewRegistry(sighelptest.Returning(fnHelp(0)))
	reg.Attach(testBuffer, sighelptest.ServerWithSignatureHelp("gopls", nil, nil))
	block := make(chan struct{})
	reg.Block = block
	t.Cleanup(func() { close(block) })
	notifier := &sighelptest.Notifier{}
	docs := &sighelptest.Documents{URIs: map[int]protocol.DocumentUri{testBuffer: testURI}}
	d := sighelp.NewDispatcher(reg, docs, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res := d.Dispatch(ctx, testBuffer, time.Minute, protocol.SignatureHelpContext{})

	assert.Nil(t, res)
	assert.Empty(t, notifier.Messages())
}

func TestDispatch_DocumentError(t *testing.T) {
	reg := sighelptest.NewRegistry(sighelptest.Returning(fnHelp(0)))
	reg.Attach(9, sighelptest.ServerWithSignatureHelp("gopls", nil, nil))
	notifier := &sighelptest.Notifier{}
	d := sighelp.NewDispatcher(reg, &sighelptest.Documents{}, notifier)

	res := d.Dispatch(context.Background(), 9, time.Second, protocol.SignatureHelpContext{})

	assert.Nil(t, res)
	require.Len(t, notifier.Messages(), 1)
	assert.Contains(t, notifier.Messages()[0], "unknown buffer 9")
	assert.Empty(t, reg.Calls())
}
