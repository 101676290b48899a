// Copyright © 2024 The ELPS authors

package sighelp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher selects a server for a buffer and issues signature help
// requests to it, racing each request against a timeout.
type Dispatcher struct {
	registry Registry
	docs     Documents
	notifier Notifier
	log      *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher. Notices go to notifier.
func NewDispatcher(registry Registry, docs Documents, notifier Notifier, opts ...Option) *Dispatcher {
	cfg := newConfig(opts...)
	return &Dispatcher{
		registry: registry,
		docs:     docs,
		notifier: notifier,
		log:      cfg.logger,
		tracer:   cfg.tracerProvider.Tracer(tracerName),
	}
}

// SelectServer returns the first server attached to the buffer that
// advertises signature help. When there is none it emits a notice and
// returns false.
func (d *Dispatcher) SelectServer(ctx context.Context, bufferID int) (ServerInfo, bool) {
	server, err := selectServer(d.registry.AttachedServers(bufferID), bufferID)
	if err != nil {
		d.notice(ctx, err)
		return ServerInfo{}, false
	}
	return server, true
}

func selectServer(servers []ServerInfo, bufferID int) (ServerInfo, error) {
	if len(servers) == 0 {
		return ServerInfo{}, fmt.Errorf("%w to buffer: %d", ErrNoClientAttached, bufferID)
	}
	for _, s := range servers {
		if s.SupportsSignatureHelp() {
			return s, nil
		}
	}
	return ServerInfo{}, fmt.Errorf("%w: %s", ErrCapabilityUnsupported, servers[0].Name)
}

// Dispatch requests signature help for the cursor of bufferID. It never
// fails: every failure is reported as a notice and yields nil, as does a
// null response. The request keeps running on the server after a
// timeout; only the wait is abandoned.
func (d *Dispatcher) Dispatch(ctx context.Context, bufferID int, timeout time.Duration, shctx protocol.SignatureHelpContext) *Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, span := d.tracer.Start(ctx, "sighelp.dispatch", trace.WithAttributes(
		attribute.Int("sighelp.buffer", bufferID),
		attribute.Int("sighelp.trigger_kind", int(shctx.TriggerKind)),
		attribute.Bool("sighelp.is_retrigger", shctx.IsRetrigger),
	))
	defer span.End()

	res, err := d.dispatch(ctx, bufferID, timeout, shctx, span)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("sighelp.outcome", outcomeOf(err)))
		if !errors.Is(err, context.Canceled) {
			d.notice(ctx, err)
		}
		return nil
	case res == nil:
		span.SetAttributes(attribute.String("sighelp.outcome", "null"))
	default:
		span.SetAttributes(attribute.String("sighelp.outcome", "result"))
	}
	return res
}

type reply struct {
	help *protocol.SignatureHelp
	err  error
}

func (d *Dispatcher) dispatch(ctx context.Context, bufferID int, timeout time.Duration, shctx protocol.SignatureHelpContext, span trace.Span) (*Result, error) {
	server, err := selectServer(d.registry.AttachedServers(bufferID), bufferID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("sighelp.server", server.Name))

	uri, err := d.docs.DocumentURI(ctx, bufferID)
	if err != nil {
		return nil, fmt.Errorf("signatureHelp: resolve document: %w", err)
	}
	pos, err := d.docs.CursorPosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("signatureHelp: cursor position: %w", err)
	}
	params := &protocol.SignatureHelpParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
		Context: &shctx,
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The registry may not honour reqCtx, so the wait is raced here and a
	// late reply is dropped into the buffered channel.
	replies := make(chan reply, 1)
	go func() {
		var help *protocol.SignatureHelp
		err := d.registry.Request(reqCtx, server.Name, MethodSignatureHelp, params, &help)
		replies <- reply{help: help, err: err}
	}()

	var r reply
	select {
	case r = <-replies:
	case <-reqCtx.Done():
		r.err = reqCtx.Err()
	}
	switch {
	case r.err == nil:
	case ctx.Err() != nil:
		return nil, fmt.Errorf("signatureHelp: %w", ctx.Err())
	case errors.Is(r.err, context.DeadlineExceeded):
		return nil, fmt.Errorf("signatureHelp: %w", ErrRequestTimeout)
	default:
		return nil, fmt.Errorf("signatureHelp: %w: %v", ErrRequestFailed, r.err)
	}
	if r.help == nil {
		return nil, nil
	}
	d.log.Debug("signature help received",
		"server", server.Name,
		"buffer", bufferID,
		"signatures", len(r.help.Signatures))
	return &Result{ServerName: server.Name, Help: *r.help}, nil
}

func (d *Dispatcher) notice(ctx context.Context, err error) {
	d.log.Debug("signature help unavailable", "err", err)
	if d.notifier != nil {
		d.notifier.Notify(ctx, err.Error(), NoticeInfo)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNoClientAttached):
		return "no_client"
	case errors.Is(err, ErrCapabilityUnsupported):
		return "unsupported"
	case errors.Is(err, ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, ErrRequestFailed):
		return "failed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
