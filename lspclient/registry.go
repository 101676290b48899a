// Copyright © 2024 The ELPS authors

package lspclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/luthersystems/sighelp/sighelp"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownServer is returned for server names missing from a Registry.
var ErrUnknownServer = errors.New("unknown server")

// Registry tracks running clients and the buffers they are attached to.
// It implements sighelp.Registry.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	order    []string
	clients  map[string]*Client
	attached map[int][]string
}

var _ sighelp.Registry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts...)
	return &Registry{
		log:      o.logger,
		clients:  make(map[string]*Client),
		attached: make(map[int][]string),
	}
}

// Add registers a client under its name.
func (r *Registry) Add(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkNames(c.Name()); err != nil {
		return err
	}
	r.clients[c.Name()] = c
	r.order = append(r.order, c.Name())
	return nil
}

// checkNames reports the first name that is already registered or
// repeated in names. Callers hold r.mu.
func (r *Registry) checkNames(names ...string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.clients[name]; ok || seen[name] {
			return fmt.Errorf("lspclient: duplicate server %q", name)
		}
		seen[name] = true
	}
	return nil
}

// Client returns the named client or nil.
func (r *Registry) Client(name string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[name]
}

// Names returns the registered server names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// StartAll starts every configured server concurrently and registers
// them in configuration order. Names are checked before anything is
// spawned. If any server fails, none are registered and the ones that
// did start are shut down.
func (r *Registry) StartAll(ctx context.Context, cfgs []ServerConfig, opts ...Option) error {
	names := make([]string, len(cfgs))
	for i, cfg := range cfgs {
		names[i] = cfg.Name
	}
	r.mu.RLock()
	err := r.checkNames(names...)
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	started := make([]*Client, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			c, err := Start(gctx, cfg, opts...)
			if err != nil {
				return err
			}
			started[i] = c
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = r.addAll(started)
	}
	if err != nil {
		for _, c := range started {
			if c != nil {
				_ = c.Shutdown(context.WithoutCancel(ctx))
			}
		}
		return err
	}
	return nil
}

// addAll registers every client or none of them.
func (r *Registry) addAll(cs []*Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name()
	}
	if err := r.checkNames(names...); err != nil {
		return err
	}
	for _, c := range cs {
		r.clients[c.Name()] = c
	}
	r.order = append(r.order, names...)
	return nil
}

// Attach attaches the named servers to a buffer. Names already attached
// are skipped.
func (r *Registry) Attach(bufferID int, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.clients[name]; !ok {
			return fmt.Errorf("lspclient: %w: %s", ErrUnknownServer, name)
		}
		if !slices.Contains(r.attached[bufferID], name) {
			r.attached[bufferID] = append(r.attached[bufferID], name)
		}
	}
	return nil
}

// AttachLanguage attaches every server handling languageID to a buffer
// and returns their names.
func (r *Registry) AttachLanguage(bufferID int, languageID string) []string {
	var names []string
	for _, name := range r.Names() {
		if c := r.Client(name); c != nil && c.Handles(languageID) {
			names = append(names, name)
		}
	}
	if err := r.Attach(bufferID, names...); err != nil {
		r.log.Warn("attach failed", "buffer", bufferID, "err", err)
	}
	return names
}

// Detach removes all servers from a buffer.
func (r *Registry) Detach(bufferID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attached, bufferID)
}

// AttachedServers returns the servers attached to a buffer in attach
// order.
func (r *Registry) AttachedServers(bufferID int) []sighelp.ServerInfo {
	var infos []sighelp.ServerInfo
	for _, c := range r.attachedClients(bufferID) {
		infos = append(infos, c.Info())
	}
	return infos
}

func (r *Registry) attachedClients(bufferID int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var cs []*Client
	for _, name := range r.attached[bufferID] {
		cs = append(cs, r.clients[name])
	}
	return cs
}

// Request sends a request to the named server.
func (r *Registry) Request(ctx context.Context, server, method string, params, result any) error {
	c := r.Client(server)
	if c == nil {
		return fmt.Errorf("lspclient: %w: %s", ErrUnknownServer, server)
	}
	return c.Call(ctx, method, params, result)
}

// DidOpen sends didOpen for doc to every server attached to bufferID.
func (r *Registry) DidOpen(ctx context.Context, bufferID int, doc Document) error {
	return r.fanOut(ctx, bufferID, func(ctx context.Context, c *Client) error {
		return c.DidOpen(ctx, doc)
	})
}

// DidChange sends the full text of doc to every server attached to
// bufferID.
func (r *Registry) DidChange(ctx context.Context, bufferID int, doc Document) error {
	return r.fanOut(ctx, bufferID, func(ctx context.Context, c *Client) error {
		return c.DidChange(ctx, doc)
	})
}

func (r *Registry) fanOut(ctx context.Context, bufferID int, fn func(context.Context, *Client) error) error {
	var g errgroup.Group
	for _, c := range r.attachedClients(bufferID) {
		c := c
		g.Go(func() error { return fn(ctx, c) })
	}
	return g.Wait()
}

// Shutdown shuts down every client concurrently and empties the
// registry.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.order))
	for _, name := range r.order {
		clients = append(clients, r.clients[name])
	}
	r.order = nil
	r.clients = make(map[string]*Client)
	r.attached = make(map[int][]string)
	r.mu.Unlock()

	errs := make([]error, len(clients))
	var g errgroup.Group
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			errs[i] = c.Shutdown(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
