// Package session owns the remote connections of one run. Connections are
// keyed by (host, port, user), reused across actions and closed when no
// remaining step can reach them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/ormasoftchile/autopilot/pkg/providers"
)

// ErrClosed is returned by GetOrConnect after Close.
var ErrClosed = errors.New("session registry closed")

// Key identifies one remote session.
type Key struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
	User string `json:"user"`
}

// Addr returns host:port.
func (k Key) Addr() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(int(k.Port)))
}

func (k Key) String() string {
	return k.User + "@" + k.Addr()
}

// Conn is a live remote connection able to run shell commands.
type Conn interface {
	// Run executes command in a fresh channel, writing stdin when non-nil.
	// A non-zero exit is reported through ExitCode with a nil error.
	Run(ctx context.Context, command string, stdin []byte) (*providers.CommandResult, error)
	Close() error
}

// Dialer opens connections. SSHDialer is the production implementation.
type Dialer interface {
	Dial(ctx context.Context, key Key, password string) (Conn, error)
}

// ConnectError reports a failure to reach or handshake with a host.
type ConnectError struct {
	Key Key
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Key, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials.
type AuthError struct {
	Key Key
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate %s: %v", e.Key, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Handle is a registry-owned connection.
type Handle struct {
	key  Key
	conn Conn
}

// Key returns the key the handle was opened for.
func (h *Handle) Key() Key { return h.key }

// Run executes command on the underlying connection.
func (h *Handle) Run(ctx context.Context, command string, stdin []byte) (*providers.CommandResult, error) {
	return h.conn.Run(ctx, command, stdin)
}

// Registry maps keys to live handles. It is safe for concurrent use.
type Registry struct {
	dialer Dialer
	logger *slog.Logger

	mu      sync.Mutex
	handles map[Key]*Handle
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(dialer Dialer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		dialer:  dialer,
		logger:  logger.With(slog.String("component", "session")),
		handles: make(map[Key]*Handle),
	}
}

// GetOrConnect returns the existing handle for key or dials a new one.
// An existing handle is reused even when password differs from the one it
// was opened with. Failed dials are not retried and not cached.
func (r *Registry) GetOrConnect(ctx context.Context, key Key, password string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if h, ok := r.handles[key]; ok {
		r.logger.DebugContext(ctx, "session reused", slog.String("target", key.String()))
		return h, nil
	}

	conn, err := r.dialer.Dial(ctx, key, password)
	if err != nil {
		r.logger.WarnContext(ctx, "session connect failed", slog.String("target", key.String()), slog.String("error", err.Error()))
		return nil, err
	}
	h := &Handle{key: key, conn: conn}
	r.handles[key] = h
	r.logger.InfoContext(ctx, "session connected", slog.String("target", key.String()))
	return h, nil
}

// ReleaseUnused closes every handle whose key is not in reachable.
func (r *Registry) ReleaseUnused(reachable map[Key]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, h := range r.handles {
		if _, ok := reachable[key]; ok {
			continue
		}
		r.closeHandle(h)
		delete(r.handles, key)
	}
}

// Drop closes and forgets the handle for key so the next GetOrConnect dials
// again. Unknown keys are ignored.
func (r *Registry) Drop(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]
	if !ok {
		return
	}
	r.closeHandle(h)
	delete(r.handles, key)
}

// Len returns the number of open handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close closes every handle. Close errors are logged, not returned.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, h := range r.handles {
		r.closeHandle(h)
		delete(r.handles, key)
	}
	r.closed = true
}

func (r *Registry) closeHandle(h *Handle) {
	if err := h.conn.Close(); err != nil {
		r.logger.Warn("session close failed", slog.String("target", h.key.String()), slog.String("error", err.Error()))
		return
	}
	r.logger.Info("session closed", slog.String("target", h.key.String()))
}
