package session

import (
	"context"
	"errors"
	"testing"

	"github.com/ormasoftchile/autopilot/pkg/providers"
)

type fakeConn struct {
	closed   bool
	closeErr error
}

func (c *fakeConn) Run(ctx context.Context, command string, stdin []byte) (*providers.CommandResult, error) {
	return &providers.CommandResult{Stdout: []byte(command)}, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.closeErr
}

type fakeDialer struct {
	dials     []Key
	passwords []string
	conns     map[Key]*fakeConn
	err       error
}

func (d *fakeDialer) Dial(ctx context.Context, key Key, password string) (Conn, error) {
	d.dials = append(d.dials, key)
	d.passwords = append(d.passwords, password)
	if d.err != nil {
		return nil, d.err
	}
	if d.conns == nil {
		d.conns = make(map[Key]*fakeConn)
	}
	c := &fakeConn{}
	d.conns[key] = c
	return c, nil
}

var (
	deploy = Key{Host: "a.example.com", Port: 22, User: "deploy"}
	root   = Key{Host: "a.example.com", Port: 22, User: "root"}
)

func TestGetOrConnectReusesHandle(t *testing.T) {
	d := &fakeDialer{}
	r := NewRegistry(d, nil)
	ctx := context.Background()

	h1, err := r.GetOrConnect(ctx, deploy, "pw")
	if err != nil {
		t.Fatalf("GetOrConnect: %v", err)
	}
	h2, err := r.GetOrConnect(ctx, deploy, "different")
	if err != nil {
		t.Fatalf("GetOrConnect: %v", err)
	}
	if h1 != h2 {
		t.Error("same key should return the same handle")
	}
	if len(d.dials) != 1 {
		t.Errorf("dials = %d, want 1", len(d.dials))
	}

	if _, err := r.GetOrConnect(ctx, root, "pw"); err != nil {
		t.Fatalf("GetOrConnect root: %v", err)
	}
	if len(d.dials) != 2 || r.Len() != 2 {
		t.Errorf("dials = %d, handles = %d, want 2/2", len(d.dials), r.Len())
	}
}

func TestGetOrConnectDoesNotCacheFailures(t *testing.T) {
	d := &fakeDialer{err: &ConnectError{Key: deploy, Err: errors.New("refused")}}
	r := NewRegistry(d, nil)

	_, err := r.GetOrConnect(context.Background(), deploy, "")
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectError, got %v", err)
	}
	if r.Len() != 0 {
		t.Error("failed dial must not register a handle")
	}

	d.err = nil
	if _, err := r.GetOrConnect(context.Background(), deploy, ""); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if len(d.dials) != 2 {
		t.Errorf("dials = %d, want 2", len(d.dials))
	}
}

func TestReleaseUnused(t *testing.T) {
	d := &fakeDialer{}
	r := NewRegistry(d, nil)
	ctx := context.Background()
	r.GetOrConnect(ctx, deploy, "")
	r.GetOrConnect(ctx, root, "")

	r.ReleaseUnused(map[Key]struct{}{deploy: {}})

	if r.Len() != 1 {
		t.Fatalf("handles = %d, want 1", r.Len())
	}
	if d.conns[deploy].closed {
		t.Error("reachable session was closed")
	}
	if !d.conns[root].closed {
		t.Error("unreachable session was not closed")
	}
}

func TestCloseSwallowsErrors(t *testing.T) {
	d := &fakeDialer{}
	r := NewRegistry(d, nil)
	h, _ := r.GetOrConnect(context.Background(), deploy, "")
	d.conns[deploy].closeErr = errors.New("broken pipe")

	r.Close()

	if !d.conns[deploy].closed || r.Len() != 0 {
		t.Error("Close should close every handle")
	}
	if _, err := r.GetOrConnect(context.Background(), deploy, ""); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if h.Key() != deploy {
		t.Errorf("Key() = %v", h.Key())
	}
}

func TestKeyString(t *testing.T) {
	if got := deploy.String(); got != "deploy@a.example.com:22" {
		t.Errorf("String() = %q", got)
	}
	v6 := Key{Host: "::1", Port: 2222, User: "u"}
	if got := v6.Addr(); got != "[::1]:2222" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestDropForcesRedial(t *testing.T) {
	dialer := &fakeDialer{}
	r := NewRegistry(dialer, nil)
	ctx := context.Background()

	h, err := r.GetOrConnect(ctx, deploy, "")
	if err != nil {
		t.Fatal(err)
	}
	first := dialer.conns[deploy]

	r.Drop(deploy)
	if !first.closed {
		t.Error("dropped handle should be closed")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	r.Drop(root)

	h2, err := r.GetOrConnect(ctx, deploy, "")
	if err != nil {
		t.Fatal(err)
	}
	if h2 == h || len(dialer.dials) != 2 {
		t.Errorf("expected a fresh dial, dials = %d", len(dialer.dials))
	}
}
