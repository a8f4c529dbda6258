package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/ormasoftchile/autopilot/pkg/providers"
)

// DefaultDialTimeout bounds TCP connect plus SSH handshake.
const DefaultDialTimeout = 10 * time.Second

// SSHDialer opens SSH connections. With a password it authenticates by
// password (and keyboard-interactive); without one it tries the ssh-agent
// and then the default private keys under ~/.ssh.
type SSHDialer struct {
	Timeout time.Duration
	// KnownHostsPath defaults to ~/.ssh/known_hosts.
	KnownHostsPath string
	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool
	// IdentityFiles defaults to id_ed25519, id_ecdsa and id_rsa under ~/.ssh.
	IdentityFiles []string
}

// Dial connects and authenticates.
func (d *SSHDialer) Dial(ctx context.Context, key Key, password string) (Conn, error) {
	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, &ConnectError{Key: key, Err: err}
	}

	auth, agentConn := d.authMethods(password)
	cfg := &ssh.ClientConfig{
		User:            key.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.timeout(),
	}

	client, err := d.dial(ctx, key, cfg)
	if err != nil {
		if agentConn != nil {
			agentConn.Close()
		}
		return nil, err
	}
	return &sshConn{client: client, agentConn: agentConn}, nil
}

func (d *SSHDialer) dial(ctx context.Context, key Key, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	nd := net.Dialer{}
	conn, err := nd.DialContext(dialCtx, "tcp", key.Addr())
	if err != nil {
		return nil, &ConnectError{Key: key, Err: err}
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, key.Addr(), cfg)
	if err != nil {
		conn.Close()
		if isAuthFailure(err) {
			return nil, &AuthError{Key: key, Err: err}
		}
		return nil, &ConnectError{Key: key, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

func (d *SSHDialer) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultDialTimeout
	}
	return d.Timeout
}

func (d *SSHDialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := d.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return cb, nil
}

func (d *SSHDialer) authMethods(password string) ([]ssh.AuthMethod, net.Conn) {
	if password != "" {
		return []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		}, nil
	}

	var methods []ssh.AuthMethod
	var agentConn net.Conn
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if c, err := net.Dial("unix", sock); err == nil {
			agentConn = c
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(c).Signers))
		}
	}
	if signers := d.loadSigners(); len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods, agentConn
}

// loadSigners reads the identity files, skipping missing and
// passphrase-protected keys.
func (d *SSHDialer) loadSigners() []ssh.Signer {
	files := d.IdentityFiles
	if len(files) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			files = append(files, filepath.Join(home, ".ssh", name))
		}
	}
	var signers []ssh.Signer
	for _, f := range files {
		pem, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		s, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			continue
		}
		signers = append(signers, s)
	}
	return signers
}

// isAuthFailure matches the client handshake error x/crypto/ssh returns once
// every auth method has been rejected.
func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

type sshConn struct {
	client    *ssh.Client
	agentConn net.Conn
}

// Run opens a session channel per command. Cancelling ctx closes the
// channel, which the remote sshd turns into SIGHUP for the command.
func (c *sshConn) Run(ctx context.Context, command string, stdin []byte) (*providers.CommandResult, error) {
	start := time.Now()
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session channel: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if stdin != nil {
		sess.Stdin = bytes.NewReader(stdin)
	}

	if err := sess.Start(command); err != nil {
		return nil, fmt.Errorf("start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		sess.Close()
		<-done
		return &providers.CommandResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: -1,
			Duration: time.Since(start),
		}, fmt.Errorf("remote command: %w", ctx.Err())
	case err = <-done:
	}

	result := &providers.CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("remote command: %w", err)
	}
	return result, nil
}

func (c *sshConn) Close() error {
	err := c.client.Close()
	if c.agentConn != nil {
		c.agentConn.Close()
	}
	return err
}
