// Package dispatch executes one resolved action against the right channel:
// a local shell, a registry-owned remote session, either optionally wrapped
// in sudo.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/ormasoftchile/autopilot/pkg/governance"
	"github.com/ormasoftchile/autopilot/pkg/logging"
	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/schema"
	"github.com/ormasoftchile/autopilot/pkg/secrets"
	"github.com/ormasoftchile/autopilot/pkg/session"
)

// DefaultShell runs local commands.
const DefaultShell = "sh"

// Dispatcher is loop-unaware: the iteration index only labels the attempt.
type Dispatcher struct {
	Executor providers.CommandExecutor
	Sessions *session.Registry
	Secrets  *secrets.Resolver
	Logger   *slog.Logger

	// Shell is invoked as Shell -c SCRIPT for local commands.
	Shell string
	// LocalUser and LocalHost label the prompt of local commands.
	LocalUser string
	LocalHost string
}

// New creates a Dispatcher running local commands through executor and
// remote commands through sessions.
func New(executor providers.CommandExecutor, sessions *session.Registry, resolver *secrets.Resolver, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if resolver == nil {
		resolver = secrets.NewResolver()
	}
	d := &Dispatcher{
		Executor:  executor,
		Sessions:  sessions,
		Secrets:   resolver,
		Logger:    logger.With(slog.String("component", "dispatch")),
		Shell:     DefaultShell,
		LocalUser: "user",
		LocalHost: "localhost",
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		d.LocalUser = u.Username
	} else if v := os.Getenv("USER"); v != "" {
		d.LocalUser = v
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		d.LocalHost = h
	}
	return d
}

// runFunc executes one script on a channel.
type runFunc func(ctx context.Context, script string, stdin []byte) (*providers.CommandResult, error)

// resolved holds the per-invocation values of a command action. It never
// outlives Execute.
type resolved struct {
	script      string
	remote      *session.Key
	password    string
	sudo        bool
	sudoUser    string
	sudoPass    string
	redactions  []*governance.CompiledRedaction
	promptUser  string
	promptHost  string
	promptShell string
}

// Execute performs one attempt of action and returns its outcome. It never
// returns nil.
func (d *Dispatcher) Execute(ctx context.Context, action schema.Action, iteration int) *providers.Outcome {
	switch action.Kind() {
	case schema.KindMessage:
		return &providers.Outcome{
			Kind:  providers.Displayed,
			Text:  action.Text,
			Style: action.Style,
			Speed: action.TypingSpeed(),
		}
	case schema.KindCommand:
		return d.executeCommand(ctx, action, iteration)
	default:
		return &providers.Outcome{Kind: providers.Failed, ErrorKind: providers.IOError, Detail: "invalid action"}
	}
}

func (d *Dispatcher) executeCommand(ctx context.Context, action schema.Action, iteration int) *providers.Outcome {
	start := time.Now()
	out := &providers.Outcome{
		Kind:       providers.Ran,
		Style:      action.Style,
		Command:    action.Command.String(),
		HideStdout: action.HideStdout,
		HideStderr: action.HideStderr,
	}

	res, err := d.resolve(action)
	if err != nil {
		out.Prompt = d.staticPrompt(action)
		d.fail(out, providers.SecretResolutionError, err.Error(), nil)
		return d.finish(ctx, out, iteration, start)
	}
	out.Prompt = fmt.Sprintf("[%s@%s]%s", res.promptUser, res.promptHost, res.promptShell)

	run, kind, err := d.channel(ctx, res)
	if err != nil {
		d.fail(out, kind, governance.RedactOutput(err.Error(), res.redactions), nil)
		return d.finish(ctx, out, iteration, start)
	}

	// The commands form one script so working directory and variables carry
	// across them; && stops at the first failure.
	script, stdin := res.script, []byte(nil)
	if res.sudo {
		script, stdin = wrapSudo(res.script, res.sudoUser, res.sudoPass)
	}

	d.Logger.DebugContext(ctx, "command started", slog.String("command", out.Command), slog.Bool("sudo", res.sudo))
	result, runErr := run(ctx, script, stdin)
	if result != nil {
		out.Stdout = string(governance.RedactBytes(result.Stdout, res.redactions))
		out.Stderr = string(governance.RedactBytes(result.Stderr, res.redactions))
	}

	switch {
	case runErr != nil:
		kind, detail := providers.IOError, runErr.Error()
		switch {
		case ctx.Err() != nil:
			kind = providers.Interrupted
		case res.remote != nil:
			// A broken connection must not be reused by the next attempt.
			kind = providers.ConnectionError
			d.Sessions.Drop(*res.remote)
		case providers.IsExecNotFound(runErr):
			detail = fmt.Sprintf("shell %q not found: %v", d.shell(), runErr)
		}
		d.fail(out, kind, governance.RedactOutput(detail, res.redactions), nil)
	case result.ExitCode != 0:
		code := result.ExitCode
		if res.sudo && isSudoAuthFailure(result.Stderr) {
			d.fail(out, providers.AuthenticationError, fmt.Sprintf("sudo rejected credentials for user %s", res.sudoUser), &code)
		} else {
			d.fail(out, providers.ExitNonZero, fmt.Sprintf("%q exited with status %d", out.Command, code), &code)
		}
	default:
		zero := 0
		out.ExitStatus = &zero
	}
	return d.finish(ctx, out, iteration, start)
}

// resolve reads every indirect value of the action once.
func (d *Dispatcher) resolve(action schema.Action) (*resolved, error) {
	res := &resolved{
		promptUser:  d.LocalUser,
		promptHost:  d.LocalHost,
		promptShell: "$",
	}
	var secretValues []string

	if r := action.Remote; r != nil {
		host, err := d.Secrets.Resolve(r.Host)
		if err != nil {
			return nil, fmt.Errorf("remote.host: %w", err)
		}
		usr, err := d.Secrets.Resolve(r.User)
		if err != nil {
			return nil, fmt.Errorf("remote.user: %w", err)
		}
		if !r.Password.IsZero() {
			pw, err := d.Secrets.Resolve(r.Password)
			if err != nil {
				return nil, fmt.Errorf("remote.password: %w", err)
			}
			res.password = pw
			secretValues = append(secretValues, pw)
		}
		res.remote = &session.Key{Host: host, Port: r.EffectivePort(), User: usr}
		res.promptUser, res.promptHost = usr, host
	}

	if s := action.Sudo; s != nil {
		usr, err := d.Secrets.Resolve(s.EffectiveUser())
		if err != nil {
			return nil, fmt.Errorf("sudo.user: %w", err)
		}
		if !s.Password.IsZero() {
			pw, err := d.Secrets.Resolve(s.Password)
			if err != nil {
				return nil, fmt.Errorf("sudo.password: %w", err)
			}
			res.sudoPass = pw
			secretValues = append(secretValues, pw)
		}
		res.sudo = true
		res.sudoUser = usr
		res.promptUser = usr
		res.promptShell = "#"
	}

	script, values, err := d.Secrets.Expand(action.Command.String())
	if err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	res.script = script
	secretValues = append(secretValues, values...)

	for _, v := range secretValues {
		if v != "" && !governance.Maskable(v) {
			d.Logger.Warn("secret value too short to mask in output", slog.Int("min_length", governance.MinSecretLength))
		}
	}
	res.redactions = governance.CompileSecretRules(secretValues)
	return res, nil
}

// channel selects where scripts run. Remote channels come from the registry.
func (d *Dispatcher) channel(ctx context.Context, res *resolved) (runFunc, providers.ErrorKind, error) {
	if res.remote == nil {
		shell := d.shell()
		return func(ctx context.Context, script string, stdin []byte) (*providers.CommandResult, error) {
			return d.Executor.Execute(ctx, shell, []string{"-c", script}, stdin)
		}, "", nil
	}

	if d.Sessions == nil {
		return nil, providers.ConnectionError, errors.New("no session registry configured")
	}
	h, err := d.Sessions.GetOrConnect(ctx, *res.remote, res.password)
	if err != nil {
		var authErr *session.AuthError
		switch {
		case ctx.Err() != nil:
			return nil, providers.Interrupted, err
		case errors.As(err, &authErr):
			return nil, providers.AuthenticationError, err
		default:
			return nil, providers.ConnectionError, err
		}
	}
	return h.Run, "", nil
}

// staticPrompt labels an action whose indirect values could not be resolved.
func (d *Dispatcher) staticPrompt(action schema.Action) string {
	usr, host, shell := d.LocalUser, d.LocalHost, "$"
	if r := action.Remote; r != nil {
		usr, host = r.User.String(), r.Host.String()
	}
	if s := action.Sudo; s != nil {
		usr, shell = s.EffectiveUser().String(), "#"
	}
	return fmt.Sprintf("[%s@%s]%s", usr, host, shell)
}

func (d *Dispatcher) fail(out *providers.Outcome, kind providers.ErrorKind, detail string, exit *int) {
	out.Kind = providers.Failed
	out.ErrorKind = kind
	out.Detail = detail
	out.ExitStatus = exit
}

func (d *Dispatcher) shell() string {
	if d.Shell == "" {
		return DefaultShell
	}
	return d.Shell
}

// finish stamps the duration on every outcome, including early failures.
func (d *Dispatcher) finish(ctx context.Context, out *providers.Outcome, iteration int, start time.Time) *providers.Outcome {
	out.Duration = time.Since(start)
	d.logFinished(ctx, out, iteration)
	return out
}

func (d *Dispatcher) logFinished(ctx context.Context, out *providers.Outcome, iteration int) {
	attrs := []any{
		slog.String("outcome", string(out.Kind)),
		slog.Duration("duration", out.Duration),
	}
	if logging.Iteration(ctx) < 0 {
		attrs = append(attrs, slog.Int("iteration", iteration))
	}
	if out.ExitStatus != nil {
		attrs = append(attrs, slog.Int("exit_status", *out.ExitStatus))
	}
	if out.Kind == providers.Failed {
		attrs = append(attrs, slog.String("error_kind", string(out.ErrorKind)), slog.String("detail", out.Detail))
		d.Logger.WarnContext(ctx, "dispatch finished", attrs...)
		return
	}
	d.Logger.InfoContext(ctx, "dispatch finished", attrs...)
}
