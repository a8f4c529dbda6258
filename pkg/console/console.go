// Package console implements the line-mode operator for a workflow run. It
// reads commands with readline and prints each step as plain text.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

// Console drives a runtime.Cursor from typed commands.
type Console struct {
	cursor *runtime.Cursor
	output io.Writer
	rl     *readline.Instance

	// lastStage is the stage whose banner was printed last, -1 for none.
	lastStage int
	// catchInterrupt makes Ctrl-C stop the running step instead of the process.
	catchInterrupt bool
}

// New creates a console for cursor writing to output.
func New(cursor *runtime.Cursor, output io.Writer) *Console {
	if output == nil {
		output = os.Stdout
	}
	return &Console{cursor: cursor, output: output, lastStage: -1}
}

// Run starts the interactive loop. It returns when the operator quits, input
// ends, or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	commands := []string{"next", "back", "rerun", "continue", "status", "history", "help", "quit"}

	var completer = readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children,
			readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          c.output,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	c.rl = rl
	c.catchInterrupt = true
	defer rl.Close()

	fmt.Fprintf(c.output, "autopilot: %d steps in %d stages\n", c.cursor.Len(), len(c.cursor.Workflow().Stages))
	fmt.Fprintf(c.output, "Press Enter to run the next step, 'help' for commands.\n\n")

	for {
		if ctx.Err() != nil {
			return nil
		}
		rl.SetPrompt(c.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if quit := c.Exec(ctx, line); quit {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the operator asked to quit.
// An empty line runs the next step.
func (c *Console) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	cmd := "next"
	if len(parts) > 0 {
		cmd = parts[0]
	}

	switch cmd {
	case "next", "n":
		c.handleNext(ctx)
	case "back", "b":
		c.handleBack()
	case "rerun", "r":
		c.handleRerun(ctx)
	case "continue", "c":
		c.handleContinue(ctx)
	case "status", "s":
		c.handleStatus()
	case "history", "h":
		c.handleHistory()
	case "help", "?":
		c.handleHelp()
	case "quit", "q":
		fmt.Fprintf(c.output, "Exiting.\n")
		return true
	default:
		fmt.Fprintf(c.output, "Unknown command: %q. Type 'help' for available commands.\n", cmd)
	}
	return false
}

// buildPrompt creates the prompt string: autopilot[N/total | stage]>
func (c *Console) buildPrompt() string {
	step, _, ok := c.cursor.Next()
	if !ok {
		return "autopilot[done]> "
	}
	return fmt.Sprintf("autopilot[%d/%d | %s]> ", c.cursor.Position()+1, c.cursor.Len(), c.cursor.StageName(step))
}

// stepContext bounds one step. In interactive mode Ctrl-C cancels the step
// and leaves the console running.
func (c *Console) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.catchInterrupt {
		return signal.NotifyContext(ctx, os.Interrupt)
	}
	return context.WithCancel(ctx)
}
