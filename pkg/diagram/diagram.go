// Package diagram generates visual overviews of a workflow.
// Supports Mermaid flowchart, ASCII and Markdown formats.
package diagram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/autopilot/pkg/schema"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid  Format = "mermaid"
	FormatASCII    Format = "ascii"
	FormatMarkdown Format = "markdown"
)

// Generate produces a diagram string from a parsed workflow. title names the
// workflow, usually after its file.
func Generate(wf *schema.Workflow, title string, format Format) (string, error) {
	if wf == nil {
		return "", fmt.Errorf("nil workflow")
	}
	if title == "" {
		title = "Workflow"
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(wf), nil
	case FormatASCII:
		return generateASCII(wf, title), nil
	case FormatMarkdown:
		return generateMarkdown(wf, title), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

func generateMermaid(wf *schema.Workflow) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	steps := collectSteps(wf)
	if len(steps) == 0 {
		return b.String()
	}

	b.WriteString("    START([Start]) --> " + steps[0].id + "\n")

	for si, stage := range wf.Stages {
		fmt.Fprintf(&b, "    subgraph stage_%d[%q]\n", si, escMermaid(stage.Name))
		for _, s := range steps {
			if s.stage == si {
				b.WriteString("        " + nodeDefinition(s) + "\n")
			}
		}
		b.WriteString("    end\n")
	}

	for i, s := range steps {
		if s.times > 1 {
			fmt.Fprintf(&b, "    %s -->|%q| %s\n", s.id, "x"+strconv.Itoa(s.times), s.id)
		}
		if i < len(steps)-1 {
			fmt.Fprintf(&b, "    %s --> %s\n", s.id, steps[i+1].id)
		}
	}
	fmt.Fprintf(&b, "    %s --> END([End])\n", steps[len(steps)-1].id)

	for _, s := range steps {
		switch {
		case s.kind == schema.KindMessage:
			fmt.Fprintf(&b, "    style %s fill:#2a2a3a,stroke:#888\n", s.id)
		case s.remote != "":
			fmt.Fprintf(&b, "    style %s fill:#3a1a4a,stroke:#a0f\n", s.id)
		default:
			fmt.Fprintf(&b, "    style %s fill:#1a3a4a,stroke:#0af\n", s.id)
		}
	}

	return b.String()
}

// --- ASCII ---

func generateASCII(wf *schema.Workflow, name string) string {
	var b strings.Builder

	steps := collectSteps(wf)
	if len(steps) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	// Compute uniform box width so every box and connector aligns.
	const indent = 8
	boxWidth := computeUniformBoxWidth(wf, steps, name)
	connCol := indent + 1 + boxWidth/2 // +1 accounts for the left border character
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)
	mid := boxWidth / 2

	// Header: same width as body boxes, name centered.
	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + centerPad(name, boxWidth) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")

	stage := -1
	for _, s := range steps {
		b.WriteString(connPad + "│\n")
		if s.stage != stage {
			stage = s.stage
			banner := "### " + wf.Stages[stage].Name + " ###"
			b.WriteString(pad + "╞" + centerPadFill(banner, boxWidth, "═") + "╡\n")
			b.WriteString(connPad + "│\n")
		}
		writeASCIIStep(&b, s, indent, boxWidth)
	}
	b.WriteString(connPad + "│\n")
	b.WriteString(strings.Repeat(" ", connCol-2) + "■ End\n")

	return b.String()
}

// computeUniformBoxWidth returns the widest interior width needed
// across all steps, stage banners and the header name.
func computeUniformBoxWidth(wf *schema.Workflow, steps []diagramStep, name string) int {
	w := 22

	// Header name with padding
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, st := range wf.Stages {
		if bw := runewidth.StringWidth(st.Name) + 10; bw > w {
			w = bw
		}
	}
	for _, s := range steps {
		if sw := stepContentWidth(s); sw > w {
			w = sw
		}
	}
	return w
}

// stepContentWidth returns the interior width a single step box needs.
func stepContentWidth(s diagramStep) int {
	w := runewidth.StringWidth(stepLine(s))
	for _, d := range s.details {
		if dw := runewidth.StringWidth(" → " + d); dw > w {
			w = dw
		}
	}
	return w
}

// maxLabel bounds the label printed inside a box.
const maxLabel = 48

func stepLine(s diagramStep) string {
	return fmt.Sprintf(" %s %s ", stepIcon(s), runewidth.Truncate(s.label, maxLabel, "…"))
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	return centerPadFill(s, width, " ")
}

func centerPadFill(s string, width int, fill string) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	right := total - left
	return strings.Repeat(fill, left) + s + strings.Repeat(fill, right)
}

func writeASCIIStep(b *strings.Builder, s diagramStep, indent, boxWidth int) {
	content := stepLine(s)
	contentWidth := runewidth.StringWidth(content)

	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	b.WriteString(pad + "┌" + strings.Repeat("─", boxWidth) + "┐\n")
	b.WriteString(pad + "│" + content + strings.Repeat(" ", boxWidth-contentWidth) + "│\n")
	for _, d := range s.details {
		line := " → " + d
		b.WriteString(pad + "│" + line + strings.Repeat(" ", boxWidth-runewidth.StringWidth(line)) + "│\n")
	}
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

func stepIcon(s diagramStep) string {
	switch {
	case s.kind == schema.KindMessage:
		return "💬"
	case s.remote != "":
		return "🌐"
	default:
		return "⚡"
	}
}

// --- Markdown ---

// generateMarkdown renders a document overview suitable for glamour.
func generateMarkdown(wf *schema.Workflow, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)

	actions, steps := 0, 0
	for _, st := range wf.Stages {
		actions += len(st.Actions)
		for _, a := range st.Actions {
			steps += a.Times()
		}
	}
	fmt.Fprintf(&b, "%d stages, %d actions, %d steps.\n", len(wf.Stages), actions, steps)

	for si, st := range wf.Stages {
		fmt.Fprintf(&b, "\n## %d. %s\n\n", si+1, st.Name)
		for _, a := range st.Actions {
			switch a.Kind() {
			case schema.KindMessage:
				fmt.Fprintf(&b, "- 💬 %s\n", a.Text)
			case schema.KindCommand:
				b.WriteString("- ⚡")
				for _, c := range a.Command {
					fmt.Fprintf(&b, " `%s`", strings.ReplaceAll(c, "`", "'"))
				}
				b.WriteString("\n")
				for _, d := range actionDetails(a) {
					fmt.Fprintf(&b, "  - %s\n", d)
				}
			}
		}
	}
	return b.String()
}

// --- step collection ---

type diagramStep struct {
	id      string
	stage   int
	kind    schema.ActionKind
	label   string
	times   int
	remote  string
	details []string
}

func collectSteps(wf *schema.Workflow) []diagramStep {
	var result []diagramStep
	for si, st := range wf.Stages {
		for ai, a := range st.Actions {
			ds := diagramStep{
				id:      fmt.Sprintf("s%d_a%d", si, ai),
				stage:   si,
				kind:    a.Kind(),
				label:   firstLine(a.Label()),
				times:   a.Times(),
				details: actionDetails(a),
			}
			if a.Remote != nil {
				ds.remote = remoteLabel(a.Remote)
			}
			result = append(result, ds)
		}
	}
	return result
}

// actionDetails lists the execution attributes of a command action. Secret
// values never appear; indirections are shown in their document form.
func actionDetails(a schema.Action) []string {
	var out []string
	if a.Remote != nil {
		out = append(out, "ssh "+remoteLabel(a.Remote))
	}
	if a.Sudo != nil {
		out = append(out, "sudo -u "+a.Sudo.EffectiveUser().String())
	}
	if a.Loop != nil && a.Loop.Times > 1 {
		d := fmt.Sprintf("repeat x%d", a.Loop.Times)
		if a.Loop.Delay > 0 {
			d += fmt.Sprintf(" every %dms", a.Loop.Delay)
		}
		out = append(out, d)
	}
	var hidden []string
	if a.HideStdout {
		hidden = append(hidden, "stdout")
	}
	if a.HideStderr {
		hidden = append(hidden, "stderr")
	}
	if len(hidden) > 0 {
		out = append(out, "hides "+strings.Join(hidden, ", "))
	}
	return out
}

func remoteLabel(r *schema.RemoteTarget) string {
	return fmt.Sprintf("%s@%s:%d", r.User.String(), r.Host.String(), r.EffectivePort())
}

// --- string helpers ---

func nodeDefinition(s diagramStep) string {
	label := escMermaid(truncate(s.label, 40))
	switch s.kind {
	case schema.KindMessage:
		return fmt.Sprintf(`%s(["💬 %s"])`, s.id, label)
	default:
		suffix := ""
		if s.remote != "" {
			suffix = "<br/>" + escMermaid(s.remote)
		}
		return fmt.Sprintf(`%s["%s %s%s"]`, s.id, stepIcon(s), label, suffix)
	}
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func truncate(s string, max int) string {
	return runewidth.Truncate(s, max, "...")
}
