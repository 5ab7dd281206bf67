// Package render prints agent step events to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"archpilot/internal/agent"
	"archpilot/internal/sse"

	"github.com/fatih/color"
)

const thoughtIndent = "        "

// Renderer writes result events flush-left under a bold header and thought
// events indented and dimmed, so reasoning stays visually apart from output.
type Renderer struct {
	out     io.Writer
	key     *color.Color
	thought *color.Color
	label   *color.Color
}

func New(out io.Writer, noColor bool) *Renderer {
	r := &Renderer{
		out:     out,
		key:     color.New(color.FgCyan, color.Bold),
		thought: color.New(color.Faint, color.Italic),
		label:   color.New(color.FgYellow),
	}
	if noColor {
		for _, c := range []*color.Color{r.key, r.thought, r.label} {
			c.DisableColor()
		}
	}
	return r
}

func (r *Renderer) Event(ev sse.StepEvent) error {
	if ev.IsThought {
		return r.writeThought(ev)
	}
	if _, err := r.key.Fprintf(r.out, "▸ %s\n", ev.Key); err != nil {
		return err
	}
	_, err := fmt.Fprintln(r.out, strings.TrimRight(ev.Content, "\n"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.out)
	return err
}

func (r *Renderer) writeThought(ev sse.StepEvent) error {
	if _, err := r.label.Fprintf(r.out, "%s%s\n", thoughtIndent, ev.Key); err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(ev.Content, "\n"), "\n") {
		if _, err := r.thought.Fprintf(r.out, "%s%s\n", thoughtIndent, line); err != nil {
			return err
		}
	}
	return nil
}

// Summary prints a single titled block, used for non-streaming answers.
func (r *Renderer) Summary(title, body string) error {
	if _, err := r.key.Fprintf(r.out, "▸ %s\n", title); err != nil {
		return err
	}
	_, err := fmt.Fprintln(r.out, strings.TrimRight(body, "\n"))
	return err
}

// Diagram prints an analysed diagram as titled blocks. Empty sections are
// left out.
func (r *Renderer) Diagram(d agent.Diagram) error {
	var blocks [][2]string
	add := func(title, body string) {
		if strings.TrimSpace(body) != "" {
			blocks = append(blocks, [2]string{title, body})
		}
	}
	add("diagram", strings.TrimSpace(d.ID+" "+d.Name))
	add("mermaid", d.MermaidCode)
	add("summary", d.Summary)
	add("description", d.Description)
	add("pros", bullets(d.Pros))
	add("cons", bullets(d.Cons))

	var rows []string
	for _, c := range d.Complexity {
		rows = append(rows, fmt.Sprintf("%s [%s] %s", c.Component, c.Complexity, c.Reason))
	}
	add("complexity", strings.Join(rows, "\n"))

	for i, b := range blocks {
		if i > 0 {
			if _, err := fmt.Fprintln(r.out); err != nil {
				return err
			}
		}
		if err := r.Summary(b[0], b[1]); err != nil {
			return err
		}
	}
	return nil
}

func bullets(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}
