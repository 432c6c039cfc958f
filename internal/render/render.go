// Package render writes command output as styled text, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ochronus/gomonsterapi/internal/batch"
	"github.com/ochronus/gomonsterapi/internal/models"
	"github.com/ochronus/gomonsterapi/internal/services/monster"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Format selects how values are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("output must be one of: text, json, yaml")
	}
}

// Printer writes values to out in the selected format.
type Printer struct {
	out    io.Writer
	format Format
	styles Styles
}

// NewPrinter creates a printer. Colors are used only for text output to a
// terminal.
func NewPrinter(out io.Writer, format Format) *Printer {
	styles := PlainStyles()
	if format == FormatText && IsTerminal(out) {
		styles = ColorStyles()
	}
	return &Printer{out: out, format: format, styles: styles}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Value prints v as JSON or YAML, or as indented JSON in text mode.
func (p *Printer) Value(v any) error {
	switch p.format {
	case FormatYAML:
		plain, err := toPlain(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(plain); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}

// toPlain turns v into maps, slices and scalars through its JSON form, so
// that JSON tags and raw JSON payloads drive the YAML output too.
func toPlain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return plain, nil
}

// ProcessID prints the id of a submitted job.
func (p *Printer) ProcessID(id string) error {
	if p.format != FormatText {
		return p.Value(map[string]string{"process_id": id})
	}
	p.field("process_id", id)
	return nil
}

// Status prints a job status.
func (p *Printer) Status(id string, s *monster.StatusResponse) error {
	if p.format != FormatText {
		return p.Value(s)
	}

	p.field("process_id", id)
	p.field("status", p.statusStyle(s.Status).Render(s.Status))
	switch s.Status {
	case monster.StatusFailed:
		p.field("error", s.FailureMessage())
	case monster.StatusCompleted:
		if out := s.Result.Output(); out != "" {
			p.field("output", out)
		}
	}
	return nil
}

// Result prints a job result. Text mode prints the generated output when the
// payload has one and the whole payload otherwise.
func (p *Printer) Result(r monster.Result) error {
	if p.format != FormatText {
		return p.Value(r)
	}
	if out := r.Output(); out != "" {
		fmt.Fprintln(p.out, out)
		return nil
	}
	return p.Value(r)
}

// URL prints an upload result.
func (p *Printer) URL(path, url string) error {
	if p.format != FormatText {
		return p.Value(map[string]string{"file": path, "download_url": url})
	}
	fmt.Fprintf(p.out, "%s %s\n", p.styles.Dim.Render(path), url)
	return nil
}

// Models prints the model catalog.
func (p *Printer) Models(list []models.Model) error {
	if p.format != FormatText {
		return p.Value(list)
	}

	width := 0
	for _, m := range list {
		if len(m.Name) > width {
			width = len(m.Name)
		}
	}
	for _, m := range list {
		fmt.Fprintf(p.out, "%s%s  %s%s  %s\n",
			p.styles.Value.Render(m.Name), strings.Repeat(" ", width-len(m.Name)),
			p.styles.Dim.Render(string(m.Kind)), strings.Repeat(" ", 6-len(m.Kind)),
			m.Description)
	}
	return nil
}

// Outcomes prints batch results followed by a summary line.
func (p *Printer) Outcomes(outcomes []batch.Outcome) error {
	if p.format != FormatText {
		return p.Value(outcomes)
	}

	for _, o := range outcomes {
		label := fmt.Sprintf("[%s: %s]", o.Name, o.Model)
		if o.OK() {
			fmt.Fprintf(p.out, "%s   %s %s\n", p.styles.Success.Render("ok"), label, p.styles.Dim.Render(o.Duration.Round(time.Millisecond).String()))
			if out := o.Result.Output(); out != "" {
				fmt.Fprintln(p.out, indent(out))
			}
			continue
		}
		fmt.Fprintf(p.out, "%s %s %s\n", p.styles.Error.Render("fail"), label, o.Error)
	}

	ok, failed := batch.Summarize(outcomes)
	summary := fmt.Sprintf("%d succeeded, %d failed", ok, failed)
	if failed > 0 {
		summary = p.styles.Warning.Render(summary)
	} else {
		summary = p.styles.Success.Render(summary)
	}
	fmt.Fprintln(p.out, summary)
	return nil
}

// Success prints a confirmation line.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, p.styles.Success.Render(msg))
}

// Error prints err in the error style.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.out, p.styles.Error.Render("Error: "+err.Error()))
}

func (p *Printer) field(key, value string) {
	label := key + ":"
	pad := ""
	if len(label) < 11 {
		pad = strings.Repeat(" ", 11-len(label))
	}
	fmt.Fprintf(p.out, "%s%s %s\n", p.styles.Key.Render(label), pad, value)
}

func (p *Printer) statusStyle(status string) lipgloss.Style {
	switch status {
	case monster.StatusCompleted:
		return p.styles.Success
	case monster.StatusFailed:
		return p.styles.Error
	default:
		return p.styles.Warning
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
