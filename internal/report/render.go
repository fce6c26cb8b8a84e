package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatText, FormatYAML, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q: use text, yaml or markdown", name)
	}
}

// RenderOptions controls terminal-facing output.
type RenderOptions struct {
	Width int  // 0 disables wrapping
	Color bool // false renders plain ASCII
}

// Render writes reports to w in the given format.
func Render(w io.Writer, reports []Report, format Format, opts RenderOptions) error {
	switch format {
	case FormatYAML:
		return renderYAML(w, reports)
	case FormatMarkdown:
		return renderMarkdown(w, reports, opts)
	default:
		return renderText(w, reports, opts)
	}
}

func renderYAML(w io.Writer, reports []Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("unable to encode report: %w", err)
		}
	}
	return enc.Close()
}

const nameWidth = 32

func renderText(w io.Writer, reports []Report, opts RenderOptions) error {
	renderer := lipgloss.NewRenderer(w)
	if !opts.Color {
		renderer.SetColorProfile(termenv.Ascii)
	}
	fileStyle := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	chunkStyle := renderer.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	errStyle := renderer.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	dimStyle := renderer.NewStyle().Faint(true)

	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "%s %s\n",
			fileStyle.Render(r.File),
			dimStyle.Render(fmt.Sprintf("(%s, %d chunks, %d templates)",
				humanize.Bytes(uint64(r.Size)), len(r.Chunks), r.TemplateCount()))) //nolint:gosec

		for _, c := range r.Chunks {
			head := fmt.Sprintf("chunk %d @ %#x", c.Index, c.Offset)
			if c.Error != "" {
				fmt.Fprintf(&b, "  %s %s\n", chunkStyle.Render(head), errStyle.Render(c.Error))
				continue
			}
			fmt.Fprintf(&b, "  %s records %d-%d, %d templates\n",
				chunkStyle.Render(head), c.FirstRecord, c.LastRecord, len(c.Templates))
			if c.Unresolved > 0 {
				fmt.Fprintf(&b, "    %s\n", errStyle.Render(fmt.Sprintf("%d records reference unknown templates", c.Unresolved)))
			}

			for _, t := range c.Templates {
				name := truncate.StringWithTail(t.Name, nameWidth, "…")
				fmt.Fprintf(&b, "    %#06x  %s  %-*s %8s  %s\n",
					uint32(t.Offset), t.GUID, nameWidth, name,
					humanize.Bytes(uint64(t.DataSize)),
					humanize.Comma(int64(t.Records))+" records")
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown returns the reports as a markdown document.
func Markdown(reports []Report) string {
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "# %s\n\n%s, %d chunks, %d templates\n\n",
			r.File, humanize.Bytes(uint64(r.Size)), len(r.Chunks), r.TemplateCount()) //nolint:gosec

		for _, c := range r.Chunks {
			fmt.Fprintf(&b, "## Chunk %d\n\n", c.Index)
			if c.Error != "" {
				fmt.Fprintf(&b, "Unable to load: `%s`\n\n", c.Error)
				continue
			}
			fmt.Fprintf(&b, "Records %d to %d.\n\n", c.FirstRecord, c.LastRecord)
			if len(c.Templates) == 0 {
				continue
			}

			b.WriteString("| Offset | GUID | Name | Size | Records |\n")
			b.WriteString("|---|---|---|---|---|\n")
			for _, t := range c.Templates {
				fmt.Fprintf(&b, "| %#x | %s | %s | %s | %d |\n",
					uint32(t.Offset), t.GUID, t.Name, humanize.Bytes(uint64(t.DataSize)), t.Records)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderMarkdown(w io.Writer, reports []Report, opts RenderOptions) error {
	style := styles.NoTTYStyle
	if opts.Color {
		style = styles.DarkStyle
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(opts.Width),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}

	out, err := r.Render(Markdown(reports))
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
