package check

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/validator"
)

// Reporter renders a check report to a writer.
type Reporter interface {
	Render(w io.Writer, r *Report) error
}

// NewReporter selects a reporter by format name.
func NewReporter(format string) (Reporter, error) {
	switch format {
	case "console", "":
		return &ConsoleReporter{}, nil
	case "markdown", "md":
		return &MarkdownReporter{}, nil
	case "json":
		return &JSONReporter{}, nil
	}
	return nil, fmt.Errorf("unknown report format %q (expected console, markdown or json)", format)
}

// ConsoleReporter prints findings grouped by validator with severity
// glyphs and a closing summary line.
type ConsoleReporter struct{}

func severityGlyph(s validator.Severity) string {
	switch s {
	case validator.SeverityError:
		return "✗"
	case validator.SeverityWarning:
		return "!"
	default:
		return "·"
	}
}

func (c *ConsoleReporter) Render(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "Checking plugin %s (%s)\n", r.PluginName, r.PluginPath)

	for _, res := range r.Results {
		if len(res.Issues) == 0 {
			fmt.Fprintf(w, "\n[%s] ok\n", res.Validator)
			continue
		}
		fmt.Fprintf(w, "\n[%s]\n", res.Validator)
		for _, is := range res.Issues {
			loc := ""
			if is.FilePath != "" {
				loc = " (" + is.FilePath
				if is.Line > 0 {
					loc += fmt.Sprintf(":%d", is.Line)
				}
				loc += ")"
			}
			fmt.Fprintf(w, "  %s %s: %s%s\n", severityGlyph(is.Severity), is.Severity, is.Message, loc)
			if is.Suggestion != "" {
				fmt.Fprintf(w, "      suggestion: %s\n", is.Suggestion)
			}
		}
	}

	s := r.Summary
	fmt.Fprintf(w, "\n%d validators: %d passed, %d with warnings, %d with errors\n",
		s.Total, s.Passed, s.Warned, s.Errored)
	fmt.Fprintf(w, "%d errors, %d warnings\n", s.Errors, s.Warnings)
	return nil
}

// MarkdownReporter renders the report as a markdown document.
type MarkdownReporter struct{}

func (m *MarkdownReporter) Render(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "# Check report: %s\n\n", r.PluginName)
	fmt.Fprintf(w, "Plugin path: `%s`\n", r.PluginPath)

	for _, res := range r.Results {
		fmt.Fprintf(w, "\n## %s\n\n", res.Validator)
		if len(res.Issues) == 0 {
			fmt.Fprintln(w, "No findings.")
			continue
		}
		fmt.Fprintln(w, "| Severity | Location | Message |")
		fmt.Fprintln(w, "|----------|----------|---------|")
		for _, is := range res.Issues {
			loc := is.FilePath
			if is.Line > 0 {
				loc = fmt.Sprintf("%s:%d", is.FilePath, is.Line)
			}
			msg := is.Message
			if is.Suggestion != "" {
				msg += " (" + is.Suggestion + ")"
			}
			fmt.Fprintf(w, "| %s | %s | %s |\n", is.Severity, loc, escapePipes(msg))
		}
	}

	s := r.Summary
	fmt.Fprintf(w, "\n## Summary\n\n%d validators: %d passed, %d with warnings, %d with errors (%d errors, %d warnings)\n",
		s.Total, s.Passed, s.Warned, s.Errored, s.Errors, s.Warnings)
	return nil
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// JSONReporter emits the report as JSON with a stable field order and no
// timestamps: rendering the same report twice yields identical bytes.
type JSONReporter struct{}

type jsonIssue struct {
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Fixable    bool   `json:"fixable,omitempty"`
}

type jsonResult struct {
	Validator string      `json:"validator"`
	Passed    bool        `json:"passed"`
	Issues    []jsonIssue `json:"issues"`
}

type jsonReport struct {
	PluginName string       `json:"plugin_name"`
	PluginPath string       `json:"plugin_path"`
	Results    []jsonResult `json:"results"`
	Summary    Summary      `json:"summary"`
}

func (j *JSONReporter) Render(w io.Writer, r *Report) error {
	doc := jsonReport{
		PluginName: r.PluginName,
		PluginPath: r.PluginPath,
		Results:    make([]jsonResult, 0, len(r.Results)),
		Summary:    r.Summary,
	}
	for _, res := range r.Results {
		jr := jsonResult{Validator: res.Validator, Passed: res.Passed(), Issues: []jsonIssue{}}
		for _, is := range res.Issues {
			jr.Issues = append(jr.Issues, jsonIssue{
				Severity:   is.Severity.String(),
				Message:    is.Message,
				File:       is.FilePath,
				Line:       is.Line,
				Suggestion: is.Suggestion,
				Fixable:    is.Fixable(),
			})
		}
		doc.Results = append(doc.Results, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
