// Package validator holds the static checks applied to a built plugin
// model. Validators are pure functions of the model: they read files only
// through what the model already captured, never execute plugin code, and
// can run in any order.
package validator

import (
	"context"
	"fmt"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// Severity orders issue levels. Higher is more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the canonical upper-case label used in all reports.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// ParseSeverity maps a user-supplied level name to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "error", "ERROR":
		return SeverityError, nil
	case "warning", "WARNING", "warn":
		return SeverityWarning, nil
	case "info", "INFO", "all", "":
		return SeverityInfo, nil
	}
	return SeverityInfo, fmt.Errorf("unknown level %q (expected error, warning or info)", s)
}

// FixKind identifies a mechanical repair the autofixer knows how to apply.
type FixKind int

const (
	FixNone FixKind = iota
	// FixAddAttribute inserts a literal class attribute stub.
	FixAddAttribute
	// FixAddMethod inserts a method stub.
	FixAddMethod
	// FixCreateFile creates a recommended file with skeleton content.
	FixCreateFile
)

// Fix carries the structured data a mechanical repair needs. Fixes are
// matched on this struct, never by re-parsing issue messages.
type Fix struct {
	Kind      FixKind
	File      string // relative path of the file to modify or create
	ClassName string // target class for attribute/method insertion
	Attribute string
	Method    string
	Async     bool
	Content   string // skeleton content for FixCreateFile
}

// Issue is a single finding against the plugin.
type Issue struct {
	Severity   Severity
	Message    string
	FilePath   string // relative to the plugin root, "" when plugin-scoped
	Line       int
	Suggestion string
	Fix        *Fix // non-nil when the autofixer can repair this issue
}

// Fixable reports whether the issue carries an applicable repair.
func (i Issue) Fixable() bool { return i.Fix != nil && i.Fix.Kind != FixNone }

// Result is the outcome of one validator run.
type Result struct {
	Validator string
	Issues    []Issue
}

// Passed reports whether the run produced no errors.
func (r Result) Passed() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Counts returns the number of errors, warnings and infos.
func (r Result) Counts() (errors, warnings, infos int) {
	for _, is := range r.Issues {
		switch is.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		default:
			infos++
		}
	}
	return
}

// Validator checks one aspect of a plugin model.
type Validator interface {
	Name() string
	Validate(ctx context.Context, m *model.PluginModel) Result
}

func errf(format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

func warnf(format string, args ...any) Issue {
	return Issue{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
}

func infof(format string, args ...any) Issue {
	return Issue{Severity: SeverityInfo, Message: fmt.Sprintf(format, args...)}
}

func at(i Issue, file string, line int) Issue {
	i.FilePath = file
	i.Line = line
	return i
}

func suggest(i Issue, s string) Issue {
	i.Suggestion = s
	return i
}
