package validator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// AutoFixer applies the mechanical repairs attached to fixable issues:
// missing literal class attributes, missing method stubs, and missing
// recommended files. Fixes are matched on the structured Fix payload.
type AutoFixer struct {
	logger zerolog.Logger
}

func NewAutoFixer(logger zerolog.Logger) *AutoFixer {
	return &AutoFixer{
		logger: logger.With().Str("component", "autofix").Logger(),
	}
}

func (f *AutoFixer) Name() string { return "autofix" }

// Apply executes every fix carried by the given issues and returns a
// Result summarizing what was repaired. Failed attempts become issues of
// their own, never silent drops.
func (f *AutoFixer) Apply(_ context.Context, m *model.PluginModel, issues []Issue) Result {
	r := Result{Validator: f.Name()}

	// Insertions into the same file are applied bottom-up so earlier
	// line positions stay valid.
	var edits []Issue
	var creates []Issue
	for _, is := range issues {
		if !is.Fixable() {
			continue
		}
		if is.Fix.Kind == FixCreateFile {
			creates = append(creates, is)
		} else {
			edits = append(edits, is)
		}
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].Line > edits[j].Line })

	for _, is := range creates {
		f.applyCreate(m, is, &r)
	}
	for _, is := range edits {
		f.applyEdit(m, is, &r)
	}
	return r
}

func (f *AutoFixer) applyCreate(m *model.PluginModel, is Issue, r *Result) {
	fix := is.Fix
	abs := filepath.Join(m.RootPath, filepath.FromSlash(fix.File))
	if _, err := os.Stat(abs); err == nil {
		return // appeared since validation, nothing to do
	}
	if err := os.WriteFile(abs, []byte(fix.Content), 0o644); err != nil {
		r.Issues = append(r.Issues, at(errf("cannot create %s: %v", fix.File, err), fix.File, 0))
		return
	}
	f.logger.Info().Str("file", fix.File).Msg("Created missing file")
	r.Issues = append(r.Issues, at(infof("created %s", fix.File), fix.File, 0))
}

func (f *AutoFixer) applyEdit(m *model.PluginModel, is Issue, r *Result) {
	fix := is.Fix
	abs := filepath.Join(m.RootPath, filepath.FromSlash(fix.File))
	data, err := os.ReadFile(abs)
	if err != nil {
		r.Issues = append(r.Issues, at(errf("cannot fix %s: %v", fix.File, err), fix.File, 0))
		return
	}

	var snippet string
	switch fix.Kind {
	case FixAddAttribute:
		snippet = fmt.Sprintf("%s = %s", fix.Attribute, defaultAttrValue(fix.Attribute))
	case FixAddMethod:
		snippet = methodStub(fix.Method, fix.Async)
	default:
		r.Issues = append(r.Issues, at(warnf("no repair available for this issue"), fix.File, is.Line))
		return
	}

	updated, ok := insertIntoClass(string(data), fix.ClassName, snippet)
	if !ok {
		r.Issues = append(r.Issues, at(
			warnf("cannot fix %s: class %s not found", fix.File, fix.ClassName),
			fix.File, is.Line))
		return
	}
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		r.Issues = append(r.Issues, at(errf("cannot write %s: %v", fix.File, err), fix.File, 0))
		return
	}

	f.logger.Info().
		Str("file", fix.File).
		Str("class", fix.ClassName).
		Str("attribute", fix.Attribute).
		Str("method", fix.Method).
		Msg("Applied fix")

	what := fix.Attribute
	if fix.Kind == FixAddMethod {
		what = fix.Method + "()"
	}
	r.Issues = append(r.Issues, at(infof("added %s to class %s", what, fix.ClassName), fix.File, is.Line))
}

// insertIntoClass places a snippet as the first statement of the named
// class body, after a single-line docstring when one is present. The
// snippet may span multiple lines; class body indentation is inferred
// from the first existing body line.
func insertIntoClass(src, className, snippet string) (string, bool) {
	headerRe := regexp.MustCompile(`^(\s*)class\s+` + regexp.QuoteMeta(className) + `\b`)
	lines := strings.Split(src, "\n")

	for i, line := range lines {
		match := headerRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		indent := match[1] + "    "
		insertAt := i + 1
		// Infer real body indentation and skip a one-line docstring.
		for j := i + 1; j < len(lines); j++ {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "" {
				continue
			}
			if cur := leadingWhitespace(lines[j]); len(cur) > len(match[1]) {
				indent = cur
			}
			insertAt = j
			if strings.HasPrefix(trimmed, `"""`) && strings.HasSuffix(trimmed, `"""`) && len(trimmed) > 3 {
				insertAt = j + 1
			}
			break
		}

		var block []string
		for _, sl := range strings.Split(snippet, "\n") {
			if sl == "" {
				block = append(block, "")
			} else {
				block = append(block, indent+sl)
			}
		}

		out := make([]string, 0, len(lines)+len(block))
		out = append(out, lines[:insertAt]...)
		out = append(out, block...)
		out = append(out, lines[insertAt:]...)
		return strings.Join(out, "\n"), true
	}
	return "", false
}

func leadingWhitespace(s string) string {
	for i, r := range s {
		if r != ' ' && r != '\t' {
			return s[:i]
		}
	}
	return s
}

// defaultAttrValue picks a placeholder for an inserted attribute, shaped
// after the attribute's role.
func defaultAttrValue(attr string) string {
	switch {
	case strings.HasSuffix(attr, "_name") || attr == "name":
		words := strings.ReplaceAll(strings.TrimSuffix(attr, "_name"), "_", " ")
		if words == "" {
			words = "unnamed"
		}
		return fmt.Sprintf("%q", words)
	case strings.HasSuffix(attr, "_description") || attr == "description":
		return `"TODO: describe this component"`
	case strings.Contains(attr, "version"):
		return `"0.1.0"`
	}
	return `""`
}

// methodStub renders a minimal conformant body for a known required
// method, or a NotImplementedError stub for anything else.
func methodStub(method string, isAsync bool) string {
	switch method {
	case "get_components":
		return "def get_components(self) -> list[type]:\n    return []"
	case "register_endpoints":
		return "def register_endpoints(self) -> None:\n    pass"
	}
	prefix := ""
	if isAsync {
		prefix = "async "
	}
	return fmt.Sprintf("%sdef %s(self, *args, **kwargs):\n    raise NotImplementedError", prefix, method)
}
