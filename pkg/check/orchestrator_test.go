package check

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/validator"
)

func writePlugin(t *testing.T, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "demo_plugin")
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func fullPlugin(t *testing.T) string {
	return writePlugin(t, map[string]string{
		"__init__.py": `__plugin_meta__ = PluginMetadata(
    name="demo",
    description="A demo plugin",
    usage="/demo",
    version="1.0.0",
    author="Bob",
    license="MIT",
    repository_url="https://example.com/demo",
)
`,
		"plugin.py": `from .actions import DemoAction

class DemoPlugin(BasePlugin):
    plugin_name = "demo"

    def get_components(self) -> list[type]:
        return [DemoAction]
`,
		"actions.py": `class DemoAction(BaseAction):
    action_name = "demo_action"
    action_description = "Does the demo"
    activation_keywords = ["demo"]

    async def execute(self, *args, **kwargs) -> tuple[bool, str]:
        return True, "ok"
`,
		"config.toml":     "",
		"README.md":       "# demo",
		"tests/test_x.py": "",
		"docs/usage.md":   "",
	})
}

// External tool validators are pointed at nonexistent binaries so runs
// stay hermetic; they degrade to single INFO findings.
func testOptions() Options {
	return Options{TypeChecker: "mpdt-test-no-mypy", Linter: "mpdt-test-no-ruff"}
}

func runCheck(t *testing.T, opts Options, path string) *Report {
	t.Helper()
	o, err := NewOrchestrator(opts, zerolog.Nop())
	require.NoError(t, err)
	report, err := o.Run(context.Background(), path)
	require.NoError(t, err)
	return report
}

func TestRunCleanPlugin(t *testing.T) {
	report := runCheck(t, testOptions(), fullPlugin(t))

	assert.False(t, report.Failed())
	assert.Equal(t, "demo", report.PluginName)
	require.Len(t, report.Results, 6)

	order := make([]string, 0, 6)
	for _, r := range report.Results {
		order = append(order, r.Validator)
	}
	assert.Equal(t, []string{"structure", "metadata", "component", "config", "type", "style"}, order)

	assert.Equal(t, 0, report.Summary.Errors)
	assert.Equal(t, 0, report.Summary.Warnings)
	assert.Equal(t, 2, report.Summary.Infos, "the two unavailable external tools")
}

func TestRunMissingMainFile(t *testing.T) {
	root := writePlugin(t, map[string]string{"__init__.py": ""})
	report := runCheck(t, testOptions(), root)

	assert.True(t, report.Failed())
	assert.Greater(t, report.Summary.Errors, 0)
}

func TestRunAllValidatorsExecuteDespiteErrors(t *testing.T) {
	// Even an empty directory runs the full suite.
	root := filepath.Join(t.TempDir(), "empty_plugin")
	require.NoError(t, os.MkdirAll(root, 0o755))
	report := runCheck(t, testOptions(), root)

	require.Len(t, report.Results, 6)
	assert.True(t, report.Failed())
}

func TestRunFailsWithoutMainFileWhenStructureSkipped(t *testing.T) {
	// Metadata and component flag the undeterminable plugin on their own,
	// so skipping structure never turns a headless directory into a pass.
	root := writePlugin(t, map[string]string{"__init__.py": `__plugin_meta__ = PluginMetadata(
    name="demo",
    description="A demo plugin",
    usage="/demo",
)
`})
	opts := testOptions()
	opts.Skip = []string{"structure", "type", "style"}
	report := runCheck(t, opts, root)

	require.Len(t, report.Results, 3)
	assert.True(t, report.Failed())

	var component validator.Result
	for _, r := range report.Results {
		if r.Validator == "component" {
			component = r
		}
	}
	require.NotEmpty(t, component.Issues)
	assert.Equal(t, validator.SeverityError, component.Issues[0].Severity)
	assert.Contains(t, component.Issues[0].Message, "cannot determine plugin")
}

func TestRunSkipValidators(t *testing.T) {
	opts := testOptions()
	opts.Skip = []string{"type", "style"}
	report := runCheck(t, opts, fullPlugin(t))

	require.Len(t, report.Results, 4)
	for _, r := range report.Results {
		assert.NotContains(t, []string{"type", "style"}, r.Validator)
	}
}

func TestRunConcurrentMatchesSequential(t *testing.T) {
	root := writePlugin(t, map[string]string{"__init__.py": "", "plugin.py": ""})

	seq := runCheck(t, testOptions(), root)
	conc := testOptions()
	conc.Concurrent = true
	par := runCheck(t, conc, root)

	require.Len(t, par.Results, len(seq.Results))
	for i := range seq.Results {
		assert.Equal(t, seq.Results[i].Validator, par.Results[i].Validator)
		assert.Equal(t, len(seq.Results[i].Issues), len(par.Results[i].Issues))
	}
	assert.Equal(t, seq.Summary, par.Summary)
}

func TestRunConcurrentFixDefersLinterAfterReaders(t *testing.T) {
	// ruff --fix rewrites plugin sources, so in a concurrent fix run the
	// linter executes alone once every reading validator has finished.
	linter := filepath.Join(t.TempDir(), "fake-linter")
	require.NoError(t, os.WriteFile(linter, []byte("#!/bin/sh\necho 'plugin.py:1: E401 multiple imports on one line'\n"), 0o755))

	opts := testOptions()
	opts.Linter = linter
	opts.Concurrent = true
	opts.Fix = true
	report := runCheck(t, opts, fullPlugin(t))

	require.Len(t, report.Results, 7)
	order := make([]string, 0, 7)
	for _, r := range report.Results {
		order = append(order, r.Validator)
	}
	assert.Equal(t, []string{"structure", "metadata", "component", "config", "type", "style", "autofix"}, order)

	style := report.Results[5]
	require.NotEmpty(t, style.Issues, "deferred linter still runs")
	assert.Contains(t, style.Issues[0].Message, "E401")
}

func TestRunLevelFilterAppliedAfterAggregation(t *testing.T) {
	root := writePlugin(t, map[string]string{
		"__init__.py": "__plugin_meta__ = PluginMetadata(\n    name=\"demo\",\n    description=\"d\",\n    usage=\"u\",\n)\n",
		"plugin.py":   "class P(BasePlugin):\n    plugin_name = \"demo\"\n\n    def get_components(self) -> list[type]:\n        return []\n",
	})

	opts := testOptions()
	opts.Level = validator.SeverityError
	report := runCheck(t, opts, root)

	require.Len(t, report.Results, 6, "filtering must not suppress validator execution")
	for _, r := range report.Results {
		for _, is := range r.Issues {
			assert.Equal(t, validator.SeverityError, is.Severity)
		}
	}
	// Summary reflects the filtered view.
	assert.Equal(t, 0, report.Summary.Warnings)
}

// Raising the threshold never increases the number of displayed issues,
// and everything displayed meets the threshold.
func TestSeverityFilterProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var issues []validator.Issue
		n := rapid.IntRange(0, 20).Draw(rt, "n")
		for i := 0; i < n; i++ {
			issues = append(issues, validator.Issue{
				Severity: validator.Severity(rapid.IntRange(0, 2).Draw(rt, "sev")),
				Message:  "m",
			})
		}
		res := validator.Result{Validator: "x", Issues: issues}

		prev := len(filterResult(res, validator.SeverityInfo).Issues)
		for _, level := range []validator.Severity{validator.SeverityWarning, validator.SeverityError} {
			filtered := filterResult(res, level)
			if len(filtered.Issues) > prev {
				rt.Fatalf("filter at %v grew the issue list", level)
			}
			prev = len(filtered.Issues)
			for _, is := range filtered.Issues {
				if is.Severity < level {
					rt.Fatalf("issue below threshold %v survived", level)
				}
			}
		}
	})
}

func TestRunWithFixRepairsPlugin(t *testing.T) {
	root := writePlugin(t, map[string]string{
		"__init__.py": `__plugin_meta__ = PluginMetadata(
    name="demo",
    description="d",
    usage="u",
    version="1.0.0",
    author="a",
    license="MIT",
    repository_url="https://example.com",
)
`,
		"plugin.py": `from .actions import DemoAction

class DemoPlugin(BasePlugin):
    plugin_name = "demo"

    def get_components(self) -> list[type]:
        return [DemoAction]
`,
		"actions.py": `class DemoAction(BaseAction):
    action_name = "demo_action"
    activation_keywords = ["demo"]

    async def execute(self, *args, **kwargs) -> tuple[bool, str]:
        return True, "ok"
`,
	})

	opts := testOptions()
	opts.Fix = true
	report := runCheck(t, opts, root)

	require.Len(t, report.Results, 7, "fix run appends the autofix result")
	assert.Equal(t, "autofix", report.Results[6].Validator)

	data, err := os.ReadFile(filepath.Join(root, "actions.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "action_description")

	// The repaired plugin passes a fresh check.
	after := runCheck(t, testOptions(), root)
	assert.False(t, after.Failed())
}

func TestJSONReporterIdempotent(t *testing.T) {
	report := runCheck(t, testOptions(), fullPlugin(t))

	var a, b bytes.Buffer
	r := &JSONReporter{}
	require.NoError(t, r.Render(&a, report))
	require.NoError(t, r.Render(&b, report))
	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.Contains(t, a.String(), `"plugin_name": "demo"`)
}

func TestConsoleReporter(t *testing.T) {
	root := writePlugin(t, map[string]string{"__init__.py": ""})
	report := runCheck(t, testOptions(), root)

	var buf bytes.Buffer
	require.NoError(t, (&ConsoleReporter{}).Render(&buf, report))
	out := buf.String()
	assert.Contains(t, out, "[structure]")
	assert.Contains(t, out, "ERROR: required file is missing: plugin.py")
	assert.Contains(t, out, "validators:")
}

func TestMarkdownReporter(t *testing.T) {
	report := runCheck(t, testOptions(), fullPlugin(t))

	var buf bytes.Buffer
	require.NoError(t, (&MarkdownReporter{}).Render(&buf, report))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# Check report: demo"))
	assert.Contains(t, out, "## structure")
	assert.Contains(t, out, "## Summary")
}

func TestMarkdownReporterSuggestionsStayASCII(t *testing.T) {
	root := writePlugin(t, map[string]string{"__init__.py": ""})
	report := runCheck(t, testOptions(), root)

	var buf bytes.Buffer
	require.NoError(t, (&MarkdownReporter{}).Render(&buf, report))
	out := buf.String()
	assert.Contains(t, out, "(create plugin.py at the plugin root)")
	idx := strings.IndexFunc(out, func(r rune) bool { return r > 127 })
	assert.Equal(t, -1, idx, "report output must stay plain ASCII")
}

func TestNewReporterUnknownFormat(t *testing.T) {
	_, err := NewReporter("yaml")
	require.Error(t, err)
}
