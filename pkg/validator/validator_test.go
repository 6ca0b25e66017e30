package validator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

func buildModel(t *testing.T, files map[string]string) *model.PluginModel {
	t.Helper()
	root := filepath.Join(t.TempDir(), "demo_plugin")
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	m, err := model.NewBuilder(zerolog.Nop()).Build(root)
	require.NoError(t, err)
	return m
}

func messagesOf(r Result) []string {
	out := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		out = append(out, is.Message)
	}
	return out
}

func countSeverity(r Result, s Severity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == s {
			n++
		}
	}
	return n
}

const validInit = `__plugin_meta__ = PluginMetadata(
    name="demo",
    description="A demo plugin",
    usage="/demo",
    version="1.0.0",
    author="Bob",
    license="MIT",
    repository_url="https://example.com/demo",
)
`

const validMain = `from .actions import DemoAction

class DemoPlugin(BasePlugin):
    plugin_name = "demo"

    def get_components(self) -> list[type]:
        return [DemoAction]
`

const validAction = `class DemoAction(BaseAction):
    action_name = "demo_action"
    action_description = "Does the demo"
    activation_keywords = ["demo"]

    async def execute(self, *args, **kwargs) -> tuple[bool, str]:
        return True, "ok"
`

func TestStructureMissingRequiredFiles(t *testing.T) {
	m := buildModel(t, map[string]string{"README.md": "# hi"})
	r := NewStructureValidator().Validate(context.Background(), m)

	assert.False(t, r.Passed())
	msgs := strings.Join(messagesOf(r), "\n")
	assert.Contains(t, msgs, "required file is missing: plugin.py")
	assert.Contains(t, msgs, "required file is missing: __init__.py")
	assert.Contains(t, msgs, "required file is missing: config.toml")
	assert.NotContains(t, msgs, "README.md")
	assert.Contains(t, msgs, "recommended directory is missing: tests/")
}

func TestStructureCompleteLayout(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py":       validMain,
		"__init__.py":     validInit,
		"actions.py":      validAction,
		"config.toml":     "",
		"README.md":       "# demo",
		"tests/test_x.py": "",
		"docs/usage.md":   "",
	})
	r := NewStructureValidator().Validate(context.Background(), m)
	assert.Empty(t, r.Issues)
}

func TestMetadataRequiredAndRecommended(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py":   validMain,
		"__init__.py": "__plugin_meta__ = PluginMetadata(\n    name=\"demo\",\n)\n",
	})
	r := NewMetadataValidator().Validate(context.Background(), m)

	msgs := strings.Join(messagesOf(r), "\n")
	assert.Contains(t, msgs, "missing required field: description")
	assert.Contains(t, msgs, "missing required field: usage")
	assert.NotContains(t, msgs, "missing required field: name")
	assert.Contains(t, msgs, "missing recommended field: version")
	assert.Contains(t, msgs, "missing recommended field: author")
	assert.Equal(t, 2, countSeverity(r, SeverityError))
}

func TestMetadataNonSemverVersionSingleWarning(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py": validMain,
		"__init__.py": `__plugin_meta__ = PluginMetadata(
    name="demo",
    description="d",
    usage="u",
    version="1.0",
    author="a",
    license="MIT",
    repository_url="https://example.com",
)
`,
	})
	r := NewMetadataValidator().Validate(context.Background(), m)

	assert.True(t, r.Passed())
	semverWarnings := 0
	for _, is := range r.Issues {
		if strings.Contains(is.Message, "not a semantic version") {
			semverWarnings++
			assert.Equal(t, SeverityWarning, is.Severity)
		}
	}
	assert.Equal(t, 1, semverWarnings)
}

func TestMetadataAbsent(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py":   validMain,
		"__init__.py": "x = 1\n",
	})
	r := NewMetadataValidator().Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "metadata not found")
}

func TestMetadataMalformedDependencyConstraint(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py": validMain,
		"__init__.py": `__plugin_meta__ = PluginMetadata(
    name="demo",
    description="d",
    usage="u",
    version="1.0.0",
    author="a",
    license="MIT",
    repository_url="https://example.com",
    plugin_dependencies=["other>=1.0.0", "bad>>zzz"],
)
`,
	})
	r := NewMetadataValidator().Validate(context.Background(), m)

	msgs := strings.Join(messagesOf(r), "\n")
	assert.Contains(t, msgs, `"bad>>zzz"`)
	assert.NotContains(t, msgs, `"other>=1.0.0"`)
}

func TestComponentConformant(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py":   validMain,
		"__init__.py": validInit,
		"actions.py":  validAction,
	})
	r := NewComponentValidator(nil).Validate(context.Background(), m)
	assert.Empty(t, r.Issues)
}

func TestComponentMissingRequiredAttribute(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py":   validMain,
		"__init__.py": validInit,
		"actions.py": `class DemoAction(BaseAction):
    action_name = "demo_action"
    activation_keywords = ["demo"]

    async def execute(self, *args, **kwargs) -> tuple[bool, str]:
        return True, "ok"
`,
	})
	r := NewComponentValidator(nil).Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	is := r.Issues[0]
	assert.Equal(t, SeverityError, is.Severity)
	assert.Contains(t, is.Message, "missing required attribute: action_description")
	require.True(t, is.Fixable())
	assert.Equal(t, FixAddAttribute, is.Fix.Kind)
	assert.Equal(t, "DemoAction", is.Fix.ClassName)
	assert.Equal(t, "actions.py", is.Fix.File)
}

func TestComponentEmptyAttributeAndStubMethod(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py":   validMain,
		"__init__.py": validInit,
		"actions.py": `class DemoAction(BaseAction):
    action_name = "demo_action"
    action_description = ""
    activation_keywords = ["demo"]

    async def execute(self, *args, **kwargs) -> tuple[bool, str]:
        raise NotImplementedError
`,
	})
	r := NewComponentValidator(nil).Validate(context.Background(), m)

	msgs := strings.Join(messagesOf(r), "\n")
	assert.Contains(t, msgs, "attribute action_description is empty")
	assert.Contains(t, msgs, "only contains pass or raise NotImplementedError")
	assert.True(t, r.Passed(), "empty attr and stub are warnings, not errors")
}

func TestComponentAsyncMismatch(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py":   validMain,
		"__init__.py": validInit,
		"actions.py": `class DemoAction(BaseAction):
    action_name = "demo_action"
    action_description = "d"
    activation_keywords = ["demo"]

    def execute(self, *args, **kwargs) -> tuple[bool, str]:
        return True, "ok"
`,
	})
	r := NewComponentValidator(nil).Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "must be declared async")
}

func TestComponentUnknownBaseClass(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py": `class DemoPlugin(BasePlugin):
    plugin_name = "demo"

    def get_components(self) -> list[type]:
        return [Strange]

class Strange(SomethingElse):
    pass
`,
		"__init__.py": validInit,
	})
	r := NewComponentValidator(nil).Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "unknown base class SomethingElse")
	assert.Contains(t, r.Issues[0].Suggestion, "BaseAction")
}

func TestComponentMissingPluginName(t *testing.T) {
	m := buildModel(t, map[string]string{
		"plugin.py": `class DemoPlugin(BasePlugin):
    def get_components(self) -> list[type]:
        return []
`,
		"__init__.py": validInit,
	})
	r := NewComponentValidator(nil).Validate(context.Background(), m)

	msgs := strings.Join(messagesOf(r), "\n")
	assert.Contains(t, msgs, "missing required attribute: plugin_name")
	assert.Contains(t, msgs, "no component registrations found")
}

func TestComponentReportsMissingMainFile(t *testing.T) {
	// Validators are independent: component must flag the missing main
	// class file itself, not lean on structure running first.
	m := buildModel(t, map[string]string{"__init__.py": validInit})
	r := NewComponentValidator(nil).Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "cannot determine plugin")
}

func TestMetadataReportsMissingInitFile(t *testing.T) {
	m := buildModel(t, map[string]string{"plugin.py": validMain})
	r := NewMetadataValidator().Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "cannot determine plugin")
}

func TestConfigStaleSectionSingleWarning(t *testing.T) {
	m := buildModel(t, map[string]string{
		"__init__.py": validInit,
		"plugin.py": `class DemoPlugin(BasePlugin):
    plugin_name = "demo"
    configs = [DemoConfig]

    def get_components(self) -> list[type]:
        return []

class DemoConfig(BaseConfig):
    config_name = "demo"

    class General(SectionBase):
        section_name = "general"
        enabled: bool = True
`,
		"config.toml": "[general]\nenabled = true\n\n[greeting]\ntext = \"hi\"\n",
	})
	r := NewConfigValidator().Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityWarning, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "[greeting]")
}

func TestConfigMissingDeclaredSection(t *testing.T) {
	m := buildModel(t, map[string]string{
		"__init__.py": validInit,
		"plugin.py": `class DemoPlugin(BasePlugin):
    plugin_name = "demo"
    configs = [DemoConfig]

    def get_components(self) -> list[type]:
        return []

class DemoConfig(BaseConfig):
    config_name = "demo"

    class General(SectionBase):
        enabled: bool = True
`,
		"config.toml": "",
	})
	r := NewConfigValidator().Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Contains(t, r.Issues[0].Message, "auto-completed at plugin load")
}

func TestConfigUnparsableDocument(t *testing.T) {
	m := buildModel(t, map[string]string{
		"__init__.py": validInit,
		"plugin.py":   validMain,
		"actions.py":  validAction,
		"config.toml": "[broken\n",
	})
	r := NewConfigValidator().Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
}

func TestDefaultRulesTable(t *testing.T) {
	rules := DefaultRules()

	k, ok := rules.Lookup("BaseAction")
	require.True(t, ok)
	assert.Equal(t, []string{"action_name", "action_description"}, k.RequiredAttrs)
	assert.Equal(t, []string{"execute"}, k.RequiredMethods)
	assert.True(t, k.Methods["execute"].Async)
	assert.True(t, k.Methods["execute"].Variadic())

	cmd, ok := rules.Lookup("Command")
	require.True(t, ok, "aliases resolve to canonical kinds")
	assert.Equal(t, []string{"message_text"}, cmd.Methods["execute"].ParamNames())

	adapter, ok := rules.Lookup("BaseAdapter")
	require.True(t, ok)
	assert.Equal(t, []string{"from_platform_message", "get_bot_info"}, adapter.RequiredMethods)

	_, ok = rules.Lookup("Nonsense")
	assert.False(t, ok)
}

func TestLoadRulesRejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kinds": {"X": {"required_attrs": "oops"}}}`), 0o644))

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rules document")
}

func TestTypeValidatorUnavailableChecker(t *testing.T) {
	m := buildModel(t, map[string]string{"plugin.py": validMain, "__init__.py": validInit})
	v := NewTypeValidator(TypeConfig{Checker: "definitely-not-installed-checker"})
	r := v.Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityInfo, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "unavailable")
	assert.True(t, r.Passed())
}

func TestTypeValidatorMapsCheckerSeverities(t *testing.T) {
	m := buildModel(t, map[string]string{"plugin.py": validMain, "__init__.py": validInit})
	script := filepath.Join(t.TempDir(), "fake-checker")
	findings := "plugin.py:3: error: Incompatible return value type\n" +
		"plugin.py:5: warning: Returning Any from typed function\n" +
		"plugin.py:7: note: See https://mypy.readthedocs.io\n"
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat <<'EOF'\n"+findings+"EOF\n"), 0o755))

	v := NewTypeValidator(TypeConfig{Checker: script})
	r := v.Validate(context.Background(), m)

	require.Len(t, r.Issues, 3)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Equal(t, SeverityWarning, r.Issues[1].Severity)
	// notes are actionable advice, not noise
	assert.Equal(t, SeverityWarning, r.Issues[2].Severity)
}

func TestStyleValidatorUnavailableLinter(t *testing.T) {
	m := buildModel(t, map[string]string{"plugin.py": validMain, "__init__.py": validInit})
	v := NewStyleValidator(StyleConfig{Linter: "definitely-not-installed-linter"})
	r := v.Validate(context.Background(), m)

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityInfo, r.Issues[0].Severity)
}

func TestParseFindings(t *testing.T) {
	out := `plugin.py:10: error: Incompatible return value type
actions.py:3: note: See documentation
Found 1 error in 1 file (checked 2 source files)
`
	fs := parseFindings(out)
	require.Len(t, fs, 2)
	assert.Equal(t, "plugin.py", fs[0].file)
	assert.Equal(t, 10, fs[0].line)
	assert.Equal(t, "error: Incompatible return value type", fs[0].rest)
}
