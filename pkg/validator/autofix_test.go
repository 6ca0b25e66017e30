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
)

func TestInsertAttributeIntoClass(t *testing.T) {
	src := `class DemoAction(BaseAction):
    action_name = "demo"

    async def execute(self):
        return True, "ok"
`
	out, ok := insertIntoClass(src, "DemoAction", `action_description = "TODO: describe this component"`)
	require.True(t, ok)
	lines := strings.Split(out, "\n")
	assert.Equal(t, `    action_description = "TODO: describe this component"`, lines[1])
	assert.Equal(t, `    action_name = "demo"`, lines[2])
}

func TestInsertSkipsDocstring(t *testing.T) {
	src := `class DemoAction(BaseAction):
    """One line docstring."""
    action_name = "demo"
`
	out, ok := insertIntoClass(src, "DemoAction", `x = ""`)
	require.True(t, ok)
	lines := strings.Split(out, "\n")
	assert.Equal(t, `    """One line docstring."""`, lines[1])
	assert.Equal(t, `    x = ""`, lines[2])
}

func TestInsertMethodIntoEmptyClass(t *testing.T) {
	src := "class Thin(BaseAction):\n    pass\n"
	out, ok := insertIntoClass(src, "Thin", methodStub("execute", true))
	require.True(t, ok)
	assert.Contains(t, out, "    async def execute(self, *args, **kwargs):\n        raise NotImplementedError")
}

func TestInsertUnknownClass(t *testing.T) {
	_, ok := insertIntoClass("class Other:\n    pass\n", "Missing", "x = 1")
	assert.False(t, ok)
}

func TestAutoFixerAppliesAttributeFix(t *testing.T) {
	m := buildModel(t, map[string]string{
		"__init__.py": validInit,
		"plugin.py":   validMain,
		"actions.py": `class DemoAction(BaseAction):
    action_name = "demo_action"
    activation_keywords = ["demo"]

    async def execute(self, *args, **kwargs) -> tuple[bool, str]:
        return True, "ok"
`,
	})
	issues := NewComponentValidator(nil).Validate(context.Background(), m).Issues
	require.NotEmpty(t, issues)

	fixer := NewAutoFixer(zerolog.Nop())
	r := fixer.Apply(context.Background(), m, issues)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityInfo, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "action_description")

	data, err := os.ReadFile(filepath.Join(m.RootPath, "actions.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `action_description = "TODO: describe this component"`)
}

func TestAutoFixerCreatesMissingFiles(t *testing.T) {
	m := buildModel(t, map[string]string{
		"__init__.py": validInit,
		"plugin.py":   validMain,
		"actions.py":  validAction,
	})
	issues := NewStructureValidator().Validate(context.Background(), m).Issues

	fixer := NewAutoFixer(zerolog.Nop())
	r := fixer.Apply(context.Background(), m, issues)

	created := 0
	for _, is := range r.Issues {
		if strings.HasPrefix(is.Message, "created ") {
			created++
		}
	}
	assert.Equal(t, 2, created, "config.toml and README.md")

	for _, f := range []string{"config.toml", "README.md"} {
		_, err := os.Stat(filepath.Join(m.RootPath, f))
		assert.NoError(t, err, f)
	}
}

func TestDefaultAttrValues(t *testing.T) {
	assert.Equal(t, `"demo action"`, defaultAttrValue("demo_action_name"))
	assert.Equal(t, `"TODO: describe this component"`, defaultAttrValue("action_description"))
	assert.Equal(t, `"0.1.0"`, defaultAttrValue("version"))
	assert.Equal(t, `""`, defaultAttrValue("other"))
}
