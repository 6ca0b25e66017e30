package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// StructureValidator checks the plugin directory layout: files every
// plugin must carry, and files it should.
type StructureValidator struct{}

func NewStructureValidator() *StructureValidator { return &StructureValidator{} }

func (v *StructureValidator) Name() string { return "structure" }

type layoutRule struct {
	name string
	hint string
}

var (
	requiredFiles = []string{model.MainFileName, model.InitFileName, model.ConfigFileName}

	recommendedFiles = []layoutRule{
		{"README.md", "add a README.md describing what the plugin does and how to use it"},
	}

	recommendedDirs = []layoutRule{
		{"tests", "add a tests/ directory with unit tests for the plugin"},
		{"docs", "add a docs/ directory with usage documentation"},
	}
)

func (v *StructureValidator) Validate(_ context.Context, m *model.PluginModel) Result {
	r := Result{Validator: v.Name()}

	for _, f := range requiredFiles {
		if !m.HasFile(f) {
			issue := errf("required file is missing: %s", f)
			issue.Fix = &Fix{Kind: FixCreateFile, File: f, Content: requiredFileSkeleton(f, m)}
			r.Issues = append(r.Issues, suggest(issue, fmt.Sprintf("create %s at the plugin root", f)))
		}
	}

	for _, rule := range recommendedFiles {
		if !m.HasFile(rule.name) {
			issue := warnf("recommended file is missing: %s", rule.name)
			issue.Fix = &Fix{Kind: FixCreateFile, File: rule.name, Content: recommendedFileSkeleton(rule.name, m)}
			r.Issues = append(r.Issues, suggest(issue, rule.hint))
		}
	}

	for _, rule := range recommendedDirs {
		if !m.HasDir(rule.name) {
			r.Issues = append(r.Issues, suggest(warnf("recommended directory is missing: %s/", rule.name), rule.hint))
		}
	}

	// Walk problems (unreadable directories, symlink cycles, depth cap)
	// surface here so they are never silently lost.
	for _, n := range m.Notes {
		if strings.HasPrefix(n.Message, "cannot parse") || strings.HasPrefix(n.Message, "cannot locate source file") {
			continue // parse and resolution notes belong to the metadata/component validators
		}
		switch n.Level {
		case model.NoteError:
			r.Issues = append(r.Issues, at(errf("%s", n.Message), n.File, n.Line))
		case model.NoteWarning:
			r.Issues = append(r.Issues, at(warnf("%s", n.Message), n.File, n.Line))
		}
	}

	return r
}

func requiredFileSkeleton(name string, m *model.PluginModel) string {
	switch name {
	case model.InitFileName:
		return "from mofox.plugin_system import PluginMetadata\n\n" +
			"__plugin_meta__ = PluginMetadata(\n" +
			fmt.Sprintf("    name=%q,\n", m.DirName) +
			"    description=\"\",\n" +
			"    usage=\"\",\n" +
			")\n"
	case model.MainFileName:
		return "from mofox.plugin_system import BasePlugin, register_plugin\n\n\n" +
			"@register_plugin\n" +
			"class Plugin(BasePlugin):\n" +
			fmt.Sprintf("    plugin_name = %q\n\n", m.DirName) +
			"    def get_components(self) -> list[type]:\n" +
			"        return []\n"
	case model.ConfigFileName:
		return configSkeleton(m)
	}
	return ""
}

func recommendedFileSkeleton(name string, m *model.PluginModel) string {
	switch name {
	case "README.md":
		title := m.DirName
		if m.Metadata != nil && m.Metadata.Name != "" {
			title = m.Metadata.Name
		}
		desc := ""
		if m.Metadata != nil {
			desc = m.Metadata.Description
		}
		return fmt.Sprintf("# %s\n\n%s\n", title, desc)
	}
	return ""
}

// configSkeleton renders a config.toml reflecting the declared schema, one
// table per section with commented field placeholders.
func configSkeleton(m *model.PluginModel) string {
	if m.Schema == nil || len(m.Schema.Classes) == 0 {
		return "# Plugin configuration\n"
	}
	out := "# Plugin configuration\n"
	for _, cc := range m.Schema.Classes {
		for _, sec := range cc.Sections {
			out += fmt.Sprintf("\n[%s]\n", sec.Key)
			for _, f := range sec.Fields {
				if v, ok := tomlLiteral(f); ok {
					out += fmt.Sprintf("%s = %s\n", f.Name, v)
				} else {
					out += fmt.Sprintf("# %s =\n", f.Name)
				}
			}
		}
	}
	return out
}

// tomlLiteral converts a recorded Python default into TOML source where
// the conversion is direct. Anything else stays a commented placeholder.
func tomlLiteral(f model.ConfigField) (string, bool) {
	if !f.Literal || f.Default == "" {
		return "", false
	}
	switch f.Default {
	case "True":
		return "true", true
	case "False":
		return "false", true
	case "None":
		return "", false
	}
	return f.Default, true
}
