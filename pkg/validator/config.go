package validator

import (
	"context"
	"sort"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// ConfigValidator cross-checks the declared configuration schema against
// the on-disk config.toml document.
type ConfigValidator struct{}

func NewConfigValidator() *ConfigValidator { return &ConfigValidator{} }

func (v *ConfigValidator) Name() string { return "config" }

func (v *ConfigValidator) Validate(_ context.Context, m *model.PluginModel) Result {
	r := Result{Validator: v.Name()}

	if m.ConfigDocPresent && m.ConfigDocErr != "" {
		r.Issues = append(r.Issues, at(suggest(
			errf("cannot parse %s: %s", model.ConfigFileName, m.ConfigDocErr),
			"fix the TOML syntax"),
			model.ConfigFileName, 0))
		return r
	}

	if m.Schema == nil {
		// No configs declared on the plugin class: an existing document is
		// fine, it just is not checked against anything.
		return r
	}

	declared := map[string]bool{}
	for _, cc := range m.Schema.Classes {
		if !cc.Resolved {
			r.Issues = append(r.Issues, at(
				warnf("config class %s referenced from configs cannot be located", cc.Name),
				model.MainFileName, 0))
			continue
		}
		if len(cc.Sections) == 0 {
			r.Issues = append(r.Issues, at(suggest(
				warnf("config class %s declares no sections", cc.Name),
				"declare nested classes inheriting SectionBase with the config fields"),
				cc.SourceFile, 0))
			continue
		}
		for _, sec := range cc.Sections {
			declared[sec.Key] = true
			if len(sec.Fields) == 0 {
				r.Issues = append(r.Issues, at(
					warnf("config section [%s] declares no fields", sec.Key),
					cc.SourceFile, 0))
			}
		}
	}

	if !m.ConfigDocPresent || m.ConfigDoc == nil {
		return r
	}

	// Declared sections absent from the document get auto-completed by the
	// runtime; stale document sections do not.
	for _, cc := range m.Schema.Classes {
		for _, sec := range cc.Sections {
			if _, ok := m.ConfigDoc[sec.Key]; !ok {
				r.Issues = append(r.Issues, at(
					warnf("section [%s] is missing from %s, it will be auto-completed at plugin load",
						sec.Key, model.ConfigFileName),
					model.ConfigFileName, 0))
			}
		}
	}
	keys := make([]string, 0, len(m.ConfigDoc))
	for key := range m.ConfigDoc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !declared[key] {
			r.Issues = append(r.Issues, at(suggest(
				warnf("section [%s] in %s is not declared by any config class", key, model.ConfigFileName),
				"remove the stale section or declare it in the schema"),
				model.ConfigFileName, 0))
		}
	}

	return r
}
