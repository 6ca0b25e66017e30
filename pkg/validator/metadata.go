package validator

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// MetadataValidator checks the plugin metadata declared in __init__.py.
type MetadataValidator struct{}

func NewMetadataValidator() *MetadataValidator { return &MetadataValidator{} }

func (v *MetadataValidator) Name() string { return "metadata" }

func (v *MetadataValidator) Validate(_ context.Context, m *model.PluginModel) Result {
	r := Result{Validator: v.Name()}

	if m.InitModule != nil && m.InitModule.Err != nil {
		r.Issues = append(r.Issues, at(
			errf("cannot parse %s: %s", model.InitFileName, m.InitModule.Err.Msg),
			model.InitFileName, m.InitModule.Err.Line))
		return r
	}

	if m.Metadata == nil {
		if !m.HasFile(model.InitFileName) {
			r.Issues = append(r.Issues, at(suggest(
				errf("cannot determine plugin: %s not found", model.InitFileName),
				"create __init__.py declaring __plugin_meta__ = PluginMetadata(...)"),
				model.InitFileName, 0))
			return r
		}
		r.Issues = append(r.Issues, at(suggest(
			errf("plugin metadata not found"),
			"declare __plugin_meta__ = PluginMetadata(...) in __init__.py"),
			model.InitFileName, 0))
		return r
	}

	meta := m.Metadata

	required := []struct{ field, value string }{
		{"name", meta.Name},
		{"description", meta.Description},
		{"usage", meta.Usage},
	}
	for _, f := range required {
		if f.value == "" {
			r.Issues = append(r.Issues, at(suggest(
				errf("metadata is missing required field: %s", f.field),
				fmt.Sprintf("add %s=\"...\" to PluginMetadata", f.field)),
				model.InitFileName, 0))
		}
	}

	recommended := []struct{ field, value string }{
		{"version", meta.Version},
		{"author", meta.Author},
		{"license", meta.License},
		{"repository_url", meta.RepositoryURL},
	}
	for _, f := range recommended {
		if f.value == "" {
			r.Issues = append(r.Issues, at(
				warnf("metadata is missing recommended field: %s", f.field),
				model.InitFileName, 0))
		}
	}

	if meta.Version != "" {
		if _, err := semver.StrictNewVersion(meta.Version); err != nil {
			r.Issues = append(r.Issues, at(suggest(
				warnf("version %q is not a semantic version", meta.Version),
				"use MAJOR.MINOR.PATCH, for example 1.0.0"),
				model.InitFileName, 0))
		}
	}

	for _, dep := range meta.PluginDependencies {
		if _, err := semver.NewConstraint(depConstraint(dep)); err != nil {
			r.Issues = append(r.Issues, at(
				warnf("plugin dependency %q has a malformed version constraint", dep),
				model.InitFileName, 0))
		}
	}

	return r
}

// depConstraint splits "name>=1.2.0" style dependency strings and returns
// the constraint part; a bare name means any version.
func depConstraint(dep string) string {
	for i := 0; i < len(dep); i++ {
		switch dep[i] {
		case '>', '<', '=', '~', '^', '!':
			return dep[i:]
		}
	}
	return "*"
}
