package model

import (
	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/pysrc"
)

// RegistrationStyle records how a component reached the plugin's component
// list. Both styles are equally valid; the tag exists so tooling can reason
// about them without duplicating recognition logic.
type RegistrationStyle string

const (
	RegistrationAppend     RegistrationStyle = "append"
	RegistrationReturnList RegistrationStyle = "return-list"
)

// PluginMetadata mirrors the PluginMetadata(...) construction in the
// plugin's package init file. Fields not present in source are empty.
type PluginMetadata struct {
	Name               string
	Description        string
	Usage              string
	Version            string
	Author             string
	License            string
	RepositoryURL      string
	PythonDependencies []string
	PluginDependencies []string
	Extra              map[string]string // unrecognized keyword literals
}

// AttrValue is the statically extracted value of one class attribute on a
// component declaration.
type AttrValue struct {
	Literal bool   // true when extracted from a plain literal
	Value   string // literal payload; "" for non-literals
	Empty   bool   // literal but empty ("" / [] / None)
	Line    int
}

// MethodInfo summarizes a component method for conformance checks.
type MethodInfo struct {
	IsAsync  bool
	IsStub   bool
	Params   int // parameters excluding self
	Variadic bool
	Returns  string
	Line     int
}

// ComponentDeclaration is one entry from the plugin's component
// registration function.
type ComponentDeclaration struct {
	ClassName    string
	BaseClass    string // declared base identifier, e.g. BaseAction
	SourceFile   string // path relative to the plugin root, "" if unresolved
	Attrs        map[string]AttrValue
	Methods      map[string]MethodInfo
	Registration RegistrationStyle
	Line         int    // registration site in the main class file
	ParseErr     string // component file parse failure, "" if none
}

// ConfigField is one declared field inside a config section.
type ConfigField struct {
	Name       string
	Annotation bool
	Default    string
	Literal    bool
}

// ConfigSection is one declared configuration section.
type ConfigSection struct {
	ClassName string
	Key       string // TOML table key the section maps to
	Fields    []ConfigField
}

// ConfigClass is one class referenced from the plugin's configs attribute.
type ConfigClass struct {
	Name       string
	ConfigName string // declared config_name attribute, "" if absent
	SourceFile string
	Sections   []ConfigSection
	Resolved   bool // defining file located
}

// ConfigSchema is the structural description of declared configuration.
type ConfigSchema struct {
	Classes []ConfigClass
}

// SectionKeys returns the TOML keys of every declared section, in
// declaration order.
func (s *ConfigSchema) SectionKeys() []string {
	var keys []string
	for _, c := range s.Classes {
		for _, sec := range c.Sections {
			keys = append(keys, sec.Key)
		}
	}
	return keys
}

// NoteLevel grades build-time observations carried on the model.
type NoteLevel string

const (
	NoteWarning NoteLevel = "warning"
	NoteError   NoteLevel = "error"
)

// Note is a deferred observation from the build walk: per-file parse
// failures, skipped symlink cycles, unresolved component sources. Builders
// never fail on these; validators surface them.
type Note struct {
	Level   NoteLevel
	Message string
	File    string // relative path, "" when not file-scoped
	Line    int
}

// PluginModel is the root aggregate for one plugin directory. It is built
// fresh on every check invocation and never mutated after construction.
type PluginModel struct {
	RootPath string // absolute path to the plugin directory
	DirName  string

	Metadata   *PluginMetadata // nil when absent or unparsable
	Components []ComponentDeclaration
	Schema     *ConfigSchema // nil when no configs attribute declared

	ConfigDoc        map[string]any // parsed config.toml, nil when absent
	ConfigDocPresent bool
	ConfigDocErr     string // parse failure, "" otherwise

	FileIndex []string // relative paths, walk order

	RuntimeName   string // plugin_name attribute; "" if unresolved
	MainClassName string

	InitModule *pysrc.Module // nil when __init__.py absent
	MainModule *pysrc.Module // nil when plugin.py absent

	Notes []Note
}

// HasFile reports whether a relative path is present in the file index.
func (m *PluginModel) HasFile(rel string) bool {
	for _, f := range m.FileIndex {
		if f == rel {
			return true
		}
	}
	return false
}

// HasDir reports whether any indexed file lives under the given relative
// directory.
func (m *PluginModel) HasDir(rel string) bool {
	prefix := rel + "/"
	for _, f := range m.FileIndex {
		if len(f) > len(prefix) && f[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
