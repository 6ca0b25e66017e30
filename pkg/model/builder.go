package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/pysrc"
)

const (
	// MainFileName is the plugin main class file.
	MainFileName = "plugin.py"
	// InitFileName is the package init file carrying plugin metadata.
	InitFileName = "__init__.py"
	// ConfigFileName is the on-disk configuration document.
	ConfigFileName = "config.toml"

	pluginBaseClass  = "BasePlugin"
	sectionBaseClass = "SectionBase"

	maxWalkDepth = 12
)

// Builder assembles a PluginModel from a plugin root directory. A Builder
// is stateless across builds; every call parses fresh, since plugin
// source changes between runs and a cache would go stale silently.
type Builder struct {
	logger zerolog.Logger
}

// NewBuilder creates a model builder.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{
		logger: logger.With().Str("component", "model-builder").Logger(),
	}
}

// Build walks the plugin tree and assembles the model. Single-file parse
// failures become Notes on the model; Build errors only when the root is
// not a readable directory.
func (b *Builder) Build(root string) (*PluginModel, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve plugin path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot read plugin path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugin path is not a directory: %s", abs)
	}

	m := &PluginModel{
		RootPath: abs,
		DirName:  filepath.Base(abs),
	}

	b.walk(m)

	cache := map[string]*pysrc.Module{}
	b.extractMetadata(m)
	b.extractMainClass(m, cache)
	b.extractConfigSchema(m, cache)
	b.parseConfigDocument(m)

	b.logger.Debug().
		Str("plugin", m.DirName).
		Int("files", len(m.FileIndex)).
		Int("components", len(m.Components)).
		Msg("Built plugin model")

	return m, nil
}

// ExtractRuntimeName resolves the runtime plugin name from a plugin
// directory without building the full model. Returns "" when the name
// cannot be determined statically.
func ExtractRuntimeName(root string) string {
	mod := pysrc.ParseFile(filepath.Join(root, MainFileName))
	if mod.Err != nil {
		return ""
	}
	cls := findPluginClass(mod)
	if cls == nil {
		return ""
	}
	if attr, ok := cls.Attr("plugin_name"); ok && attr.Value.Kind == pysrc.ValueString {
		return attr.Value.Str
	}
	return ""
}

// walk enumerates files under the root with bounded depth. Symlink cycles
// are detected via resolved-path tracking and skipped with a warning note.
func (b *Builder) walk(m *PluginModel) {
	seen := map[string]bool{}
	if real, err := filepath.EvalSymlinks(m.RootPath); err == nil {
		seen[real] = true
	}
	b.walkDir(m, m.RootPath, "", 0, seen)
	sort.Strings(m.FileIndex)
}

func (b *Builder) walkDir(m *PluginModel, dir, rel string, depth int, seen map[string]bool) {
	if depth > maxWalkDepth {
		m.Notes = append(m.Notes, Note{
			Level:   NoteWarning,
			Message: fmt.Sprintf("directory nesting exceeds %d levels, deeper entries skipped", maxWalkDepth),
			File:    rel,
		})
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		m.Notes = append(m.Notes, Note{
			Level:   NoteWarning,
			Message: fmt.Sprintf("cannot read directory: %v", err),
			File:    rel,
		})
		return
	}

	for _, e := range entries {
		name := e.Name()
		if shouldSkipEntry(name) {
			continue
		}
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		childAbs := filepath.Join(dir, name)

		isDir := e.IsDir()
		if e.Type()&os.ModeSymlink != 0 {
			real, err := filepath.EvalSymlinks(childAbs)
			if err != nil {
				m.Notes = append(m.Notes, Note{
					Level:   NoteWarning,
					Message: fmt.Sprintf("broken symlink skipped: %v", err),
					File:    childRel,
				})
				continue
			}
			ri, err := os.Stat(real)
			if err != nil {
				continue
			}
			if ri.IsDir() {
				if seen[real] {
					m.Notes = append(m.Notes, Note{
						Level:   NoteWarning,
						Message: "symlink cycle detected, directory skipped",
						File:    childRel,
					})
					continue
				}
				seen[real] = true
				isDir = true
			}
		}

		if isDir {
			b.walkDir(m, childAbs, childRel, depth+1, seen)
			continue
		}
		m.FileIndex = append(m.FileIndex, childRel)
	}
}

func shouldSkipEntry(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "__pycache__", "node_modules":
		return true
	}
	return strings.HasSuffix(name, ".pyc")
}

// extractMetadata locates the metadata-construction expression in the
// package init file. Absence is not an error here: the metadata validator
// reports it.
func (b *Builder) extractMetadata(m *PluginModel) {
	path := filepath.Join(m.RootPath, InitFileName)
	if !m.HasFile(InitFileName) {
		return
	}
	mod := pysrc.ParseFile(path)
	m.InitModule = mod
	if mod.Err != nil {
		m.Notes = append(m.Notes, Note{
			Level:   NoteError,
			Message: fmt.Sprintf("cannot parse %s: %s", InitFileName, mod.Err.Msg),
			File:    InitFileName,
			Line:    mod.Err.Line,
		})
		return
	}

	assign, ok := mod.Assign("__plugin_meta__")
	if !ok || assign.Value.Kind != pysrc.ValueCall || assign.Value.Callee != "PluginMetadata" {
		return
	}

	meta := &PluginMetadata{Extra: map[string]string{}}
	for key, val := range assign.Value.Kwargs {
		switch key {
		case "name":
			meta.Name = val.Str
		case "description":
			meta.Description = val.Str
		case "usage":
			meta.Usage = val.Str
		case "version":
			meta.Version = val.Str
		case "author":
			meta.Author = val.Str
		case "license":
			meta.License = val.Str
		case "repository_url":
			meta.RepositoryURL = val.Str
		case "python_dependencies":
			meta.PythonDependencies = val.StringElems()
		case "plugin_dependencies":
			meta.PluginDependencies = val.StringElems()
		default:
			if val.Kind == pysrc.ValueString {
				meta.Extra[key] = val.Str
			} else {
				meta.Extra[key] = val.Raw
			}
		}
	}
	m.Metadata = meta
}

// findPluginClass picks the plugin main class: the first class inheriting
// BasePlugin, falling back to one carrying the register_plugin decorator.
func findPluginClass(mod *pysrc.Module) *pysrc.Class {
	if classes := mod.ClassesWithBase(pluginBaseClass); len(classes) > 0 {
		return classes[0]
	}
	for _, c := range mod.Classes {
		for _, d := range c.Decorators {
			if d == "register_plugin" {
				return c
			}
		}
	}
	return nil
}

func (b *Builder) extractMainClass(m *PluginModel, cache map[string]*pysrc.Module) {
	if !m.HasFile(MainFileName) {
		return
	}
	mod := pysrc.ParseFile(filepath.Join(m.RootPath, MainFileName))
	m.MainModule = mod
	cache[MainFileName] = mod
	if mod.Err != nil {
		m.Notes = append(m.Notes, Note{
			Level:   NoteError,
			Message: fmt.Sprintf("cannot parse %s: %s", MainFileName, mod.Err.Msg),
			File:    MainFileName,
			Line:    mod.Err.Line,
		})
		return
	}

	cls := findPluginClass(mod)
	if cls == nil {
		return
	}
	m.MainClassName = cls.Name
	if attr, ok := cls.Attr("plugin_name"); ok && attr.Value.Kind == pysrc.ValueString {
		m.RuntimeName = attr.Value.Str
	}

	fn, ok := cls.Method("get_components")
	if !ok {
		return
	}
	for _, entry := range registrationEntries(fn) {
		decl := b.resolveComponent(m, mod, entry, cache)
		m.Components = append(m.Components, decl)
	}
}

// registrationEntry is one component reference found in get_components.
type registrationEntry struct {
	name  string
	style RegistrationStyle
	line  int
}

// registrationEntries recognizes both supported registration patterns:
// a return of a list literal, and a mutable sequence built by append calls
// (with or without initial elements) that is then returned. Both produce
// entries in source order.
func registrationEntries(fn *pysrc.Func) []registrationEntry {
	assigns := map[string][]registrationEntry{}
	appends := map[string][]registrationEntry{}

	for _, st := range fn.Body {
		switch st.Kind {
		case pysrc.StmtAssignList:
			assigns[st.Target] = nil // reassignment discards earlier elements
			for _, n := range st.Names {
				assigns[st.Target] = append(assigns[st.Target], registrationEntry{name: n, style: RegistrationAppend, line: st.Line})
			}
		case pysrc.StmtAppend:
			for _, n := range st.Names {
				appends[st.Target] = append(appends[st.Target], registrationEntry{name: n, style: RegistrationAppend, line: st.Line})
			}
		case pysrc.StmtReturn:
			if st.ReturnList {
				var out []registrationEntry
				for _, n := range st.Names {
					out = append(out, registrationEntry{name: n, style: RegistrationReturnList, line: st.Line})
				}
				return out
			}
			if st.ReturnVar != "" {
				out := append([]registrationEntry{}, assigns[st.ReturnVar]...)
				out = append(out, appends[st.ReturnVar]...)
				return out
			}
			return nil
		}
	}
	return nil
}

// resolveComponent locates the component's defining file and extracts its
// class surface. Resolution failures degrade to notes, never errors.
func (b *Builder) resolveComponent(m *PluginModel, mainMod *pysrc.Module, entry registrationEntry, cache map[string]*pysrc.Module) ComponentDeclaration {
	decl := ComponentDeclaration{
		ClassName:    entry.name,
		Registration: entry.style,
		Line:         entry.line,
		Attrs:        map[string]AttrValue{},
		Methods:      map[string]MethodInfo{},
	}

	rel, cls, parseErr := b.locateClass(m, mainMod, entry.name, cache)
	if parseErr != "" {
		decl.ParseErr = parseErr
		decl.SourceFile = rel
		return decl
	}
	if cls == nil {
		m.Notes = append(m.Notes, Note{
			Level:   NoteWarning,
			Message: fmt.Sprintf("cannot locate source file for component %s", entry.name),
			File:    MainFileName,
			Line:    entry.line,
		})
		return decl
	}

	decl.SourceFile = rel
	decl.BaseClass = cls.BaseName()
	for _, a := range cls.Attrs {
		decl.Attrs[a.Name] = attrValue(a)
	}
	for _, fn := range cls.Methods {
		decl.Methods[fn.Name] = MethodInfo{
			IsAsync:  fn.IsAsync,
			IsStub:   fn.IsStub(),
			Params:   paramCount(fn),
			Variadic: fn.HasVariadic(),
			Returns:  fn.Returns,
			Line:     fn.Line,
		}
	}
	return decl
}

func attrValue(a pysrc.Attr) AttrValue {
	v := AttrValue{
		Literal: a.Value.IsLiteral(),
		Empty:   a.Value.IsEmpty(),
		Line:    a.Line,
	}
	if v.Literal {
		switch a.Value.Kind {
		case pysrc.ValueString:
			v.Value = a.Value.Str
		default:
			v.Value = a.Value.Raw
		}
	}
	return v
}

func paramCount(fn *pysrc.Func) int {
	n := 0
	for _, p := range fn.Params {
		if p.Name == "self" || p.Name == "cls" || strings.HasPrefix(p.Name, "*") {
			continue
		}
		n++
	}
	return n
}

// locateClass resolves a class name to its defining file: first within the
// main class file itself, then via the import map, then by a best-effort
// whole-tree search.
func (b *Builder) locateClass(m *PluginModel, mainMod *pysrc.Module, className string, cache map[string]*pysrc.Module) (rel string, cls *pysrc.Class, parseErr string) {
	if c, ok := mainMod.Class(className); ok {
		return MainFileName, c, ""
	}

	if imp, ok := mainMod.ImportOf(className); ok {
		if rel := importedModulePath(m, imp); rel != "" {
			mod := b.parseCached(m, rel, cache)
			if mod != nil {
				if mod.Err != nil {
					return rel, nil, fmt.Sprintf("cannot parse %s: %s", rel, mod.Err.Msg)
				}
				if c, ok := mod.Class(imp.Name); ok {
					return rel, c, ""
				}
			}
		}
	}

	// Whole-tree fallback: the import path may not match the file layout.
	for _, f := range m.FileIndex {
		if !strings.HasSuffix(f, ".py") || f == MainFileName || filepath.Base(f) == InitFileName {
			continue
		}
		mod := b.parseCached(m, f, cache)
		if mod == nil || mod.Err != nil {
			continue
		}
		if c, ok := mod.Class(className); ok {
			return f, c, ""
		}
	}
	return "", nil, ""
}

// importedModulePath maps an intra-plugin import to a relative file path,
// trying module.py first and then package __init__.py. Absolute imports
// rooted at the plugin's own package are rewritten as relative.
func importedModulePath(m *PluginModel, imp pysrc.ImportedName) string {
	module := imp.Module
	if imp.Level == 0 {
		for _, prefix := range []string{m.RuntimeName, m.DirName} {
			if prefix != "" && (module == prefix || strings.HasPrefix(module, prefix+".")) {
				module = strings.TrimPrefix(strings.TrimPrefix(module, prefix), ".")
				goto resolved
			}
		}
		return "" // external import, outside the plugin tree
	}
resolved:
	if module == "" {
		// from . import name: the name is the module
		module = imp.Name
	}
	base := strings.ReplaceAll(module, ".", "/")
	if m.HasFile(base + ".py") {
		return base + ".py"
	}
	if m.HasFile(base + "/" + InitFileName) {
		return base + "/" + InitFileName
	}
	return ""
}

func (b *Builder) parseCached(m *PluginModel, rel string, cache map[string]*pysrc.Module) *pysrc.Module {
	if mod, ok := cache[rel]; ok {
		return mod
	}
	mod := pysrc.ParseFile(filepath.Join(m.RootPath, filepath.FromSlash(rel)))
	cache[rel] = mod
	if mod.Err != nil {
		m.Notes = append(m.Notes, Note{
			Level:   NoteError,
			Message: fmt.Sprintf("cannot parse %s: %s", rel, mod.Err.Msg),
			File:    rel,
			Line:    mod.Err.Line,
		})
	}
	return mod
}

// extractConfigSchema resolves the plugin class's configs attribute into a
// structural schema: config classes, their sections, and declared fields.
func (b *Builder) extractConfigSchema(m *PluginModel, cache map[string]*pysrc.Module) {
	if m.MainModule == nil || m.MainModule.Err != nil {
		return
	}
	cls := findPluginClass(m.MainModule)
	if cls == nil {
		return
	}
	attr, ok := cls.Attr("configs")
	if !ok || attr.Value.Kind != pysrc.ValueList {
		return
	}
	names := attr.Value.NameElems()
	if len(names) == 0 {
		return
	}

	schema := &ConfigSchema{}
	for _, name := range names {
		cc := ConfigClass{Name: name}
		rel, configCls, parseErr := b.locateClass(m, m.MainModule, name, cache)
		if configCls != nil && parseErr == "" {
			cc.Resolved = true
			cc.SourceFile = rel
			if a, ok := configCls.Attr("config_name"); ok && a.Value.Kind == pysrc.ValueString {
				cc.ConfigName = a.Value.Str
			}
			for _, nested := range configCls.Nested {
				if nested.BaseName() != sectionBaseClass {
					continue
				}
				sec := ConfigSection{
					ClassName: nested.Name,
					Key:       sectionKey(nested),
				}
				for _, fa := range nested.Attrs {
					field := ConfigField{
						Name:       fa.Name,
						Annotation: fa.Annotated,
						Literal:    fa.Value.IsLiteral(),
					}
					if field.Literal {
						field.Default = fa.Value.Raw
					}
					sec.Fields = append(sec.Fields, field)
				}
				cc.Sections = append(cc.Sections, sec)
			}
		}
		schema.Classes = append(schema.Classes, cc)
	}
	m.Schema = schema
}

// sectionKey derives the TOML table key for a section class: an explicit
// section_name attribute wins, otherwise the lowercased class name.
func sectionKey(cls *pysrc.Class) string {
	if a, ok := cls.Attr("section_name"); ok && a.Value.Kind == pysrc.ValueString && a.Value.Str != "" {
		return a.Value.Str
	}
	return strings.ToLower(cls.Name)
}

func (b *Builder) parseConfigDocument(m *PluginModel) {
	if !m.HasFile(ConfigFileName) {
		return
	}
	m.ConfigDocPresent = true
	data, err := os.ReadFile(filepath.Join(m.RootPath, ConfigFileName))
	if err != nil {
		m.ConfigDocErr = err.Error()
		return
	}
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		m.ConfigDocErr = err.Error()
		return
	}
	m.ConfigDoc = doc
}
