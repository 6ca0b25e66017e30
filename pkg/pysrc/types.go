package pysrc

// ValueKind classifies the right-hand side of an assignment as seen in
// source, without evaluating it.
type ValueKind string

const (
	ValueString     ValueKind = "string"
	ValueInt        ValueKind = "int"
	ValueFloat      ValueKind = "float"
	ValueBool       ValueKind = "bool"
	ValueNone       ValueKind = "none"
	ValueList       ValueKind = "list"
	ValueDict       ValueKind = "dict"
	ValueCall       ValueKind = "call"
	ValueName       ValueKind = "name"
	ValueNonLiteral ValueKind = "non-literal"
)

// Value is the statically extracted value of an expression. Only literal
// constants carry a usable payload; everything else is recorded as present
// but non-literal so validators can tell "missing" from "computed".
type Value struct {
	Kind   ValueKind
	Raw    string           // source text, trimmed
	Str    string           // decoded string for ValueString
	Elems  []Value          // list elements for ValueList
	Callee string           // callee identifier for ValueCall
	Kwargs map[string]Value // keyword arguments for ValueCall
}

// IsLiteral reports whether the value is a plain literal constant.
func (v Value) IsLiteral() bool {
	switch v.Kind {
	case ValueString, ValueInt, ValueFloat, ValueBool, ValueNone, ValueList, ValueDict:
		return true
	}
	return false
}

// IsEmpty reports whether a literal value is the empty string or an empty
// container.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case ValueString:
		return v.Str == ""
	case ValueList, ValueDict:
		return len(v.Elems) == 0 && (v.Raw == "[]" || v.Raw == "{}")
	case ValueNone:
		return true
	}
	return false
}

// StringElems returns the decoded string elements of a list value,
// skipping non-string elements.
func (v Value) StringElems() []string {
	var out []string
	for _, e := range v.Elems {
		if e.Kind == ValueString {
			out = append(out, e.Str)
		}
	}
	return out
}

// NameElems returns bare identifier elements of a list value, preserving
// order. Used for component and config class references.
func (v Value) NameElems() []string {
	var out []string
	for _, e := range v.Elems {
		if e.Kind == ValueName {
			out = append(out, e.Raw)
		}
	}
	return out
}

// Attr is a class-level or module-level assignment.
type Attr struct {
	Name      string
	Value     Value
	Annotated bool // had a type annotation (name: T = v)
	Line      int
}

// Param is a function parameter with its optional annotation.
type Param struct {
	Name       string
	Annotation string
}

// StmtKind tags the limited statement forms the extractor models inside
// function bodies. Anything else is StmtOther.
type StmtKind string

const (
	StmtAssignList StmtKind = "assign-list" // x = [A, B]
	StmtAppend     StmtKind = "append"      // x.append(A)
	StmtReturn     StmtKind = "return"
	StmtPass       StmtKind = "pass"
	StmtRaise      StmtKind = "raise"
	StmtDocstring  StmtKind = "docstring"
	StmtOther      StmtKind = "other"
)

// Stmt is one direct statement in a function body, reduced to the shapes
// the model builder cares about.
type Stmt struct {
	Kind       StmtKind
	Target     string   // assigned or appended-to variable
	Names      []string // list-literal identifier elements
	ReturnVar  string   // returned variable name, if return of a name
	ReturnList bool     // return of a list literal
	RaiseName  string   // raised exception identifier
	Line       int
}

// Func is a function or method definition with its direct-body statements.
type Func struct {
	Name       string
	Params     []Param
	Returns    string // return annotation source text, "" if none
	IsAsync    bool
	Decorators []string
	Body       []Stmt
	Line       int
}

// HasVariadic reports whether the parameter list includes *args or **kwargs.
func (f *Func) HasVariadic() bool {
	for _, p := range f.Params {
		if len(p.Name) > 0 && p.Name[0] == '*' {
			return true
		}
	}
	return false
}

// IsStub reports whether the body consists only of a docstring, pass
// statements, or raise NotImplementedError.
func (f *Func) IsStub() bool {
	if len(f.Body) == 0 {
		return true
	}
	for _, s := range f.Body {
		switch s.Kind {
		case StmtDocstring, StmtPass:
		case StmtRaise:
			if s.RaiseName != "NotImplementedError" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Class is a class definition. Nested classes are recorded one level deep,
// which covers config-section declarations.
type Class struct {
	Name       string
	Bases      []string
	Decorators []string
	Attrs      []Attr
	Methods    []*Func
	Nested     []*Class
	Line       int
}

// Attr returns the named class attribute, if present.
func (c *Class) Attr(name string) (Attr, bool) {
	for _, a := range c.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// Method returns the named method, if present.
func (c *Class) Method(name string) (*Func, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// BaseName returns the first base class identifier, with dotted bases
// reduced to their final attribute (module.BaseAction -> BaseAction).
func (c *Class) BaseName() string {
	if len(c.Bases) == 0 {
		return ""
	}
	base := c.Bases[0]
	if i := lastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	return base
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// ImportedName maps a local identifier to the module it was imported from.
type ImportedName struct {
	Local  string // name as visible in this file (alias-aware)
	Name   string // original exported name
	Module string // module path without leading dots
	Level  int    // relative-import level (number of leading dots), 0 = absolute
}

// ParseError describes a file-scoped extraction failure. It is a result
// value, not a raised error: one broken file must not abort the plugin.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string { return e.Msg }

// Module is the structural summary of one source file.
type Module struct {
	Path    string // as given to Parse
	Classes []*Class
	Assigns []Attr
	Funcs   []*Func
	Imports []ImportedName
	Err     *ParseError
}

// Assign returns the named module-level assignment, if present.
func (m *Module) Assign(name string) (Attr, bool) {
	for _, a := range m.Assigns {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// Class returns the named class, if present.
func (m *Module) Class(name string) (*Class, bool) {
	for _, c := range m.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ClassesWithBase returns classes whose first base matches the given
// identifier.
func (m *Module) ClassesWithBase(base string) []*Class {
	var out []*Class
	for _, c := range m.Classes {
		if c.BaseName() == base {
			out = append(out, c)
		}
	}
	return out
}

// ImportOf returns the import record for a local identifier.
func (m *Module) ImportOf(local string) (ImportedName, bool) {
	for _, im := range m.Imports {
		if im.Local == local {
			return im, true
		}
	}
	return ImportedName{}, false
}
