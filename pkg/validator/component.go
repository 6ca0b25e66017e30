package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/pysrc"
)

// ComponentValidator checks every registered component against the rule
// table for its base class: mandatory attributes, required methods and
// their signatures.
type ComponentValidator struct {
	rules *ComponentRules
}

func NewComponentValidator(rules *ComponentRules) *ComponentValidator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &ComponentValidator{rules: rules}
}

func (v *ComponentValidator) Name() string { return "component" }

func (v *ComponentValidator) Validate(_ context.Context, m *model.PluginModel) Result {
	r := Result{Validator: v.Name()}

	if !m.HasFile(model.MainFileName) {
		r.Issues = append(r.Issues, at(suggest(
			errf("cannot determine plugin: %s not found", model.MainFileName),
			"create plugin.py with a class inheriting BasePlugin"),
			model.MainFileName, 0))
		return r
	}
	if m.MainModule != nil && m.MainModule.Err != nil {
		r.Issues = append(r.Issues, at(
			errf("cannot parse %s: %s", model.MainFileName, m.MainModule.Err.Msg),
			model.MainFileName, m.MainModule.Err.Line))
		return r
	}

	v.checkPluginClass(m, &r)

	if m.MainClassName == "" {
		return r
	}

	if len(m.Components) == 0 {
		r.Issues = append(r.Issues, at(suggest(
			warnf("no component registrations found"),
			"return component classes from get_components(), for example: return [MyAction, MyTool]"),
			model.MainFileName, 0))
		return r
	}

	for _, c := range m.Components {
		v.checkComponent(c, &r)
	}

	return r
}

// checkPluginClass validates the plugin main class itself: plugin_name
// attribute and the get_components method.
func (v *ComponentValidator) checkPluginClass(m *model.PluginModel, r *Result) {
	if m.MainModule == nil {
		return
	}
	if m.MainClassName == "" {
		r.Issues = append(r.Issues, at(suggest(
			warnf("no plugin class inheriting BasePlugin found"),
			"the plugin main class should inherit BasePlugin"),
			model.MainFileName, 0))
		return
	}

	cls, _ := m.MainModule.Class(m.MainClassName)
	if cls == nil {
		return
	}

	if attr, ok := cls.Attr("plugin_name"); !ok {
		issue := errf("plugin class %s is missing required attribute: plugin_name", m.MainClassName)
		issue.Fix = &Fix{Kind: FixAddAttribute, File: model.MainFileName, ClassName: m.MainClassName, Attribute: "plugin_name"}
		r.Issues = append(r.Issues, at(suggest(issue, "add plugin_name = \"...\" to the class"), model.MainFileName, cls.Line))
	} else if attr.Value.IsEmpty() {
		r.Issues = append(r.Issues, at(
			errf("plugin class %s has an empty plugin_name", m.MainClassName),
			model.MainFileName, attr.Line))
	}

	fn, ok := cls.Method("get_components")
	if !ok {
		issue := errf("plugin class %s is missing required method: get_components", m.MainClassName)
		issue.Fix = &Fix{Kind: FixAddMethod, File: model.MainFileName, ClassName: m.MainClassName, Method: "get_components"}
		r.Issues = append(r.Issues, at(suggest(issue,
			"implement: def get_components(self) -> list[type]: return []"),
			model.MainFileName, cls.Line))
		return
	}
	if n := nonSelfParams(fn); n != 0 {
		r.Issues = append(r.Issues, at(
			warnf("get_components should take no parameters beyond self: def get_components(self) -> list[type]"),
			model.MainFileName, fn.Line))
	}
	if fn.Returns == "" {
		r.Issues = append(r.Issues, at(
			warnf("get_components is missing a return type annotation, add: -> list[type]"),
			model.MainFileName, fn.Line))
	}
}

func (v *ComponentValidator) checkComponent(c model.ComponentDeclaration, r *Result) {
	if c.ParseErr != "" {
		r.Issues = append(r.Issues, at(errf("%s", c.ParseErr), c.SourceFile, 0))
		return
	}
	if c.SourceFile == "" {
		r.Issues = append(r.Issues, at(
			warnf("cannot locate source file for component %s", c.ClassName),
			model.MainFileName, c.Line))
		return
	}

	rule, known := v.rules.Lookup(c.BaseClass)
	if !known {
		kinds := v.rules.KnownKinds()
		sort.Strings(kinds)
		r.Issues = append(r.Issues, at(suggest(
			errf("component %s has unknown base class %s", c.ClassName, displayBase(c.BaseClass)),
			"known base classes: "+strings.Join(kinds, ", ")),
			c.SourceFile, c.Line))
		return
	}

	if !isCamelCase(c.ClassName) {
		r.Issues = append(r.Issues, at(
			warnf("component class %s should use CamelCase naming", c.ClassName),
			c.SourceFile, c.Line))
	}

	v.checkAttrs(c, rule, r)
	v.checkMethods(c, rule, r)
}

func (v *ComponentValidator) checkAttrs(c model.ComponentDeclaration, rule KindRule, r *Result) {
	for _, name := range rule.RequiredAttrs {
		attr, ok := c.Attrs[name]
		switch {
		case !ok:
			issue := errf("component %s is missing required attribute: %s", c.ClassName, name)
			issue.Fix = &Fix{Kind: FixAddAttribute, File: c.SourceFile, ClassName: c.ClassName, Attribute: name}
			r.Issues = append(r.Issues, at(suggest(issue,
				fmt.Sprintf("add to the class: %s = \"...\"", name)),
				c.SourceFile, c.Line))
		case !attr.Literal:
			r.Issues = append(r.Issues, at(
				errf("component %s attribute %s must be a literal value", c.ClassName, name),
				c.SourceFile, attr.Line))
		case attr.Empty:
			r.Issues = append(r.Issues, at(
				warnf("component %s attribute %s is empty", c.ClassName, name),
				c.SourceFile, attr.Line))
		case strings.HasSuffix(name, "_name") && !isSnakeCase(attr.Value):
			r.Issues = append(r.Issues, at(
				warnf("component %s attribute %s should be snake_case, got %q", c.ClassName, name, attr.Value),
				c.SourceFile, attr.Line))
		}
	}

	for _, name := range rule.RecommendedAttrs {
		if _, ok := c.Attrs[name]; !ok {
			r.Issues = append(r.Issues, at(
				warnf("component %s is missing recommended attribute: %s", c.ClassName, name),
				c.SourceFile, c.Line))
		}
	}
}

func (v *ComponentValidator) checkMethods(c model.ComponentDeclaration, rule KindRule, r *Result) {
	for _, name := range rule.RequiredMethods {
		mi, ok := c.Methods[name]
		if !ok {
			sig := rule.Methods[name]
			issue := errf("component %s is missing required method: %s", c.ClassName, name)
			issue.Fix = &Fix{Kind: FixAddMethod, File: c.SourceFile, ClassName: c.ClassName, Method: name, Async: sig.Async}
			r.Issues = append(r.Issues, at(suggest(issue,
				fmt.Sprintf("implement %s in the class", name)), c.SourceFile, c.Line))
			continue
		}

		if mi.IsStub {
			r.Issues = append(r.Issues, at(suggest(
				warnf("component %s method %s only contains pass or raise NotImplementedError", c.ClassName, name),
				fmt.Sprintf("implement the body of %s", name)),
				c.SourceFile, mi.Line))
		}

		sig, hasSig := rule.Methods[name]
		if !hasSig {
			continue
		}

		if sig.Async && !mi.IsAsync {
			r.Issues = append(r.Issues, at(suggest(
				errf("component %s method %s must be declared async", c.ClassName, name),
				fmt.Sprintf("change 'def %s' to 'async def %s'", name, name)),
				c.SourceFile, mi.Line))
		} else if !sig.Async && mi.IsAsync {
			r.Issues = append(r.Issues, at(suggest(
				warnf("component %s method %s should not be declared async", c.ClassName, name),
				fmt.Sprintf("change 'async def %s' to 'def %s'", name, name)),
				c.SourceFile, mi.Line))
		}

		if !sig.Variadic() {
			want := sig.ParamNames()
			if mi.Params < len(want) && !mi.Variadic {
				r.Issues = append(r.Issues, at(
					errf("component %s method %s is missing required parameters: %s",
						c.ClassName, name, strings.Join(want, ", ")),
					c.SourceFile, mi.Line))
			} else if mi.Params > len(want) && !mi.Variadic {
				r.Issues = append(r.Issues, at(
					warnf("component %s method %s takes too many parameters, expected: %s",
						c.ClassName, name, paramListOrNone(want)),
					c.SourceFile, mi.Line))
			}
		}

		if sig.Returns != "" {
			switch {
			case mi.Returns == "":
				r.Issues = append(r.Issues, at(
					warnf("component %s method %s is missing a return type annotation, add: -> %s",
						c.ClassName, name, sig.Returns),
					c.SourceFile, mi.Line))
			case !annotationsMatch(mi.Returns, sig.Returns):
				r.Issues = append(r.Issues, at(
					warnf("component %s method %s return annotation is %q, expected %q",
						c.ClassName, name, mi.Returns, sig.Returns),
					c.SourceFile, mi.Line))
			}
		}
	}
}

func nonSelfParams(fn *pysrc.Func) int {
	n := 0
	for _, p := range fn.Params {
		if p.Name == "self" || p.Name == "cls" || strings.HasPrefix(p.Name, "*") {
			continue
		}
		n++
	}
	return n
}

func displayBase(base string) string {
	if base == "" {
		return "(none)"
	}
	return base
}

func paramListOrNone(params []string) string {
	if len(params) == 0 {
		return "no parameters"
	}
	return strings.Join(params, ", ")
}

// annotationsMatch compares type annotations ignoring whitespace. A
// generic head match (AsyncGenerator vs AsyncGenerator[X, None]) counts.
func annotationsMatch(actual, expected string) bool {
	norm := func(s string) string { return strings.ReplaceAll(s, " ", "") }
	a, e := norm(actual), norm(expected)
	if a == e {
		return true
	}
	if i := strings.IndexByte(a, '['); i > 0 && a[:i] == e {
		return true
	}
	return false
}

func isSnakeCase(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func isCamelCase(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	return !strings.Contains(s, "_")
}
