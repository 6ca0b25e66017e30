package pysrc

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Parse extracts the structural summary of a single source file. It never
// executes the source and never panics on malformed input: an unrecoverable
// syntax anomaly is recorded in Module.Err and whatever was extracted up to
// that point is kept.
func Parse(path string, src []byte) *Module {
	m := &Module{Path: path}
	s := &scanner{mod: m}
	s.run(string(src))
	return m
}

// ParseFile reads and parses one file. A read failure is reported like a
// parse failure, scoped to the file.
func ParseFile(path string) *Module {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Module{Path: path, Err: &ParseError{Msg: fmt.Sprintf("cannot read file: %v", err)}}
	}
	return Parse(path, data)
}

var (
	classRe = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*(\(([^)]*)\))?\s*:`)
	defRe   = regexp.MustCompile(`^(async\s+)?def\s+([A-Za-z_]\w*)\s*\((.*)\)\s*(->\s*([^:]+))?:`)
	identRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// frame is one level of the indentation context stack.
type frame struct {
	indent     int // indent of the introducing statement
	bodyIndent int // indent of the block body, -1 until first statement seen
	class      *Class
	fn         *Func
	ctrl       bool // nested control block (if/for/while/...), not a def/class body
	depth      int  // class nesting depth, 0 = module level
}

type scanner struct {
	mod        *Module
	stack      []frame
	decorators []string
}

func (s *scanner) run(src string) {
	s.stack = []frame{{indent: -1, bodyIndent: 0}}

	lines, err := logicalLines(src)
	if err != nil {
		s.mod.Err = err
		// fall through with whatever lines were assembled
	}

	for _, ln := range lines {
		text := stripComment(ln.text)
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		indent := indentWidth(text)
		s.popTo(indent)
		s.dispatch(trimmed, indent, ln.num)
	}
}

// popTo unwinds the context stack until the given indent is inside the top
// frame's body.
func (s *scanner) popTo(indent int) {
	for len(s.stack) > 1 {
		top := &s.stack[len(s.stack)-1]
		if top.bodyIndent == -1 {
			if indent > top.indent {
				top.bodyIndent = indent
				return
			}
			// block introduced but never populated
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}
		if indent >= top.bodyIndent {
			return
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
}

func (s *scanner) top() *frame { return &s.stack[len(s.stack)-1] }

func (s *scanner) dispatch(line string, indent, num int) {
	top := s.top()

	// Decorators accumulate until the next class/def at the same level.
	if strings.HasPrefix(line, "@") {
		name := line[1:]
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		s.decorators = append(s.decorators, strings.TrimSpace(name))
		return
	}

	if mm := classRe.FindStringSubmatch(line); mm != nil {
		cls := &Class{Name: mm[1], Line: num, Decorators: s.decorators}
		s.decorators = nil
		if mm[3] != "" {
			for _, b := range splitTopLevel(mm[3], ',') {
				b = strings.TrimSpace(b)
				if b != "" && !strings.Contains(b, "=") { // skip metaclass= etc.
					cls.Bases = append(cls.Bases, b)
				}
			}
		}
		switch {
		case top.class == nil && top.fn == nil:
			s.mod.Classes = append(s.mod.Classes, cls)
		case top.class != nil && top.fn == nil && top.depth == 1:
			top.class.Nested = append(top.class.Nested, cls)
		}
		s.stack = append(s.stack, frame{indent: indent, bodyIndent: -1, class: cls, depth: top.depth + 1})
		return
	}

	if mm := defRe.FindStringSubmatch(line); mm != nil {
		fn := &Func{
			Name:       mm[2],
			IsAsync:    mm[1] != "",
			Returns:    strings.TrimSpace(mm[5]),
			Decorators: s.decorators,
			Line:       num,
		}
		s.decorators = nil
		for _, p := range splitTopLevel(mm[3], ',') {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			param := Param{Name: p}
			if i := strings.IndexByte(p, ':'); i >= 0 {
				param.Name = strings.TrimSpace(p[:i])
				rest := p[i+1:]
				if j := strings.IndexByte(rest, '='); j >= 0 {
					rest = rest[:j]
				}
				param.Annotation = strings.TrimSpace(rest)
			} else if i := strings.IndexByte(p, '='); i >= 0 {
				param.Name = strings.TrimSpace(p[:i])
			}
			fn.Params = append(fn.Params, param)
		}
		switch {
		case top.class != nil && top.fn == nil:
			top.class.Methods = append(top.class.Methods, fn)
		case top.class == nil && top.fn == nil:
			s.mod.Funcs = append(s.mod.Funcs, fn)
		}
		s.stack = append(s.stack, frame{indent: indent, bodyIndent: -1, fn: fn, depth: top.depth})
		return
	}

	s.decorators = nil

	if strings.HasPrefix(line, "from ") || strings.HasPrefix(line, "import ") {
		if top.class == nil && top.fn == nil {
			s.parseImport(line)
		} else if top.fn != nil {
			// imports inside function bodies still map names to modules
			s.parseImport(line)
		}
		return
	}

	// Block-introducing statements we do not model (if/for/while/with/try).
	// Inside a function's direct body they still count as a real statement
	// for stub detection.
	if isControlHeader(line) {
		if top.fn != nil && !top.ctrl {
			top.fn.Body = append(top.fn.Body, Stmt{Kind: StmtOther, Line: num})
		}
		s.stack = append(s.stack, frame{indent: indent, bodyIndent: -1, class: top.class, fn: top.fn, ctrl: true, depth: top.depth})
		return
	}

	if top.fn != nil {
		if top.ctrl {
			return // nested-block statements are outside the modeled dataflow
		}
		s.parseFuncStmt(top.fn, line, num)
		return
	}

	if attr, ok := parseAssign(line, num); ok {
		if top.class != nil {
			top.class.Attrs = append(top.class.Attrs, attr)
		} else {
			s.mod.Assigns = append(s.mod.Assigns, attr)
		}
		return
	}

	// Annotation-only field declaration (name: T), significant for config
	// section schemas.
	if top.class != nil {
		if attr, ok := parseAnnOnly(line, num); ok {
			top.class.Attrs = append(top.class.Attrs, attr)
		}
	}
}

// parseAnnOnly recognizes "name: Annotation" declarations without a value.
func parseAnnOnly(line string, num int) (Attr, bool) {
	i := topLevelIndex(line, ':')
	if i <= 0 || i == len(line)-1 {
		return Attr{}, false
	}
	name := strings.TrimSpace(line[:i])
	if !identRe.MatchString(name) {
		return Attr{}, false
	}
	ann := strings.TrimSpace(line[i+1:])
	if ann == "" || strings.HasSuffix(ann, ":") {
		return Attr{}, false
	}
	return Attr{Name: name, Annotated: true, Value: Value{Kind: ValueNonLiteral}, Line: num}, true
}

func isControlHeader(line string) bool {
	for _, kw := range []string{"if ", "elif ", "else", "for ", "while ", "with ", "try", "except", "finally", "match "} {
		if strings.HasPrefix(line, kw) && strings.HasSuffix(line, ":") {
			return true
		}
	}
	return false
}

func (s *scanner) parseImport(line string) {
	if strings.HasPrefix(line, "import ") {
		for _, part := range splitTopLevel(line[len("import "):], ',') {
			part = strings.TrimSpace(part)
			name, alias := part, part
			if i := strings.Index(part, " as "); i >= 0 {
				name = strings.TrimSpace(part[:i])
				alias = strings.TrimSpace(part[i+4:])
			}
			s.mod.Imports = append(s.mod.Imports, ImportedName{Local: alias, Name: name, Module: name})
		}
		return
	}

	rest := line[len("from "):]
	i := strings.Index(rest, " import ")
	if i < 0 {
		return
	}
	module := strings.TrimSpace(rest[:i])
	names := rest[i+len(" import "):]
	names = strings.Trim(names, "()")

	level := 0
	for level < len(module) && module[level] == '.' {
		level++
	}
	module = module[level:]

	for _, part := range splitTopLevel(names, ',') {
		part = strings.TrimSpace(part)
		if part == "" || part == "*" {
			continue
		}
		name, alias := part, part
		if j := strings.Index(part, " as "); j >= 0 {
			name = strings.TrimSpace(part[:j])
			alias = strings.TrimSpace(part[j+4:])
		}
		s.mod.Imports = append(s.mod.Imports, ImportedName{Local: alias, Name: name, Module: module, Level: level})
	}
}

// parseFuncStmt records a direct-body statement in the reduced statement
// forms. Only statements at the body's own indent level count as direct;
// deeper ones belong to nested blocks the model does not reason about.
func (s *scanner) parseFuncStmt(fn *Func, line string, num int) {
	st := Stmt{Kind: StmtOther, Line: num}
	switch {
	case isStringLit(line):
		st.Kind = StmtDocstring

	case line == "pass":
		st.Kind = StmtPass

	case strings.HasPrefix(line, "raise"):
		st.Kind = StmtRaise
		rest := strings.TrimSpace(strings.TrimPrefix(line, "raise"))
		if i := strings.IndexAny(rest, "( "); i >= 0 {
			rest = rest[:i]
		}
		st.RaiseName = rest

	case strings.HasPrefix(line, "return"):
		st.Kind = StmtReturn
		rest := strings.TrimSpace(strings.TrimPrefix(line, "return"))
		if strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]") {
			st.ReturnList = true
			st.Names = listIdents(rest)
		} else if identRe.MatchString(rest) {
			st.ReturnVar = rest
		}

	default:
		if target, name, ok := parseAppendCall(line); ok {
			st.Kind = StmtAppend
			st.Target = target
			st.Names = []string{name}
		} else if attr, ok := parseAssign(line, num); ok && attr.Value.Kind == ValueList {
			st.Kind = StmtAssignList
			st.Target = attr.Name
			st.Names = attr.Value.NameElems()
		}
	}
	fn.Body = append(fn.Body, st)
}

// parseAppendCall recognizes "target.append(Identifier)".
func parseAppendCall(line string) (target, name string, ok bool) {
	i := strings.Index(line, ".append(")
	if i < 0 || !strings.HasSuffix(line, ")") {
		return "", "", false
	}
	target = line[:i]
	if !identRe.MatchString(target) {
		return "", "", false
	}
	arg := strings.TrimSpace(line[i+len(".append(") : len(line)-1])
	if !identRe.MatchString(arg) {
		return "", "", false
	}
	return target, arg, true
}

// parseAssign recognizes "name = value" and "name: T = value" with a simple
// identifier target.
func parseAssign(line string, num int) (Attr, bool) {
	eq := topLevelIndex(line, '=')
	if eq <= 0 {
		return Attr{}, false
	}
	// reject ==, +=, etc.
	if line[eq-1] == '!' || line[eq-1] == '<' || line[eq-1] == '>' || line[eq-1] == '+' ||
		line[eq-1] == '-' || line[eq-1] == '*' || line[eq-1] == '/' || line[eq-1] == '%' ||
		line[eq-1] == '&' || line[eq-1] == '|' || line[eq-1] == '^' {
		return Attr{}, false
	}
	if eq+1 < len(line) && line[eq+1] == '=' {
		return Attr{}, false
	}

	lhs := strings.TrimSpace(line[:eq])
	rhs := strings.TrimSpace(line[eq+1:])

	attr := Attr{Line: num}
	if i := topLevelIndex(lhs, ':'); i >= 0 {
		attr.Annotated = true
		lhs = strings.TrimSpace(lhs[:i])
	}
	if !identRe.MatchString(lhs) {
		return Attr{}, false
	}
	attr.Name = lhs
	attr.Value = parseValue(rhs)
	return attr, true
}

// parseValue classifies an expression's source text as a Value.
func parseValue(raw string) Value {
	raw = strings.TrimSpace(raw)
	v := Value{Raw: raw, Kind: ValueNonLiteral}
	if raw == "" {
		return v
	}

	switch raw {
	case "True":
		return Value{Raw: raw, Kind: ValueBool, Str: "True"}
	case "False":
		return Value{Raw: raw, Kind: ValueBool, Str: "False"}
	case "None":
		return Value{Raw: raw, Kind: ValueNone}
	}

	if s, fstr, ok := parseStringLit(raw); ok {
		if fstr {
			return v // f-strings are computed, not literal
		}
		return Value{Raw: raw, Kind: ValueString, Str: s}
	}

	if isNumber(raw) {
		if strings.ContainsAny(raw, ".eE") {
			return Value{Raw: raw, Kind: ValueFloat, Str: raw}
		}
		return Value{Raw: raw, Kind: ValueInt, Str: raw}
	}

	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		lv := Value{Raw: raw, Kind: ValueList}
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner != "" {
			for _, part := range splitTopLevel(inner, ',') {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				lv.Elems = append(lv.Elems, parseValue(part))
			}
		}
		return lv
	}

	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return Value{Raw: raw, Kind: ValueDict}
	}

	if identRe.MatchString(raw) {
		return Value{Raw: raw, Kind: ValueName}
	}

	if i := strings.IndexByte(raw, '('); i > 0 && strings.HasSuffix(raw, ")") {
		callee := raw[:i]
		if j := strings.LastIndexByte(callee, '.'); j >= 0 {
			callee = callee[j+1:]
		}
		if identRe.MatchString(callee) {
			cv := Value{Raw: raw, Kind: ValueCall, Callee: callee, Kwargs: map[string]Value{}}
			args := raw[i+1 : len(raw)-1]
			for _, part := range splitTopLevel(args, ',') {
				part = strings.TrimSpace(part)
				eq := topLevelIndex(part, '=')
				if eq <= 0 {
					continue
				}
				key := strings.TrimSpace(part[:eq])
				if !identRe.MatchString(key) {
					continue
				}
				cv.Kwargs[key] = parseValue(strings.TrimSpace(part[eq+1:]))
			}
			return cv
		}
	}

	return v
}

func listIdents(raw string) []string {
	return parseValue(raw).NameElems()
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i++
	}
	digits := false
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == '_' || c == 'e' || c == 'E' || c == '+' || c == '-':
		default:
			return false
		}
	}
	return digits
}

func isStringLit(s string) bool {
	_, _, ok := parseStringLit(s)
	return ok
}

// parseStringLit decodes a string literal, including prefixed (r/b/u/f) and
// triple-quoted forms. Returns fstr=true for f-strings, which are treated
// as computed expressions.
func parseStringLit(s string) (val string, fstr bool, ok bool) {
	rest := s
	prefix := ""
	for len(rest) > 0 {
		c := rest[0] | 0x20 // lowercase
		if c == 'r' || c == 'b' || c == 'u' || c == 'f' {
			prefix += string(c)
			rest = rest[1:]
			continue
		}
		break
	}
	if len(prefix) > 2 || len(rest) < 2 {
		return "", false, false
	}
	if rest[0] != '\'' && rest[0] != '"' {
		return "", false, false
	}
	q := rest[0]
	quote := string(q)
	if strings.HasPrefix(rest, strings.Repeat(quote, 3)) {
		quote = strings.Repeat(quote, 3)
	}
	if !strings.HasSuffix(rest, quote) || len(rest) < 2*len(quote) {
		return "", false, false
	}
	body := rest[len(quote) : len(rest)-len(quote)]
	fstr = strings.Contains(prefix, "f")
	if strings.Contains(prefix, "r") {
		return body, fstr, true
	}
	return unescape(body, q), fstr, true
}

func unescape(s string, quote byte) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// --- line assembly -------------------------------------------------------

type logicalLine struct {
	text string
	num  int // 1-based physical line number of the first line
}

// logicalLines joins physical lines into logical ones: bracketed
// continuations, backslash continuations, and triple-quoted strings all
// collapse onto the line they started on. Unterminated strings or brackets
// at end of input are reported as a ParseError.
func logicalLines(src string) ([]logicalLine, *ParseError) {
	physical := strings.Split(src, "\n")
	var out []logicalLine

	depth := 0
	var buf strings.Builder
	startNum := 0
	inString := false
	var strDelim string

	flush := func() {
		if buf.Len() > 0 {
			out = append(out, logicalLine{text: buf.String(), num: startNum})
			buf.Reset()
		}
		startNum = 0
	}

	for idx, raw := range physical {
		line := strings.TrimRight(raw, "\r")
		if startNum == 0 {
			if strings.TrimSpace(line) == "" && depth == 0 && !inString {
				continue
			}
			startNum = idx + 1
		} else {
			buf.WriteByte(' ')
		}

		i := 0
		for i < len(line) {
			if inString {
				j := strings.Index(line[i:], strDelim)
				if j < 0 {
					// single-quoted strings may not span lines
					if len(strDelim) == 1 {
						return out, &ParseError{Line: idx + 1, Msg: "unterminated string literal"}
					}
					i = len(line)
					break
				}
				// skip escaped delimiter
				if j > 0 && line[i+j-1] == '\\' && len(strDelim) == 1 {
					i += j + 1
					continue
				}
				i += j + len(strDelim)
				inString = false
				continue
			}
			c := line[i]
			switch c {
			case '#':
				line = line[:i]
				i = len(line)
			case '(', '[', '{':
				depth++
				i++
			case ')', ']', '}':
				depth--
				if depth < 0 {
					return out, &ParseError{Line: idx + 1, Msg: "unbalanced brackets"}
				}
				i++
			case '\'', '"':
				strDelim = string(c)
				if strings.HasPrefix(line[i:], strings.Repeat(strDelim, 3)) {
					strDelim = strings.Repeat(strDelim, 3)
				}
				inString = true
				i += len(strDelim)
			default:
				i++
			}
		}

		buf.WriteString(line)

		if inString && len(strDelim) == 1 {
			return out, &ParseError{Line: idx + 1, Msg: "unterminated string literal"}
		}
		if depth > 0 || inString {
			continue // logical line continues
		}
		text := buf.String()
		if strings.HasSuffix(strings.TrimRight(text, " "), "\\") {
			trimmed := strings.TrimRight(text, " ")
			buf.Reset()
			buf.WriteString(trimmed[:len(trimmed)-1])
			continue
		}
		flush()
	}

	if inString {
		return out, &ParseError{Line: len(physical), Msg: "unterminated triple-quoted string"}
	}
	if depth > 0 {
		return out, &ParseError{Line: len(physical), Msg: "unbalanced brackets at end of file"}
	}
	flush()
	return out, nil
}

func indentWidth(s string) int {
	w := 0
	for _, c := range s {
		switch c {
		case ' ':
			w++
		case '\t':
			w += 8 - w%8
		default:
			return w
		}
	}
	return w
}

// stripComment removes a trailing comment, respecting string literals.
func stripComment(s string) string {
	inString := false
	var delim string
	i := 0
	for i < len(s) {
		if inString {
			j := strings.Index(s[i:], delim)
			if j < 0 {
				return s
			}
			if j > 0 && s[i+j-1] == '\\' && len(delim) == 1 {
				i += j + 1
				continue
			}
			i += j + len(delim)
			inString = false
			continue
		}
		switch s[i] {
		case '#':
			return s[:i]
		case '\'', '"':
			delim = string(s[i])
			if strings.HasPrefix(s[i:], strings.Repeat(delim, 3)) {
				delim = strings.Repeat(delim, 3)
			}
			inString = true
			i += len(delim)
		default:
			i++
		}
	}
	return s
}

// splitTopLevel splits on sep at bracket depth zero, outside strings.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inString := false
	var delim byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == delim && (i == 0 || s[i-1] != '\\') {
				inString = false
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = true
			delim = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// topLevelIndex returns the index of the first occurrence of b at bracket
// depth zero outside strings, or -1.
func topLevelIndex(s string, b byte) int {
	depth := 0
	inString := false
	var delim byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == delim && (i == 0 || s[i-1] != '\\') {
				inString = false
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = true
			delim = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if c == b && depth == 0 {
				return i
			}
		}
	}
	return -1
}
