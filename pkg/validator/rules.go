package validator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed rules.json
var defaultRulesJSON []byte

// rulesSchema constrains a rules document. Loaded rule files are rejected
// before use rather than failing mid-validation.
const rulesSchema = `{
  "type": "object",
  "required": ["kinds"],
  "properties": {
    "kinds": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["required_attrs"],
        "properties": {
          "required_attrs": {"type": "array", "items": {"type": "string"}},
          "recommended_attrs": {"type": "array", "items": {"type": "string"}},
          "required_methods": {"type": "array", "items": {"type": "string"}},
          "methods": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "properties": {
                "async": {"type": "boolean"},
                "params": {
                  "oneOf": [
                    {"type": "string", "enum": ["variable"]},
                    {"type": "array", "items": {"type": "string"}}
                  ]
                },
                "returns": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "aliases": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

// MethodRule is the expected shape of one required component method.
type MethodRule struct {
	Async   bool            `json:"async"`
	Params  json.RawMessage `json:"params"`
	Returns string          `json:"returns"`
}

// Variadic reports whether the rule accepts any parameter list.
func (m MethodRule) Variadic() bool {
	return strings.TrimSpace(string(m.Params)) == `"variable"`
}

// ParamNames returns the fixed parameter names, nil for variadic rules.
func (m MethodRule) ParamNames() []string {
	if m.Variadic() || len(m.Params) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(m.Params, &names); err != nil {
		return nil
	}
	return names
}

// KindRule describes the conformance surface of one component base class.
type KindRule struct {
	RequiredAttrs    []string              `json:"required_attrs"`
	RecommendedAttrs []string              `json:"recommended_attrs"`
	RequiredMethods  []string              `json:"required_methods"`
	Methods          map[string]MethodRule `json:"methods"`
}

// ComponentRules is the full rule table keyed by base-class name.
type ComponentRules struct {
	Kinds   map[string]KindRule `json:"kinds"`
	Aliases map[string]string   `json:"aliases"`
}

// Lookup resolves a base-class name (directly or through an alias) to its
// rule. The second return is false for unknown kinds.
func (r *ComponentRules) Lookup(baseClass string) (KindRule, bool) {
	if k, ok := r.Kinds[baseClass]; ok {
		return k, true
	}
	if canonical, ok := r.Aliases[baseClass]; ok {
		k, ok := r.Kinds[canonical]
		return k, ok
	}
	return KindRule{}, false
}

// KnownKinds returns every base class the table covers, aliases included.
func (r *ComponentRules) KnownKinds() []string {
	out := make([]string, 0, len(r.Kinds)+len(r.Aliases))
	for k := range r.Kinds {
		out = append(out, k)
	}
	for k := range r.Aliases {
		out = append(out, k)
	}
	return out
}

func parseRules(data []byte) (*ComponentRules, error) {
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rulesSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot validate rules document: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid rules document: %s", strings.Join(msgs, "; "))
	}

	rules := &ComponentRules{}
	if err := json.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("cannot decode rules document: %w", err)
	}
	return rules, nil
}

// DefaultRules returns the built-in component rule table.
func DefaultRules() *ComponentRules {
	rules, err := parseRules(defaultRulesJSON)
	if err != nil {
		// The embedded table ships with the binary; failing to parse it is
		// a build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded rules.json is invalid: %v", err))
	}
	return rules
}

// LoadRules reads an external rule table, falling back to schema-checked
// rejection with a descriptive error.
func LoadRules(path string) (*ComponentRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read rules file: %w", err)
	}
	return parseRules(data)
}
