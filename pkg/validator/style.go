package validator

import (
	"context"
	"strings"
	"time"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// StyleValidator runs an external linter over the plugin sources. Like the
// type checker, an absent linter degrades to a single INFO.
type StyleValidator struct {
	cfg StyleConfig
}

// StyleConfig controls the linter invocation.
type StyleConfig struct {
	Linter  string // binary name, default ruff
	Args    []string
	Timeout time.Duration
	// ErrorRules lists rule-code prefixes reported as errors instead of
	// warnings, for example E9 or F821.
	ErrorRules []string
	// Fix passes the linter's own fix flag through.
	Fix bool
}

func NewStyleValidator(cfg StyleConfig) *StyleValidator {
	if cfg.Linter == "" {
		cfg.Linter = "ruff"
	}
	if cfg.ErrorRules == nil {
		cfg.ErrorRules = []string{"E9", "F"}
	}
	return &StyleValidator{cfg: cfg}
}

func (v *StyleValidator) Name() string { return "style" }

func (v *StyleValidator) Validate(ctx context.Context, m *model.PluginModel) Result {
	r := Result{Validator: v.Name()}

	args := v.cfg.Args
	if args == nil {
		args = []string{"check", "--output-format", "concise"}
		if v.cfg.Fix {
			args = append(args, "--fix")
		}
		args = append(args, ".")
	}

	output, err := runTool(ctx, v.cfg.Timeout, m.RootPath, v.cfg.Linter, args...)
	if err != nil {
		r.Issues = append(r.Issues, infof("linter %s is unavailable, style checks skipped", v.cfg.Linter))
		return r
	}

	for _, f := range parseFindings(output) {
		// ruff concise format: "file:line:col: CODE message".
		rest := f.rest
		if col, after, ok := strings.Cut(rest, ":"); ok && isDigits(col) {
			rest = strings.TrimSpace(after)
		}
		code, msg, ok := strings.Cut(rest, " ")
		if !ok {
			code, msg = "", rest
		}
		sev := SeverityWarning
		for _, prefix := range v.cfg.ErrorRules {
			if strings.HasPrefix(code, prefix) {
				sev = SeverityError
				break
			}
		}
		message := strings.TrimSpace(msg)
		if code != "" {
			message = code + " " + message
		}
		r.Issues = append(r.Issues, Issue{
			Severity: sev,
			Message:  message,
			FilePath: f.file,
			Line:     f.line,
		})
	}
	return r
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
