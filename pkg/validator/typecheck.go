package validator

import (
	"context"
	"strings"
	"time"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// TypeValidator runs an external static type checker over the plugin
// sources. The checker being absent is not a plugin defect: the validator
// reports a single INFO and passes.
type TypeValidator struct {
	cfg TypeConfig
}

// TypeConfig controls the external checker invocation.
type TypeConfig struct {
	Checker string // binary name, default mypy
	Args    []string
	Timeout time.Duration
}

func NewTypeValidator(cfg TypeConfig) *TypeValidator {
	if cfg.Checker == "" {
		cfg.Checker = "mypy"
	}
	if cfg.Args == nil {
		cfg.Args = []string{"--no-error-summary", "--no-color-output", "."}
	}
	return &TypeValidator{cfg: cfg}
}

func (v *TypeValidator) Name() string { return "type" }

func (v *TypeValidator) Validate(ctx context.Context, m *model.PluginModel) Result {
	r := Result{Validator: v.Name()}

	output, err := runTool(ctx, v.cfg.Timeout, m.RootPath, v.cfg.Checker, v.cfg.Args...)
	if err != nil {
		r.Issues = append(r.Issues, infof("type checker %s is unavailable, type checks skipped", v.cfg.Checker))
		return r
	}

	for _, f := range parseFindings(output) {
		// mypy formats findings as "file:line: severity: message".
		sev, msg, ok := strings.Cut(f.rest, ":")
		if !ok {
			continue
		}
		issue := Issue{
			Severity: typeSeverity(strings.TrimSpace(sev)),
			Message:  strings.TrimSpace(msg),
			FilePath: f.file,
			Line:     f.line,
		}
		r.Issues = append(r.Issues, issue)
	}
	return r
}

func typeSeverity(s string) Severity {
	switch s {
	case "error":
		return SeverityError
	case "warning", "note":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
