// Package check wires the model builder and the validators into a single
// plugin check run, and renders the aggregated outcome.
package check

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/validator"
)

// Options selects which validators run and how findings are filtered.
type Options struct {
	// Skip holds validator names to leave out of the run.
	Skip []string
	// Level drops findings below this severity after aggregation.
	Level validator.Severity
	// Fix applies mechanical repairs for fixable findings.
	Fix bool
	// Concurrent runs validators in parallel. Output order is the same
	// either way.
	Concurrent bool
	// RulesPath overrides the embedded component rule table.
	RulesPath string
	// TypeChecker and Linter override the external tool binaries.
	TypeChecker string
	Linter      string
}

// Summary counts the run outcome across validators.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Warned   int `json:"warned"`
	Errored  int `json:"errored"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// Report is the full outcome of one check run after level filtering.
type Report struct {
	PluginPath string             `json:"plugin_path"`
	PluginName string             `json:"plugin_name"`
	Results    []validator.Result `json:"results"`
	Summary    Summary            `json:"summary"`
}

// Failed reports whether any displayed finding is an error.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		for _, is := range res.Issues {
			if is.Severity == validator.SeverityError {
				return true
			}
		}
	}
	return false
}

// Orchestrator runs the validator suite over one plugin directory.
type Orchestrator struct {
	opts    Options
	logger  zerolog.Logger
	builder *model.Builder
}

func NewOrchestrator(opts Options, logger zerolog.Logger) (*Orchestrator, error) {
	return &Orchestrator{
		opts:    opts,
		logger:  logger.With().Str("component", "check").Logger(),
		builder: model.NewBuilder(logger),
	}, nil
}

// validators assembles the suite in its fixed order.
func (o *Orchestrator) validators() ([]validator.Validator, error) {
	rules := validator.DefaultRules()
	if o.opts.RulesPath != "" {
		loaded, err := validator.LoadRules(o.opts.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	all := []validator.Validator{
		validator.NewStructureValidator(),
		validator.NewMetadataValidator(),
		validator.NewComponentValidator(rules),
		validator.NewConfigValidator(),
		validator.NewTypeValidator(validator.TypeConfig{Checker: o.opts.TypeChecker}),
		validator.NewStyleValidator(validator.StyleConfig{Linter: o.opts.Linter, Fix: o.opts.Fix}),
	}

	skipped := map[string]bool{}
	for _, name := range o.opts.Skip {
		skipped[name] = true
	}
	out := all[:0]
	for _, v := range all {
		if !skipped[v.Name()] {
			out = append(out, v)
		}
	}
	return out, nil
}

// Run builds the plugin model, executes every selected validator, applies
// fixes when requested, and returns the filtered report. Every validator
// runs regardless of earlier failures.
func (o *Orchestrator) Run(ctx context.Context, pluginPath string) (*Report, error) {
	m, err := o.builder.Build(pluginPath)
	if err != nil {
		return nil, err
	}

	suite, err := o.validators()
	if err != nil {
		return nil, err
	}

	results := make([]validator.Result, len(suite))
	if o.opts.Concurrent {
		var wg sync.WaitGroup
		var deferred []int
		for i, v := range suite {
			// In fix mode the linter rewrites plugin sources, so it must
			// not overlap validators reading the same files.
			if o.opts.Fix && v.Name() == "style" {
				deferred = append(deferred, i)
				continue
			}
			wg.Add(1)
			go func(i int, v validator.Validator) {
				defer wg.Done()
				results[i] = v.Validate(ctx, m)
			}(i, v)
		}
		wg.Wait()
		for _, i := range deferred {
			results[i] = suite[i].Validate(ctx, m)
		}
	} else {
		for i, v := range suite {
			results[i] = v.Validate(ctx, m)
		}
	}

	if o.opts.Fix {
		var fixable []validator.Issue
		for _, res := range results {
			for _, is := range res.Issues {
				if is.Fixable() {
					fixable = append(fixable, is)
				}
			}
		}
		fixer := validator.NewAutoFixer(o.logger)
		results = append(results, fixer.Apply(ctx, m, fixable))
	}

	report := &Report{
		PluginPath: m.RootPath,
		PluginName: pluginDisplayName(m),
	}
	for _, res := range results {
		report.Results = append(report.Results, filterResult(res, o.opts.Level))
	}
	report.Summary = summarize(report.Results)

	o.logger.Info().
		Str("plugin", report.PluginName).
		Int("errors", report.Summary.Errors).
		Int("warnings", report.Summary.Warnings).
		Msg("Check completed")

	return report, nil
}

func pluginDisplayName(m *model.PluginModel) string {
	if m.RuntimeName != "" {
		return m.RuntimeName
	}
	return m.DirName
}

// filterResult drops findings below the threshold. Filtering happens after
// every validator ran, so a high threshold never suppresses execution.
func filterResult(r validator.Result, level validator.Severity) validator.Result {
	if level <= validator.SeverityInfo {
		return r
	}
	out := validator.Result{Validator: r.Validator}
	for _, is := range r.Issues {
		if is.Severity >= level {
			out.Issues = append(out.Issues, is)
		}
	}
	return out
}

func summarize(results []validator.Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		errs, warns, infos := r.Counts()
		s.Errors += errs
		s.Warnings += warns
		s.Infos += infos
		switch {
		case errs > 0:
			s.Errored++
		case warns > 0:
			s.Warned++
		default:
			s.Passed++
		}
	}
	return s
}
