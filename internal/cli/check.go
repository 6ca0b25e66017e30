package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/check"
	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/validator"
)

var checkFlags struct {
	level      string
	format     string
	output     string
	rules      string
	skip       map[string]*bool
	fix        bool
	concurrent bool
}

var checkCmd = &cobra.Command{
	Use:   "check [plugin-path]",
	Short: "Validate a plugin directory",
	Long: `Run the static validators over a plugin directory and render a
report. The command exits non-zero when errors remain in the report.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.level, "level", "", "minimum severity to show (error, warning, info)")
	checkCmd.Flags().StringVar(&checkFlags.format, "format", "", "report format (console, markdown, json)")
	checkCmd.Flags().StringVarP(&checkFlags.output, "output", "o", "", "write the report to a file instead of stdout")
	checkCmd.Flags().StringVar(&checkFlags.rules, "rules", "", "component rule table overriding the embedded one")
	checkFlags.skip = map[string]*bool{}
	for _, name := range []string{"structure", "metadata", "component", "config", "type", "style"} {
		checkFlags.skip[name] = checkCmd.Flags().Bool("skip-"+name, false, "skip the "+name+" validator")
	}
	checkCmd.Flags().BoolVar(&checkFlags.fix, "fix", false, "apply automatic fixes for fixable issues")
	checkCmd.Flags().BoolVar(&checkFlags.concurrent, "concurrent", false, "run independent validators in parallel")
}

func runCheck(cmd *cobra.Command, args []string) error {
	pluginPath := "."
	if len(args) == 1 {
		pluginPath = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if checkFlags.level == "" {
		checkFlags.level = cfg.Check.Level
	}
	if checkFlags.format == "" {
		checkFlags.format = cfg.Check.Format
	}
	if checkFlags.rules == "" {
		checkFlags.rules = cfg.Check.RulesPath
	}

	level, err := validator.ParseSeverity(checkFlags.level)
	if err != nil {
		return err
	}
	reporter, err := check.NewReporter(checkFlags.format)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer log.Close()

	var skip []string
	for name, set := range checkFlags.skip {
		if *set {
			skip = append(skip, name)
		}
	}

	orch, err := check.NewOrchestrator(check.Options{
		Skip:        skip,
		Level:       level,
		Fix:         checkFlags.fix,
		Concurrent:  checkFlags.concurrent || cfg.Check.Concurrent,
		RulesPath:   checkFlags.rules,
		TypeChecker: cfg.Check.TypeChecker,
		Linter:      cfg.Check.Linter,
	}, log.Zerolog())
	if err != nil {
		return err
	}

	report, err := orch.Run(cmd.Context(), pluginPath)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if checkFlags.output != "" {
		f, err := os.Create(checkFlags.output)
		if err != nil {
			return fmt.Errorf("cannot create report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := reporter.Render(out, report); err != nil {
		return err
	}

	if report.Failed() {
		return fmt.Errorf("check found %d error(s)", report.Summary.Errors)
	}
	return nil
}
