package validator

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultToolTimeout = 60 * time.Second

var errToolUnavailable = errors.New("tool unavailable")

// runTool executes an external checker against the plugin directory and
// returns its combined diagnostic output. A missing binary or a timeout
// maps to errToolUnavailable so validators can degrade to a single INFO.
func runTool(ctx context.Context, timeout time.Duration, dir string, name string, args ...string) (string, error) {
	if timeout == 0 {
		timeout = defaultToolTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if execCtx.Err() != nil {
		return "", errToolUnavailable
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Checkers exit non-zero when they find problems; the findings
			// are on stdout.
			return stdout.String(), nil
		}
		return "", errToolUnavailable
	}
	return stdout.String(), nil
}

// finding is one "file:line: rest" diagnostic line.
type finding struct {
	file string
	line int
	rest string
}

// parseFindings extracts file:line prefixed diagnostics, skipping summary
// lines the checkers print at the end.
func parseFindings(output string) []finding {
	var out []finding
	for _, raw := range strings.Split(output, "\n") {
		ln := strings.TrimSpace(raw)
		if ln == "" {
			continue
		}
		parts := strings.SplitN(ln, ":", 3)
		if len(parts) < 3 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		out = append(out, finding{
			file: strings.TrimSpace(parts[0]),
			line: n,
			rest: strings.TrimSpace(parts[2]),
		})
	}
	return out
}
