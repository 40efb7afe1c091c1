// Package testexec implements the default test-execution collaborator: one
// configured command per suite, invoked once per matrix cell with the cell
// parameters exported through the environment.
//
// Richer runners (per-case reporting, remote executors) implement
// api.TestRunner directly; this one treats a whole cell invocation as a
// single case, which matches how suite commands report via exit status.
package testexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/relcut/relcut/pkg/api"
)

// Environment variables exported to suite commands.
const (
	EnvOS           = "RELCUT_OS"
	EnvRuntime      = "RELCUT_RUNTIME"
	EnvRef          = "RELCUT_REF"
	EnvFlakyOnly    = "RELCUT_FLAKY_ONLY"
	EnvExcludeFlaky = "RELCUT_EXCLUDE_FLAKY"
	EnvSetup        = "RELCUT_ENV_SETUP"
)

// CommandRunner executes suite commands in a working directory.
type CommandRunner struct {
	// Dir is the working directory for suite commands.
	Dir string

	// UnitCommand and IntegrationCommand are argv vectors. An empty
	// command reports the suite as skipped for every cell.
	UnitCommand        []string
	IntegrationCommand []string

	// EnvSetupPath is exported to integration commands via RELCUT_ENV_SETUP.
	EnvSetupPath string
}

var _ api.TestRunner = (*CommandRunner)(nil)

// RunCell executes the suite command for one matrix cell. The invocation
// is reported as a single case; flaky-only invocations are flaky-tagged by
// construction.
func (r *CommandRunner) RunCell(ctx context.Context, req api.CellRequest) ([]api.CaseResult, error) {
	argv := r.command(req.Suite)
	name := fmt.Sprintf("%s[%s]", req.Suite, req.Cell)

	if len(argv) == 0 {
		return []api.CaseResult{{
			Name:    name,
			Cell:    req.Cell,
			Skipped: true,
			Flaky:   req.FlakyOnly,
		}}, nil
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		EnvOS+"="+req.Cell.OS,
		EnvRuntime+"="+req.Cell.Runtime,
		EnvRef+"="+req.Ref,
		EnvFlakyOnly+"="+boolFlag(req.FlakyOnly),
		EnvExcludeFlaky+"="+boolFlag(req.ExcludeFlaky),
		EnvSetup+"="+r.EnvSetupPath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	passed := err == nil
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Not a test failure: the command could not run at all.
			return nil, fmt.Errorf("%s suite: %w", req.Suite, err)
		}
	}

	return []api.CaseResult{{
		Name:   name,
		Cell:   req.Cell,
		Passed: passed,
		Flaky:  req.FlakyOnly,
		Output: out.String(),
	}}, nil
}

func (r *CommandRunner) command(suite api.Suite) []string {
	switch suite {
	case api.SuiteIntegration:
		return r.IntegrationCommand
	default:
		return r.UnitCommand
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
