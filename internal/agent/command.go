package agent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// waitDelay bounds how long a cancelled command may keep its pipes open.
const waitDelay = 5 * time.Second

// maxErrorLen caps the output excerpt stored in build.last_error.
const maxErrorLen = 500

// CommandBuilder runs a shell command per ticket. The ticket is passed in the
// environment (WS_TICKET_ID, WS_TICKET_SUMMARY, WS_WORKSTREAM, WS_PLAN_PATH).
// A line "branch: <name>" on stdout names the produced branch.
type CommandBuilder struct {
	Command  string
	PlansDir string
	Dir      string // working directory; empty means the current one
}

// Build runs the command. A non-zero exit is a failed build.
func (b *CommandBuilder) Build(ctx context.Context, t *types.Ticket) (BuildResult, error) {
	if strings.TrimSpace(b.Command) == "" {
		return BuildResult{}, fmt.Errorf("%w: set build.command", ErrNotConfigured)
	}
	out, err := run(ctx, b.Command, b.Dir, ticketEnv(t, b.PlansDir))
	if err != nil {
		return BuildResult{Output: out}, err
	}
	branch := parseBranch(out)
	if branch == "" {
		branch = DefaultBranch(t)
	}
	return BuildResult{Branch: branch, Output: out}, nil
}

// CommandPlanner runs a shell command that writes the plan to $WS_PLAN_PATH.
// If the command leaves no file there, its stdout becomes the plan.
type CommandPlanner struct {
	Command  string
	PlansDir string
	Dir      string
}

// Plan runs the command and returns the plan path.
func (p *CommandPlanner) Plan(ctx context.Context, t *types.Ticket) (PlanResult, error) {
	if strings.TrimSpace(p.Command) == "" {
		return PlanResult{}, fmt.Errorf("%w: set plan.command or plan.provider", ErrNotConfigured)
	}
	path := PlanPath(p.PlansDir, t.ID)
	if err := os.MkdirAll(p.PlansDir, 0o750); err != nil {
		return PlanResult{}, fmt.Errorf("failed to create plans directory: %w", err)
	}
	out, err := run(ctx, p.Command, p.Dir, ticketEnv(t, p.PlansDir))
	if err != nil {
		return PlanResult{}, err
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if strings.TrimSpace(out) == "" {
			return PlanResult{}, fmt.Errorf("planner produced no plan for %s", t.ID)
		}
		if err := writePlan(path, out); err != nil {
			return PlanResult{}, err
		}
	}
	return PlanResult{Artifact: path}, nil
}

// StatusCommand asks an external command for a pull request's status. The
// command gets WS_TICKET_ID and WS_PR_URL and prints one of open, merged or
// closed.
type StatusCommand struct {
	Command string
	Dir     string
}

// Status runs the command for t and parses its answer.
func (s *StatusCommand) Status(ctx context.Context, t *types.Ticket) (types.PRStatus, error) {
	if strings.TrimSpace(s.Command) == "" {
		return "", fmt.Errorf("%w: set pr.status-command", ErrNotConfigured)
	}
	env := []string{"WS_TICKET_ID=" + t.ID, "WS_PR_URL=" + t.PRURL()}
	out, err := run(ctx, s.Command, s.Dir, env)
	if err != nil {
		return "", err
	}
	status := types.PRStatus(strings.ToLower(strings.TrimSpace(lastLine(out))))
	if !status.IsValid() || status == types.PRNone {
		return "", fmt.Errorf("status command printed %q, want open, merged or closed", strings.TrimSpace(out))
	}
	return status, nil
}

func ticketEnv(t *types.Ticket, plansDir string) []string {
	env := []string{
		"WS_TICKET_ID=" + t.ID,
		"WS_TICKET_SUMMARY=" + t.Summary,
		"WS_WORKSTREAM=" + t.Workstream,
		"WS_PRIORITY=" + string(t.Priority),
	}
	if plansDir != "" {
		env = append(env, "WS_PLAN_PATH="+PlanPath(plansDir, t.ID))
	}
	return env
}

// run executes command through the shell and returns combined output. On
// failure the error carries the tail of the output.
func run(ctx context.Context, command, dir string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command) // #nosec G204 - command comes from the operator's config
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = waitDelay
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := buf.String()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		if tail := excerpt(out); tail != "" {
			return out, fmt.Errorf("%w: %s", err, tail)
		}
		return out, err
	}
	return out, nil
}

func parseBranch(out string) string {
	var branch string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "branch:"); ok {
			branch = strings.TrimSpace(rest)
		}
	}
	return branch
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	return lines[len(lines)-1]
}

func excerpt(out string) string {
	out = strings.TrimSpace(out)
	if len(out) > maxErrorLen {
		out = "..." + out[len(out)-maxErrorLen:]
	}
	return out
}
