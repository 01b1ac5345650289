package main

import (
	"fmt"
	"strings"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/agent"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/config"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/debug"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/orchestrator"
)

// orchestratorOptions maps build.* settings onto orchestrator options. A
// configured max-retries of 0 means "escalate on the first failure".
func orchestratorOptions(bs config.BuildSettings, log orchestrator.LogFunc) orchestrator.Options {
	timeout := bs.TicketTimeout
	if timeout == 0 {
		timeout = -1
	}
	if log == nil {
		log = debug.Logf
	}
	return orchestrator.Options{
		MaxParallel:          bs.MaxParallel,
		MaxRetries:           bs.MaxRetries,
		EscalateImmediately:  bs.MaxRetries <= 0,
		TicketTimeout:        timeout,
		MaxIterations:        bs.MaxIterations,
		TimeBudget:           bs.TimeBudget,
		Pacing:               bs.Pacing,
		ConservativeInterval: bs.ConservativeInterval,
		Log:                  log,
	}
}

func newBuilder(bs config.BuildSettings) (agent.Builder, error) {
	if strings.TrimSpace(bs.Command) == "" {
		return nil, fmt.Errorf("%w: set build.command (or WS_BUILD_COMMAND) to the command that builds one ticket", agent.ErrNotConfigured)
	}
	return &agent.CommandBuilder{Command: bs.Command, PlansDir: loc.PlansDir()}, nil
}

func newPlanner(ps config.PlanSettings) (agent.Planner, error) {
	switch ps.Provider {
	case config.PlanProviderAnthropic:
		return agent.NewAnthropicPlanner(loc.PlansDir(),
			agent.WithModel(ps.Model),
			agent.WithMaxTokens(ps.MaxTokens),
		)
	case config.PlanProviderCommand, "":
		if strings.TrimSpace(ps.Command) == "" {
			return nil, fmt.Errorf("%w: set plan.command, or plan.provider to %q", agent.ErrNotConfigured, config.PlanProviderAnthropic)
		}
		return &agent.CommandPlanner{Command: ps.Command, PlansDir: loc.PlansDir()}, nil
	default:
		return nil, fmt.Errorf("unknown plan.provider %q", ps.Provider)
	}
}

func newStatusSource(rs config.RunSettings) (*agent.StatusCommand, error) {
	if strings.TrimSpace(rs.StatusCommand) == "" {
		return nil, fmt.Errorf("%w: set pr.status-command to refresh pull request status", agent.ErrNotConfigured)
	}
	return &agent.StatusCommand{Command: rs.StatusCommand}, nil
}
