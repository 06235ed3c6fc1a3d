// Package pipeline runs the cooperative agent loop over the staged
// tool catalogue. The orchestrator never decides anything about the
// request itself: it derives the active stage from status, hands the
// agent that stage's tools, executes the calls the agent picks one at
// a time, and stops when the stage's committing tool has moved the
// request on (or the agent has nothing left to do).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/store"
	"reqtriage/internal/tools"
)

// DefaultToolTimeout bounds one tool execution. A timeout is a tool
// failure the agent sees, not an abort of the whole stage.
const DefaultToolTimeout = 30 * time.Second

// DefaultMaxCalls caps how many tool calls one stage run may make
// before the orchestrator gives up on the agent converging.
const DefaultMaxCalls = 32

// ErrNoActiveStage means the request's status has no agent stage
// (e.g. it is under human review or already has its epic).
var ErrNoActiveStage = errors.New("no active pipeline stage for request")

// ToolCall is the agent's choice of what to run next.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Step records one executed call and what came back.
type Step struct {
	Tool    string `json:"tool"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// Turn is everything the agent sees before choosing its next call:
// the stage, the request snapshot, the tools it may use, and the
// transcript of what already happened this run.
type Turn struct {
	Stage   lifecycle.Stage
	Request store.Request
	Tools   []mcp.Tool
	Steps   []Step
}

// Agent decides the next tool call for a turn. Returning nil means
// the agent considers the stage done. This is the seam where an LLM
// runtime plugs in; tests drive it with a scripted implementation.
type Agent interface {
	NextCall(ctx context.Context, turn Turn) (*ToolCall, error)
}

// ScriptAgent replays a prepared sequence of tool calls, one per
// turn, then reports the stage done. "reqtriage run" uses it to drive
// the orchestrator from a call file.
type ScriptAgent struct {
	calls []ToolCall
	next  int
}

// NewScriptAgent builds an agent that replays calls in order.
func NewScriptAgent(calls []ToolCall) *ScriptAgent {
	return &ScriptAgent{calls: calls}
}

// NextCall implements Agent.
func (a *ScriptAgent) NextCall(context.Context, Turn) (*ToolCall, error) {
	if a.next >= len(a.calls) {
		return nil, nil
	}
	c := a.calls[a.next]
	a.next++
	return &c, nil
}

// Report summarizes one stage run.
type Report struct {
	Stage         lifecycle.Stage  `json:"stage"`
	Steps         []Step           `json:"steps"`
	FinalStatus   lifecycle.Status `json:"final_status"`
	StageComplete bool             `json:"stage_complete"`
}

// Orchestrator drives one agent over the staged catalogue.
type Orchestrator struct {
	store       *store.Store
	orgID       string
	catalogue   map[lifecycle.Stage][]tools.Tool
	toolTimeout time.Duration
	maxCalls    int
}

// Config for the orchestrator. Zero values fall back to defaults.
type Config struct {
	ToolTimeout time.Duration
	MaxCalls    int
}

// New builds an orchestrator over the given tool deps.
func New(deps tools.Deps, cfg Config) *Orchestrator {
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = DefaultMaxCalls
	}
	return &Orchestrator{
		store:       deps.Store,
		orgID:       deps.OrgID,
		catalogue:   tools.ByStage(deps),
		toolTimeout: cfg.ToolTimeout,
		maxCalls:    cfg.MaxCalls,
	}
}

// RunStage executes the agent loop for whatever stage the request is
// currently in. It returns when the stage's committing tool has moved
// the request to a new stage, when the agent returns nil, or when the
// call budget runs out.
func (o *Orchestrator) RunStage(ctx context.Context, requestID string, agent Agent) (Report, error) {
	r, stage, err := o.currentStage(ctx, requestID)
	if err != nil {
		return Report{}, err
	}
	if stage == lifecycle.StageNone {
		return Report{}, fmt.Errorf("%w %s (status %s)", ErrNoActiveStage, requestID, r.Status)
	}

	stageTools := o.catalogue[stage]
	defs := make([]mcp.Tool, len(stageTools))
	for i, t := range stageTools {
		defs[i] = t.Definition()
	}

	report := Report{Stage: stage, FinalStatus: r.Status}
	for len(report.Steps) < o.maxCalls {
		call, err := agent.NextCall(ctx, Turn{
			Stage: stage, Request: r, Tools: defs, Steps: report.Steps,
		})
		if err != nil {
			return report, fmt.Errorf("agent failed: %w", err)
		}
		if call == nil {
			break
		}

		report.Steps = append(report.Steps, o.execute(ctx, stageTools, *call))

		// Re-read: a committing tool may have advanced the status.
		fresh, newStage, err := o.currentStage(ctx, requestID)
		if err != nil {
			return report, err
		}
		r = fresh
		report.FinalStatus = r.Status
		if newStage != stage {
			report.StageComplete = true
			break
		}
	}
	return report, nil
}

// execute runs one call under the per-call timeout. Unknown tools,
// execution errors, and timeouts all become error steps the agent can
// read on its next turn; none of them abort the run.
func (o *Orchestrator) execute(ctx context.Context, stageTools []tools.Tool, call ToolCall) Step {
	var tool tools.Tool
	for _, t := range stageTools {
		if t.Definition().Name == call.Name {
			tool = t
			break
		}
	}
	if tool == nil {
		return Step{
			Tool:    call.Name,
			Result:  fmt.Sprintf("tool %q is not available in this stage", call.Name),
			IsError: true,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = call.Name
	req.Params.Arguments = call.Arguments

	result, err := tool.Handle(callCtx, req)
	if err != nil {
		reason := err.Error()
		if callCtx.Err() != nil {
			reason = fmt.Sprintf("tool timed out after %s", o.toolTimeout)
		}
		return Step{Tool: call.Name, Result: reason, IsError: true}
	}
	return Step{Tool: call.Name, Result: resultText(result), IsError: result.IsError}
}

func (o *Orchestrator) currentStage(ctx context.Context, requestID string) (store.Request, lifecycle.Stage, error) {
	r, err := o.store.GetOrgRequest(ctx, requestID, o.orgID)
	if err != nil {
		return store.Request{}, lifecycle.StageNone, err
	}
	hasEpic, err := o.store.HasEpic(ctx, r.ID)
	if err != nil {
		return store.Request{}, lifecycle.StageNone, err
	}
	return r, lifecycle.StageForStatus(r.Status, hasEpic), nil
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
