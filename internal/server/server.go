// Package server wires the storage, notification, and review components
// and creates the MCP server instance. This is the composition root: it
// creates concrete implementations and injects them into the tools that
// depend on them. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"reqtriage/internal/config"
	"reqtriage/internal/notify"
	"reqtriage/internal/prompts"
	"reqtriage/internal/resources"
	"reqtriage/internal/review"
	"reqtriage/internal/store"
	"reqtriage/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with the full triage tool
// catalogue registered.
//
// The returned cleanup function closes the database connection and must
// be called on shutdown (typically via defer). It is always non-nil.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	st, err := store.New(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		return nil, noop, fmt.Errorf("opening store: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Printf("WARNING: store close: %v", err)
		}
	}

	sinks := []notify.Sink{notify.NewLogSink(os.Stderr)}
	if cfg.NotifyWebhook != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.NotifyWebhook))
	}
	notifier := notify.New(nil, sinks...)

	engine := review.NewEngine(st, notifier)

	s := server.NewMCPServer(
		"reqtriage",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// The MCP surface registers every tool; each tool's own stage check
	// rejects calls against requests that are not in its stage. The
	// in-process orchestrator is stricter and only exposes the active
	// stage's tools.
	deps := tools.Deps{
		Store:   st,
		Review:  engine,
		OrgID:   cfg.OrgID,
		AgentID: cfg.AgentID,
	}
	timeout := cfg.ToolTimeout
	if timeout <= 0 {
		timeout = config.DefaultToolTimeout
	}
	for _, t := range tools.All(deps) {
		s.AddTool(t.Definition(), withTimeout(timeout, t.Handle))
	}

	triagePrompt := prompts.NewTriagePrompt()
	s.AddPrompt(triagePrompt.Definition(), triagePrompt.Handle)

	resourceHandler := resources.NewHandler(st, cfg.OrgID)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s, cleanup, nil
}

// noop is the cleanup returned when initialization fails before the
// store is open.
func noop() {}

// withTimeout bounds one tool execution on the serve path. A handler
// that overruns the budget comes back to the agent as a tool error
// result instead of holding the transport open.
func withTimeout(d time.Duration, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type outcome struct {
			result *mcp.CallToolResult
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			r, err := h(callCtx, req)
			done <- outcome{result: r, err: err}
		}()

		select {
		case out := <-done:
			return out.result, out.err
		case <-callCtx.Done():
			return mcp.NewToolResultError(fmt.Sprintf("tool timed out after %s", d)), nil
		}
	}
}

// serverInstructions tells the connected AI how to run the triage
// workflow over the registered tools.
func serverInstructions() string {
	return `You have access to reqtriage, a feature-request triage MCP server.

Every feature request moves through a lifecycle of statuses. Your job is
to advance requests through three agent stages, one request at a time.
Pass the request's id as requestId on every tool call.

## INTAKE stage (status DRAFT or INTAKE_IN_PROGRESS)

Interview the requester and structure what you learn:
1. Call get_similar_requests early with keywords from the conversation.
   If a near-duplicate exists, tell the requester before going further.
2. As each topic is covered, call save_intake_progress with the section
   (problem, targetUsers, businessValue, currentWorkaround,
   successCriteria, constraints, urgency), the structured data you
   extracted, and your completeness estimate for that section.
3. Call check_quality_score to see which sections are still missing.
4. When the picture is complete, call mark_intake_complete with a
   summary written for a reviewer who has not seen the conversation.

NEVER pass placeholder text. Sections hold real content you extracted
from the requester, or they are not saved at all.

## ASSESSMENT stage (status PENDING_ASSESSMENT)

Ground your scores in evidence before writing them:
1. Call get_organization_context for backlog pressure and the scoring
   model in force.
2. Call get_current_backlog and get_historical_estimates to calibrate
   complexity against work the team has actually finished.
3. Call analyze_codebase_impact. If it reports the integration is
   unavailable, say so in your assessment notes and score without it.
4. Call save_assessment with businessScore, technicalScore,
   riskScore, priorityScore (each 0-100), a complexity t-shirt
   size (XS, S, M, L, XL), and your written reasoning as assessmentData.
   This hands the request to human reviewers. You do not decide
   approval.

## OUTPUT stage (status APPROVED, no epic yet)

Turn the approved request into tracker-ready artifacts:
1. Call get_intake_data and get_assessment_data to recover the full
   picture.
2. Call save_epic once with a title, description, and business value
   statement.
3. Call save_user_story for each story: title, asA, iWant, soThat,
   acceptance criteria, priority, and story points where you can
   estimate them. Keep stories independently deliverable.

## Rules

- Work only in the stage the request is actually in. Out-of-stage calls
  fail and tell you why.
- A failed tool call is feedback. Read the message, fix the arguments,
  and try again.
- Decisions (approve, reject, defer, request info) belong to human
  reviewers, never to you.`
}
