package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/scoring"
	"reqtriage/internal/store"
)

// CodebaseAnalyzer estimates which parts of a codebase a request would
// touch. Implementations wrap a repository host integration; a nil
// analyzer means the feature is unavailable, never an error.
type CodebaseAnalyzer interface {
	Analyze(ctx context.Context, keywords []string) (ImpactReport, error)
}

// ImpactReport is what a CodebaseAnalyzer returns.
type ImpactReport struct {
	AffectedAreas []string `json:"affectedAreas"`
	FileCount     int      `json:"fileCount"`
	Notes         string   `json:"notes,omitempty"`
}

// ─── get_organization_context ────────────────────────────────────────────────

// GetOrganizationContextTool handles the get_organization_context MCP tool.
type GetOrganizationContextTool struct {
	deps Deps
}

// NewGetOrganizationContextTool creates a GetOrganizationContextTool.
func NewGetOrganizationContextTool(deps Deps) *GetOrganizationContextTool {
	return &GetOrganizationContextTool{deps: deps}
}

// Definition returns the MCP tool definition for get_organization_context.
func (t *GetOrganizationContextTool) Definition() mcp.Tool {
	return mcp.NewTool("get_organization_context",
		mcp.WithDescription(
			"Read-only snapshot of the organization: request counts per status and the active scoring configuration. Use it to calibrate scores against the org's norms.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being assessed"),
		),
	)
}

// Handle processes the get_organization_context tool call.
func (t *GetOrganizationContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageAssessment); errResult != nil {
		return errResult, nil
	}

	counts, err := t.deps.Store.CountByStatus(ctx, t.deps.OrgID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read organization context: %v", err)), nil
	}
	cfg, err := t.deps.Store.GetScoringConfig(ctx, t.deps.OrgID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read scoring config: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"requestsByStatus": counts,
		"scoringConfig":    scoring.Resolve(cfg),
	}), nil
}

// ─── get_current_backlog ─────────────────────────────────────────────────────

// GetCurrentBacklogTool handles the get_current_backlog MCP tool.
type GetCurrentBacklogTool struct {
	deps Deps
}

// NewGetCurrentBacklogTool creates a GetCurrentBacklogTool.
func NewGetCurrentBacklogTool(deps Deps) *GetCurrentBacklogTool {
	return &GetCurrentBacklogTool{deps: deps}
}

// Definition returns the MCP tool definition for get_current_backlog.
func (t *GetCurrentBacklogTool) Definition() mcp.Tool {
	return mcp.NewTool("get_current_backlog",
		mcp.WithDescription(
			"Read-only view of the backlog and in-progress work, highest priority first. Use it to judge where this request would land.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being assessed"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default 20)"),
		),
	)
}

// Handle processes the get_current_backlog tool call.
func (t *GetCurrentBacklogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageAssessment); errResult != nil {
		return errResult, nil
	}

	limit, _ := floatArg(req, "limit")
	backlog, err := t.deps.Store.ListBacklog(ctx, t.deps.OrgID, int(limit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read backlog: %v", err)), nil
	}

	type entry struct {
		ID            string                `json:"id"`
		Title         string                `json:"title"`
		Status        lifecycle.Status      `json:"status"`
		PriorityScore *float64              `json:"priorityScore,omitempty"`
		Complexity    *lifecycle.Complexity `json:"complexity,omitempty"`
	}
	entries := make([]entry, 0, len(backlog))
	for _, r := range backlog {
		entries = append(entries, entry{
			ID: r.ID, Title: r.Title, Status: r.Status,
			PriorityScore: r.PriorityScore, Complexity: r.Complexity,
		})
	}
	return jsonResult(map[string]any{
		"backlog": entries,
		"count":   len(entries),
	}), nil
}

// ─── get_historical_estimates ────────────────────────────────────────────────

// GetHistoricalEstimatesTool handles the get_historical_estimates MCP tool.
type GetHistoricalEstimatesTool struct {
	deps Deps
}

// NewGetHistoricalEstimatesTool creates a GetHistoricalEstimatesTool.
func NewGetHistoricalEstimatesTool(deps Deps) *GetHistoricalEstimatesTool {
	return &GetHistoricalEstimatesTool{deps: deps}
}

// Definition returns the MCP tool definition for get_historical_estimates.
func (t *GetHistoricalEstimatesTool) Definition() mcp.Tool {
	return mcp.NewTool("get_historical_estimates",
		mcp.WithDescription(
			"Read-only list of completed requests with their predicted complexity and the effort they actually took. Use it to ground your complexity rating.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being assessed"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default 20)"),
		),
	)
}

// Handle processes the get_historical_estimates tool call.
func (t *GetHistoricalEstimatesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageAssessment); errResult != nil {
		return errResult, nil
	}

	limit, _ := floatArg(req, "limit")
	estimates, err := t.deps.Store.ListHistoricalEstimates(ctx, t.deps.OrgID, int(limit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read historical estimates: %v", err)), nil
	}
	if estimates == nil {
		estimates = []store.HistoricalEstimate{}
	}
	return jsonResult(map[string]any{
		"estimates": estimates,
		"count":     len(estimates),
	}), nil
}

// ─── analyze_codebase_impact ─────────────────────────────────────────────────

// AnalyzeCodebaseImpactTool handles the analyze_codebase_impact MCP tool.
type AnalyzeCodebaseImpactTool struct {
	deps Deps
}

// NewAnalyzeCodebaseImpactTool creates an AnalyzeCodebaseImpactTool.
func NewAnalyzeCodebaseImpactTool(deps Deps) *AnalyzeCodebaseImpactTool {
	return &AnalyzeCodebaseImpactTool{deps: deps}
}

// Definition returns the MCP tool definition for analyze_codebase_impact.
func (t *AnalyzeCodebaseImpactTool) Definition() mcp.Tool {
	return mcp.NewTool("analyze_codebase_impact",
		mcp.WithDescription(
			"Estimate which parts of the codebase a request would touch. Degrades to available=false when no repository integration is configured; never treat that as an error.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being assessed"),
		),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.Description("Technical terms to look for in the codebase"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the analyze_codebase_impact tool call. It never
// fails hard: missing integration or analyzer errors both come back as
// an unavailable result the agent can reason about.
func (t *AnalyzeCodebaseImpactTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageAssessment); errResult != nil {
		return errResult, nil
	}

	if t.deps.Analyzer == nil {
		return jsonResult(map[string]any{
			"available": false,
			"reason":    "no repository integration configured",
		}), nil
	}

	keywords := stringSliceArg(req, "keywords")
	report, err := t.deps.Analyzer.Analyze(ctx, keywords)
	if err != nil {
		return jsonResult(map[string]any{
			"available": false,
			"reason":    fmt.Sprintf("analysis failed: %v", err),
		}), nil
	}
	return jsonResult(map[string]any{
		"available": true,
		"impact":    report,
	}), nil
}

// ─── save_assessment ─────────────────────────────────────────────────────────

// SaveAssessmentTool handles the save_assessment MCP tool.
type SaveAssessmentTool struct {
	deps Deps
}

// NewSaveAssessmentTool creates a SaveAssessmentTool.
func NewSaveAssessmentTool(deps Deps) *SaveAssessmentTool {
	return &SaveAssessmentTool{deps: deps}
}

// Definition returns the MCP tool definition for save_assessment.
func (t *SaveAssessmentTool) Definition() mcp.Tool {
	return mcp.NewTool("save_assessment",
		mcp.WithDescription(
			"Persist the full assessment in one write and hand the request to human review. The only tool that moves PENDING_ASSESSMENT to UNDER_REVIEW.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being assessed"),
		),
		mcp.WithNumber("businessScore",
			mcp.Required(),
			mcp.Description("Business value, 0-100"),
		),
		mcp.WithNumber("technicalScore",
			mcp.Required(),
			mcp.Description("Technical feasibility, 0-100"),
		),
		mcp.WithNumber("riskScore",
			mcp.Required(),
			mcp.Description("Delivery risk, 0-100 (higher is riskier)"),
		),
		mcp.WithNumber("priorityScore",
			mcp.Required(),
			mcp.Description("Overall priority, 0-100"),
		),
		mcp.WithString("complexity",
			mcp.Required(),
			mcp.Description("T-shirt size estimate"),
			mcp.Enum("XS", "S", "M", "L", "XL"),
		),
		mcp.WithObject("assessmentData",
			mcp.Description("Free-form reasoning behind the scores"),
		),
	)
}

// Handle processes the save_assessment tool call.
func (t *SaveAssessmentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scores := make(map[string]float64, 4)
	for _, name := range []string{"businessScore", "technicalScore", "riskScore", "priorityScore"} {
		v, ok := floatArg(req, name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", name)), nil
		}
		if v < 0 || v > 100 {
			return mcp.NewToolResultError(fmt.Sprintf("'%s' must be between 0 and 100, got %v", name, v)), nil
		}
		scores[name] = v
	}
	complexity := lifecycle.Complexity(req.GetString("complexity", ""))
	if err := lifecycle.ValidateComplexity(complexity); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageAssessment)
	if errResult != nil {
		return errResult, nil
	}
	if err := lifecycle.EnsureTransition(r.Status, lifecycle.StatusUnderReview); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	business := scores["businessScore"]
	technical := scores["technicalScore"]
	risk := scores["riskScore"]
	priority := scores["priorityScore"]
	r.BusinessScore = &business
	r.TechnicalScore = &technical
	r.RiskScore = &risk
	r.PriorityScore = &priority
	r.Complexity = &complexity
	if data, ok := objectArg(req, "assessmentData"); ok {
		encoded, err := json.Marshal(data)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode assessment data: %v", err)), nil
		}
		s := string(encoded)
		r.AssessmentData = &s
	}
	r.Status = lifecycle.StatusUnderReview

	saved, err := t.deps.Store.UpdateRequest(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save assessment: %v", err)), nil
	}

	// Reviewers are told out-of-band; a notification failure never
	// reaches the agent.
	t.deps.Review.NotifyReviewNeeded(ctx, saved, t.deps.AgentID)

	cfg, _ := t.deps.Store.GetScoringConfig(ctx, t.deps.OrgID)
	resolved := scoring.Resolve(cfg)
	return jsonResult(map[string]any{
		"status":        saved.Status,
		"priorityScore": priority,
		"priorityLabel": scoring.PriorityLabel(priority, resolved),
		"complexity":    complexity,
	}), nil
}
