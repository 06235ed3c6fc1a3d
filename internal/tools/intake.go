package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/store"
)

// intakeChecklist is the fixed list of sections the intake agent works
// through. The quality score is the filled fraction of this list.
var intakeChecklist = []string{
	"problem",
	"targetUsers",
	"businessValue",
	"currentWorkaround",
	"successCriteria",
	"constraints",
	"urgency",
}

// ─── save_intake_progress ────────────────────────────────────────────────────

// SaveIntakeProgressTool handles the save_intake_progress MCP tool.
type SaveIntakeProgressTool struct {
	deps Deps
}

// NewSaveIntakeProgressTool creates a SaveIntakeProgressTool.
func NewSaveIntakeProgressTool(deps Deps) *SaveIntakeProgressTool {
	return &SaveIntakeProgressTool{deps: deps}
}

// Definition returns the MCP tool definition for save_intake_progress.
func (t *SaveIntakeProgressTool) Definition() mcp.Tool {
	return mcp.NewTool("save_intake_progress",
		mcp.WithDescription(
			"Save the facts gathered so far for one intake section. Replaces the section's previous data wholesale; call once per section as you learn more.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being intaken"),
		),
		mcp.WithString("section",
			mcp.Required(),
			mcp.Description("Which checklist section this data belongs to"),
			mcp.Enum(intakeChecklist...),
		),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Key-value facts for the section"),
		),
		mcp.WithNumber("completeness",
			mcp.Required(),
			mcp.Description("How complete this section now is, 0-100"),
		),
	)
}

// Handle processes the save_intake_progress tool call.
func (t *SaveIntakeProgressTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	section := req.GetString("section", "")
	if !validSection(section) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"'section' must be one of: %s", strings.Join(intakeChecklist, ", "))), nil
	}
	data, ok := objectArg(req, "data")
	if !ok {
		return mcp.NewToolResultError("'data' is required and must be an object"), nil
	}
	completeness, ok := floatArg(req, "completeness")
	if !ok || completeness < 0 || completeness > 100 {
		return mcp.NewToolResultError("'completeness' must be a number between 0 and 100"), nil
	}

	r, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageIntake)
	if errResult != nil {
		return errResult, nil
	}

	// Last-write-wins per section, no deep merge.
	if r.IntakeData == nil {
		r.IntakeData = make(map[string]store.IntakeSection)
	}
	r.IntakeData[section] = store.IntakeSection{Data: data, Completeness: int(completeness)}

	saved, err := t.deps.Store.UpdateRequest(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save intake progress: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"saved":          true,
		"section":        section,
		"completeness":   int(completeness),
		"filledSections": filledSections(saved),
		"totalSections":  len(intakeChecklist),
	}), nil
}

// ─── check_quality_score ─────────────────────────────────────────────────────

// CheckQualityScoreTool handles the check_quality_score MCP tool.
type CheckQualityScoreTool struct {
	deps Deps
}

// NewCheckQualityScoreTool creates a CheckQualityScoreTool.
func NewCheckQualityScoreTool(deps Deps) *CheckQualityScoreTool {
	return &CheckQualityScoreTool{deps: deps}
}

// Definition returns the MCP tool definition for check_quality_score.
func (t *CheckQualityScoreTool) Definition() mcp.Tool {
	return mcp.NewTool("check_quality_score",
		mcp.WithDescription(
			"Recompute and persist the intake quality score: the share of checklist sections that hold data. Call before marking intake complete.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being intaken"),
		),
	)
}

// Handle processes the check_quality_score tool call.
func (t *CheckQualityScoreTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageIntake)
	if errResult != nil {
		return errResult, nil
	}

	filled := filledSections(r)
	score := int(math.Round(float64(filled) / float64(len(intakeChecklist)) * 100))
	r.QualityScore = &score

	if _, err := t.deps.Store.UpdateRequest(ctx, r); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save quality score: %v", err)), nil
	}

	var missing []string
	for _, s := range intakeChecklist {
		if sec, ok := r.IntakeData[s]; !ok || len(sec.Data) == 0 {
			missing = append(missing, s)
		}
	}
	return jsonResult(map[string]any{
		"qualityScore":    score,
		"filledSections":  filled,
		"totalSections":   len(intakeChecklist),
		"missingSections": missing,
	}), nil
}

// ─── mark_intake_complete ────────────────────────────────────────────────────

// MarkIntakeCompleteTool handles the mark_intake_complete MCP tool.
type MarkIntakeCompleteTool struct {
	deps Deps
}

// NewMarkIntakeCompleteTool creates a MarkIntakeCompleteTool.
func NewMarkIntakeCompleteTool(deps Deps) *MarkIntakeCompleteTool {
	return &MarkIntakeCompleteTool{deps: deps}
}

// Definition returns the MCP tool definition for mark_intake_complete.
func (t *MarkIntakeCompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("mark_intake_complete",
		mcp.WithDescription(
			"Close the intake stage with a summary and hand the request over for assessment. The only tool that moves INTAKE_IN_PROGRESS to PENDING_ASSESSMENT.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being intaken"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("A concise synthesis of everything learned during intake"),
		),
	)
}

// Handle processes the mark_intake_complete tool call.
func (t *MarkIntakeCompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary := strings.TrimSpace(req.GetString("summary", ""))
	if summary == "" {
		return mcp.NewToolResultError("'summary' is required and must not be empty"), nil
	}

	r, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageIntake)
	if errResult != nil {
		return errResult, nil
	}
	if err := lifecycle.EnsureTransition(r.Status, lifecycle.StatusPendingAssessment); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r.IntakeComplete = true
	r.IntakeSummary = &summary
	r.Status = lifecycle.StatusPendingAssessment

	saved, err := t.deps.Store.UpdateRequest(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to complete intake: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"intakeComplete": true,
		"status":         saved.Status,
	}), nil
}

// ─── get_similar_requests ────────────────────────────────────────────────────

// GetSimilarRequestsTool handles the get_similar_requests MCP tool.
type GetSimilarRequestsTool struct {
	deps Deps
}

// NewGetSimilarRequestsTool creates a GetSimilarRequestsTool.
func NewGetSimilarRequestsTool(deps Deps) *GetSimilarRequestsTool {
	return &GetSimilarRequestsTool{deps: deps}
}

// Definition returns the MCP tool definition for get_similar_requests.
func (t *GetSimilarRequestsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_similar_requests",
		mcp.WithDescription(
			"Search existing requests for potential duplicates of the one being intaken. Read-only.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The request being intaken, excluded from results"),
		),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.Description("Search terms extracted from the conversation"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the get_similar_requests tool call.
func (t *GetSimilarRequestsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keywords := stringSliceArg(req, "keywords")
	if len(keywords) == 0 {
		return mcp.NewToolResultError("'keywords' is required and must not be empty"), nil
	}

	r, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageIntake)
	if errResult != nil {
		return errResult, nil
	}

	hits, err := t.deps.Store.SearchSimilar(ctx, t.deps.OrgID, r.ID, keywords, 5)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("duplicate search failed: %v", err)), nil
	}
	if hits == nil {
		hits = []store.SimilarRequest{}
	}
	return jsonResult(map[string]any{
		"similarRequests": hits,
		"count":           len(hits),
	}), nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func validSection(s string) bool {
	for _, c := range intakeChecklist {
		if c == s {
			return true
		}
	}
	return false
}

// filledSections counts checklist sections that hold at least one fact.
func filledSections(r store.Request) int {
	n := 0
	for _, s := range intakeChecklist {
		if sec, ok := r.IntakeData[s]; ok && len(sec.Data) > 0 {
			n++
		}
	}
	return n
}
