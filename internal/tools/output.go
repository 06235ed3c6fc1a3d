package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/store"
)

// storyPriorities are the accepted values for a story's priority.
var storyPriorities = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// loadPastApproval fetches the request and verifies it has passed
// approval. Unlike loadForStage it does not care whether an epic
// already exists: reading intake data and appending stories stay valid
// after save_epic has run.
func loadPastApproval(ctx context.Context, d Deps, req mcp.CallToolRequest) (store.Request, *mcp.CallToolResult) {
	id := req.GetString("requestId", "")
	if id == "" {
		return store.Request{}, mcp.NewToolResultError("'requestId' is required")
	}
	r, err := d.Store.GetOrgRequest(ctx, id, d.OrgID)
	if err != nil {
		return store.Request{}, mcp.NewToolResultError(fmt.Sprintf("request not found: %v", err))
	}
	switch r.Status {
	case lifecycle.StatusApproved, lifecycle.StatusInBacklog,
		lifecycle.StatusInProgress, lifecycle.StatusCompleted:
		return r, nil
	default:
		return store.Request{}, mcp.NewToolResultError(fmt.Sprintf(
			"request %s has not passed approval yet (status %s)", r.ID, r.Status))
	}
}

// ─── get_intake_data ─────────────────────────────────────────────────────────

// GetIntakeDataTool handles the get_intake_data MCP tool.
type GetIntakeDataTool struct {
	deps Deps
}

// NewGetIntakeDataTool creates a GetIntakeDataTool.
func NewGetIntakeDataTool(deps Deps) *GetIntakeDataTool {
	return &GetIntakeDataTool{deps: deps}
}

// Definition returns the MCP tool definition for get_intake_data.
func (t *GetIntakeDataTool) Definition() mcp.Tool {
	return mcp.NewTool("get_intake_data",
		mcp.WithDescription(
			"Read-only view of everything gathered during intake: sections, summary, quality score. Use it to write the epic from the stakeholder's own words.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The approved request"),
		),
	)
}

// Handle processes the get_intake_data tool call.
func (t *GetIntakeDataTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := loadPastApproval(ctx, t.deps, req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(map[string]any{
		"title":         r.Title,
		"description":   r.Description,
		"intakeData":    r.IntakeData,
		"intakeSummary": r.IntakeSummary,
		"qualityScore":  r.QualityScore,
	}), nil
}

// ─── get_assessment_data ─────────────────────────────────────────────────────

// GetAssessmentDataTool handles the get_assessment_data MCP tool.
type GetAssessmentDataTool struct {
	deps Deps
}

// NewGetAssessmentDataTool creates a GetAssessmentDataTool.
func NewGetAssessmentDataTool(deps Deps) *GetAssessmentDataTool {
	return &GetAssessmentDataTool{deps: deps}
}

// Definition returns the MCP tool definition for get_assessment_data.
func (t *GetAssessmentDataTool) Definition() mcp.Tool {
	return mcp.NewTool("get_assessment_data",
		mcp.WithDescription(
			"Read-only view of the assessment: scores, complexity, and the assessor's reasoning. Use it to size stories and set priorities.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The approved request"),
		),
	)
}

// Handle processes the get_assessment_data tool call.
func (t *GetAssessmentDataTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := loadPastApproval(ctx, t.deps, req)
	if errResult != nil {
		return errResult, nil
	}

	var assessment any
	if r.AssessmentData != nil {
		if err := json.Unmarshal([]byte(*r.AssessmentData), &assessment); err != nil {
			assessment = *r.AssessmentData
		}
	}
	return jsonResult(map[string]any{
		"businessScore":  r.BusinessScore,
		"technicalScore": r.TechnicalScore,
		"riskScore":      r.RiskScore,
		"priorityScore":  r.PriorityScore,
		"complexity":     r.Complexity,
		"assessmentData": assessment,
	}), nil
}

// ─── save_epic ───────────────────────────────────────────────────────────────

// SaveEpicTool handles the save_epic MCP tool.
type SaveEpicTool struct {
	deps Deps
}

// NewSaveEpicTool creates a SaveEpicTool.
func NewSaveEpicTool(deps Deps) *SaveEpicTool {
	return &SaveEpicTool{deps: deps}
}

// Definition returns the MCP tool definition for save_epic.
func (t *SaveEpicTool) Definition() mcp.Tool {
	return mcp.NewTool("save_epic",
		mcp.WithDescription(
			"Create the single epic for an approved request and get its id back. A second call for the same request is rejected; edit the existing epic instead.",
		),
		mcp.WithString("requestId",
			mcp.Required(),
			mcp.Description("The approved request"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Epic title"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What the epic delivers and why"),
		),
		mcp.WithArray("goals",
			mcp.Required(),
			mcp.Description("Concrete goals the epic achieves"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("successCriteria",
			mcp.Required(),
			mcp.Description("How we will know the epic is done"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("technicalNotes",
			mcp.Description("Implementation constraints or pointers"),
		),
	)
}

// Handle processes the save_epic tool call.
func (t *SaveEpicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := strings.TrimSpace(req.GetString("title", ""))
	description := strings.TrimSpace(req.GetString("description", ""))
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	if description == "" {
		return mcp.NewToolResultError("'description' is required"), nil
	}

	r, errResult := t.deps.loadForStage(ctx, req, lifecycle.StageOutput)
	if errResult != nil {
		return errResult, nil
	}

	epic, err := t.deps.Store.CreateEpic(ctx, store.CreateEpicParams{
		RequestID:       r.ID,
		OrgID:           t.deps.OrgID,
		Title:           title,
		Description:     description,
		Goals:           stringSliceArg(req, "goals"),
		SuccessCriteria: stringSliceArg(req, "successCriteria"),
		TechnicalNotes:  req.GetString("technicalNotes", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create epic: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"epicId": epic.ID,
		"title":  epic.Title,
	}), nil
}

// ─── save_user_story ─────────────────────────────────────────────────────────

// SaveUserStoryTool handles the save_user_story MCP tool.
type SaveUserStoryTool struct {
	deps Deps
}

// NewSaveUserStoryTool creates a SaveUserStoryTool.
func NewSaveUserStoryTool(deps Deps) *SaveUserStoryTool {
	return &SaveUserStoryTool{deps: deps}
}

// Definition returns the MCP tool definition for save_user_story.
func (t *SaveUserStoryTool) Definition() mcp.Tool {
	return mcp.NewTool("save_user_story",
		mcp.WithDescription(
			"Append one ordered user story under an epic. Stories keep the order they were saved in.",
		),
		mcp.WithString("epicId",
			mcp.Required(),
			mcp.Description("The epic this story belongs to"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Story title"),
		),
		mcp.WithString("asA",
			mcp.Required(),
			mcp.Description("The persona the story serves"),
		),
		mcp.WithString("iWant",
			mcp.Required(),
			mcp.Description("What the persona wants to do"),
		),
		mcp.WithString("soThat",
			mcp.Required(),
			mcp.Description("The benefit the persona gets"),
		),
		mcp.WithArray("acceptanceCriteria",
			mcp.Required(),
			mcp.Description("Verifiable conditions for the story being done"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("technicalNotes",
			mcp.Description("Implementation constraints or pointers"),
		),
		mcp.WithString("priority",
			mcp.Required(),
			mcp.Description("Story priority"),
			mcp.Enum(storyPriorities...),
		),
		mcp.WithNumber("storyPoints",
			mcp.Description("Optional point estimate"),
		),
	)
}

// Handle processes the save_user_story tool call.
func (t *SaveUserStoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	epicID := req.GetString("epicId", "")
	if epicID == "" {
		return mcp.NewToolResultError("'epicId' is required"), nil
	}
	for _, name := range []string{"title", "asA", "iWant", "soThat"} {
		if strings.TrimSpace(req.GetString(name, "")) == "" {
			return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", name)), nil
		}
	}
	priority := req.GetString("priority", "")
	if !validPriority(priority) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"'priority' must be one of: %s", strings.Join(storyPriorities, ", "))), nil
	}

	// The epic lookup is org-scoped: another organization's epic id
	// reports not-found, never accepts the story.
	epic, err := t.deps.Store.GetOrgEpic(ctx, epicID, t.deps.OrgID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("epic not found: %v", err)), nil
	}

	params := store.AddStoryParams{
		EpicID:             epic.ID,
		Title:              req.GetString("title", ""),
		AsA:                req.GetString("asA", ""),
		IWant:              req.GetString("iWant", ""),
		SoThat:             req.GetString("soThat", ""),
		AcceptanceCriteria: stringSliceArg(req, "acceptanceCriteria"),
		TechnicalNotes:     req.GetString("technicalNotes", ""),
		Priority:           priority,
	}
	if points, ok := floatArg(req, "storyPoints"); ok {
		p := int(points)
		params.StoryPoints = &p
	}

	story, err := t.deps.Store.AddStory(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save story: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"storyId":  story.ID,
		"position": story.Position,
	}), nil
}

func validPriority(p string) bool {
	for _, v := range storyPriorities {
		if v == p {
			return true
		}
	}
	return false
}
