package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/lifecycle"
)

// Tool is the common shape of every tool in this package.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// ByStage builds the full tool catalogue, grouped by the pipeline
// stage each tool belongs to. The orchestrator exposes exactly one
// group at a time; the MCP server registers all of them and relies on
// each tool's own stage check.
func ByStage(deps Deps) map[lifecycle.Stage][]Tool {
	return map[lifecycle.Stage][]Tool{
		lifecycle.StageIntake: {
			NewSaveIntakeProgressTool(deps),
			NewCheckQualityScoreTool(deps),
			NewMarkIntakeCompleteTool(deps),
			NewGetSimilarRequestsTool(deps),
		},
		lifecycle.StageAssessment: {
			NewGetOrganizationContextTool(deps),
			NewGetCurrentBacklogTool(deps),
			NewGetHistoricalEstimatesTool(deps),
			NewAnalyzeCodebaseImpactTool(deps),
			NewSaveAssessmentTool(deps),
		},
		lifecycle.StageOutput: {
			NewGetIntakeDataTool(deps),
			NewGetAssessmentDataTool(deps),
			NewSaveEpicTool(deps),
			NewSaveUserStoryTool(deps),
		},
	}
}

// All flattens the catalogue for MCP server registration, in stage
// order.
func All(deps Deps) []Tool {
	byStage := ByStage(deps)
	var out []Tool
	for _, stage := range []lifecycle.Stage{
		lifecycle.StageIntake, lifecycle.StageAssessment, lifecycle.StageOutput,
	} {
		out = append(out, byStage[stage]...)
	}
	return out
}
