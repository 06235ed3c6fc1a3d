// Package prompts implements MCP prompt handlers for the triage
// workflow.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// TriagePrompt handles the triage-request MCP prompt. It points the AI
// at one request and tells it to run whatever stage the request is in.
type TriagePrompt struct{}

// NewTriagePrompt creates a TriagePrompt.
func NewTriagePrompt() *TriagePrompt {
	return &TriagePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *TriagePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("triage-request",
		mcp.WithPromptDescription(
			"Work one feature request through its current triage stage: "+
				"structured intake, scored assessment, or epic and story generation.",
		),
		mcp.WithArgument("request_id",
			mcp.ArgumentDescription("ID of the request to work on"),
		),
	)
}

// Handle processes the triage-request prompt.
func (p *TriagePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	requestID := ""
	if args := req.Params.Arguments; args != nil {
		requestID = args["request_id"]
	}
	if requestID == "" {
		return nil, fmt.Errorf("request_id is required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Triage request %s", requestID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Work on feature request '%s'.\n\n"+
						"1. Figure out which stage it is in by calling one of its stage tools "+
						"with requestId='%s'; the error message names the current status if you guess wrong\n"+
						"2. If it is in intake, interview me, save each section with save_intake_progress, "+
						"and finish with mark_intake_complete\n"+
						"3. If it is in assessment, gather context with the read tools, then call save_assessment\n"+
						"4. If it is approved without an epic, produce the epic and user stories\n"+
						"5. If none of those apply, tell me the request is waiting on a human reviewer\n\n"+
						"Follow the server instructions for what each stage expects.",
					requestID, requestID,
				)),
			},
		},
	}, nil
}
