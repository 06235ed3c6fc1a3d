// Package tools implements the MCP tool contracts the agent pipeline
// exposes: four intake tools, five assessment tools, and four output
// tools. Tool and field names are a wire contract with the agent
// runtime and must not change.
//
// Each tool follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() validates input, applies one atomic write, returns JSON
//
// Every tool checks that the target request is in the stage the tool
// belongs to before doing anything else, so an agent can never run an
// assessment tool against a request still in intake.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/review"
	"reqtriage/internal/store"
)

// Deps carries what every tool needs. The server runs on behalf of a
// single organization; AgentID identifies the automated actor in
// notifications.
type Deps struct {
	Store    *store.Store
	Review   *review.Engine
	OrgID    string
	AgentID  string
	Analyzer CodebaseAnalyzer
}

// loadForStage fetches the request and verifies it is in the wanted
// pipeline stage. A mismatch comes back as a tool error result, not a
// Go error, so the agent sees it and can re-plan.
func (d Deps) loadForStage(ctx context.Context, req mcp.CallToolRequest, want lifecycle.Stage) (store.Request, *mcp.CallToolResult) {
	id := req.GetString("requestId", "")
	if id == "" {
		return store.Request{}, mcp.NewToolResultError("'requestId' is required")
	}

	r, err := d.Store.GetOrgRequest(ctx, id, d.OrgID)
	if err != nil {
		return store.Request{}, mcp.NewToolResultError(fmt.Sprintf("request not found: %v", err))
	}

	hasEpic := false
	if want == lifecycle.StageOutput {
		hasEpic, err = d.Store.HasEpic(ctx, r.ID)
		if err != nil {
			return store.Request{}, mcp.NewToolResultError(fmt.Sprintf("failed to check epic: %v", err))
		}
	}

	got := lifecycle.StageForStatus(r.Status, hasEpic)
	if got != want {
		return store.Request{}, mcp.NewToolResultError(fmt.Sprintf(
			"request %s is not in the %s stage (status %s)", r.ID, want, r.Status))
	}
	return r, nil
}

// jsonResult marshals v as the tool's JSON result payload.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}

// floatArg extracts a numeric argument, returning ok=false when the
// key is missing or not a number (JSON numbers are float64).
func floatArg(req mcp.CallToolRequest, key string) (float64, bool) {
	v, ok := req.GetArguments()[key].(float64)
	return v, ok
}

// stringSliceArg extracts a string-array argument.
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// objectArg extracts a JSON-object argument.
func objectArg(req mcp.CallToolRequest, key string) (map[string]any, bool) {
	v, ok := req.GetArguments()[key].(map[string]interface{})
	return v, ok
}
