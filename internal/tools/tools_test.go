package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/notify"
	"reqtriage/internal/review"
	"reqtriage/internal/store"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestDeps builds tool deps over a temp-dir store with
// notifications disabled.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	st, err := store.New(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return Deps{
		Store:   st,
		Review:  review.NewEngine(st, notify.New(nil)),
		OrgID:   "org-1",
		AgentID: "agent-1",
	}
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
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

// requestAt creates a request in the test org and seeds its status.
func requestAt(t *testing.T, d Deps, status lifecycle.Status) store.Request {
	t.Helper()
	r, err := d.Store.CreateRequest(context.Background(), store.CreateRequestParams{
		OrgID: "org-1", RequesterID: "stake-1", Title: "Offline mode for the mobile app",
	})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if status == lifecycle.StatusDraft {
		return r
	}
	r.Status = status
	saved, err := d.Store.UpdateRequest(context.Background(), r)
	if err != nil {
		t.Fatalf("seeding status failed: %v", err)
	}
	return saved
}

func mustBeError(t *testing.T, r *mcp.CallToolResult, wantSubstr string) {
	t.Helper()
	if r == nil || !r.IsError {
		t.Fatalf("expected an error result containing %q, got %+v", wantSubstr, r)
	}
	if text := resultText(r); !strings.Contains(text, wantSubstr) {
		t.Errorf("error text = %q, want it to contain %q", text, wantSubstr)
	}
}

func mustSucceed(t *testing.T, r *mcp.CallToolResult, err error) string {
	t.Helper()
	if err != nil {
		t.Fatalf("handler returned a Go error: %v", err)
	}
	if r == nil {
		t.Fatal("handler returned nil result")
	}
	if r.IsError {
		t.Fatalf("handler returned error result: %s", resultText(r))
	}
	return resultText(r)
}
