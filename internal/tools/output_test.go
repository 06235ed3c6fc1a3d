package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/store"
)

func epicArgs(requestID string) map[string]interface{} {
	return map[string]interface{}{
		"requestId":       requestID,
		"title":           "Offline mode",
		"description":     "Read cached reports without a connection",
		"goals":           []interface{}{"cache recent reports", "graceful sync on reconnect"},
		"successCriteria": []interface{}{"reports open with airplane mode on"},
		"technicalNotes":  "needs a local storage layer",
	}
}

func storyArgs(epicID string) map[string]interface{} {
	return map[string]interface{}{
		"epicId":             epicID,
		"title":              "Cache last 10 reports",
		"asA":                "field engineer",
		"iWant":              "my recent reports stored on the device",
		"soThat":             "I can read them on site without coverage",
		"acceptanceCriteria": []interface{}{"reports readable in airplane mode"},
		"priority":           "HIGH",
		"storyPoints":        float64(5),
	}
}

// ─── save_epic ───────────────────────────────────────────────────────────────

func TestSaveEpic_CreatesAndReturnsID(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveEpicTool(d)
	r := requestAt(t, d, lifecycle.StatusApproved)

	result, err := tool.Handle(context.Background(), makeReq(epicArgs(r.ID)))
	text := mustSucceed(t, result, err)
	if !strings.Contains(text, "epicId") {
		t.Errorf("result = %s", text)
	}

	epic, err := d.Store.GetEpicByRequest(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("epic not persisted: %v", err)
	}
	if epic.Title != "Offline mode" || len(epic.Goals) != 2 {
		t.Errorf("epic = %+v", epic)
	}
}

func TestSaveEpic_SecondCallRejected(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveEpicTool(d)
	r := requestAt(t, d, lifecycle.StatusApproved)

	result, err := tool.Handle(context.Background(), makeReq(epicArgs(r.ID)))
	mustSucceed(t, result, err)

	// Once the epic exists the request has left the output stage.
	result, _ = tool.Handle(context.Background(), makeReq(epicArgs(r.ID)))
	if result == nil || !result.IsError {
		t.Fatalf("second save_epic must fail, got %+v", result)
	}
}

func TestSaveEpic_BeforeApproval(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveEpicTool(d)
	r := requestAt(t, d, lifecycle.StatusUnderReview)

	result, _ := tool.Handle(context.Background(), makeReq(epicArgs(r.ID)))
	mustBeError(t, result, "not in the OUTPUT stage")
}

func TestSaveEpic_RequiresTitle(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveEpicTool(d)
	r := requestAt(t, d, lifecycle.StatusApproved)

	args := epicArgs(r.ID)
	args["title"] = "  "
	result, _ := tool.Handle(context.Background(), makeReq(args))
	mustBeError(t, result, "'title' is required")
}

// ─── save_user_story ─────────────────────────────────────────────────────────

func TestSaveUserStory_AppendsInOrder(t *testing.T) {
	d := newTestDeps(t)
	epicTool := NewSaveEpicTool(d)
	storyTool := NewSaveUserStoryTool(d)
	r := requestAt(t, d, lifecycle.StatusApproved)

	epicResult, epicErr := epicTool.Handle(context.Background(), makeReq(epicArgs(r.ID)))
	mustSucceed(t, epicResult, epicErr)
	epic, err := d.Store.GetEpicByRequest(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetEpicByRequest failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		args := storyArgs(epic.ID)
		args["title"] = fmt.Sprintf("story %d", i)
		result, err := storyTool.Handle(context.Background(), makeReq(args))
		text := mustSucceed(t, result, err)
		if !strings.Contains(text, fmt.Sprintf(`"position": %d`, i)) {
			t.Errorf("story %d result = %s", i, text)
		}
	}

	stories, err := d.Store.ListStories(context.Background(), epic.ID)
	if err != nil {
		t.Fatalf("ListStories failed: %v", err)
	}
	if len(stories) != 3 {
		t.Fatalf("story count = %d, want 3", len(stories))
	}
	if stories[0].StoryPoints == nil || *stories[0].StoryPoints != 5 {
		t.Errorf("story points = %v, want 5", stories[0].StoryPoints)
	}
}

func TestSaveUserStory_UnknownEpic(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveUserStoryTool(d)

	result, _ := tool.Handle(context.Background(), makeReq(storyArgs("missing-epic")))
	mustBeError(t, result, "epic not found")
}

func TestSaveUserStory_CrossTenantEpicIsNotFound(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveUserStoryTool(d)

	// An epic belonging to another organization, reachable only by id.
	other, err := d.Store.CreateRequest(context.Background(), store.CreateRequestParams{
		OrgID: "org-2", RequesterID: "stake-2", Title: "Offline mode for the mobile app",
	})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	epic, err := d.Store.CreateEpic(context.Background(), store.CreateEpicParams{
		RequestID: other.ID, OrgID: "org-2", Title: "Offline mode",
	})
	if err != nil {
		t.Fatalf("CreateEpic failed: %v", err)
	}

	result, _ := tool.Handle(context.Background(), makeReq(storyArgs(epic.ID)))
	mustBeError(t, result, "epic not found")

	stories, err := d.Store.ListStories(context.Background(), epic.ID)
	if err != nil {
		t.Fatalf("ListStories failed: %v", err)
	}
	if len(stories) != 0 {
		t.Errorf("cross-tenant story count = %d, want 0", len(stories))
	}
}

func TestSaveUserStory_InvalidPriority(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveUserStoryTool(d)

	args := storyArgs("e1")
	args["priority"] = "URGENT"
	result, _ := tool.Handle(context.Background(), makeReq(args))
	mustBeError(t, result, "'priority' must be one of")
}

func TestSaveUserStory_MissingNarrativeField(t *testing.T) {
	d := newTestDeps(t)
	tool := NewSaveUserStoryTool(d)

	args := storyArgs("e1")
	delete(args, "soThat")
	result, _ := tool.Handle(context.Background(), makeReq(args))
	mustBeError(t, result, "'soThat' is required")
}

// ─── read-only output tools ──────────────────────────────────────────────────

func TestGetIntakeData_ReturnsSections(t *testing.T) {
	d := newTestDeps(t)
	r := requestAt(t, d, lifecycle.StatusIntakeInProgress)

	save := NewSaveIntakeProgressTool(d)
	saveResult, saveErr := save.Handle(context.Background(), makeReq(map[string]interface{}{
		"requestId": r.ID, "section": "problem",
		"data": map[string]interface{}{"statement": "no offline access"}, "completeness": float64(90),
	}))
	mustSucceed(t, saveResult, saveErr)

	// Walk to APPROVED so the output tools apply.
	fresh, _ := d.Store.GetRequest(context.Background(), r.ID)
	fresh.Status = lifecycle.StatusApproved
	if _, err := d.Store.UpdateRequest(context.Background(), fresh); err != nil {
		t.Fatalf("seeding status failed: %v", err)
	}

	tool := NewGetIntakeDataTool(d)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"requestId": r.ID,
	}))
	text := mustSucceed(t, result, err)
	if !strings.Contains(text, "no offline access") {
		t.Errorf("result = %s", text)
	}
}

func TestGetAssessmentData_DecodesStoredJSON(t *testing.T) {
	d := newTestDeps(t)
	r := requestAt(t, d, lifecycle.StatusApproved)

	business := 80.0
	data := `{"reasoning":"well understood"}`
	r.BusinessScore = &business
	r.AssessmentData = &data
	if _, err := d.Store.UpdateRequest(context.Background(), r); err != nil {
		t.Fatalf("seeding assessment failed: %v", err)
	}

	tool := NewGetAssessmentDataTool(d)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"requestId": r.ID,
	}))
	text := mustSucceed(t, result, err)
	if !strings.Contains(text, "well understood") || !strings.Contains(text, `"businessScore": 80`) {
		t.Errorf("result = %s", text)
	}
}

func TestGetIntakeData_BeforeApproval(t *testing.T) {
	d := newTestDeps(t)
	tool := NewGetIntakeDataTool(d)
	r := requestAt(t, d, lifecycle.StatusUnderReview)

	result, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"requestId": r.ID,
	}))
	mustBeError(t, result, "has not passed approval")
}
