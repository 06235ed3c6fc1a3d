package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"reqtriage/internal/store"
)

type fakeClient struct {
	epicErr   error
	failStory map[string]error
	pushed    []string
}

func (f *fakeClient) PushEpic(_ context.Context, e store.Epic) (string, error) {
	if f.epicErr != nil {
		return "", f.epicErr
	}
	return "EPIC-1", nil
}

func (f *fakeClient) PushStory(_ context.Context, epicKey string, s store.UserStory) (string, error) {
	if err := f.failStory[s.ID]; err != nil {
		return "", err
	}
	f.pushed = append(f.pushed, s.ID)
	return fmt.Sprintf("STORY-%d", len(f.pushed)), nil
}

func testStories(n int) []store.UserStory {
	out := make([]store.UserStory, n)
	for i := range out {
		out[i] = store.UserStory{ID: fmt.Sprintf("s%d", i+1), Title: fmt.Sprintf("story %d", i+1), Position: i + 1}
	}
	return out
}

func TestSync_AllStoriesPushed(t *testing.T) {
	c := &fakeClient{}
	result, err := Sync(context.Background(), c, store.Epic{ID: "e1"}, testStories(3))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.EpicKey != "EPIC-1" {
		t.Errorf("epic key = %q", result.EpicKey)
	}
	if len(result.StoryKeys) != 3 || result.FailedStories != nil {
		t.Errorf("result = %+v, want 3 keys and no failures", result)
	}
}

func TestSync_EpicFailureAborts(t *testing.T) {
	c := &fakeClient{epicErr: errors.New("tracker down")}
	_, err := Sync(context.Background(), c, store.Epic{ID: "e1"}, testStories(2))
	if err == nil {
		t.Fatal("epic failure must abort the sync")
	}
	if len(c.pushed) != 0 {
		t.Errorf("stories pushed despite epic failure: %v", c.pushed)
	}
}

func TestSync_StoryFailureIsIsolated(t *testing.T) {
	c := &fakeClient{failStory: map[string]error{"s2": errors.New("validation failed")}}
	result, err := Sync(context.Background(), c, store.Epic{ID: "e1"}, testStories(3))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(result.StoryKeys) != 2 {
		t.Errorf("pushed = %v, want s1 and s3", result.StoryKeys)
	}
	if _, ok := result.FailedStories["s2"]; !ok {
		t.Errorf("failures = %v, want s2 recorded", result.FailedStories)
	}
	// s3 must still be pushed after s2 fails.
	if _, ok := result.StoryKeys["s3"]; !ok {
		t.Error("batch stopped at the failing story")
	}
}

func TestWebhookClient_PushEpic(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"key": "PROJ-42"})
	}))
	defer ts.Close()

	c := NewWebhookClient(ts.URL, "secret")
	key, err := c.PushEpic(context.Background(), store.Epic{
		RequestID: "r1", Title: "Dark mode", Goals: []string{"theme switcher"},
	})
	if err != nil {
		t.Fatalf("PushEpic failed: %v", err)
	}
	if key != "PROJ-42" {
		t.Errorf("key = %q, want PROJ-42", key)
	}
	if gotPath != "/epics" {
		t.Errorf("path = %q, want /epics", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["title"] != "Dark mode" || gotBody["external_ref"] != "r1" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestWebhookClient_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewWebhookClient(ts.URL, "")
	_, err := c.PushStory(context.Background(), "EPIC-1", store.UserStory{ID: "s1"})
	if err == nil {
		t.Fatal("401 response should be an error")
	}
}

func TestWebhookClient_MissingKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer ts.Close()

	c := NewWebhookClient(ts.URL, "")
	_, err := c.PushEpic(context.Background(), store.Epic{ID: "e1"})
	if err == nil {
		t.Fatal("empty key should be an error")
	}
}
