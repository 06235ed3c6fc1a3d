// Package tracker pushes generated epics and stories to an external
// issue tracker over a generic JSON webhook. Sync is manual and
// best-effort: one failing story does not abort the rest of the batch.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reqtriage/internal/store"
)

// Client is an issue-tracker integration.
type Client interface {
	// PushEpic creates the epic remotely and returns its external key.
	PushEpic(ctx context.Context, e store.Epic) (string, error)
	// PushStory creates one story under the given external epic key.
	PushStory(ctx context.Context, epicKey string, s store.UserStory) (string, error)
}

// SyncResult reports what a bulk push accomplished.
type SyncResult struct {
	EpicKey       string            `json:"epic_key"`
	StoryKeys     map[string]string `json:"story_keys"`
	FailedStories map[string]string `json:"failed_stories,omitempty"`
}

// Sync pushes an epic and its stories through the client. The epic
// must succeed; a story failure is recorded per story and the batch
// continues.
func Sync(ctx context.Context, c Client, e store.Epic, stories []store.UserStory) (SyncResult, error) {
	epicKey, err := c.PushEpic(ctx, e)
	if err != nil {
		return SyncResult{}, fmt.Errorf("tracker: push epic %s: %w", e.ID, err)
	}

	result := SyncResult{
		EpicKey:       epicKey,
		StoryKeys:     make(map[string]string),
		FailedStories: make(map[string]string),
	}
	for _, s := range stories {
		key, err := c.PushStory(ctx, epicKey, s)
		if err != nil {
			result.FailedStories[s.ID] = err.Error()
			continue
		}
		result.StoryKeys[s.ID] = key
	}
	if len(result.FailedStories) == 0 {
		result.FailedStories = nil
	}
	return result, nil
}

// pushTimeout bounds a single tracker call.
const pushTimeout = 15 * time.Second

// For testing: allow swapping the HTTP client.
var httpClient = &http.Client{Timeout: pushTimeout}

// WebhookClient implements Client against a generic tracker endpoint
// that accepts POST /epics and POST /stories and answers with a key.
type WebhookClient struct {
	baseURL string
	token   string
}

// NewWebhookClient builds a WebhookClient. token may be empty for
// unauthenticated endpoints.
func NewWebhookClient(baseURL, token string) *WebhookClient {
	return &WebhookClient{baseURL: baseURL, token: token}
}

type keyResponse struct {
	Key string `json:"key"`
}

func (c *WebhookClient) PushEpic(ctx context.Context, e store.Epic) (string, error) {
	return c.post(ctx, c.baseURL+"/epics", map[string]any{
		"title":            e.Title,
		"description":      e.Description,
		"goals":            e.Goals,
		"success_criteria": e.SuccessCriteria,
		"technical_notes":  e.TechnicalNotes,
		"external_ref":     e.RequestID,
	})
}

func (c *WebhookClient) PushStory(ctx context.Context, epicKey string, s store.UserStory) (string, error) {
	return c.post(ctx, c.baseURL+"/stories", map[string]any{
		"epic_key":            epicKey,
		"title":               s.Title,
		"as_a":                s.AsA,
		"i_want":              s.IWant,
		"so_that":             s.SoThat,
		"acceptance_criteria": s.AcceptanceCriteria,
		"technical_notes":     s.TechnicalNotes,
		"priority":            s.Priority,
		"story_points":        s.StoryPoints,
		"position":            s.Position,
	})
}

func (c *WebhookClient) post(ctx context.Context, url string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("tracker: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("tracker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tracker: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("tracker: endpoint returned status %d", resp.StatusCode)
	}

	var kr keyResponse
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return "", fmt.Errorf("tracker: decode response: %w", err)
	}
	if kr.Key == "" {
		return "", fmt.Errorf("tracker: endpoint returned no key")
	}
	return kr.Key, nil
}
