// Package resources implements MCP resource handlers.
//
// Resources provide read-only data that the host can consume for
// context. They use URI-based addressing (reqtriage://...) following
// MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"reqtriage/internal/store"
)

// Handler manages resource endpoints for one organization.
type Handler struct {
	store *store.Store
	orgID string
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(st *store.Store, orgID string) *Handler {
	return &Handler{store: st, orgID: orgID}
}

// StatusResource returns the MCP resource definition for the pipeline
// status overview.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"reqtriage://org/status",
		"Triage Pipeline Status",
		mcp.WithResourceDescription("Request counts per lifecycle status for the active organization"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the per-status request counts as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	counts, err := h.store.CountByStatus(ctx, h.orgID)
	if err != nil {
		return nil, fmt.Errorf("counting requests: %w", err)
	}

	payload := struct {
		OrgID            string         `json:"orgId"`
		RequestsByStatus map[string]int `json:"requestsByStatus"`
	}{OrgID: h.orgID, RequestsByStatus: map[string]int{}}
	for status, n := range counts {
		payload.RequestsByStatus[string(status)] = n
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
