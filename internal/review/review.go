// Package review implements the human side of the lifecycle: recording
// reviewer decisions, applying role-gated status actions, and the
// calibration loop that compares predictions against reality.
package review

import (
	"context"
	"errors"
	"fmt"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/notify"
	"reqtriage/internal/store"
)

// ErrForbidden means the acting user's role does not permit the
// operation. Checked before any data is read.
var ErrForbidden = errors.New("insufficient role")

// Actor identifies who is performing an operation.
type Actor struct {
	UserID string
	OrgID  string
	Role   lifecycle.Role
}

// Engine ties the lifecycle tables to the store and the notifier.
type Engine struct {
	store    *store.Store
	notifier *notify.Notifier
}

// NewEngine builds a review engine. The notifier may not be nil; pass
// one with no sinks to disable notifications.
func NewEngine(st *store.Store, nt *notify.Notifier) *Engine {
	return &Engine{store: st, notifier: nt}
}

// RecordDecisionParams carries one reviewer judgment.
type RecordDecisionParams struct {
	RequestID string
	Decision  lifecycle.DecisionType
	Rationale string
	Actor     Actor
}

// RecordDecision validates and persists a reviewer decision, moving
// the request to the decision's target status. The decision row and
// the status change land in one transaction. Concurrent submissions
// against the same request version lose with store.ErrConflict.
func (e *Engine) RecordDecision(ctx context.Context, p RecordDecisionParams) (store.Decision, store.Request, error) {
	if !p.Actor.Role.AtLeast(lifecycle.RoleReviewer) {
		return store.Decision{}, store.Request{}, fmt.Errorf("%w: recording a decision requires at least REVIEWER", ErrForbidden)
	}
	if err := lifecycle.ValidateDecisionType(p.Decision); err != nil {
		return store.Decision{}, store.Request{}, err
	}
	if p.Rationale == "" {
		return store.Decision{}, store.Request{}, errors.New("rationale must not be empty")
	}

	r, err := e.store.GetOrgRequest(ctx, p.RequestID, p.Actor.OrgID)
	if err != nil {
		return store.Decision{}, store.Request{}, err
	}

	target, _ := p.Decision.TargetStatus()
	if err := lifecycle.EnsureTransition(r.Status, target); err != nil {
		return store.Decision{}, store.Request{}, err
	}

	r.Status = target
	d, saved, err := e.store.RecordDecision(ctx, store.InsertDecisionParams{
		RequestID: r.ID,
		OrgID:     r.OrgID,
		Decision:  p.Decision,
		Rationale: p.Rationale,
		DecidedBy: p.Actor.UserID,
	}, r)
	if err != nil {
		return store.Decision{}, store.Request{}, err
	}

	event := notify.EventDecisionRecorded
	if target == lifecycle.StatusNeedsInfo {
		event = notify.EventInfoRequested
	}
	e.notifier.Notify(ctx, notify.Notification{
		Event:        event,
		RequestID:    saved.ID,
		RequestTitle: saved.Title,
		RecipientID:  saved.RequesterID,
		Message:      fmt.Sprintf("Your request %q was reviewed: %s. %s", saved.Title, p.Decision, p.Rationale),
	})

	return d, saved, nil
}

// ApplyActionParams carries one named lifecycle action.
type ApplyActionParams struct {
	RequestID string
	ActionKey string
	Actor     Actor
}

// ApplyAction performs one of the named actions from the status action
// catalogue, after checking the action exists for the current status
// and the actor's role is sufficient. The status write is
// compare-and-swap; a concurrent writer loses with store.ErrConflict.
func (e *Engine) ApplyAction(ctx context.Context, p ApplyActionParams) (store.Request, error) {
	r, err := e.store.GetOrgRequest(ctx, p.RequestID, p.Actor.OrgID)
	if err != nil {
		return store.Request{}, err
	}

	action, ok := lifecycle.ActionByKey(r.Status, p.ActionKey)
	if !ok {
		return store.Request{}, fmt.Errorf("%w: no action %q from status %s",
			lifecycle.ErrInvalidTransition, p.ActionKey, r.Status)
	}
	if !p.Actor.Role.AtLeast(action.RequiredRole) {
		return store.Request{}, fmt.Errorf("%w: action %q requires %s",
			ErrForbidden, p.ActionKey, action.RequiredRole)
	}
	if err := lifecycle.EnsureTransition(r.Status, action.Target); err != nil {
		return store.Request{}, err
	}

	r.Status = action.Target
	saved, err := e.store.UpdateRequest(ctx, r)
	if err != nil {
		return store.Request{}, err
	}

	e.notifier.Notify(ctx, notify.Notification{
		Event:        notify.EventStatusChanged,
		RequestID:    saved.ID,
		RequestTitle: saved.Title,
		RecipientID:  saved.RequesterID,
		Message:      fmt.Sprintf("Request %q moved to %s", saved.Title, saved.Status),
	})
	if saved.Status == lifecycle.StatusUnderReview {
		e.NotifyReviewNeeded(ctx, saved, p.Actor.UserID)
	}

	return saved, nil
}

// NotifyReviewNeeded tells every other organization member a request
// is waiting for review. Lookup failures only cost the notification.
func (e *Engine) NotifyReviewNeeded(ctx context.Context, r store.Request, actorID string) {
	members, err := e.store.ListOrgMembers(ctx, r.OrgID)
	if err != nil {
		return
	}
	var recipients []string
	for _, m := range members {
		if m.ID == actorID || m.ID == r.RequesterID {
			continue
		}
		recipients = append(recipients, m.ID)
	}
	e.notifier.NotifyAll(ctx, recipients, notify.Notification{
		Event:        notify.EventReviewNeeded,
		RequestID:    r.ID,
		RequestTitle: r.Title,
		Message:      fmt.Sprintf("Request %q is ready for review", r.Title),
	})
}
