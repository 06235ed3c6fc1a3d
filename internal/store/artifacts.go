package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"reqtriage/internal/lifecycle"

	"github.com/google/uuid"
)

// ─── Decisions ───────────────────────────────────────────────────────────────

// InsertDecisionParams holds the input for recording a decision.
type InsertDecisionParams struct {
	RequestID string
	OrgID     string
	Decision  lifecycle.DecisionType
	Rationale string
	DecidedBy string
}

// RecordDecision persists the decision row and the request's status
// change as one transaction: both commit or neither is visible. The
// status write is compare-and-swap on the version the caller read, so
// a concurrent decision against the same request loses with
// ErrConflict and nothing is persisted.
func (s *Store) RecordDecision(ctx context.Context, p InsertDecisionParams, updated Request) (Decision, Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, Request{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	d := Decision{
		ID:        uuid.New().String(),
		RequestID: p.RequestID,
		OrgID:     p.OrgID,
		Decision:  p.Decision,
		Rationale: p.Rationale,
		DecidedBy: p.DecidedBy,
		CreatedAt: now(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decisions (id, request_id, org_id, decision, rationale, decided_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RequestID, d.OrgID, string(d.Decision), d.Rationale, d.DecidedBy, d.CreatedAt,
	); err != nil {
		return Decision{}, Request{}, fmt.Errorf("store: insert decision: %w", err)
	}

	saved, err := s.updateRequest(ctx, tx, updated)
	if err != nil {
		return Decision{}, Request{}, err
	}

	if err := tx.Commit(); err != nil {
		return Decision{}, Request{}, fmt.Errorf("store: commit decision: %w", err)
	}
	return d, saved, nil
}

const decisionColumns = `
	id, request_id, org_id, decision, rationale, decided_by,
	outcome, outcome_notes, outcome_recorded_at, created_at`

func scanDecision(row interface{ Scan(...any) error }) (Decision, error) {
	var (
		d       Decision
		outcome sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.RequestID, &d.OrgID, &d.Decision, &d.Rationale, &d.DecidedBy,
		&outcome, &d.OutcomeNotes, &d.OutcomeRecordedAt, &d.CreatedAt,
	)
	if err != nil {
		return Decision{}, err
	}
	if outcome.Valid {
		o := lifecycle.Outcome(outcome.String)
		d.Outcome = &o
	}
	return d, nil
}

// GetDecision returns a decision by id.
func (s *Store) GetDecision(ctx context.Context, id string) (Decision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return Decision{}, fmt.Errorf("%w: decision %s", ErrNotFound, id)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("store: get decision: %w", err)
	}
	return d, nil
}

// ListDecisions returns a request's decisions, oldest first.
func (s *Store) ListDecisions(ctx context.Context, requestID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE request_id = ? ORDER BY created_at ASC`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDecisionOutcome overwrites the decision's outcome fields.
// Outcome is single-valued: re-recording replaces the previous value
// and refreshes the recorded-at timestamp.
func (s *Store) SetDecisionOutcome(ctx context.Context, decisionID string, outcome lifecycle.Outcome, notes string) (Decision, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions SET outcome = ?, outcome_notes = ?, outcome_recorded_at = ?
		WHERE id = ?`,
		string(outcome), nullableStr(notes), ts, decisionID,
	)
	if err != nil {
		return Decision{}, fmt.Errorf("store: set outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Decision{}, err
	}
	if n == 0 {
		return Decision{}, fmt.Errorf("%w: decision %s", ErrNotFound, decisionID)
	}
	return s.GetDecision(ctx, decisionID)
}

// ListDecisionsWithOutcomes returns the organization's decisions that
// have a recorded outcome.
func (s *Store) ListDecisionsWithOutcomes(ctx context.Context, orgID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions
		 WHERE org_id = ? AND outcome IS NOT NULL ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ─── Epics & stories ─────────────────────────────────────────────────────────

// CreateEpicParams holds the input for materializing an epic.
type CreateEpicParams struct {
	RequestID       string
	OrgID           string
	Title           string
	Description     string
	Goals           []string
	SuccessCriteria []string
	TechnicalNotes  string
}

// CreateEpic inserts the request's epic. Epic creation is idempotent
// by existence: a second call for the same request fails with
// ErrConflict instead of creating a duplicate.
func (s *Store) CreateEpic(ctx context.Context, p CreateEpicParams) (Epic, error) {
	exists, err := s.HasEpic(ctx, p.RequestID)
	if err != nil {
		return Epic{}, err
	}
	if exists {
		return Epic{}, fmt.Errorf("%w: epic already exists for request %s", ErrConflict, p.RequestID)
	}

	goals, err := json.Marshal(sliceOrEmpty(p.Goals))
	if err != nil {
		return Epic{}, err
	}
	criteria, err := json.Marshal(sliceOrEmpty(p.SuccessCriteria))
	if err != nil {
		return Epic{}, err
	}

	ts := now()
	e := Epic{
		ID:              uuid.New().String(),
		RequestID:       p.RequestID,
		OrgID:           p.OrgID,
		Title:           p.Title,
		Description:     p.Description,
		Goals:           sliceOrEmpty(p.Goals),
		SuccessCriteria: sliceOrEmpty(p.SuccessCriteria),
		TechnicalNotes:  p.TechnicalNotes,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO epics
			(id, request_id, org_id, title, description, goals, success_criteria,
			 technical_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.OrgID, e.Title, e.Description, string(goals),
		string(criteria), e.TechnicalNotes, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return Epic{}, fmt.Errorf("store: insert epic: %w", err)
	}
	return e, nil
}

// GetEpicByRequest returns the request's epic.
func (s *Store) GetEpicByRequest(ctx context.Context, requestID string) (Epic, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, org_id, title, description, goals, success_criteria,
		       technical_notes, created_at, updated_at
		FROM epics WHERE request_id = ?`, requestID)

	var (
		e        Epic
		goals    string
		criteria string
	)
	err := row.Scan(&e.ID, &e.RequestID, &e.OrgID, &e.Title, &e.Description,
		&goals, &criteria, &e.TechnicalNotes, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return Epic{}, fmt.Errorf("%w: no epic for request %s", ErrNotFound, requestID)
	}
	if err != nil {
		return Epic{}, fmt.Errorf("store: get epic: %w", err)
	}
	if err := json.Unmarshal([]byte(goals), &e.Goals); err != nil {
		return Epic{}, fmt.Errorf("store: decode goals: %w", err)
	}
	if err := json.Unmarshal([]byte(criteria), &e.SuccessCriteria); err != nil {
		return Epic{}, fmt.Errorf("store: decode success criteria: %w", err)
	}
	return e, nil
}

// GetOrgEpic returns the epic scoped to the organization. An epic
// belonging to another organization reports not-found, never the row.
func (s *Store) GetOrgEpic(ctx context.Context, id, orgID string) (Epic, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, org_id, title, description, goals, success_criteria,
		       technical_notes, created_at, updated_at
		FROM epics WHERE id = ? AND org_id = ?`, id, orgID)

	var (
		e        Epic
		goals    string
		criteria string
	)
	err := row.Scan(&e.ID, &e.RequestID, &e.OrgID, &e.Title, &e.Description,
		&goals, &criteria, &e.TechnicalNotes, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return Epic{}, fmt.Errorf("%w: epic %s", ErrNotFound, id)
	}
	if err != nil {
		return Epic{}, fmt.Errorf("store: get epic: %w", err)
	}
	if err := json.Unmarshal([]byte(goals), &e.Goals); err != nil {
		return Epic{}, fmt.Errorf("store: decode goals: %w", err)
	}
	if err := json.Unmarshal([]byte(criteria), &e.SuccessCriteria); err != nil {
		return Epic{}, fmt.Errorf("store: decode success criteria: %w", err)
	}
	return e, nil
}

// AddStoryParams holds the input for appending a story to an epic.
type AddStoryParams struct {
	EpicID             string
	Title              string
	AsA                string
	IWant              string
	SoThat             string
	AcceptanceCriteria []string
	TechnicalNotes     string
	Priority           string
	StoryPoints        *int
}

// AddStory appends one story under the epic, taking the next ordinal
// position.
func (s *Store) AddStory(ctx context.Context, p AddStoryParams) (UserStory, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM epics WHERE id = ?`, p.EpicID).Scan(&exists)
	if err == sql.ErrNoRows {
		return UserStory{}, fmt.Errorf("%w: epic %s", ErrNotFound, p.EpicID)
	}
	if err != nil {
		return UserStory{}, fmt.Errorf("store: check epic: %w", err)
	}

	criteria, err := json.Marshal(sliceOrEmpty(p.AcceptanceCriteria))
	if err != nil {
		return UserStory{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UserStory{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var position int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM user_stories WHERE epic_id = ?`,
		p.EpicID).Scan(&position); err != nil {
		return UserStory{}, fmt.Errorf("store: next position: %w", err)
	}

	st := UserStory{
		ID:                 uuid.New().String(),
		EpicID:             p.EpicID,
		Title:              p.Title,
		AsA:                p.AsA,
		IWant:              p.IWant,
		SoThat:             p.SoThat,
		AcceptanceCriteria: sliceOrEmpty(p.AcceptanceCriteria),
		TechnicalNotes:     p.TechnicalNotes,
		Priority:           p.Priority,
		StoryPoints:        p.StoryPoints,
		Position:           position,
		CreatedAt:          now(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_stories
			(id, epic_id, title, as_a, i_want, so_that, acceptance_criteria,
			 technical_notes, priority, story_points, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.EpicID, st.Title, st.AsA, st.IWant, st.SoThat, string(criteria),
		st.TechnicalNotes, st.Priority, st.StoryPoints, st.Position, st.CreatedAt,
	); err != nil {
		return UserStory{}, fmt.Errorf("store: insert story: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return UserStory{}, fmt.Errorf("store: commit story: %w", err)
	}
	return st, nil
}

// ListStories returns the epic's stories in position order.
func (s *Store) ListStories(ctx context.Context, epicID string) ([]UserStory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, epic_id, title, as_a, i_want, so_that, acceptance_criteria,
		       technical_notes, priority, story_points, position, created_at
		FROM user_stories WHERE epic_id = ? ORDER BY position ASC`, epicID)
	if err != nil {
		return nil, fmt.Errorf("store: list stories: %w", err)
	}
	defer rows.Close()

	var out []UserStory
	for rows.Next() {
		var (
			st       UserStory
			criteria string
		)
		if err := rows.Scan(&st.ID, &st.EpicID, &st.Title, &st.AsA, &st.IWant,
			&st.SoThat, &criteria, &st.TechnicalNotes, &st.Priority,
			&st.StoryPoints, &st.Position, &st.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(criteria), &st.AcceptanceCriteria); err != nil {
			return nil, fmt.Errorf("store: decode acceptance criteria: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func sliceOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nullableStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
