package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"reqtriage/internal/lifecycle"

	"github.com/google/uuid"
)

// CreateRequestParams holds the input for creating a request.
type CreateRequestParams struct {
	OrgID       string
	RequesterID string
	Title       string
	Description string
}

// CreateRequest inserts a new request in DRAFT at version 1.
func (s *Store) CreateRequest(ctx context.Context, p CreateRequestParams) (Request, error) {
	if strings.TrimSpace(p.Title) == "" {
		return Request{}, fmt.Errorf("title is required")
	}
	if p.OrgID == "" || p.RequesterID == "" {
		return Request{}, fmt.Errorf("org and requester are required")
	}

	ts := now()
	r := Request{
		ID:          uuid.New().String(),
		OrgID:       p.OrgID,
		RequesterID: p.RequesterID,
		Title:       p.Title,
		Description: p.Description,
		Status:      lifecycle.StatusDraft,
		IntakeData:  map[string]IntakeSection{},
		Version:     1,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests
			(id, org_id, requester_id, title, description, status, intake_data,
			 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '{}', 1, ?, ?)`,
		r.ID, r.OrgID, r.RequesterID, r.Title, r.Description, string(r.Status),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return Request{}, fmt.Errorf("store: insert request: %w", err)
	}
	return r, nil
}

const requestColumns = `
	id, org_id, requester_id, title, description, status, intake_data,
	intake_complete, intake_summary, quality_score, assessment_data,
	business_score, technical_score, risk_score, priority_score,
	complexity, actual_complexity, actual_effort_days, lessons_learned,
	version, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (Request, error) {
	var (
		r          Request
		intakeJSON string
		complexity sql.NullString
		actual     sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.OrgID, &r.RequesterID, &r.Title, &r.Description, &r.Status,
		&intakeJSON, &r.IntakeComplete, &r.IntakeSummary, &r.QualityScore,
		&r.AssessmentData, &r.BusinessScore, &r.TechnicalScore, &r.RiskScore,
		&r.PriorityScore, &complexity, &actual, &r.ActualEffortDays,
		&r.LessonsLearned, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return Request{}, err
	}
	if err := json.Unmarshal([]byte(intakeJSON), &r.IntakeData); err != nil {
		return Request{}, fmt.Errorf("store: decode intake data: %w", err)
	}
	if complexity.Valid {
		c := lifecycle.Complexity(complexity.String)
		r.Complexity = &c
	}
	if actual.Valid {
		c := lifecycle.Complexity(actual.String)
		r.ActualComplexity = &c
	}
	return r, nil
}

// GetRequest returns a request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return Request{}, fmt.Errorf("%w: request %s", ErrNotFound, id)
	}
	if err != nil {
		return Request{}, fmt.Errorf("store: get request: %w", err)
	}
	return r, nil
}

// GetOrgRequest returns a request by id, reporting ErrNotFound when
// the request exists but belongs to a different organization.
func (s *Store) GetOrgRequest(ctx context.Context, id, orgID string) (Request, error) {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if r.OrgID != orgID {
		return Request{}, fmt.Errorf("%w: request %s", ErrNotFound, id)
	}
	return r, nil
}

// ListRequests returns the organization's requests, newest first,
// optionally filtered by status.
func (s *Store) ListRequests(ctx context.Context, orgID string, status lifecycle.Status) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE org_id = ?`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRequest persists the mutable fields of a request with a
// compare-and-swap on version. The caller passes the request as it
// read it (with the modifications applied); a concurrent writer that
// bumped the version since that read causes ErrConflict.
func (s *Store) UpdateRequest(ctx context.Context, r Request) (Request, error) {
	return s.updateRequest(ctx, s.db, r)
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) updateRequest(ctx context.Context, db execContexter, r Request) (Request, error) {
	intakeJSON, err := json.Marshal(r.IntakeData)
	if err != nil {
		return Request{}, fmt.Errorf("store: encode intake data: %w", err)
	}

	r.UpdatedAt = now()
	res, err := db.ExecContext(ctx, `
		UPDATE requests SET
			title = ?, description = ?, status = ?, intake_data = ?,
			intake_complete = ?, intake_summary = ?, quality_score = ?,
			assessment_data = ?, business_score = ?, technical_score = ?,
			risk_score = ?, priority_score = ?, complexity = ?,
			actual_complexity = ?, actual_effort_days = ?, lessons_learned = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.Title, r.Description, string(r.Status), string(intakeJSON),
		r.IntakeComplete, r.IntakeSummary, r.QualityScore,
		r.AssessmentData, r.BusinessScore, r.TechnicalScore,
		r.RiskScore, r.PriorityScore, complexityOrNil(r.Complexity),
		complexityOrNil(r.ActualComplexity), r.ActualEffortDays, r.LessonsLearned,
		r.UpdatedAt,
		r.ID, r.Version,
	)
	if err != nil {
		return Request{}, fmt.Errorf("store: update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Request{}, err
	}
	if n == 0 {
		// Either the row is gone or another writer got there first.
		if _, gerr := s.GetRequest(ctx, r.ID); gerr != nil {
			return Request{}, gerr
		}
		return Request{}, fmt.Errorf("%w: request %s was modified concurrently, retry with a fresh read", ErrConflict, r.ID)
	}
	r.Version++
	return r, nil
}

func complexityOrNil(c *lifecycle.Complexity) any {
	if c == nil {
		return nil
	}
	return string(*c)
}

// HasEpic reports whether an epic already exists for the request.
func (s *Store) HasEpic(ctx context.Context, requestID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM epics WHERE request_id = ? LIMIT 1`, requestID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: has epic: %w", err)
	}
	return true, nil
}

// ─── Context queries for the assessment tools ────────────────────────────────

// CountByStatus returns the organization's request count per status.
func (s *Store) CountByStatus(ctx context.Context, orgID string) (map[lifecycle.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM requests WHERE org_id = ? GROUP BY status`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: count by status: %w", err)
	}
	defer rows.Close()

	out := map[lifecycle.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[lifecycle.Status(status)] = n
	}
	return out, rows.Err()
}

// ListBacklog returns the organization's backlog and in-progress
// requests ordered by priority score, highest first.
func (s *Store) ListBacklog(ctx context.Context, orgID string, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE org_id = ? AND status IN ('IN_BACKLOG', 'IN_PROGRESS')
		ORDER BY priority_score DESC, created_at ASC
		LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list backlog: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListHistoricalEstimates returns predicted-vs-actual pairs from
// completed requests, newest first.
func (s *Store) ListHistoricalEstimates(ctx context.Context, orgID string, limit int) ([]HistoricalEstimate, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, complexity, actual_complexity, actual_effort_days
		FROM requests
		WHERE org_id = ? AND status = 'COMPLETED' AND complexity IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: historical estimates: %w", err)
	}
	defer rows.Close()

	var out []HistoricalEstimate
	for rows.Next() {
		var (
			h          HistoricalEstimate
			complexity sql.NullString
			actual     sql.NullString
		)
		if err := rows.Scan(&h.RequestID, &h.Title, &complexity, &actual, &h.ActualEffortDays); err != nil {
			return nil, err
		}
		if complexity.Valid {
			c := lifecycle.Complexity(complexity.String)
			h.Complexity = &c
		}
		if actual.Valid {
			c := lifecycle.Complexity(actual.String)
			h.ActualComplexity = &c
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListCalibrationPairs returns every request in the organization that
// has both a predicted and a realized complexity recorded.
func (s *Store) ListCalibrationPairs(ctx context.Context, orgID string) ([]HistoricalEstimate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, complexity, actual_complexity, actual_effort_days
		FROM requests
		WHERE org_id = ? AND complexity IS NOT NULL AND actual_complexity IS NOT NULL
		ORDER BY updated_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: calibration pairs: %w", err)
	}
	defer rows.Close()

	var out []HistoricalEstimate
	for rows.Next() {
		var (
			h          HistoricalEstimate
			complexity sql.NullString
			actual     sql.NullString
		)
		if err := rows.Scan(&h.RequestID, &h.Title, &complexity, &actual, &h.ActualEffortDays); err != nil {
			return nil, err
		}
		if complexity.Valid {
			c := lifecycle.Complexity(complexity.String)
			h.Complexity = &c
		}
		if actual.Valid {
			c := lifecycle.Complexity(actual.String)
			h.ActualComplexity = &c
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SearchSimilar runs an FTS5 match over request titles, descriptions,
// and intake data within the organization, excluding the request the
// search is for. Empty keyword sets return no results rather than an
// FTS syntax error.
func (s *Store) SearchSimilar(ctx context.Context, orgID, excludeID string, keywords []string, limit int) ([]SimilarRequest, error) {
	query := buildMatchQuery(keywords)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.status, rank
		FROM requests_fts
		JOIN requests r ON r.rowid = requests_fts.rowid
		WHERE requests_fts MATCH ? AND r.org_id = ? AND r.id != ?
		ORDER BY rank
		LIMIT ?`, query, orgID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search similar: %w", err)
	}
	defer rows.Close()

	var out []SimilarRequest
	for rows.Next() {
		var sr SimilarRequest
		if err := rows.Scan(&sr.ID, &sr.Title, &sr.Status, &sr.Rank); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// buildMatchQuery turns free-form keywords into a safe FTS5 OR query.
// Each keyword is quoted so user input cannot inject FTS syntax.
func buildMatchQuery(keywords []string) string {
	var parts []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ReplaceAll(kw, `"`, ""))
		if kw == "" {
			continue
		}
		parts = append(parts, `"`+kw+`"`)
	}
	return strings.Join(parts, " OR ")
}
