// Package store implements the persistence layer for the request
// lifecycle engine.
//
// It uses SQLite with FTS5 full-text search over intake text to
// support duplicate-request lookup. All timestamps are RFC3339 TEXT.
// Every request row carries a version counter; status writes are
// compare-and-swap on that version, so two concurrent writers cannot
// silently overwrite each other: the loser gets ErrConflict and may
// retry against the fresh row.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reqtriage/internal/lifecycle"
	"reqtriage/internal/scoring"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level var to allow freezing time in tests.
var timeNow = time.Now

// Sentinel errors for the engine's error taxonomy. ErrNotFound also
// covers cross-tenant access: a request in another organization is
// reported as missing, never as forbidden.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ─── Types ───────────────────────────────────────────────────────────────────

// IntakeSection is one named bag of intake facts plus how complete
// the agent judges that section to be (0-100).
type IntakeSection struct {
	Data         map[string]any `json:"data"`
	Completeness int            `json:"completeness"`
}

// Request is the unit being tracked through the lifecycle.
type Request struct {
	ID               string                   `json:"id"`
	OrgID            string                   `json:"org_id"`
	RequesterID      string                   `json:"requester_id"`
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	Status           lifecycle.Status         `json:"status"`
	IntakeData       map[string]IntakeSection `json:"intake_data"`
	IntakeComplete   bool                     `json:"intake_complete"`
	IntakeSummary    *string                  `json:"intake_summary,omitempty"`
	QualityScore     *int                     `json:"quality_score,omitempty"`
	AssessmentData   *string                  `json:"assessment_data,omitempty"`
	BusinessScore    *float64                 `json:"business_score,omitempty"`
	TechnicalScore   *float64                 `json:"technical_score,omitempty"`
	RiskScore        *float64                 `json:"risk_score,omitempty"`
	PriorityScore    *float64                 `json:"priority_score,omitempty"`
	Complexity       *lifecycle.Complexity    `json:"complexity,omitempty"`
	ActualComplexity *lifecycle.Complexity    `json:"actual_complexity,omitempty"`
	ActualEffortDays *float64                 `json:"actual_effort_days,omitempty"`
	LessonsLearned   *string                  `json:"lessons_learned,omitempty"`
	Version          int64                    `json:"version"`
	CreatedAt        string                   `json:"created_at"`
	UpdatedAt        string                   `json:"updated_at"`
}

// Decision is one reviewer judgment against a request. Immutable once
// created except for the outcome fields, which the calibration loop
// fills in later.
type Decision struct {
	ID                string                 `json:"id"`
	RequestID         string                 `json:"request_id"`
	OrgID             string                 `json:"org_id"`
	Decision          lifecycle.DecisionType `json:"decision"`
	Rationale         string                 `json:"rationale"`
	DecidedBy         string                 `json:"decided_by"`
	Outcome           *lifecycle.Outcome     `json:"outcome,omitempty"`
	OutcomeNotes      *string                `json:"outcome_notes,omitempty"`
	OutcomeRecordedAt *string                `json:"outcome_recorded_at,omitempty"`
	CreatedAt         string                 `json:"created_at"`
}

// Epic is the top-level output artifact generated from an assessed
// request. At most one epic exists per request.
type Epic struct {
	ID              string   `json:"id"`
	RequestID       string   `json:"request_id"`
	OrgID           string   `json:"org_id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Goals           []string `json:"goals"`
	SuccessCriteria []string `json:"success_criteria"`
	TechnicalNotes  string   `json:"technical_notes,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// UserStory is one ordered unit of work under an epic.
type UserStory struct {
	ID                 string   `json:"id"`
	EpicID             string   `json:"epic_id"`
	Title              string   `json:"title"`
	AsA                string   `json:"as_a"`
	IWant              string   `json:"i_want"`
	SoThat             string   `json:"so_that"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	TechnicalNotes     string   `json:"technical_notes,omitempty"`
	Priority           string   `json:"priority"`
	StoryPoints        *int     `json:"story_points,omitempty"`
	Position           int      `json:"position"`
	CreatedAt          string   `json:"created_at"`
}

// User is an organization member, used for role lookup and
// review-needed notification fan-out.
type User struct {
	ID    string         `json:"id"`
	OrgID string         `json:"org_id"`
	Name  string         `json:"name"`
	Role  lifecycle.Role `json:"role"`
}

// SimilarRequest is a duplicate-search hit with its FTS5 rank.
type SimilarRequest struct {
	ID     string           `json:"id"`
	Title  string           `json:"title"`
	Status lifecycle.Status `json:"status"`
	Rank   float64          `json:"rank"`
}

// HistoricalEstimate pairs a predicted complexity with the realized
// effort of a finished request, context for the assessment agent.
type HistoricalEstimate struct {
	RequestID        string                `json:"request_id"`
	Title            string                `json:"title"`
	Complexity       *lifecycle.Complexity `json:"complexity,omitempty"`
	ActualComplexity *lifecycle.Complexity `json:"actual_complexity,omitempty"`
	ActualEffortDays *float64              `json:"actual_effort_days,omitempty"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir string
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".reqtriage")}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistence engine backed by SQLite + FTS5.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a Store with the given configuration. It creates the
// data directory if needed, opens SQLite with WAL mode, and runs
// migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "reqtriage.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current time formatted for storage.
func now() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS requests (
			id                 TEXT PRIMARY KEY,
			org_id             TEXT    NOT NULL,
			requester_id       TEXT    NOT NULL,
			title              TEXT    NOT NULL,
			description        TEXT    NOT NULL DEFAULT '',
			status             TEXT    NOT NULL DEFAULT 'DRAFT',
			intake_data        TEXT    NOT NULL DEFAULT '{}',
			intake_complete    INTEGER NOT NULL DEFAULT 0,
			intake_summary     TEXT,
			quality_score      INTEGER,
			assessment_data    TEXT,
			business_score     REAL,
			technical_score    REAL,
			risk_score         REAL,
			priority_score     REAL,
			complexity         TEXT,
			actual_complexity  TEXT,
			actual_effort_days REAL,
			lessons_learned    TEXT,
			version            INTEGER NOT NULL DEFAULT 1,
			created_at         TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at         TEXT    NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_req_org     ON requests(org_id);
		CREATE INDEX IF NOT EXISTS idx_req_status  ON requests(org_id, status);
		CREATE INDEX IF NOT EXISTS idx_req_created ON requests(created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS requests_fts USING fts5(
			title,
			description,
			intake_data,
			content='requests',
			content_rowid='rowid'
		);

		CREATE TABLE IF NOT EXISTS decisions (
			id                  TEXT PRIMARY KEY,
			request_id          TEXT NOT NULL,
			org_id              TEXT NOT NULL,
			decision            TEXT NOT NULL,
			rationale           TEXT NOT NULL,
			decided_by          TEXT NOT NULL,
			outcome             TEXT,
			outcome_notes       TEXT,
			outcome_recorded_at TEXT,
			created_at          TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (request_id) REFERENCES requests(id)
		);

		CREATE INDEX IF NOT EXISTS idx_dec_request ON decisions(request_id);
		CREATE INDEX IF NOT EXISTS idx_dec_org     ON decisions(org_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS epics (
			id               TEXT PRIMARY KEY,
			request_id       TEXT NOT NULL UNIQUE,
			org_id           TEXT NOT NULL,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			goals            TEXT NOT NULL DEFAULT '[]',
			success_criteria TEXT NOT NULL DEFAULT '[]',
			technical_notes  TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at       TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (request_id) REFERENCES requests(id)
		);

		CREATE TABLE IF NOT EXISTS user_stories (
			id                  TEXT PRIMARY KEY,
			epic_id             TEXT    NOT NULL,
			title               TEXT    NOT NULL,
			as_a                TEXT    NOT NULL,
			i_want              TEXT    NOT NULL,
			so_that             TEXT    NOT NULL,
			acceptance_criteria TEXT    NOT NULL DEFAULT '[]',
			technical_notes     TEXT    NOT NULL DEFAULT '',
			priority            TEXT    NOT NULL DEFAULT 'MEDIUM',
			story_points        INTEGER,
			position            INTEGER NOT NULL,
			created_at          TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (epic_id) REFERENCES epics(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_story_epic ON user_stories(epic_id, position);

		CREATE TABLE IF NOT EXISTS scoring_configs (
			org_id           TEXT PRIMARY KEY,
			framework        TEXT NOT NULL DEFAULT 'RICE',
			weight_business  REAL NOT NULL DEFAULT 0.4,
			weight_technical REAL NOT NULL DEFAULT 0.3,
			weight_risk      REAL NOT NULL DEFAULT 0.3,
			threshold_high   REAL NOT NULL DEFAULT 75,
			threshold_medium REAL NOT NULL DEFAULT 50,
			updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS users (
			id     TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name   TEXT NOT NULL DEFAULT '',
			role   TEXT NOT NULL DEFAULT 'STAKEHOLDER'
		);

		CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='req_fts_insert'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER req_fts_insert AFTER INSERT ON requests BEGIN
				INSERT INTO requests_fts(rowid, title, description, intake_data)
				VALUES (new.rowid, new.title, new.description, new.intake_data);
			END;

			CREATE TRIGGER req_fts_delete AFTER DELETE ON requests BEGIN
				INSERT INTO requests_fts(requests_fts, rowid, title, description, intake_data)
				VALUES ('delete', old.rowid, old.title, old.description, old.intake_data);
			END;

			CREATE TRIGGER req_fts_update AFTER UPDATE ON requests BEGIN
				INSERT INTO requests_fts(requests_fts, rowid, title, description, intake_data)
				VALUES ('delete', old.rowid, old.title, old.description, old.intake_data);
				INSERT INTO requests_fts(rowid, title, description, intake_data)
				VALUES (new.rowid, new.title, new.description, new.intake_data);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// ─── Scoring config ──────────────────────────────────────────────────────────

// GetScoringConfig returns the organization's scoring configuration,
// or nil when none has been saved (callers fall back to the
// hard-coded default).
func (s *Store) GetScoringConfig(ctx context.Context, orgID string) (*scoring.Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT framework, weight_business, weight_technical, weight_risk,
		       threshold_high, threshold_medium
		FROM scoring_configs WHERE org_id = ?`, orgID)

	var cfg scoring.Config
	err := row.Scan(
		&cfg.Framework,
		&cfg.Weights.Business, &cfg.Weights.Technical, &cfg.Weights.Risk,
		&cfg.Thresholds.HighPriority, &cfg.Thresholds.MediumPriority,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scoring config: %w", err)
	}
	return &cfg, nil
}

// SaveScoringConfig upserts the organization's scoring configuration.
func (s *Store) SaveScoringConfig(ctx context.Context, orgID string, cfg scoring.Config) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scoring_configs
			(org_id, framework, weight_business, weight_technical, weight_risk,
			 threshold_high, threshold_medium, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			framework        = excluded.framework,
			weight_business  = excluded.weight_business,
			weight_technical = excluded.weight_technical,
			weight_risk      = excluded.weight_risk,
			threshold_high   = excluded.threshold_high,
			threshold_medium = excluded.threshold_medium,
			updated_at       = excluded.updated_at`,
		orgID, cfg.Framework,
		cfg.Weights.Business, cfg.Weights.Technical, cfg.Weights.Risk,
		cfg.Thresholds.HighPriority, cfg.Thresholds.MediumPriority, now(),
	)
	if err != nil {
		return fmt.Errorf("store: save scoring config: %w", err)
	}
	return nil
}

// ─── Users ───────────────────────────────────────────────────────────────────

// UpsertUser creates or updates an organization member.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, org_id, name, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET org_id = excluded.org_id,
			name = excluded.name, role = excluded.role`,
		u.ID, u.OrgID, u.Name, string(u.Role),
	)
	if err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, role FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.OrgID, &u.Name, &u.Role)
	if err == sql.ErrNoRows {
		return User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// ListOrgMembers returns every member of the organization.
func (s *Store) ListOrgMembers(ctx context.Context, orgID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, name, role FROM users WHERE org_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Name, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
