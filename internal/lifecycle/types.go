// Package lifecycle defines the request lifecycle: statuses, roles,
// the status transition graph, and the named actions a user may take
// at each point in a request's life.
//
// Everything in this package is pure lookup: no persistence, no side
// effects. The transition tables are the single source of truth for
// which moves are legal; callers (the review engine, the agent tools,
// the CLI) all consult the same tables.
package lifecycle

import "fmt"

// --- Status enum ---

// Status is a request's position in the lifecycle. The spelling of
// each value is a wire contract shared with the agent runtime and the
// database. Do not rename.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusIntakeInProgress  Status = "INTAKE_IN_PROGRESS"
	StatusPendingAssessment Status = "PENDING_ASSESSMENT"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusNeedsInfo         Status = "NEEDS_INFO"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusDeferred          Status = "DEFERRED"
	StatusInBacklog         Status = "IN_BACKLOG"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusCompleted         Status = "COMPLETED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusIntakeInProgress,
	StatusPendingAssessment,
	StatusUnderReview,
	StatusNeedsInfo,
	StatusApproved,
	StatusRejected,
	StatusDeferred,
	StatusInBacklog,
	StatusInProgress,
	StatusCompleted,
}

var validStatuses = func() map[Status]bool {
	m := make(map[Status]bool, len(AllStatuses))
	for _, s := range AllStatuses {
		m[s] = true
	}
	return m
}()

// ValidateStatus returns an error if the status is not recognized.
func ValidateStatus(s Status) error {
	if !validStatuses[s] {
		return fmt.Errorf("invalid status %q", s)
	}
	return nil
}

// --- Role enum ---

// Role is a user's authorization level. Roles form a total order:
// STAKEHOLDER < REVIEWER < ADMIN. A role may perform any action whose
// required role is at or below its own level.
type Role string

const (
	RoleStakeholder Role = "STAKEHOLDER"
	RoleReviewer    Role = "REVIEWER"
	RoleAdmin       Role = "ADMIN"
)

var roleLevels = map[Role]int{
	RoleStakeholder: 0,
	RoleReviewer:    1,
	RoleAdmin:       2,
}

// Level returns the role's position in the total order, or -1 for an
// unknown role (which therefore satisfies no requirement).
func (r Role) Level() int {
	level, ok := roleLevels[r]
	if !ok {
		return -1
	}
	return level
}

// AtLeast reports whether r meets or exceeds the required role.
func (r Role) AtLeast(required Role) bool {
	return r.Level() >= 0 && r.Level() >= required.Level()
}

// ValidateRole returns an error if the role is not recognized.
func ValidateRole(r Role) error {
	if _, ok := roleLevels[r]; !ok {
		return fmt.Errorf("invalid role %q: must be one of: STAKEHOLDER, REVIEWER, ADMIN", r)
	}
	return nil
}

// --- Complexity enum ---

// Complexity is the t-shirt size effort classification assigned during
// assessment, and again post-hoc when actual effort is known.
type Complexity string

const (
	ComplexityXS      Complexity = "XS"
	ComplexityS       Complexity = "S"
	ComplexityM       Complexity = "M"
	ComplexityL       Complexity = "L"
	ComplexityXL      Complexity = "XL"
	ComplexityUnknown Complexity = "UNKNOWN"
)

var ratedComplexities = map[Complexity]bool{
	ComplexityXS: true,
	ComplexityS:  true,
	ComplexityM:  true,
	ComplexityL:  true,
	ComplexityXL: true,
}

// ValidateComplexity returns an error unless c is one of the five
// rated sizes. UNKNOWN is a storage default, never a valid input.
func ValidateComplexity(c Complexity) error {
	if !ratedComplexities[c] {
		return fmt.Errorf("invalid complexity %q: must be one of: XS, S, M, L, XL", c)
	}
	return nil
}

// --- Decision enum ---

// DecisionType is a reviewer's judgment on a request under review.
type DecisionType string

const (
	DecisionApprove     DecisionType = "APPROVE"
	DecisionReject      DecisionType = "REJECT"
	DecisionDefer       DecisionType = "DEFER"
	DecisionRequestInfo DecisionType = "REQUEST_INFO"
)

// decisionTargets maps each decision to the status it drives the
// request into. The mapping is fixed: there is exactly one target
// per decision.
var decisionTargets = map[DecisionType]Status{
	DecisionApprove:     StatusApproved,
	DecisionReject:      StatusRejected,
	DecisionDefer:       StatusDeferred,
	DecisionRequestInfo: StatusNeedsInfo,
}

// TargetStatus returns the status this decision transitions the
// request into, and whether the decision type is recognized.
func (d DecisionType) TargetStatus() (Status, bool) {
	s, ok := decisionTargets[d]
	return s, ok
}

// ValidateDecisionType returns an error if the decision is not recognized.
func ValidateDecisionType(d DecisionType) error {
	if _, ok := decisionTargets[d]; !ok {
		return fmt.Errorf("invalid decision %q: must be one of: APPROVE, REJECT, DEFER, REQUEST_INFO", d)
	}
	return nil
}

// --- Outcome enum ---

// Outcome is the realized result of a decision, recorded later by the
// calibration loop.
type Outcome string

const (
	OutcomeCorrect          Outcome = "CORRECT"
	OutcomePartiallyCorrect Outcome = "PARTIALLY_CORRECT"
	OutcomeIncorrect        Outcome = "INCORRECT"
	OutcomePending          Outcome = "PENDING"
)

var validOutcomes = map[Outcome]bool{
	OutcomeCorrect:          true,
	OutcomePartiallyCorrect: true,
	OutcomeIncorrect:        true,
	OutcomePending:          true,
}

// ValidateOutcome returns an error if the outcome is not recognized.
func ValidateOutcome(o Outcome) error {
	if !validOutcomes[o] {
		return fmt.Errorf("invalid outcome %q: must be one of: CORRECT, PARTIALLY_CORRECT, INCORRECT, PENDING", o)
	}
	return nil
}
