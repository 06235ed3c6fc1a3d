package lifecycle

// Variant hints how a UI or CLI should present an action. The values
// are part of the wire contract with rendering collaborators.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
	VariantOutline     Variant = "outline"
	VariantSecondary   Variant = "secondary"
)

// Action is a named, role-gated move through the transition graph.
// Multiple actions may share a target status (e.g. "Move to Backlog"
// from APPROVED and "Return to Backlog" from IN_PROGRESS both target
// IN_BACKLOG).
type Action struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Target       Status  `json:"targetStatus"`
	Variant      Variant `json:"presentationVariant"`
	RequiredRole Role    `json:"requiredRole"`
}

// actionCatalog maps each status to its ordered action list. This is
// the single source of truth for labels, variants, and required
// roles. Every action's target must be an edge in the transition
// table, checked by tests rather than at runtime.
var actionCatalog = map[Status][]Action{
	StatusDraft: {
		{Key: "start_intake", Label: "Start Intake", Target: StatusIntakeInProgress, Variant: VariantDefault, RequiredRole: RoleStakeholder},
	},
	StatusIntakeInProgress: {
		{Key: "submit_for_assessment", Label: "Submit for Assessment", Target: StatusPendingAssessment, Variant: VariantDefault, RequiredRole: RoleStakeholder},
	},
	StatusPendingAssessment: {
		{Key: "complete_assessment", Label: "Complete Assessment", Target: StatusUnderReview, Variant: VariantDefault, RequiredRole: RoleReviewer},
	},
	StatusUnderReview: {
		{Key: "approve", Label: "Approve", Target: StatusApproved, Variant: VariantDefault, RequiredRole: RoleReviewer},
		{Key: "reject", Label: "Reject", Target: StatusRejected, Variant: VariantDestructive, RequiredRole: RoleReviewer},
		{Key: "defer", Label: "Defer", Target: StatusDeferred, Variant: VariantOutline, RequiredRole: RoleReviewer},
		{Key: "request_info", Label: "Request Info", Target: StatusNeedsInfo, Variant: VariantSecondary, RequiredRole: RoleReviewer},
	},
	StatusNeedsInfo: {
		{Key: "resume_intake", Label: "Resume Intake", Target: StatusIntakeInProgress, Variant: VariantDefault, RequiredRole: RoleStakeholder},
		{Key: "return_to_review", Label: "Return to Review", Target: StatusUnderReview, Variant: VariantSecondary, RequiredRole: RoleReviewer},
	},
	StatusApproved: {
		{Key: "move_to_backlog", Label: "Move to Backlog", Target: StatusInBacklog, Variant: VariantDefault, RequiredRole: RoleReviewer},
	},
	StatusDeferred: {
		{Key: "reconsider", Label: "Reconsider", Target: StatusUnderReview, Variant: VariantOutline, RequiredRole: RoleReviewer},
	},
	StatusInBacklog: {
		{Key: "start_work", Label: "Start Work", Target: StatusInProgress, Variant: VariantDefault, RequiredRole: RoleReviewer},
	},
	StatusInProgress: {
		{Key: "mark_complete", Label: "Mark Complete", Target: StatusCompleted, Variant: VariantDefault, RequiredRole: RoleReviewer},
		{Key: "return_to_backlog", Label: "Return to Backlog", Target: StatusInBacklog, Variant: VariantOutline, RequiredRole: RoleReviewer},
	},
}

// AvailableActions returns the ordered actions a user with the given
// role may take from the given status. The result for a higher role
// is always a superset of a lower role's. Terminal statuses return an
// empty slice for every role.
func AvailableActions(status Status, role Role) []Action {
	all := actionCatalog[status]
	out := make([]Action, 0, len(all))
	for _, a := range all {
		if role.AtLeast(a.RequiredRole) {
			out = append(out, a)
		}
	}
	return out
}

// ActionByKey looks up an action from a status by its key.
func ActionByKey(status Status, key string) (Action, bool) {
	for _, a := range actionCatalog[status] {
		if a.Key == key {
			return a, true
		}
	}
	return Action{}, false
}
