package lifecycle

// Stage identifies which agent tool-set is active for a request. The
// stage is derived from status, never stored. Keeping the derivation
// here means a future status only needs one change.
type Stage string

const (
	// StageIntake is active while the stakeholder and agent are still
	// filling in the request's intake sections.
	StageIntake Stage = "INTAKE"

	// StageAssessment is active once intake is complete and the agent
	// is producing scores and a complexity rating.
	StageAssessment Stage = "ASSESSMENT"

	// StageOutput is active after approval, while the agent may still
	// materialize an epic and its stories.
	StageOutput Stage = "OUTPUT"

	// StageNone means no agent tool-set applies to the request's
	// current status (e.g. UNDER_REVIEW belongs to the human reviewer).
	StageNone Stage = "NONE"
)

// StageForStatus derives the active pipeline stage from a request's
// status. hasEpic gates the output stage: once the epic exists there
// is nothing left for the output tool-set to do.
func StageForStatus(s Status, hasEpic bool) Stage {
	switch s {
	case StatusDraft, StatusIntakeInProgress:
		return StageIntake
	case StatusPendingAssessment:
		return StageAssessment
	case StatusApproved, StatusInBacklog, StatusInProgress, StatusCompleted:
		if hasEpic {
			return StageNone
		}
		return StageOutput
	default:
		return StageNone
	}
}
