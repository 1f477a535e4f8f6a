package dto

// Refinement edit kinds.
const (
	EditMoveStudent     = "MOVE_STUDENT"
	EditReassignTeacher = "REASSIGN_TEACHER"
	EditChangeTimeSlot  = "CHANGE_TIME_SLOT"
)

// RefinementEdit is one bounded manual change to a proposal.
type RefinementEdit struct {
	Type string `json:"type" validate:"required,oneof=MOVE_STUDENT REASSIGN_TEACHER CHANGE_TIME_SLOT"`

	// MOVE_STUDENT
	StudentID   string `json:"studentId,omitempty"`
	FromClassID string `json:"fromClassId,omitempty"`
	ToClassID   string `json:"toClassId,omitempty"`

	// REASSIGN_TEACHER / CHANGE_TIME_SLOT
	ClassID      string `json:"classId,omitempty"`
	NewTeacherID string `json:"newTeacherId,omitempty"`
	NewDayOfWeek string `json:"newDayOfWeek,omitempty"`
	NewSession   string `json:"newSession,omitempty"`
}

// RefineRequest applies a batch of edits to a proposal.
type RefineRequest struct {
	Edits []RefinementEdit `json:"edits" validate:"required,min=1,dive"`
}

// EditResult reports the outcome of one edit; rejected edits carry a reason.
type EditResult struct {
	Index   int            `json:"index"`
	Edit    RefinementEdit `json:"edit"`
	Applied bool           `json:"applied"`
	Reason  string         `json:"reason,omitempty"`
}

// RefinementConstraints bound what manual edits may do.
type RefinementConstraints struct {
	MaxStudentMovesPerRun          int     `json:"maxStudentMovesPerRun"`
	AllowTeacherReassignment       bool    `json:"allowTeacherReassignment"`
	AllowTimeSlotChanges           bool    `json:"allowTimeSlotChanges"`
	MaintainStudentCategoryBalance bool    `json:"maintainStudentCategoryBalance"`
	CategoryBalanceTolerance       float64 `json:"categoryBalanceTolerance"`
	MaxNewStudentRatio             float64 `json:"maxNewStudentRatio"`
}

// RefineResponse returns the re-scored proposal plus per-edit outcomes.
type RefineResponse struct {
	Proposal      ProposalResponse `json:"proposal"`
	Results       []EditResult     `json:"results"`
	AppliedCount  int              `json:"appliedCount"`
	RejectedCount int              `json:"rejectedCount"`
}
