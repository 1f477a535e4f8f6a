package dto

import (
	"time"

	"github.com/sahabatquran/classgen-api/internal/models"
)

// Conflict types and severities produced by the detector.
const (
	ConflictTeacherDoubleBooking = "TEACHER_DOUBLE_BOOKING"
	ConflictRoom                 = "ROOM_CONFLICT"
	ConflictStudent              = "STUDENT_CONFLICT"
	ConflictNoTeacherAvailable   = "NO_TEACHER_AVAILABLE"

	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// Size violation variants.
const (
	ViolationUndersized = "UNDERSIZED"
	ViolationOversized  = "OVERSIZED"
)

// Class composition tags.
const (
	ClassTypeNewOnly      = "NEW_ONLY"
	ClassTypeExistingOnly = "EXISTING_ONLY"
	ClassTypeMixed        = "MIXED"
)

// Priority strategies accepted by the solver.
const (
	StrategyBalance             = "BALANCE"
	StrategyMinimizeConflicts   = "MINIMIZE_CONFLICTS"
	StrategyMaximizeUtilization = "MAXIMIZE_UTILIZATION"
)

// SizeRange bounds a class size for one level.
type SizeRange struct {
	Min int `json:"min" validate:"min=1"`
	Max int `json:"max" validate:"min=1"`
}

// GenerationParameters tune one solver run.
type GenerationParameters struct {
	DefaultMinClassSize        int                  `json:"defaultMinClassSize" validate:"omitempty,min=1"`
	DefaultMaxClassSize        int                  `json:"defaultMaxClassSize" validate:"omitempty,min=1"`
	NewStudentRatio            float64              `json:"newStudentRatio" validate:"omitempty,gt=0,lt=1"`
	MaxClassesPerTeacher       int                  `json:"maxClassesPerTeacher" validate:"omitempty,min=1"`
	AllowUndersizedClasses     bool                 `json:"allowUndersizedClasses"`
	OptimizeForTeacherWorkload bool                 `json:"optimizeForTeacherWorkload"`
	PriorityStrategy           string               `json:"priorityStrategy" validate:"omitempty,oneof=BALANCE MINIMIZE_CONFLICTS MAXIMIZE_UTILIZATION"`
	LevelSizeOverrides         map[string]SizeRange `json:"levelSizeOverrides,omitempty"`
}

// GenerationReadiness is the go/no-go summary produced before generation.
type GenerationReadiness struct {
	CanGenerate                     bool                 `json:"canGenerate"`
	StudentDataCompleteness         float64              `json:"studentDataCompleteness"`
	TeacherAvailabilityCompleteness float64              `json:"teacherAvailabilityCompleteness"`
	LevelAssignmentCompleteness     float64              `json:"levelAssignmentCompleteness"`
	BlockingIssues                  []string             `json:"blockingIssues"`
	Warnings                        []string             `json:"warnings"`
	RecommendedParameters           GenerationParameters `json:"recommendedParameters"`
}

// AssignedStudent is one student placed into a generated class.
type AssignedStudent struct {
	StudentID       string                 `json:"studentId"`
	StudentName     string                 `json:"studentName"`
	Category        models.StudentCategory `json:"category"`
	AssessmentScore float64                `json:"assessmentScore"`
	AssessmentGrade string                 `json:"assessmentGrade"`
	SpecialNeeds    *string                `json:"specialNeeds,omitempty"`
	CanReassign     bool                   `json:"canReassign"`
}

// GeneratedClass is one proposed class within a proposal.
type GeneratedClass struct {
	ClassID              string            `json:"classId"`
	ClassName            string            `json:"className"`
	LevelID              string            `json:"levelId"`
	LevelName            string            `json:"levelName"`
	TeacherID            *string           `json:"teacherId,omitempty"`
	TeacherName          string            `json:"teacherName,omitempty"`
	DayOfWeek            string            `json:"dayOfWeek,omitempty"`
	Session              string            `json:"session,omitempty"`
	Students             []AssignedStudent `json:"students"`
	CurrentSize          int               `json:"currentSize"`
	MinSize              int               `json:"minSize"`
	MaxSize              int               `json:"maxSize"`
	ClassType            string            `json:"classType"`
	NewStudentPercentage float64           `json:"newStudentPercentage"`
	SpecialNotes         []string          `json:"specialNotes,omitempty"`
}

// Conflict is a detected scheduling incompatibility, tagged by type.
type Conflict struct {
	Type              string   `json:"type"`
	Severity          string   `json:"severity"`
	Description       string   `json:"description"`
	AffectedClassIDs  []string `json:"affectedClassIds"`
	ResolutionOptions []string `json:"resolutionOptions,omitempty"`
	IsResolved        bool     `json:"isResolved"`
}

// SizeViolation flags a class outside its configured bounds.
type SizeViolation struct {
	ClassID          string `json:"classId"`
	ClassName        string `json:"className"`
	ViolationType    string `json:"violationType"`
	Severity         string `json:"severity"`
	CurrentSize      int    `json:"currentSize"`
	TargetMin        int    `json:"targetMin"`
	TargetMax        int    `json:"targetMax"`
	Justification    string `json:"justification"`
	RequiresApproval bool   `json:"requiresApproval"`
	IsApproved       bool   `json:"isApproved"`
}

// UnassignedStudent reports a student the solver could not place, with reason.
type UnassignedStudent struct {
	StudentID           string                 `json:"studentId"`
	StudentName         string                 `json:"studentName"`
	Category            models.StudentCategory `json:"category"`
	DeterminedLevelID   string                 `json:"determinedLevelId"`
	DeterminedLevelName string                 `json:"determinedLevelName"`
	AssessmentScore     float64                `json:"assessmentScore"`
	Reason              string                 `json:"reason"`
}

// GenerationMetrics summarises one proposal for ranking.
type GenerationMetrics struct {
	TotalClasses           int            `json:"totalClasses"`
	TotalStudentsAssigned  int            `json:"totalStudentsAssigned"`
	UnassignedStudents     int            `json:"unassignedStudents"`
	AverageClassSize       float64        `json:"averageClassSize"`
	TeachersUtilized       int            `json:"teachersUtilized"`
	TotalQualifiedTeachers int            `json:"totalQualifiedTeachers"`
	TotalTeacherSlots      int            `json:"totalTeacherSlots"`
	TeacherUtilizationRate float64        `json:"teacherUtilizationRate"`
	ClassTypeDistribution  map[string]int `json:"classTypeDistribution"`
	WorkloadBalance        float64        `json:"workloadBalance"`
}

// ProposalSnapshot is the full mutable state of a proposal, persisted as JSON.
type ProposalSnapshot struct {
	Classes        []GeneratedClass    `json:"classes"`
	Conflicts      []Conflict          `json:"conflicts"`
	SizeViolations []SizeViolation     `json:"sizeViolations"`
	Unassigned     []UnassignedStudent `json:"unassignedStudents"`
	Metrics        GenerationMetrics   `json:"metrics"`
}

// ProposalResponse is the API shape of a proposal.
type ProposalResponse struct {
	ProposalID        string           `json:"proposalId"`
	TermID            string           `json:"termId"`
	GenerationRun     int              `json:"generationRun"`
	OptimizationScore float64          `json:"optimizationScore"`
	ConflictCount     int              `json:"conflictCount"`
	Snapshot          ProposalSnapshot `json:"snapshot"`
	GeneratedBy       string           `json:"generatedBy"`
	GeneratedAt       time.Time        `json:"generatedAt"`
	IsApproved        bool             `json:"isApproved"`
	CanApprove        bool             `json:"canApprove"`
	ApprovedBy        *string          `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time       `json:"approvedAt,omitempty"`
}

// GenerateRequest is the generation endpoint payload.
type GenerateRequest struct {
	Parameters GenerationParameters `json:"parameters"`
}

// AsyncGenerationAccepted acknowledges a queued generation job.
type AsyncGenerationAccepted struct {
	JobID  string `json:"jobId"`
	TermID string `json:"termId"`
	Status string `json:"status"`
}

// AsyncGenerationStatus reports the state of a queued generation job.
type AsyncGenerationStatus struct {
	JobID      string  `json:"jobId"`
	Status     string  `json:"status"`
	ProposalID *string `json:"proposalId,omitempty"`
	Error      string  `json:"error,omitempty"`
}
