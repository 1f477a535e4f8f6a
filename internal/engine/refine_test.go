package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/models"
)

func refinementSnapshot() dto.ProposalSnapshot {
	c1 := classWithTeacher("c1", "t1", "MONDAY", models.SessionMorning)
	c2 := classWithTeacher("c2", "t2", "TUESDAY", models.SessionMorning)
	c1.Students = []dto.AssignedStudent{
		{StudentID: "s1", StudentName: "Student s1", Category: models.CategoryNew, CanReassign: true},
		{StudentID: "s2", StudentName: "Student s2", Category: models.CategoryExisting, CanReassign: true},
		{StudentID: "s3", StudentName: "Student s3", Category: models.CategoryExisting, CanReassign: false},
	}
	c2.Students = []dto.AssignedStudent{
		{StudentID: "s4", StudentName: "Student s4", Category: models.CategoryExisting, CanReassign: true},
	}
	c1.CurrentSize = 3
	c2.CurrentSize = 1
	return dto.ProposalSnapshot{Classes: []dto.GeneratedClass{c1, c2}}
}

func refinementSlots() []TeacherSlot {
	levels := map[string]Competency{"tahsin-1": {LevelID: "tahsin-1", Tier: models.CompetencySenior}}
	return []TeacherSlot{
		{TeacherID: "t1", TeacherName: "Teacher t1", DayOfWeek: "MONDAY", Session: models.SessionMorning, Available: true, Levels: levels},
		{TeacherID: "t1", TeacherName: "Teacher t1", DayOfWeek: "FRIDAY", Session: models.SessionEvening, Available: true, Levels: levels},
		{TeacherID: "t2", TeacherName: "Teacher t2", DayOfWeek: "TUESDAY", Session: models.SessionMorning, Available: true, Levels: levels},
		{TeacherID: "t3", TeacherName: "Teacher t3", DayOfWeek: "MONDAY", Session: models.SessionMorning, Available: true, Levels: levels},
	}
}

func defaultConstraints() dto.RefinementConstraints {
	return dto.RefinementConstraints{
		MaxStudentMovesPerRun:    5,
		AllowTeacherReassignment: true,
		AllowTimeSlotChanges:     true,
	}
}

func TestApplyEditsMovesStudentAndRecomputesStats(t *testing.T) {
	snapshot := refinementSnapshot()
	edits := []dto.RefinementEdit{
		{Type: dto.EditMoveStudent, StudentID: "s1", FromClassID: "c1", ToClassID: "c2"},
	}

	out, results := ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)

	assert.Equal(t, 2, out.Classes[0].CurrentSize)
	assert.Equal(t, 2, out.Classes[1].CurrentSize)
	assert.Equal(t, 50.0, out.Classes[1].NewStudentPercentage)
	assert.Equal(t, dto.ClassTypeMixed, out.Classes[1].ClassType)

	// Input untouched.
	assert.Equal(t, 3, snapshot.Classes[0].CurrentSize)
	assert.Len(t, snapshot.Classes[0].Students, 3)
}

func TestApplyEditsRejectedEditDoesNotUndoEarlierOnes(t *testing.T) {
	snapshot := refinementSnapshot()
	edits := []dto.RefinementEdit{
		{Type: dto.EditMoveStudent, StudentID: "s1", FromClassID: "c1", ToClassID: "c2"},
		{Type: dto.EditMoveStudent, StudentID: "s3", FromClassID: "c1", ToClassID: "c2"},
	}

	out, results := ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	require.Len(t, results, 2)
	assert.True(t, results[0].Applied)
	assert.False(t, results[1].Applied)
	assert.Contains(t, results[1].Reason, "locked")

	assert.Equal(t, 2, out.Classes[0].CurrentSize)
	assert.Equal(t, 2, out.Classes[1].CurrentSize)
}

func TestApplyEditsEnforcesMoveLimit(t *testing.T) {
	snapshot := refinementSnapshot()
	constraints := defaultConstraints()
	constraints.MaxStudentMovesPerRun = 1
	edits := []dto.RefinementEdit{
		{Type: dto.EditMoveStudent, StudentID: "s1", FromClassID: "c1", ToClassID: "c2"},
		{Type: dto.EditMoveStudent, StudentID: "s2", FromClassID: "c1", ToClassID: "c2"},
	}

	_, results := ApplyEdits(snapshot, edits, constraints, refinementSlots())
	assert.True(t, results[0].Applied)
	assert.False(t, results[1].Applied)
	assert.Contains(t, results[1].Reason, "move limit")
}

func TestApplyEditsRejectsCrossLevelMove(t *testing.T) {
	snapshot := refinementSnapshot()
	snapshot.Classes[1].LevelID = "tahsin-2"
	snapshot.Classes[1].LevelName = "Tahsin 2"
	edits := []dto.RefinementEdit{
		{Type: dto.EditMoveStudent, StudentID: "s1", FromClassID: "c1", ToClassID: "c2"},
	}

	_, results := ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	assert.False(t, results[0].Applied)
	assert.Contains(t, results[0].Reason, "across levels")
}

func TestApplyEditsRejectsMoveIntoFullClass(t *testing.T) {
	snapshot := refinementSnapshot()
	snapshot.Classes[1].MaxSize = 1
	edits := []dto.RefinementEdit{
		{Type: dto.EditMoveStudent, StudentID: "s1", FromClassID: "c1", ToClassID: "c2"},
	}

	_, results := ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	assert.False(t, results[0].Applied)
	assert.Contains(t, results[0].Reason, "maximum")
}

func TestApplyEditsCategoryBalanceGuard(t *testing.T) {
	snapshot := refinementSnapshot()
	constraints := defaultConstraints()
	constraints.MaintainStudentCategoryBalance = true
	constraints.MaxNewStudentRatio = 0.4
	constraints.CategoryBalanceTolerance = 0.0

	// c2 holds one EXISTING student; adding one NEW makes it 50% new.
	edits := []dto.RefinementEdit{
		{Type: dto.EditMoveStudent, StudentID: "s1", FromClassID: "c1", ToClassID: "c2"},
	}
	_, results := ApplyEdits(snapshot, edits, constraints, refinementSlots())
	assert.False(t, results[0].Applied)
	assert.Contains(t, results[0].Reason, "balance")

	constraints.CategoryBalanceTolerance = 0.2
	_, results = ApplyEdits(snapshot, edits, constraints, refinementSlots())
	assert.True(t, results[0].Applied)
}

func TestApplyEditsReassignsTeacherWithoutDoubleBooking(t *testing.T) {
	snapshot := refinementSnapshot()
	edits := []dto.RefinementEdit{
		{Type: dto.EditReassignTeacher, ClassID: "c1", NewTeacherID: "t3"},
	}

	out, results := ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	require.True(t, results[0].Applied)
	require.NotNil(t, out.Classes[0].TeacherID)
	assert.Equal(t, "t3", *out.Classes[0].TeacherID)
	assert.Equal(t, "MONDAY", out.Classes[0].DayOfWeek)

	// t2 already teaches c2 in its only window.
	edits = []dto.RefinementEdit{
		{Type: dto.EditReassignTeacher, ClassID: "c1", NewTeacherID: "t2"},
	}
	_, results = ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	assert.False(t, results[0].Applied)
	assert.Contains(t, results[0].Reason, "already teaches")
}

func TestApplyEditsChangeTimeSlotChecksAvailability(t *testing.T) {
	snapshot := refinementSnapshot()

	edits := []dto.RefinementEdit{
		{Type: dto.EditChangeTimeSlot, ClassID: "c1", NewDayOfWeek: "FRIDAY", NewSession: models.SessionEvening},
	}
	out, results := ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	require.True(t, results[0].Applied)
	assert.Equal(t, "FRIDAY", out.Classes[0].DayOfWeek)
	assert.Equal(t, models.SessionEvening, out.Classes[0].Session)

	edits = []dto.RefinementEdit{
		{Type: dto.EditChangeTimeSlot, ClassID: "c1", NewDayOfWeek: "SUNDAY", NewSession: models.SessionMorning},
	}
	_, results = ApplyEdits(snapshot, edits, defaultConstraints(), refinementSlots())
	assert.False(t, results[0].Applied)
	assert.Contains(t, results[0].Reason, "not available")
}

func TestApplyEditsHonoursConstraintFlags(t *testing.T) {
	snapshot := refinementSnapshot()
	constraints := defaultConstraints()
	constraints.AllowTeacherReassignment = false
	constraints.AllowTimeSlotChanges = false

	edits := []dto.RefinementEdit{
		{Type: dto.EditReassignTeacher, ClassID: "c1", NewTeacherID: "t3"},
		{Type: dto.EditChangeTimeSlot, ClassID: "c1", NewDayOfWeek: "FRIDAY", NewSession: models.SessionEvening},
	}
	_, results := ApplyEdits(snapshot, edits, constraints, refinementSlots())
	assert.False(t, results[0].Applied)
	assert.False(t, results[1].Applied)
}

func TestApplyEditsMoveClearsOversizeViolation(t *testing.T) {
	c1 := classWithTeacher("c1", "t1", "MONDAY", models.SessionMorning)
	c2 := classWithTeacher("c2", "t2", "TUESDAY", models.SessionMorning)
	c1.MinSize, c1.MaxSize = 6, 10
	c2.MinSize, c2.MaxSize = 6, 10
	for i := 0; i < 11; i++ {
		c1.Students = append(c1.Students, dto.AssignedStudent{
			StudentID: fmt.Sprintf("a%02d", i), StudentName: fmt.Sprintf("Student a%02d", i),
			Category: models.CategoryExisting, CanReassign: true,
		})
	}
	for i := 0; i < 4; i++ {
		c2.Students = append(c2.Students, dto.AssignedStudent{
			StudentID: fmt.Sprintf("b%02d", i), StudentName: fmt.Sprintf("Student b%02d", i),
			Category: models.CategoryExisting, CanReassign: true,
		})
	}
	c1.CurrentSize = len(c1.Students)
	c2.CurrentSize = len(c2.Students)
	snapshot := dto.ProposalSnapshot{Classes: []dto.GeneratedClass{c1, c2}}

	before := DetectSizeViolations(snapshot.Classes, false)
	require.Len(t, before, 2)

	out, results := ApplyEdits(snapshot, []dto.RefinementEdit{
		{Type: dto.EditMoveStudent, StudentID: "a00", FromClassID: "c1", ToClassID: "c2"},
	}, defaultConstraints(), nil)
	require.True(t, results[0].Applied)

	after := DetectSizeViolations(out.Classes, false)
	require.Len(t, after, 1)
	assert.Equal(t, dto.ViolationUndersized, after[0].ViolationType)
	assert.Equal(t, "c2", after[0].ClassID)
	assert.Equal(t, 10, out.Classes[0].CurrentSize)
	assert.Equal(t, 5, out.Classes[1].CurrentSize)
}
