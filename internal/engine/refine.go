package engine

import (
	"fmt"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/models"
)

// ApplyEdits applies a batch of manual edits to a snapshot copy, validating
// each edit against the current (possibly already edited) state. An invalid
// edit is rejected with a reason and skipped; earlier applied edits stay in
// place. The input snapshot is never mutated.
func ApplyEdits(snapshot dto.ProposalSnapshot, edits []dto.RefinementEdit, constraints dto.RefinementConstraints, slots []TeacherSlot) (dto.ProposalSnapshot, []dto.EditResult) {
	working := cloneSnapshot(snapshot)
	results := make([]dto.EditResult, 0, len(edits))
	moves := 0

	for i, edit := range edits {
		var err error
		switch edit.Type {
		case dto.EditMoveStudent:
			if constraints.MaxStudentMovesPerRun > 0 && moves >= constraints.MaxStudentMovesPerRun {
				err = fmt.Errorf("student move limit of %d reached", constraints.MaxStudentMovesPerRun)
				break
			}
			if err = applyMoveStudent(&working, edit, constraints); err == nil {
				moves++
			}
		case dto.EditReassignTeacher:
			if !constraints.AllowTeacherReassignment {
				err = fmt.Errorf("teacher reassignment is not allowed")
				break
			}
			err = applyReassignTeacher(&working, edit, slots)
		case dto.EditChangeTimeSlot:
			if !constraints.AllowTimeSlotChanges {
				err = fmt.Errorf("time slot changes are not allowed")
				break
			}
			err = applyChangeTimeSlot(&working, edit, slots)
		default:
			err = fmt.Errorf("unknown edit type %q", edit.Type)
		}

		result := dto.EditResult{Index: i, Edit: edit, Applied: err == nil}
		if err != nil {
			result.Reason = err.Error()
		}
		results = append(results, result)
	}

	for i := range working.Classes {
		recomputeClassStats(&working.Classes[i])
	}
	return working, results
}

func applyMoveStudent(snapshot *dto.ProposalSnapshot, edit dto.RefinementEdit, constraints dto.RefinementConstraints) error {
	from := findClass(snapshot, edit.FromClassID)
	if from == nil {
		return fmt.Errorf("source class %s not found", edit.FromClassID)
	}
	to := findClass(snapshot, edit.ToClassID)
	if to == nil {
		return fmt.Errorf("target class %s not found", edit.ToClassID)
	}
	if from.ClassID == to.ClassID {
		return fmt.Errorf("source and target class are the same")
	}
	if from.LevelID != to.LevelID {
		return fmt.Errorf("cannot move a student across levels (%s to %s)", from.LevelName, to.LevelName)
	}

	idx := -1
	for i, st := range from.Students {
		if st.StudentID == edit.StudentID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("student %s is not in class %s", edit.StudentID, from.ClassName)
	}
	student := from.Students[idx]
	if !student.CanReassign {
		return fmt.Errorf("student %s is locked and cannot be moved", student.StudentName)
	}
	if len(to.Students) >= to.MaxSize {
		return fmt.Errorf("target class %s is at its maximum of %d", to.ClassName, to.MaxSize)
	}
	if constraints.MaintainStudentCategoryBalance && student.Category == models.CategoryNew {
		newCount := 1
		for _, st := range to.Students {
			if st.Category == models.CategoryNew {
				newCount++
			}
		}
		ratio := float64(newCount) / float64(len(to.Students)+1)
		limit := constraints.MaxNewStudentRatio + constraints.CategoryBalanceTolerance
		if limit > 0 && ratio > limit {
			return fmt.Errorf("move would push %s past the new-student balance limit", to.ClassName)
		}
	}

	from.Students = append(from.Students[:idx], from.Students[idx+1:]...)
	to.Students = append(to.Students, student)
	return nil
}

func applyReassignTeacher(snapshot *dto.ProposalSnapshot, edit dto.RefinementEdit, slots []TeacherSlot) error {
	cls := findClass(snapshot, edit.ClassID)
	if cls == nil {
		return fmt.Errorf("class %s not found", edit.ClassID)
	}

	var candidate *TeacherSlot
	for i, slot := range slots {
		if slot.TeacherID != edit.NewTeacherID || !slot.Available {
			continue
		}
		if _, ok := slot.Levels[cls.LevelID]; !ok {
			return fmt.Errorf("teacher %s is not qualified for level %s", slot.TeacherName, cls.LevelName)
		}
		// Prefer keeping the class's current window if the teacher has it.
		if cls.DayOfWeek != "" && slot.DayOfWeek == cls.DayOfWeek && slot.Session == cls.Session {
			candidate = &slots[i]
			break
		}
		if candidate == nil {
			candidate = &slots[i]
		}
	}
	if candidate == nil {
		return fmt.Errorf("teacher %s has no available slot for level %s", edit.NewTeacherID, cls.LevelName)
	}
	if other := classAtWindow(snapshot, candidate.TeacherID, candidate.DayOfWeek, candidate.Session); other != nil && other.ClassID != cls.ClassID {
		return fmt.Errorf("teacher %s already teaches %s at %s %s", candidate.TeacherName, other.ClassName, candidate.DayOfWeek, candidate.Session)
	}

	teacherID := candidate.TeacherID
	cls.TeacherID = &teacherID
	cls.TeacherName = candidate.TeacherName
	cls.DayOfWeek = candidate.DayOfWeek
	cls.Session = candidate.Session
	return nil
}

func applyChangeTimeSlot(snapshot *dto.ProposalSnapshot, edit dto.RefinementEdit, slots []TeacherSlot) error {
	cls := findClass(snapshot, edit.ClassID)
	if cls == nil {
		return fmt.Errorf("class %s not found", edit.ClassID)
	}
	if cls.TeacherID == nil {
		return fmt.Errorf("class %s has no teacher to reschedule", cls.ClassName)
	}

	available := false
	for _, slot := range slots {
		if slot.TeacherID == *cls.TeacherID && slot.DayOfWeek == edit.NewDayOfWeek && slot.Session == edit.NewSession && slot.Available {
			available = true
			break
		}
	}
	if !available {
		return fmt.Errorf("%s is not available on %s %s", cls.TeacherName, edit.NewDayOfWeek, edit.NewSession)
	}
	if other := classAtWindow(snapshot, *cls.TeacherID, edit.NewDayOfWeek, edit.NewSession); other != nil && other.ClassID != cls.ClassID {
		return fmt.Errorf("%s already teaches %s at %s %s", cls.TeacherName, other.ClassName, edit.NewDayOfWeek, edit.NewSession)
	}

	cls.DayOfWeek = edit.NewDayOfWeek
	cls.Session = edit.NewSession
	return nil
}

func findClass(snapshot *dto.ProposalSnapshot, classID string) *dto.GeneratedClass {
	for i := range snapshot.Classes {
		if snapshot.Classes[i].ClassID == classID {
			return &snapshot.Classes[i]
		}
	}
	return nil
}

func classAtWindow(snapshot *dto.ProposalSnapshot, teacherID, day, session string) *dto.GeneratedClass {
	for i := range snapshot.Classes {
		cls := &snapshot.Classes[i]
		if cls.TeacherID != nil && *cls.TeacherID == teacherID && cls.DayOfWeek == day && cls.Session == session {
			return cls
		}
	}
	return nil
}

func recomputeClassStats(cls *dto.GeneratedClass) {
	cls.CurrentSize = len(cls.Students)
	newCount := 0
	var notes []string
	for _, st := range cls.Students {
		if st.Category == models.CategoryNew {
			newCount++
		}
		if st.SpecialNeeds != nil && *st.SpecialNeeds != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", st.StudentName, *st.SpecialNeeds))
		}
	}
	cls.ClassType = classType(newCount, len(cls.Students))
	cls.NewStudentPercentage = newPercentage(newCount, len(cls.Students))
	cls.SpecialNotes = notes
}

func cloneSnapshot(snapshot dto.ProposalSnapshot) dto.ProposalSnapshot {
	out := snapshot
	out.Classes = make([]dto.GeneratedClass, len(snapshot.Classes))
	for i, cls := range snapshot.Classes {
		copied := cls
		copied.Students = append([]dto.AssignedStudent(nil), cls.Students...)
		copied.SpecialNotes = append([]string(nil), cls.SpecialNotes...)
		if cls.TeacherID != nil {
			id := *cls.TeacherID
			copied.TeacherID = &id
		}
		out.Classes[i] = copied
	}
	out.Conflicts = append([]dto.Conflict(nil), snapshot.Conflicts...)
	out.SizeViolations = append([]dto.SizeViolation(nil), snapshot.SizeViolations...)
	out.Unassigned = append([]dto.UnassignedStudent(nil), snapshot.Unassigned...)
	return out
}
