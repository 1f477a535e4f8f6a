package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahabatquran/classgen-api/internal/dto"
)

// DetectConflicts inspects a class list for scheduling incompatibilities.
// Conflicts are derived entirely from the class list each call, never carried
// over from a previous run, so resolved ones disappear on re-detection.
func DetectConflicts(classes []dto.GeneratedClass, slots []TeacherSlot) []dto.Conflict {
	conflicts := make([]dto.Conflict, 0)

	// Teacher double-booking: two classes sharing teacher, day and session.
	byWindow := make(map[string][]dto.GeneratedClass)
	for _, cls := range classes {
		if cls.TeacherID == nil || cls.DayOfWeek == "" || cls.Session == "" {
			continue
		}
		key := *cls.TeacherID + "|" + cls.DayOfWeek + "|" + cls.Session
		byWindow[key] = append(byWindow[key], cls)
	}
	keys := make([]string, 0, len(byWindow))
	for k := range byWindow {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		group := byWindow[k]
		if len(group) < 2 {
			continue
		}
		ids := make([]string, 0, len(group))
		names := make([]string, 0, len(group))
		for _, cls := range group {
			ids = append(ids, cls.ClassID)
			names = append(names, cls.ClassName)
		}
		conflicts = append(conflicts, dto.Conflict{
			Type:     dto.ConflictTeacherDoubleBooking,
			Severity: dto.SeverityHigh,
			Description: fmt.Sprintf("%s is scheduled for %d classes at %s %s: %s",
				group[0].TeacherName, len(group), group[0].DayOfWeek, group[0].Session, strings.Join(names, ", ")),
			AffectedClassIDs:  ids,
			ResolutionOptions: []string{"Reassign one class to another teacher", "Move one class to a different time slot"},
		})
	}

	// Classes left without any teacher.
	for _, cls := range classes {
		if cls.TeacherID != nil {
			continue
		}
		conflicts = append(conflicts, dto.Conflict{
			Type:     dto.ConflictNoTeacherAvailable,
			Severity: dto.SeverityHigh,
			Description: fmt.Sprintf("No qualified teacher with a free slot for %s (level %s)",
				cls.ClassName, cls.LevelName),
			AffectedClassIDs:  []string{cls.ClassID},
			ResolutionOptions: resolutionCandidates(cls, classes, slots),
		})
	}

	// Students appearing in more than one class.
	seen := make(map[string][]dto.GeneratedClass)
	for _, cls := range classes {
		for _, st := range cls.Students {
			seen[st.StudentID] = append(seen[st.StudentID], cls)
		}
	}
	studentIDs := make([]string, 0, len(seen))
	for id := range seen {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)
	for _, id := range studentIDs {
		group := seen[id]
		if len(group) < 2 {
			continue
		}
		ids := make([]string, 0, len(group))
		for _, cls := range group {
			ids = append(ids, cls.ClassID)
		}
		conflicts = append(conflicts, dto.Conflict{
			Type:              dto.ConflictStudent,
			Severity:          dto.SeverityHigh,
			Description:       fmt.Sprintf("Student %s is assigned to %d classes", id, len(group)),
			AffectedClassIDs:  ids,
			ResolutionOptions: []string{"Remove the student from all but one class"},
		})
	}

	return conflicts
}

// resolutionCandidates lists teachers qualified for the class's level who
// still have an unconsumed window, as hints for manual refinement.
func resolutionCandidates(cls dto.GeneratedClass, classes []dto.GeneratedClass, slots []TeacherSlot) []string {
	used := make(map[string]bool)
	for _, c := range classes {
		if c.TeacherID != nil && c.DayOfWeek != "" && c.Session != "" {
			used[*c.TeacherID+"|"+c.DayOfWeek+"|"+c.Session] = true
		}
	}
	var opts []string
	listed := make(map[string]bool)
	for _, slot := range slots {
		if !slot.Available || listed[slot.TeacherID] {
			continue
		}
		if _, ok := slot.Levels[cls.LevelID]; !ok {
			continue
		}
		if used[slotKey(slot.TeacherID, slot.DayOfWeek, slot.Session)] {
			continue
		}
		opts = append(opts, fmt.Sprintf("Assign %s (%s %s)", slot.TeacherName, slot.DayOfWeek, slot.Session))
		listed[slot.TeacherID] = true
	}
	if len(opts) == 0 {
		opts = []string{"Add teacher availability or level assignments for this level"}
	}
	return opts
}

// DetectSizeViolations flags classes outside their size bounds. Severity
// scales with how far outside the bounds the class sits. Undersized classes
// permitted by parameters are reported LOW and pre-approved so they do not
// block the proposal.
func DetectSizeViolations(classes []dto.GeneratedClass, allowUndersized bool) []dto.SizeViolation {
	violations := make([]dto.SizeViolation, 0)
	for _, cls := range classes {
		switch {
		case cls.CurrentSize < cls.MinSize:
			v := dto.SizeViolation{
				ClassID:       cls.ClassID,
				ClassName:     cls.ClassName,
				ViolationType: dto.ViolationUndersized,
				Severity:      distanceSeverity(cls.MinSize - cls.CurrentSize),
				CurrentSize:   cls.CurrentSize,
				TargetMin:     cls.MinSize,
				TargetMax:     cls.MaxSize,
				Justification: fmt.Sprintf("%d students below the minimum of %d", cls.MinSize-cls.CurrentSize, cls.MinSize),
			}
			if allowUndersized {
				v.Severity = dto.SeverityLow
				v.IsApproved = true
			} else {
				v.RequiresApproval = true
			}
			violations = append(violations, v)
		case cls.CurrentSize > cls.MaxSize:
			violations = append(violations, dto.SizeViolation{
				ClassID:          cls.ClassID,
				ClassName:        cls.ClassName,
				ViolationType:    dto.ViolationOversized,
				Severity:         distanceSeverity(cls.CurrentSize - cls.MaxSize),
				CurrentSize:      cls.CurrentSize,
				TargetMin:        cls.MinSize,
				TargetMax:        cls.MaxSize,
				Justification:    fmt.Sprintf("%d students above the maximum of %d", cls.CurrentSize-cls.MaxSize, cls.MaxSize),
				RequiresApproval: true,
			})
		}
	}
	return violations
}

func distanceSeverity(distance int) string {
	switch {
	case distance >= 3:
		return dto.SeverityHigh
	case distance == 2:
		return dto.SeverityMedium
	default:
		return dto.SeverityLow
	}
}
