package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sahabatquran/classgen-api/internal/models"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
	"github.com/sahabatquran/classgen-api/pkg/export"
)

// Export formats accepted by ExportProposal.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportProposalReader interface {
	FindByID(ctx context.Context, proposalID string) (*models.GeneratedClassProposal, error)
}

// ExportDocument is a rendered proposal roster ready to stream to the client.
type ExportDocument struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders proposal rosters as downloadable documents for
// coordination meetings and printed handouts.
type ExportService struct {
	proposals exportProposalReader
	logger    *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(proposals exportProposalReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{proposals: proposals, logger: logger}
}

// ExportProposal renders one proposal's full class roster in the requested
// format, one row per assigned student.
func (s *ExportService) ExportProposal(ctx context.Context, proposalID, format string) (*ExportDocument, error) {
	proposal, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load proposal")
	}

	snapshot, err := decodeSnapshot(proposal.ProposalData)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title: fmt.Sprintf("Class Proposal - Run %d", proposal.GenerationRun),
		Subtitle: fmt.Sprintf("Term %s | score %.1f | %d classes | %d unassigned",
			proposal.TermID, proposal.OptimizationScore,
			len(snapshot.Classes), len(snapshot.Unassigned)),
		Columns: []string{"Class", "Level", "Teacher", "Day", "Session", "Student", "Category", "Grade"},
	}

	for _, class := range snapshot.Classes {
		teacher := class.TeacherName
		if teacher == "" {
			teacher = "(unassigned)"
		}
		for _, student := range class.Students {
			table.Rows = append(table.Rows, []string{
				class.ClassName,
				class.LevelName,
				teacher,
				class.DayOfWeek,
				class.Session,
				student.StudentName,
				string(student.Category),
				student.AssessmentGrade,
			})
		}
	}
	for _, student := range snapshot.Unassigned {
		table.Rows = append(table.Rows, []string{
			"(unassigned)",
			student.DeterminedLevelName,
			"",
			"",
			"",
			student.StudentName,
			string(student.Category),
			"",
		})
	}

	switch strings.ToLower(format) {
	case ExportFormatCSV, "":
		body, err := export.CSV(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv")
		}
		return &ExportDocument{
			Filename:    fmt.Sprintf("proposal-run-%d.csv", proposal.GenerationRun),
			ContentType: "text/csv",
			Body:        body,
		}, nil
	case ExportFormatPDF:
		body, err := export.PDF(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf")
		}
		return &ExportDocument{
			Filename:    fmt.Sprintf("proposal-run-%d.pdf", proposal.GenerationRun),
			ContentType: "application/pdf",
			Body:        body,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
