package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sahabatquran/classgen-api/internal/dto"
	"github.com/sahabatquran/classgen-api/internal/middleware"
	"github.com/sahabatquran/classgen-api/internal/models"
	"github.com/sahabatquran/classgen-api/internal/service"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
	"github.com/sahabatquran/classgen-api/pkg/response"
)

type readinessService interface {
	Check(ctx context.Context, termID string) (*dto.GenerationReadiness, error)
}

type generationService interface {
	Generate(ctx context.Context, termID, userID string, req dto.GenerateRequest) (*dto.ProposalResponse, error)
	GenerateAsync(ctx context.Context, termID, userID string, req dto.GenerateRequest) (*dto.AsyncGenerationAccepted, error)
	JobStatus(jobID string) (*dto.AsyncGenerationStatus, error)
	List(ctx context.Context, termID string, order models.ProposalOrder, page, pageSize int) ([]dto.ProposalResponse, *models.Pagination, error)
	Get(ctx context.Context, proposalID string) (*dto.ProposalResponse, error)
	Approve(ctx context.Context, proposalID, userID string) (*dto.ProposalResponse, error)
	History(ctx context.Context, filter models.GenerationLogFilter) ([]models.ClassGenerationLog, *models.Pagination, error)
}

type refinementService interface {
	Refine(ctx context.Context, proposalID, userID string, req dto.RefineRequest) (*dto.RefineResponse, error)
}

type exportService interface {
	ExportProposal(ctx context.Context, proposalID, format string) (*service.ExportDocument, error)
}

// ClassGenHandler exposes REST endpoints for the class generation engine.
type ClassGenHandler struct {
	readiness  readinessService
	generation generationService
	refinement refinementService
	exports    exportService
}

// NewClassGenHandler constructs the handler.
func NewClassGenHandler(readiness readinessService, generation generationService, refinement refinementService, exports exportService) *ClassGenHandler {
	return &ClassGenHandler{readiness: readiness, generation: generation, refinement: refinement, exports: exports}
}

// Readiness godoc
// @Summary Check class generation readiness for a term
// @Tags ClassGeneration
// @Produce json
// @Param id path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /terms/{id}/generation/readiness [get]
func (h *ClassGenHandler) Readiness(c *gin.Context) {
	readiness, err := h.readiness.Check(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, readiness, nil)
}

// Generate godoc
// @Summary Generate a class proposal for a term
// @Tags ClassGeneration
// @Accept json
// @Produce json
// @Param id path string true "Term ID"
// @Param async query bool false "Queue the generation and return 202"
// @Param payload body dto.GenerateRequest false "Generation parameters"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /terms/{id}/generation/proposals [post]
func (h *ClassGenHandler) Generate(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.GenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid generation payload"))
			return
		}
	}

	termID := c.Param("id")
	if c.Query("async") == "true" {
		accepted, err := h.generation.GenerateAsync(c.Request.Context(), termID, claims.UserID, req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, accepted)
		return
	}

	proposal, err := h.generation.Generate(c.Request.Context(), termID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// JobStatus godoc
// @Summary Report the state of a queued generation job
// @Tags ClassGeneration
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /generation/jobs/{id} [get]
func (h *ClassGenHandler) JobStatus(c *gin.Context) {
	status, err := h.generation.JobStatus(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ListProposals godoc
// @Summary List a term's proposals
// @Tags ClassGeneration
// @Produce json
// @Param id path string true "Term ID"
// @Param order query string false "Sort order: run or score"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /terms/{id}/generation/proposals [get]
func (h *ClassGenHandler) ListProposals(c *gin.Context) {
	order := models.ProposalOrderByRun
	if c.Query("order") == string(models.ProposalOrderByScore) {
		order = models.ProposalOrderByScore
	}
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	proposals, pagination, err := h.generation.List(c.Request.Context(), c.Param("id"), order, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, pagination)
}

// GetProposal godoc
// @Summary Fetch one proposal with its full snapshot
// @Tags ClassGeneration
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /generation/proposals/{id} [get]
func (h *ClassGenHandler) GetProposal(c *gin.Context) {
	proposal, err := h.generation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// ExportProposal godoc
// @Summary Download a proposal roster as CSV or PDF
// @Tags ClassGeneration
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Proposal ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /generation/proposals/{id}/export [get]
func (h *ClassGenHandler) ExportProposal(c *gin.Context) {
	doc, err := h.exports.ExportProposal(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// Refine godoc
// @Summary Apply manual edits to a proposal
// @Tags ClassGeneration
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.RefineRequest true "Edit batch"
// @Success 200 {object} response.Envelope
// @Router /generation/proposals/{id}/refine [post]
func (h *ClassGenHandler) Refine(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RefineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid refinement payload"))
		return
	}

	result, err := h.refinement.Refine(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approve godoc
// @Summary Approve a proposal as the term's final plan
// @Tags ClassGeneration
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /generation/proposals/{id}/approve [post]
func (h *ClassGenHandler) Approve(c *gin.Context) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	proposal, err := h.generation.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// History godoc
// @Summary List the generation audit trail for a term
// @Tags ClassGeneration
// @Produce json
// @Param id path string true "Term ID"
// @Param action query string false "GENERATION, REFINEMENT or APPROVAL"
// @Param performed_by query string false "User ID"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {object} response.Envelope
// @Router /terms/{id}/generation/log [get]
func (h *ClassGenHandler) History(c *gin.Context) {
	filter := models.GenerationLogFilter{
		TermID:      c.Param("id"),
		ProposalID:  c.Query("proposal_id"),
		PerformedBy: c.Query("performed_by"),
		Page:        queryInt(c, "page", 1),
		PageSize:    queryInt(c, "page_size", 50),
	}
	if raw := c.Query("action"); raw != "" {
		filter.Action = models.GenerationAction(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp"))
			return
		}
		filter.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp"))
			return
		}
		filter.To = &ts
	}

	entries, pagination, err := h.generation.History(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
