package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-core/internal/api/dto"
	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/internal/identity"
	"github.com/spec-kit/itsm-core/internal/repository"
	"github.com/spec-kit/itsm-core/internal/service"
	"github.com/spec-kit/itsm-core/internal/workflow"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	intake    *service.IntakeService
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(intake *service.IntakeService, lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{intake: intake, lifecycle: lifecycle}
}

// SubmitTicket POST /tickets.
func (h *TicketsHandler) SubmitTicket(c *fiber.Ctx) error {
	principal := identity.PrincipalFromContext(c)
	if principal == nil {
		return util.NewUnauthorized("user required")
	}
	var req dto.SubmitTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	result, err := h.intake.Submit(c.UserContext(), service.SubmitInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		TypeHint:    req.TypeHint,
		Priority:    req.Priority,
		RequesterID: principal.UserID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetail(result.Ticket, result.Workflow)})
}

// Transition POST /tickets/:id/transitions.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal := identity.PrincipalFromContext(c)
	if principal == nil {
		return util.NewUnauthorized("user required")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	result, err := h.lifecycle.Transition(c.UserContext(), service.TransitionInput{
		TicketID:        c.Params("id"),
		Action:          workflow.Action(req.Action),
		ActorID:         principal.UserID,
		ExpectedVersion: req.ExpectedVersion,
		AssigneeID:      req.AssigneeID,
		Resolution:      req.Resolution,
		RootCause:       req.RootCause,
		Reason:          req.Reason,
		IncidentID:      req.IncidentID,
		RiskLevel:       req.RiskLevel,
		RollbackPlan:    req.RollbackPlan,
		Comment:         req.Comment,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(result.Ticket, result.Workflow)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, instance, err := h.lifecycle.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, instance)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.lifecycle.ListTickets(c.UserContext(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetDuplicateCandidates GET /tickets/:id/duplicates.
func (h *TicketsHandler) GetDuplicateCandidates(c *fiber.Ctx) error {
	candidates, err := h.lifecycle.GetDuplicateCandidates(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.DuplicateCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, dto.DuplicateCandidate{TicketID: candidate.TicketID, Score: candidate.Score})
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetAuditTrail GET /tickets/:id/audit.
func (h *TicketsHandler) GetAuditTrail(c *fiber.Ctx) error {
	entries, err := h.lifecycle.GetAuditTrail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.AuditEntryResponse{
			ID:             entry.ID,
			ActorID:        entry.ActorID,
			Action:         entry.Action,
			BeforeSnapshot: entry.BeforeSnapshot,
			AfterSnapshot:  entry.AfterSnapshot,
			Timestamp:      entry.Timestamp,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if category := c.Query("category"); category != "" {
		filter.Category = &category
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if requester := c.Query("requester_id"); requester != "" {
		filter.RequesterID = &requester
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:                ticket.ID,
		Title:             ticket.Title,
		Category:          ticket.Category,
		Priority:          ticket.Priority,
		Status:            ticket.Status,
		RoutedWorkflow:    ticket.RoutedWorkflow,
		RoutingConfidence: ticket.RoutingConfidence,
		ManualTriage:      ticket.ManualTriage,
		AssigneeID:        ticket.AssigneeID,
		Version:           ticket.Version,
		CreatedAt:         ticket.CreatedAt,
		UpdatedAt:         ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, instance *domain.WorkflowInstance) dto.TicketDetailResponse {
	candidates := make([]dto.DuplicateCandidate, 0, len(ticket.DuplicateCandidates))
	for _, candidate := range ticket.DuplicateCandidates {
		candidates = append(candidates, dto.DuplicateCandidate{TicketID: candidate.TicketID, Score: candidate.Score})
	}
	return dto.TicketDetailResponse{
		TicketSummary:       ticketSummary(ticket),
		Description:         ticket.Description,
		RequesterID:         ticket.RequesterID,
		DuplicateCandidates: candidates,
		Workflow: dto.WorkflowResponse{
			ID:      instance.ID,
			Type:    instance.Type,
			State:   instance.State,
			Details: instance.Details(),
		},
	}
}
