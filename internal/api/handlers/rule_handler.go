package handlers

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/response"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

// RuleHandler handles automation rule HTTP requests
type RuleHandler struct {
	rules     repository.RuleRepository
	templates repository.TemplateRepository
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(rules repository.RuleRepository, templates repository.TemplateRepository) *RuleHandler {
	return &RuleHandler{rules: rules, templates: templates}
}

// CreateRuleRequest represents the request body for creating a rule
type CreateRuleRequest struct {
	Name       string                `json:"name"`
	Trigger    string                `json:"trigger"`
	Conditions models.RuleConditions `json:"conditions"`
	Actions    models.RuleActions    `json:"actions"`
	IsActive   *bool                 `json:"is_active"`
}

// Create handles POST /api/rules
func (h *RuleHandler) Create(c echo.Context) error {
	var req CreateRuleRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return response.BadRequest(c, "name is required")
	}
	if req.Trigger == "" {
		req.Trigger = models.TriggerInbound
	}
	if req.Trigger != models.TriggerInbound {
		return response.BadRequest(c, "trigger must be inbound")
	}
	req.Conditions.Keywords = cleanList(req.Conditions.Keywords)
	if len(req.Conditions.Keywords) == 0 {
		return response.BadRequest(c, "at least one keyword is required")
	}
	if req.Actions.Action != models.ActionSendTemplate {
		return response.BadRequest(c, "action must be send_template")
	}

	companyID := identity(c).CompanyID
	ctx := c.Request().Context()
	if _, err := h.templates.GetForCompany(ctx, req.Actions.TemplateID, companyID); err != nil {
		return fail(c, err, "template")
	}

	rule := &models.Rule{
		CompanyID:  companyID,
		Name:       req.Name,
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		IsActive:   true,
	}
	if err := h.rules.Create(ctx, rule); err != nil {
		return response.InternalError(c, "failed to create rule")
	}
	// is_active defaults to true in the schema, so a disabled rule is switched off after insert
	if req.IsActive != nil && !*req.IsActive {
		if err := h.rules.SetActive(ctx, rule.ID, companyID, false); err != nil {
			return response.Error(c, err)
		}
		rule.IsActive = false
	}
	return response.Created(c, rule)
}

// List handles GET /api/rules
func (h *RuleHandler) List(c echo.Context) error {
	rules, err := h.rules.List(c.Request().Context(), identity(c).CompanyID)
	if err != nil {
		return response.InternalError(c, "failed to list rules")
	}
	return response.Success(c, rules)
}

// SetActiveRequest toggles a rule
type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// SetActive handles PATCH /api/rules/:id/active
func (h *RuleHandler) SetActive(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err, "rule")
	}
	var req SetActiveRequest
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return response.BadRequest(c, "is_active is required")
	}
	if err := h.rules.SetActive(c.Request().Context(), id, identity(c).CompanyID, *req.IsActive); err != nil {
		return fail(c, err, "rule")
	}
	return response.Success(c, map[string]interface{}{"id": id, "is_active": *req.IsActive})
}

// Delete handles DELETE /api/rules/:id
func (h *RuleHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err, "rule")
	}
	if err := h.rules.Delete(c.Request().Context(), id, identity(c).CompanyID); err != nil {
		return fail(c, err, "rule")
	}
	return response.NoContent(c)
}
