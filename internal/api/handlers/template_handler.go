package handlers

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/response"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/templates"
)

var templateCategories = []string{
	models.TemplateGeneral, models.TemplateLead, models.TemplateDeal,
	models.TemplateCustomer, models.TemplateFollowUp,
}

// TemplateHandler handles email template HTTP requests
type TemplateHandler struct {
	templates repository.TemplateRepository
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(templates repository.TemplateRepository) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// TemplateRequest represents the body of a template create or update
type TemplateRequest struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text"`
	Category string `json:"category"`
}

func (r *TemplateRequest) normalize() string {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return "name is required"
	}
	if strings.TrimSpace(r.Subject) == "" {
		return "subject is required"
	}
	if r.BodyHTML == "" && r.BodyText == "" {
		return "body_html or body_text is required"
	}
	if r.Category == "" {
		r.Category = models.TemplateGeneral
	}
	for _, c := range templateCategories {
		if c == r.Category {
			return ""
		}
	}
	return "category must be one of " + strings.Join(templateCategories, ", ")
}

// variableError writes the 400 listing placeholders outside the allow-list
func variableError(c echo.Context, err error) error {
	var verr *templates.VariableError
	if errors.As(err, &verr) {
		return response.BadRequestWithData(c, "template uses unknown variables", map[string]interface{}{
			"invalid_variables": verr.Names,
			"allowed_variables": templates.AllowedVariables,
		})
	}
	return response.Error(c, err)
}

// Create handles POST /api/templates
func (h *TemplateHandler) Create(c echo.Context) error {
	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if msg := req.normalize(); msg != "" {
		return response.BadRequest(c, msg)
	}
	if err := templates.Validate(req.Subject, req.BodyHTML, req.BodyText); err != nil {
		return variableError(c, err)
	}

	id := identity(c)
	userID := id.UserID
	tpl := &models.Template{
		CompanyID: id.CompanyID,
		Name:      req.Name,
		Subject:   req.Subject,
		BodyHTML:  req.BodyHTML,
		BodyText:  req.BodyText,
		Category:  req.Category,
		CreatedBy: &userID,
	}
	if err := h.templates.Create(c.Request().Context(), tpl); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "template name already exists")
		}
		return response.InternalError(c, "failed to create template")
	}
	return response.Created(c, tpl)
}

// List handles GET /api/templates
func (h *TemplateHandler) List(c echo.Context) error {
	list, err := h.templates.List(c.Request().Context(), identity(c).CompanyID, c.QueryParam("category"), c.QueryParam("search"))
	if err != nil {
		return response.InternalError(c, "failed to list templates")
	}
	return response.Success(c, list)
}

// Get handles GET /api/templates/:id
func (h *TemplateHandler) Get(c echo.Context) error {
	tpl, err := h.load(c)
	if err != nil {
		return fail(c, err, "template")
	}
	return response.Success(c, tpl)
}

// Update handles PUT /api/templates/:id
func (h *TemplateHandler) Update(c echo.Context) error {
	tpl, err := h.load(c)
	if err != nil {
		return fail(c, err, "template")
	}

	req := TemplateRequest{
		Name:     tpl.Name,
		Subject:  tpl.Subject,
		BodyHTML: tpl.BodyHTML,
		BodyText: tpl.BodyText,
		Category: tpl.Category,
	}
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if msg := req.normalize(); msg != "" {
		return response.BadRequest(c, msg)
	}
	if err := templates.Validate(req.Subject, req.BodyHTML, req.BodyText); err != nil {
		return variableError(c, err)
	}

	tpl.Name, tpl.Subject, tpl.BodyHTML, tpl.BodyText, tpl.Category = req.Name, req.Subject, req.BodyHTML, req.BodyText, req.Category
	if err := h.templates.Update(c.Request().Context(), tpl); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "template name already exists")
		}
		return response.Error(c, err)
	}
	return response.Success(c, tpl)
}

// Delete handles DELETE /api/templates/:id
func (h *TemplateHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err, "template")
	}
	if err := h.templates.Delete(c.Request().Context(), id, identity(c).CompanyID); err != nil {
		return fail(c, err, "template")
	}
	return response.NoContent(c)
}

// Duplicate handles POST /api/templates/:id/duplicate
func (h *TemplateHandler) Duplicate(c echo.Context) error {
	src, err := h.load(c)
	if err != nil {
		return fail(c, err, "template")
	}

	userID := identity(c).UserID
	dup := &models.Template{
		CompanyID: src.CompanyID,
		Name:      src.Name + " Copy",
		Subject:   src.Subject,
		BodyHTML:  src.BodyHTML,
		BodyText:  src.BodyText,
		Category:  src.Category,
		CreatedBy: &userID,
	}
	if err := h.templates.Create(c.Request().Context(), dup); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "template name already exists")
		}
		return response.InternalError(c, "failed to duplicate template")
	}
	return response.Created(c, dup)
}

// PreviewRequest carries a template draft and sample values
type PreviewRequest struct {
	Subject    string            `json:"subject"`
	BodyHTML   string            `json:"body_html"`
	BodyText   string            `json:"body_text"`
	SampleData map[string]string `json:"sample_data"`
}

// Preview handles POST /api/templates/preview
func (h *TemplateHandler) Preview(c echo.Context) error {
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if err := templates.Validate(req.Subject, req.BodyHTML, req.BodyText); err != nil {
		return variableError(c, err)
	}

	id := identity(c)
	vars := templates.WithSample(templates.DefaultContext(id.CompanyName, id.UserName), req.SampleData)
	out := templates.Render(&models.Template{Subject: req.Subject, BodyHTML: req.BodyHTML, BodyText: req.BodyText}, vars)
	return response.Success(c, map[string]string{
		"subject":   out.Subject,
		"body_html": out.BodyHTML,
		"body_text": out.BodyText,
	})
}

func (h *TemplateHandler) load(c echo.Context) (*models.Template, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.templates.GetForCompany(c.Request().Context(), id, identity(c).CompanyID)
}
