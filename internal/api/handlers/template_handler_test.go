package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/welldanyogia/webrana-crm-mail/internal/mocks"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

// TemplateHandlerTestSuite is the test suite for TemplateHandler
type TemplateHandlerTestSuite struct {
	suite.Suite
	echo         *echo.Echo
	handler      *TemplateHandler
	templateRepo *mocks.MockTemplateRepository
}

func (s *TemplateHandlerTestSuite) SetupTest() {
	s.echo = echo.New()
	s.templateRepo = new(mocks.MockTemplateRepository)
	s.handler = NewTemplateHandler(s.templateRepo)
}

func (s *TemplateHandlerTestSuite) TearDownTest() {
	s.templateRepo.AssertExpectations(s.T())
}

func TestTemplateHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(TemplateHandlerTestSuite))
}

func (s *TemplateHandlerTestSuite) template(id uint) *models.Template {
	return &models.Template{
		ID:        id,
		CompanyID: testCompanyID,
		Name:      "Welcome",
		Subject:   "Welcome {customer_name}",
		BodyHTML:  "<p>Thanks from {company_name}</p>",
		Category:  models.TemplateCustomer,
	}
}

// ==================== Create Tests ====================

func (s *TemplateHandlerTestSuite) TestCreate_Success() {
	body := `{"name":" Welcome ","subject":"Hi {customer_name}","body_html":"<p>{user_name}</p>"}`
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates", body)
	s.templateRepo.On("Create", mock.Anything, mock.MatchedBy(func(t *models.Template) bool {
		return t.CompanyID == testCompanyID &&
			t.Name == "Welcome" &&
			t.Category == models.TemplateGeneral &&
			t.CreatedBy != nil && *t.CreatedBy == testUserID
	})).Return(nil)

	s.NoError(s.handler.Create(c))
	s.Equal(http.StatusCreated, rec.Code)
}

func (s *TemplateHandlerTestSuite) TestCreate_UnknownVariables() {
	body := `{"name":"Bad","subject":"Hi {first_name}","body_text":"{password}"}`
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates", body)

	s.NoError(s.handler.Create(c))
	s.Equal(http.StatusBadRequest, rec.Code)

	var data struct {
		Invalid []string `json:"invalid_variables"`
		Allowed []string `json:"allowed_variables"`
	}
	s.Require().NoError(json.Unmarshal(decode(rec).Data, &data))
	s.Equal([]string{"first_name", "password"}, data.Invalid)
	s.Contains(data.Allowed, "customer_name")
	s.templateRepo.AssertNotCalled(s.T(), "Create", mock.Anything, mock.Anything)
}

func (s *TemplateHandlerTestSuite) TestCreate_ValidationErrors() {
	cases := map[string]string{
		"missing name":     `{"subject":"s","body_text":"b"}`,
		"missing subject":  `{"name":"n","body_text":"b"}`,
		"missing body":     `{"name":"n","subject":"s"}`,
		"unknown category": `{"name":"n","subject":"s","body_text":"b","category":"spam"}`,
		"malformed":        `{"name":`,
	}
	for name, body := range cases {
		c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates", body)
		s.NoError(s.handler.Create(c))
		s.Equal(http.StatusBadRequest, rec.Code, name)
	}
}

func (s *TemplateHandlerTestSuite) TestCreate_DuplicateName() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates", `{"name":"Welcome","subject":"s","body_text":"b"}`)
	s.templateRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	s.NoError(s.handler.Create(c))
	s.Equal(http.StatusConflict, rec.Code)
}

// ==================== Read / Update / Delete Tests ====================

func (s *TemplateHandlerTestSuite) TestList_PassesFilters() {
	c, rec := newTestContext(s.echo, http.MethodGet, "/api/templates?category=lead&search=intro", "")
	s.templateRepo.On("List", mock.Anything, testCompanyID, "lead", "intro").Return([]models.Template{*s.template(1)}, nil)

	s.NoError(s.handler.List(c))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *TemplateHandlerTestSuite) TestGet_OtherCompany() {
	c, rec := newTestContext(s.echo, http.MethodGet, "/api/templates/3", "", "id", "3")
	s.templateRepo.On("GetForCompany", mock.Anything, uint(3), testCompanyID).Return(nil, repository.ErrNotFound)

	s.NoError(s.handler.Get(c))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *TemplateHandlerTestSuite) TestUpdate_PartialBodyKeepsFields() {
	c, rec := newTestContext(s.echo, http.MethodPut, "/api/templates/1", `{"subject":"Welcome aboard {customer_name}"}`, "id", "1")
	s.templateRepo.On("GetForCompany", mock.Anything, uint(1), testCompanyID).Return(s.template(1), nil)
	s.templateRepo.On("Update", mock.Anything, mock.MatchedBy(func(t *models.Template) bool {
		return t.Name == "Welcome" &&
			t.Subject == "Welcome aboard {customer_name}" &&
			t.BodyHTML == "<p>Thanks from {company_name}</p>" &&
			t.Category == models.TemplateCustomer
	})).Return(nil)

	s.NoError(s.handler.Update(c))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *TemplateHandlerTestSuite) TestUpdate_UnknownVariables() {
	c, rec := newTestContext(s.echo, http.MethodPut, "/api/templates/1", `{"body_html":"{ssn}"}`, "id", "1")
	s.templateRepo.On("GetForCompany", mock.Anything, uint(1), testCompanyID).Return(s.template(1), nil)

	s.NoError(s.handler.Update(c))
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "ssn")
}

func (s *TemplateHandlerTestSuite) TestDelete() {
	c, rec := newTestContext(s.echo, http.MethodDelete, "/api/templates/1", "", "id", "1")
	s.templateRepo.On("Delete", mock.Anything, uint(1), testCompanyID).Return(nil)

	s.NoError(s.handler.Delete(c))
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *TemplateHandlerTestSuite) TestDelete_NotFound() {
	c, rec := newTestContext(s.echo, http.MethodDelete, "/api/templates/1", "", "id", "1")
	s.templateRepo.On("Delete", mock.Anything, uint(1), testCompanyID).Return(repository.ErrNotFound)

	s.NoError(s.handler.Delete(c))
	s.Equal(http.StatusNotFound, rec.Code)
}

// ==================== Duplicate / Preview Tests ====================

func (s *TemplateHandlerTestSuite) TestDuplicate() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates/1/duplicate", "", "id", "1")
	s.templateRepo.On("GetForCompany", mock.Anything, uint(1), testCompanyID).Return(s.template(1), nil)
	s.templateRepo.On("Create", mock.Anything, mock.MatchedBy(func(t *models.Template) bool {
		return t.ID == 0 && t.Name == "Welcome Copy" && t.Subject == "Welcome {customer_name}"
	})).Return(nil)

	s.NoError(s.handler.Duplicate(c))
	s.Equal(http.StatusCreated, rec.Code)
}

func (s *TemplateHandlerTestSuite) TestDuplicate_CopyExists() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates/1/duplicate", "", "id", "1")
	s.templateRepo.On("GetForCompany", mock.Anything, uint(1), testCompanyID).Return(s.template(1), nil)
	s.templateRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	s.NoError(s.handler.Duplicate(c))
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *TemplateHandlerTestSuite) TestPreview_UsesIdentityAndSample() {
	body := `{"subject":"Hi {customer_name}","body_text":"{user_name} at {company_name}","sample_data":{"customer_name":"Ana","secret":"x"}}`
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates/preview", body)

	s.NoError(s.handler.Preview(c))
	s.Equal(http.StatusOK, rec.Code)

	var out map[string]string
	s.Require().NoError(json.Unmarshal(decode(rec).Data, &out))
	s.Equal("Hi Ana", out["subject"])
	s.Equal("Dana at Acme", out["body_text"])
}

func (s *TemplateHandlerTestSuite) TestPreview_UnknownVariables() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/templates/preview", `{"subject":"{nope}"}`)

	s.NoError(s.handler.Preview(c))
	s.Equal(http.StatusBadRequest, rec.Code)
}
