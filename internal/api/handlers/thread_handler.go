package handlers

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/response"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ThreadHandler handles thread-related HTTP requests
type ThreadHandler struct {
	threads repository.ThreadRepository
	now     func() time.Time
}

// NewThreadHandler creates a new ThreadHandler
func NewThreadHandler(threads repository.ThreadRepository) *ThreadHandler {
	return &ThreadHandler{threads: threads, now: time.Now}
}

// List handles GET /api/threads
func (h *ThreadHandler) List(c echo.Context) error {
	isRead, err := queryBool(c, "read")
	if err != nil {
		return response.BadRequest(c, "read must be true or false")
	}
	isStarred, err := queryBool(c, "starred")
	if err != nil {
		return response.BadRequest(c, "starred must be true or false")
	}
	category := c.QueryParam("category")
	if category != "" && !knownCategory(category) {
		return response.BadRequest(c, "unknown category")
	}

	filter := repository.ThreadFilter{
		UserID:    identity(c).UserID,
		IsRead:    isRead,
		IsStarred: isStarred,
		Category:  category,
		Limit:     queryInt(c, "limit", defaultPageSize, maxPageSize),
		Offset:    queryInt(c, "offset", 0, 0),
	}
	threads, total, err := h.threads.List(c.Request().Context(), filter)
	if err != nil {
		return response.InternalError(c, "failed to list threads")
	}
	return response.Paginated(c, threads, total, filter.Limit, filter.Offset)
}

// Search handles GET /api/threads/search?q=
func (h *ThreadHandler) Search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return response.BadRequest(c, "q is required")
	}
	threads, err := h.threads.Search(c.Request().Context(), identity(c).UserID, q, queryInt(c, "limit", defaultPageSize, maxPageSize))
	if err != nil {
		return response.InternalError(c, "failed to search threads")
	}
	return response.Success(c, threads)
}

// Categories handles GET /api/threads/categories
func (h *ThreadHandler) Categories(c echo.Context) error {
	counts, err := h.threads.CategoryCounts(c.Request().Context(), identity(c).UserID)
	if err != nil {
		return response.InternalError(c, "failed to count threads")
	}
	return response.Success(c, counts)
}

// Get handles GET /api/threads/:id
func (h *ThreadHandler) Get(c echo.Context) error {
	thread, err := h.load(c)
	if err != nil {
		return fail(c, err, "thread")
	}
	return response.Success(c, thread)
}

// MarkRead handles POST /api/threads/:id/read
func (h *ThreadHandler) MarkRead(c echo.Context) error {
	thread, err := h.load(c)
	if err != nil {
		return fail(c, err, "thread")
	}
	if err := h.threads.MarkRead(c.Request().Context(), thread.ID, h.now()); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"id": thread.ID, "is_read": true})
}

// Star handles POST /api/threads/:id/star and toggles the flag
func (h *ThreadHandler) Star(c echo.Context) error {
	thread, err := h.load(c)
	if err != nil {
		return fail(c, err, "thread")
	}
	starred, err := h.threads.ToggleStar(c.Request().Context(), thread.ID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"id": thread.ID, "is_starred": starred})
}

func (h *ThreadHandler) load(c echo.Context) (*models.Thread, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.threads.GetForUser(c.Request().Context(), id, identity(c).UserID)
}

func knownCategory(name string) bool {
	for _, c := range models.Categories {
		if c == name {
			return true
		}
	}
	return false
}
