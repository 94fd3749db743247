package handlers

import (
	"io"
	"log/slog"
	"mime"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/response"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/storage"
)

// AttachmentHandler handles attachment-related HTTP requests
type AttachmentHandler struct {
	attachmentRepo repository.AttachmentRepository
	fileStorage    storage.FileStorage
	logger         *slog.Logger
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(
	attachmentRepo repository.AttachmentRepository,
	fileStorage storage.FileStorage,
	logger *slog.Logger,
) *AttachmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentHandler{
		attachmentRepo: attachmentRepo,
		fileStorage:    fileStorage,
		logger:         logger,
	}
}

// Get handles GET /api/attachments/:id
func (h *AttachmentHandler) Get(c echo.Context) error {
	attachment, err := h.load(c)
	if err != nil {
		return fail(c, err, "attachment")
	}
	return response.Success(c, attachment)
}

// Download handles GET /api/attachments/:id/download
func (h *AttachmentHandler) Download(c echo.Context) error {
	attachment, err := h.load(c)
	if err != nil {
		return fail(c, err, "attachment")
	}

	file, err := h.fileStorage.Get(attachment.FilePath)
	if err != nil {
		h.logger.Error("Failed to open attachment",
			slog.Uint64("attachment_id", uint64(attachment.ID)),
			slog.Any("error", err))
		return response.InternalError(c, "failed to retrieve file")
	}
	defer file.Close()

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename}))
	if attachment.SizeBytes > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(attachment.SizeBytes, 10))
	}

	// Headers are already written once streaming starts
	if _, err := io.Copy(c.Response(), file); err != nil {
		h.logger.Warn("Attachment download interrupted",
			slog.Uint64("attachment_id", uint64(attachment.ID)),
			slog.Any("error", err))
	}
	return nil
}

func (h *AttachmentHandler) load(c echo.Context) (*models.Attachment, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.attachmentRepo.GetForUser(c.Request().Context(), id, identity(c).UserID)
}
