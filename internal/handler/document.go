package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/service"
)

// DocumentHandler exposes the eligibility gate.
type DocumentHandler struct {
	Documents *service.DocumentService
	Log       *slog.Logger
}

func NewDocumentHandler(documents *service.DocumentService, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{Documents: documents, Log: log}
}

type reviewReq struct {
	Status  string  `json:"status" validate:"required"`
	Comment *string `json:"comment" validate:"omitempty,max=500"`
}

// Submit handles POST /v1/documents (multipart: file, kind, comment).
func (h *DocumentHandler) Submit(c echo.Context) error {
	up := service.Upload{Kind: c.FormValue("kind")}
	if v := c.FormValue("comment"); v != "" {
		up.Comment = &v
	}
	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Submit reports the missing file as a validation error.
	case err != nil:
		return badRequest(c, "invalid multipart body")
	default:
		f, err := fh.Open()
		if err != nil {
			return badRequest(c, "unreadable file")
		}
		defer f.Close()
		up.Filename, up.Body = fh.Filename, f
	}
	d, err := h.Documents.Submit(c.Request().Context(), actor(c), up)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, d)
}

// Status handles GET /v1/documents/status.
func (h *DocumentHandler) Status(c echo.Context) error {
	st, err := h.Documents.Status(c.Request().Context(), actor(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Get handles GET /v1/documents/:id.
func (h *DocumentHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid document id")
	}
	d, err := h.Documents.Get(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Download handles GET /v1/documents/:id/download.
func (h *DocumentHandler) Download(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid document id")
	}
	d, rc, err := h.Documents.Download(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	defer rc.Close()
	name := d.OriginalName
	if name == "" {
		name = "document-" + strconv.FormatUint(d.ID, 10)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(d.SizeBytes, 10))
	return c.Stream(http.StatusOK, d.ContentType, io.LimitReader(rc, d.SizeBytes))
}

// Delete handles DELETE /v1/documents/:id.
func (h *DocumentHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid document id")
	}
	if err := h.Documents.Delete(c.Request().Context(), actor(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Review handles PUT /v1/documents/:id/review.
func (h *DocumentHandler) Review(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid document id")
	}
	var req reviewReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	d, err := h.Documents.Review(c.Request().Context(), actor(c), id, strings.ToUpper(strings.TrimSpace(req.Status)), req.Comment)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}

// List handles GET /v1/admin/documents.
func (h *DocumentHandler) List(c echo.Context) error {
	q := service.DocumentQuery{
		Status: strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))),
		Kind:   strings.ToUpper(strings.TrimSpace(c.QueryParam("kind"))),
	}
	q.Page, q.PageSize = pageParams(c)
	if v := c.QueryParam("user_id"); v != "" {
		uid, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return writeError(c, h.Log, service.Validation("user_id must be a positive integer"))
		}
		q.UserID = uid
	}
	page, err := h.Documents.List(c.Request().Context(), actor(c), q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}
