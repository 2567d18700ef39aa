package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/http/response"
	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/services"
)

const (
	defaultDocumentPageSize = 50
	maxDocumentPageSize     = 200
)

type DocumentHandler struct {
	log     *logger.Logger
	ingest  services.IngestService
	metrics *observability.Metrics
}

func NewDocumentHandler(log *logger.Logger, ingest services.IngestService, metrics *observability.Metrics) *DocumentHandler {
	return &DocumentHandler{
		log:     log.With("handler", "DocumentHandler"),
		ingest:  ingest,
		metrics: metrics,
	}
}

// Upload takes one multipart file and runs it through the full
// ingestion pipeline. The request id minted by the middleware is handed
// down so the ingestion audit trail matches the X-Request-Id header.
func (h *DocumentHandler) Upload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	form := c.Request.MultipartForm
	if form == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", nil)
		return
	}
	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		fileHeaders = form.File["files"]
	}
	if len(fileHeaders) == 0 {
		response.RespondError(c, http.StatusBadRequest, "no_file", fmt.Errorf("multipart field 'file' is required"))
		return
	}
	fh := fileHeaders[0]

	src, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	data, err := io.ReadAll(src)
	_ = src.Close()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}

	requestID := ""
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		requestID = rd.RequestID
	}

	result, err := h.ingest.UploadDocument(c.Request.Context(), nil, services.DocumentUpload{
		RequestID:   requestID,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.metrics.ObserveIngest(0, true)
		h.log.Warn("Document upload rejected", "filename", fh.Filename, "error", err)
		status, code := uploadErrorStatus(err)
		response.RespondError(c, status, code, err)
		return
	}

	h.metrics.ObserveIngest(result.ChunksIndexed, false)
	response.RespondOK(c, result)
}

func uploadErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnsupportedFileType):
		return http.StatusBadRequest, "unsupported_file_type"
	case errors.Is(err, services.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, services.ErrEmptyDocument):
		return http.StatusUnprocessableEntity, "empty_document"
	case errors.Is(err, services.ErrInvalidEncoding):
		return http.StatusUnprocessableEntity, "invalid_encoding"
	case errors.Is(err, services.ErrPDFExtractionUnavailable):
		return http.StatusServiceUnavailable, "pdf_extraction_unavailable"
	default:
		return http.StatusInternalServerError, "ingest_failed"
	}
}

// List returns the indexed corpus, newest first.
func (h *DocumentHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", defaultDocumentPageSize)
	if limit < 1 || limit > maxDocumentPageSize {
		limit = defaultDocumentPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	docs, total, err := h.ingest.ListDocuments(c.Request.Context(), nil, limit, offset)
	if err != nil {
		h.log.Error("Failed to list documents", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "list_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"documents": docs,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func queryInt(c *gin.Context, key string, defaultVal int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return v
}
