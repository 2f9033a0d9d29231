package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"orgrag/internal/app"
	"orgrag/internal/model"
	"orgrag/internal/transport/http/middleware"
	"orgrag/internal/transport/http/response"
)

type DocumentService interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
	ListDocuments(orgID uint) ([]model.Document, error)
	DeleteDocument(ctx context.Context, orgID, docID uint) error
}

type DocumentHandler struct {
	documentService DocumentService
	maxFileBytes    int64
}

func NewDocumentHandler(documentService DocumentService, maxFileBytes int64) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, maxFileBytes: maxFileBytes}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}
	if h.maxFileBytes > 0 && fileHeader.Size > h.maxFileBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, app.ErrFileTooLarge.Error())
		return
	}

	data, err := readUpload(fileHeader, h.maxFileBytes)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}

	result, err := h.documentService.Ingest(c.Request.Context(), app.IngestInput{
		OrganizationID: identity.OrganizationID,
		UserID:         identity.UserID,
		Filename:       fileHeader.Filename,
		MimeType:       fileHeader.Header.Get("Content-Type"),
		Data:           data,
	})
	if err != nil {
		writeDocumentError(c, err, "upload failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.documentService.ListDocuments(identity.OrganizationID)
	if err != nil {
		writeDocumentError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, ok := uintParam(c, "docId")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), identity.OrganizationID, docID); err != nil {
		writeDocumentError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": docID})
}

func readUpload(fileHeader *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload failed: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	return io.ReadAll(r)
}

func writeDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, app.ErrUnsupportedType):
		response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedType, err.Error())
	case errors.Is(err, app.ErrDuplicateFilename):
		response.Error(c, http.StatusConflict, response.CodeDuplicateFilename, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrVectorDelete):
		response.Error(c, http.StatusBadGateway, response.CodeVectorDeleteFailed, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
