package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Set for incomplete deletes
	MetadataDeleted *bool `json:"metadata_deleted,omitempty"`
	BlobDeleted     *bool `json:"blob_deleted,omitempty"`
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, simplemedia.ErrValidationFailed), errors.Is(err, simplemedia.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, simplemedia.ErrInvalidReorder), errors.Is(err, simplemedia.ErrConversionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, simplemedia.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simplemedia.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, simplemedia.ErrUnsupportedEnvironment):
		return http.StatusNotImplemented
	case errors.Is(err, simplemedia.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: publicMessage(err)}

	var deleteErr *simplemedia.DeleteError
	if errors.As(err, &deleteErr) {
		metadata, blob := deleteErr.MetadataDeleted, deleteErr.BlobDeleted
		resp.MetadataDeleted = &metadata
		resp.BlobDeleted = &blob
		if deleteErr.Partial() {
			status = http.StatusInternalServerError
		}
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg, "err", err, "status", status, "path", r.URL.Path)

	render.Status(r, status)
	render.JSON(w, r, resp)
}

// publicMessage exposes validation and reorder reasons verbatim and hides
// backend details behind the status text.
func publicMessage(err error) string {
	var validationErr *simplemedia.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Reason
	}
	var reorderErr *simplemedia.ReorderError
	if errors.As(err, &reorderErr) {
		return reorderErr.Reason
	}
	switch StatusFor(err) {
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		return http.StatusText(StatusFor(err))
	}
	return err.Error()
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	h.logger.WarnContext(r.Context(), "Bad request", "reason", msg, "path", r.URL.Path)
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
