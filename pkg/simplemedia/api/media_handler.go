package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	defaultMaxSizeMB = 10
	// multipart overhead allowed on top of the largest accepted file
	formOverhead = 1 << 20
)

// Handler serves the media, archive, positioned and carousel endpoints.
type Handler struct {
	service       simplemedia.Service
	logger        *slog.Logger
	validate      *validator.Validate
	defaultPolicy simplemedia.UploadPolicy
	maxUploadMB   int
}

// Option configures a Handler
type Option func(*Handler)

// WithLogger sets the request logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithDefaultPolicy sets the policy used when a request does not name one
func WithDefaultPolicy(policy simplemedia.UploadPolicy) Option {
	return func(h *Handler) {
		h.defaultPolicy = policy
	}
}

// WithMaxUploadMB caps the size of any upload regardless of the request policy
func WithMaxUploadMB(mb int) Option {
	return func(h *Handler) {
		h.maxUploadMB = mb
	}
}

// NewHandler creates a Handler for service
func NewHandler(service simplemedia.Service, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		logger:   slog.Default(),
		validate: validator.New(),
		defaultPolicy: simplemedia.UploadPolicy{
			MaxSizeMB:           defaultMaxSizeMB,
			AllowedMimePrefixes: []string{"image/"},
		},
		maxUploadMB: 32,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for all endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/media", func(r chi.Router) {
		r.Post("/", h.Ingest)
		r.Get("/", h.ListMedia)
		r.Get("/{id}", h.GetMedia)
		r.Delete("/{id}", h.DeleteMedia)
	})
	r.Delete("/blobs", h.DeleteBlob)
	r.Get("/archive", h.ListArchive)

	r.Route("/positioned/{collection}", func(r chi.Router) {
		r.Get("/", h.ListPositioned)
		r.Post("/", h.InsertPositioned)
		r.Delete("/", h.RemovePositioned)
		r.Put("/order", h.ReorderPositioned)
		r.Post("/migrate", h.MigratePositioned)
	})

	r.Route("/carousels/{name}", func(r chi.Router) {
		r.Get("/", h.ListCarousel)
		r.Post("/", h.AppendCarousel)
		r.Delete("/{index}", h.RemoveCarouselAt)
	})
	return r
}

// Ingest accepts a multipart upload with a "file" part and converts, stores
// and archives it.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	limit := int64(h.maxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)

	if err := r.ParseMultipartForm(limit + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeBadRequest(w, r, fmt.Sprintf("File size exceeds %dMB limit", h.maxUploadMB))
			return
		}
		h.writeBadRequest(w, r, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeBadRequest(w, r, "File is required")
		return
	}
	defer file.Close()

	policy, err := h.policyFromForm(r)
	if err != nil {
		h.writeBadRequest(w, r, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeBadRequest(w, r, "Failed to read file")
		return
	}

	res, err := h.service.IngestAndArchive(r.Context(), simplemedia.IngestRequest{
		Data:        data,
		FileName:    header.Filename,
		Destination: r.FormValue("destination"),
		Policy:      policy,
	})
	if err != nil {
		h.writeError(w, r, "Failed to ingest media", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Media ingested", "media_id", res.MediaID, "url", res.URL)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

func (h *Handler) policyFromForm(r *http.Request) (simplemedia.UploadPolicy, error) {
	policy := h.defaultPolicy
	if raw := r.FormValue("max_size_mb"); raw != "" {
		mb, err := strconv.Atoi(raw)
		if err != nil || mb < 0 {
			return policy, fmt.Errorf("Invalid max_size_mb %q", raw)
		}
		policy.MaxSizeMB = mb
	}
	if raw := r.FormValue("allowed_mime_prefixes"); raw != "" {
		var prefixes []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		policy.AllowedMimePrefixes = prefixes
	}
	if policy.MaxSizeMB == 0 || policy.MaxSizeMB > h.maxUploadMB {
		policy.MaxSizeMB = h.maxUploadMB
	}
	return policy, nil
}

// ListMedia lists media entries by creation time
func (h *Handler) ListMedia(w http.ResponseWriter, r *http.Request) {
	order := r.URL.Query().Get("order")
	if order != "" && order != "asc" && order != "desc" {
		h.writeBadRequest(w, r, "order must be 'asc' or 'desc'")
		return
	}

	entries, err := h.service.ListMedia(r.Context(), simplemedia.ListMediaRequest{
		Destination: r.URL.Query().Get("destination"),
		Descending:  order == "desc",
	})
	if err != nil {
		h.writeError(w, r, "Failed to list media", err)
		return
	}
	render.JSON(w, r, entries)
}

// GetMedia returns one media entry
func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "Failed to get media", err)
		return
	}
	render.JSON(w, r, entry)
}

// DeleteMedia removes the metadata and then the blob of a media entry
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteMedia(r.Context(), id, r.URL.Query().Get("url")); err != nil {
		h.writeError(w, r, "Failed to delete media", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBlob retries the blob half of an incomplete delete
func (h *Handler) DeleteBlob(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		h.writeBadRequest(w, r, "url is required")
		return
	}
	if err := h.service.DeleteBlob(r.Context(), url); err != nil {
		h.writeError(w, r, "Failed to delete blob", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListArchive returns archived images, newest first
func (h *Handler) ListArchive(w http.ResponseWriter, r *http.Request) {
	images, err := h.service.ListArchive(r.Context())
	if err != nil {
		h.writeError(w, r, "Failed to list archive", err)
		return
	}
	render.JSON(w, r, images)
}
