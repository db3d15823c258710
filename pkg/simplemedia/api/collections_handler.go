package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// ReorderRequest replaces the positions of a whole collection.
type ReorderRequest struct {
	Entries []simplemedia.PositionedEntry `json:"entries" validate:"required,dive"`
}

// MigrateResponse reports how many legacy entries were rewritten.
type MigrateResponse struct {
	Migrated int `json:"migrated"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeBadRequest(w, r, "Invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.writeBadRequest(w, r, validationMessage(err))
		return false
	}
	return true
}

// ListPositioned returns a collection ordered by position
func (h *Handler) ListPositioned(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListPositioned(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		h.writeError(w, r, "Failed to list positioned collection", err)
		return
	}
	render.JSON(w, r, entries)
}

// InsertPositioned adds an entry, shifting later entries on collision
func (h *Handler) InsertPositioned(w http.ResponseWriter, r *http.Request) {
	var entry simplemedia.PositionedEntry
	if !h.decode(w, r, &entry) {
		return
	}
	collection := chi.URLParam(r, "collection")
	if err := h.service.InsertPositioned(r.Context(), collection, entry); err != nil {
		h.writeError(w, r, "Failed to insert positioned entry", err)
		return
	}

	entries, err := h.service.ListPositioned(r.Context(), collection)
	if err != nil {
		h.writeError(w, r, "Failed to list positioned collection", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entries)
}

// RemovePositioned removes the entries matching the JSON body
func (h *Handler) RemovePositioned(w http.ResponseWriter, r *http.Request) {
	var match simplemedia.PositionedMatch
	if !h.decode(w, r, &match) {
		return
	}
	if err := h.service.RemovePositioned(r.Context(), chi.URLParam(r, "collection"), match); err != nil {
		h.writeError(w, r, "Failed to remove positioned entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderPositioned assigns new positions to every entry of a collection
func (h *Handler) ReorderPositioned(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !h.decode(w, r, &req) {
		return
	}
	collection := chi.URLParam(r, "collection")
	if err := h.service.ReorderPositioned(r.Context(), collection, req.Entries); err != nil {
		h.writeError(w, r, "Failed to reorder positioned collection", err)
		return
	}

	entries, err := h.service.ListPositioned(r.Context(), collection)
	if err != nil {
		h.writeError(w, r, "Failed to list positioned collection", err)
		return
	}
	render.JSON(w, r, entries)
}

// MigratePositioned rewrites legacy entries in the current shape
func (h *Handler) MigratePositioned(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MigratePositioned(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		h.writeError(w, r, "Failed to migrate positioned collection", err)
		return
	}
	render.JSON(w, r, MigrateResponse{Migrated: n})
}

// ListCarousel returns a carousel in insertion order
func (h *Handler) ListCarousel(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListCarousel(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, "Failed to list carousel", err)
		return
	}
	render.JSON(w, r, entries)
}

// AppendCarousel adds an entry to the end of a carousel
func (h *Handler) AppendCarousel(w http.ResponseWriter, r *http.Request) {
	var entry simplemedia.ScreenCarouselEntry
	if !h.decode(w, r, &entry) {
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.service.AppendCarousel(r.Context(), name, entry); err != nil {
		h.writeError(w, r, "Failed to append to carousel", err)
		return
	}

	entries, err := h.service.ListCarousel(r.Context(), name)
	if err != nil {
		h.writeError(w, r, "Failed to list carousel", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entries)
}

// RemoveCarouselAt removes the entry at the given list index
func (h *Handler) RemoveCarouselAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeBadRequest(w, r, "index must be an integer")
		return
	}
	if err := h.service.RemoveCarouselAt(r.Context(), chi.URLParam(r, "name"), index); err != nil {
		h.writeError(w, r, "Failed to remove carousel entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
