package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	st Store
}

// NewHandler creates a new Handler.
func NewHandler(st Store) *Handler {
	return &Handler{st: st}
}

// ListBits handles GET /api/bits.
//
//	@Summary		List structured bits, newest first
//	@Tags			bits
//	@Produce		json
//	@Param			pinned	query		bool	false	"Only pinned bits"
//	@Success		200		{array}		models.Bit
//	@Security		BearerAuth
//	@Router			/bits [get]
func (h *Handler) ListBits(w http.ResponseWriter, r *http.Request) {
	pinned, _ := strconv.ParseBool(r.URL.Query().Get("pinned"))
	var (
		bits []models.Bit
		err  error
	)
	if pinned {
		bits, err = h.st.StructuredPinnedBits(r.Context())
	} else {
		bits, err = h.st.StructuredBits(r.Context())
	}
	if err != nil {
		writeError(w, "list bits", err)
		return
	}
	writeJSON(w, http.StatusOK, bits)
}

// GetBit handles GET /api/bits/{id}.
//
//	@Summary		Get one structured bit
//	@Tags			bits
//	@Produce		json
//	@Param			id	path		string	true	"Bit id"
//	@Success		200	{object}	models.Bit
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bits/{id} [get]
func (h *Handler) GetBit(w http.ResponseWriter, r *http.Request) {
	bit, err := h.st.Bit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get bit", err)
		return
	}
	writeJSON(w, http.StatusOK, bit)
}

// AddBit handles POST /api/bits.
//
//	@Summary		Create a bit with its data
//	@Tags			bits
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.BitInput	true	"Bit to create"
//	@Success		201		{object}	models.Ref
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bits [post]
func (h *Handler) AddBit(w http.ResponseWriter, r *http.Request) {
	var in models.BitInput
	if !decode(w, r, &in) {
		return
	}
	ref, err := h.st.AddBit(r.Context(), in)
	if err != nil {
		writeError(w, "add bit", err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// UpdateBit handles PUT /api/bits/{id}.
//
//	@Summary		Replace a bit's data
//	@Tags			bits
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Bit id"
//	@Param			body	body		UpdateBitRequest	true	"New data set"
//	@Success		200		{object}	models.Ref
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bits/{id} [put]
func (h *Handler) UpdateBit(w http.ResponseWriter, r *http.Request) {
	var req UpdateBitRequest
	if !decode(w, r, &req) {
		return
	}
	ref, err := h.st.UpdateBit(r.Context(), chi.URLParam(r, "id"), req.Data, req.Timestamp)
	if err != nil {
		writeError(w, "update bit", err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// TogglePin handles PUT /api/bits/{id}/pin.
func (h *Handler) TogglePin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.st.TogglePin(r.Context(), chi.URLParam(r, "id"), req.Pinned, req.Timestamp)
	if err != nil {
		writeError(w, "toggle pin", err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// DeleteBit handles DELETE /api/bits/{id}.
func (h *Handler) DeleteBit(w http.ResponseWriter, r *http.Request) {
	ref, err := h.st.DeleteBit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete bit", err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// AddNote handles POST /api/bits/{id}/notes.
//
//	@Summary		Attach a note to a bit
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Bit id"
//	@Param			body	body		models.Note	true	"Note"
//	@Success		201		{object}	IDResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bits/{id}/notes [post]
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var n models.Note
	if !decode(w, r, &n) {
		return
	}
	bitID := chi.URLParam(r, "id")
	if n.BitID != "" && n.BitID != bitID {
		writeError(w, "add note", apperr.Invalidf("note bitId %q does not match path %q", n.BitID, bitID))
		return
	}
	n.BitID = bitID
	id, err := h.st.AddBitNote(r.Context(), n)
	if err != nil {
		writeError(w, "add note", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// UpdateNote handles PUT /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.st.UpdateBitNote(r.Context(), chi.URLParam(r, "id"), req.Content, req.Timestamp)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := h.st.DeleteBitNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// ListBitTypes handles GET /api/bit-types.
//
//	@Summary		List bit types with their properties
//	@Tags			bit-types
//	@Produce		json
//	@Success		200	{array}	models.BitTypeDefinition
//	@Security		BearerAuth
//	@Router			/bit-types [get]
func (h *Handler) ListBitTypes(w http.ResponseWriter, r *http.Request) {
	defs, err := h.st.StructuredBitTypes(r.Context())
	if err != nil {
		writeError(w, "list bit types", err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// GetBitType handles GET /api/bit-types/{id}.
func (h *Handler) GetBitType(w http.ResponseWriter, r *http.Request) {
	def, err := h.st.BitType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get bit type", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// AddBitType handles POST /api/bit-types.
//
//	@Summary		Create or replace a bit type
//	@Tags			bit-types
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.BitTypeDefinition	true	"Type definition"
//	@Success		201		{object}	models.Ref
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bit-types [post]
func (h *Handler) AddBitType(w http.ResponseWriter, r *http.Request) {
	var def models.BitTypeDefinition
	if !decode(w, r, &def) {
		return
	}
	ref, err := h.st.AddBitType(r.Context(), def)
	if err != nil {
		writeError(w, "add bit type", err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// UpdateBitType handles PUT /api/bit-types/{id}.
func (h *Handler) UpdateBitType(w http.ResponseWriter, r *http.Request) {
	var def models.BitTypeDefinition
	if !decode(w, r, &def) {
		return
	}
	def.ID = chi.URLParam(r, "id")
	ref, err := h.st.UpdateBitType(r.Context(), def)
	if err != nil {
		writeError(w, "update bit type", err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// DeleteBitType handles DELETE /api/bit-types/{id}. Every bit of the type
// goes with it.
func (h *Handler) DeleteBitType(w http.ResponseWriter, r *http.Request) {
	ref, err := h.st.DeleteBitType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete bit type", err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// ListCollections handles GET /api/collections.
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.st.StructuredCollections(r.Context())
	if err != nil {
		writeError(w, "list collections", err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

// GetCollection handles GET /api/collections/{id}.
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.st.Collection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get collection", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AddCollection handles POST /api/collections.
//
//	@Summary		Create or replace a collection
//	@Tags			collections
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Collection	true	"Collection with items in order"
//	@Success		201		{object}	models.Ref
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections [post]
func (h *Handler) AddCollection(w http.ResponseWriter, r *http.Request) {
	var c models.Collection
	if !decode(w, r, &c) {
		return
	}
	ref, err := h.st.AddCollection(r.Context(), c)
	if err != nil {
		writeError(w, "add collection", err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// UpdateCollection handles PUT /api/collections/{id}. The submitted items
// replace the current ones.
func (h *Handler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	var c models.Collection
	if !decode(w, r, &c) {
		return
	}
	c.ID = chi.URLParam(r, "id")
	ref, err := h.st.UpdateCollection(r.Context(), c)
	if err != nil {
		writeError(w, "update collection", err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// DeleteCollection handles DELETE /api/collections/{id}.
func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	ref, err := h.st.DeleteCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete collection", err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}
