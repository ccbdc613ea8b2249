package api

import (
	"time"

	"github.com/starford/bitkeep/internal/models"
)

// UpdateBitRequest is the body of PUT /api/bits/{id}. The data set replaces
// the bit's current one.
type UpdateBitRequest struct {
	Data      []models.BitData `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// PinRequest is the body of PUT /api/bits/{id}/pin.
type PinRequest struct {
	Pinned    bool      `json:"pinned"`
	Timestamp time.Time `json:"timestamp"`
}

// UpdateNoteRequest is the body of PUT /api/notes/{id}.
type UpdateNoteRequest struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IDResponse answers operations that return a bare id.
type IDResponse struct {
	ID string `json:"id"`
}

// UploadResponse answers POST /api/attachments.
type UploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}
