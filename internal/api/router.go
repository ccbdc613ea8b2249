package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bitkeep/internal/models"
)

// Store is the store manager surface the API serves. *manager.Manager
// satisfies it.
type Store interface {
	StructuredBits(ctx context.Context) ([]models.Bit, error)
	StructuredPinnedBits(ctx context.Context) ([]models.Bit, error)
	Bit(ctx context.Context, id string) (models.Bit, error)
	AddBit(ctx context.Context, in models.BitInput) (models.Ref, error)
	UpdateBit(ctx context.Context, id string, data []models.BitData, ts time.Time) (models.Ref, error)
	TogglePin(ctx context.Context, id string, pinned bool, ts time.Time) (string, error)
	DeleteBit(ctx context.Context, id string) (models.Ref, error)
	AddBitNote(ctx context.Context, n models.Note) (string, error)
	UpdateBitNote(ctx context.Context, id, content string, ts time.Time) (string, error)
	DeleteBitNote(ctx context.Context, id string) (string, error)

	StructuredBitTypes(ctx context.Context) ([]models.BitTypeDefinition, error)
	BitType(ctx context.Context, id string) (models.BitTypeDefinition, error)
	AddBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error)
	UpdateBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error)
	DeleteBitType(ctx context.Context, id string) (models.Ref, error)

	StructuredCollections(ctx context.Context) ([]models.Collection, error)
	Collection(ctx context.Context, id string) (models.Collection, error)
	AddCollection(ctx context.Context, c models.Collection) (models.Ref, error)
	UpdateCollection(ctx context.Context, c models.Collection) (models.Ref, error)
	DeleteCollection(ctx context.Context, id string) (models.Ref, error)
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Events and Socket, if non-nil, are mounted at GET /events and GET /ws
	// inside the auth group.
	Events http.Handler
	Socket http.Handler
	// UploadDir holds attachment files.
	UploadDir string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(st Store, cfg RouterConfig) chi.Router {
	h := NewHandler(st)
	ah := NewAttachmentHandler(cfg.UploadDir)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Route("/bits", func(r chi.Router) {
		r.Get("/", h.ListBits)
		r.Post("/", h.AddBit)
		r.Get("/{id}", h.GetBit)
		r.Put("/{id}", h.UpdateBit)
		r.Delete("/{id}", h.DeleteBit)
		r.Put("/{id}/pin", h.TogglePin)
		r.Post("/{id}/notes", h.AddNote)
	})
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	r.Route("/bit-types", func(r chi.Router) {
		r.Get("/", h.ListBitTypes)
		r.Post("/", h.AddBitType)
		r.Get("/{id}", h.GetBitType)
		r.Put("/{id}", h.UpdateBitType)
		r.Delete("/{id}", h.DeleteBitType)
	})

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", h.ListCollections)
		r.Post("/", h.AddCollection)
		r.Get("/{id}", h.GetCollection)
		r.Put("/{id}", h.UpdateCollection)
		r.Delete("/{id}", h.DeleteCollection)
	})

	r.Post("/attachments", ah.Upload)
	r.Get("/attachments/{filename}", ah.ServeFile)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}
	if cfg.Socket != nil {
		r.Get("/ws", cfg.Socket.ServeHTTP)
	}

	return r
}
