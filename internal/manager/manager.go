// Package manager is the store manager: the only component that reads or
// writes the persistent store. It validates entity-level intents, runs each
// logical write in one transaction, serves structured (denormalized) reads,
// owns the type cache, and broadcasts the affected families after every
// committed mutation.
//
// Broadcasts replace the world: each one carries the complete structured
// collection of its family, so the payload is O(total entities) per change.
package manager

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/store"
	"github.com/starford/bitkeep/internal/typecache"
)

// Publisher fans a broadcast out to subscribers. *registry.Registry satisfies it.
type Publisher interface {
	Publish(channel string, v any) int
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) int { return 0 }

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher sets where broadcasts go.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.pub = p
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager translates entity operations into store transactions and back.
type Manager struct {
	db     *store.DB
	cache  *typecache.Cache
	pub    Publisher
	logger *slog.Logger

	// mu serializes writers from validation through broadcast, so broadcasts
	// leave in commit order. Reads do not take it.
	mu sync.Mutex
}

// New creates a manager over db.
func New(db *store.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		cache:  typecache.New(),
		pub:    nopPublisher{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type family int

const (
	familyBitTypes family = iota
	familyBits
	familyCollections
)

// broadcast re-reads each family and pushes it. Types go first so replicas can
// resolve the bits that follow. Failures are logged: the mutation that
// triggered the broadcast has already committed.
func (m *Manager) broadcast(ctx context.Context, families ...family) {
	ctx = context.WithoutCancel(ctx)
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })

	for i, f := range families {
		if i > 0 && families[i-1] == f {
			continue
		}
		var (
			channel string
			payload any
			err     error
		)
		switch f {
		case familyBitTypes:
			channel = models.ChannelBitTypes
			payload, err = m.StructuredBitTypes(ctx)
		case familyBits:
			channel = models.ChannelBits
			payload, err = m.StructuredBits(ctx)
		case familyCollections:
			channel = models.ChannelCollections
			payload, err = m.StructuredCollections(ctx)
		}
		if err != nil {
			m.logger.Error("manager: broadcast re-read failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()))
			continue
		}
		n := m.pub.Publish(channel, payload)
		m.logger.Debug("manager: broadcast", slog.String("channel", channel), slog.Int("subscribers", n))
	}
}

// typeIndex returns the cached definitions, populating the cache first if it
// is empty.
func (m *Manager) typeIndex(ctx context.Context) (map[string]models.BitTypeDefinition, error) {
	if idx, ok := m.cache.Index(); ok {
		return idx, nil
	}
	defs, err := m.StructuredBitTypes(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]models.BitTypeDefinition, len(defs))
	for _, d := range defs {
		idx[d.ID] = d
	}
	return idx, nil
}
