package typedefs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/bitkeep/internal/models"
)

// TypeWriter upserts a bit type and broadcasts the change.
type TypeWriter interface {
	UpdateBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error)
}

// Syncer upserts the types of a Dir into the store. It remembers the checksum
// of every file it applied so unchanged files are skipped.
type Syncer struct {
	dir    *Dir
	types  TypeWriter
	logger *slog.Logger

	mu   sync.Mutex
	sums map[string]string
}

// NewSyncer creates a Syncer. A nil logger falls back to slog.Default().
func NewSyncer(dir *Dir, types TypeWriter, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{dir: dir, types: types, logger: logger, sums: make(map[string]string)}
}

// Dir returns the directory being synced.
func (s *Syncer) Dir() *Dir { return s.dir }

// Sync applies every changed file. A file that fails to parse or apply is
// logged and skipped; Sync reports how many types were written.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	files, err := s.dir.List()
	if err != nil {
		return 0, err
	}

	written := 0
	for _, f := range files {
		if s.applied(f.Path, f.Checksum) {
			continue
		}
		data, err := s.dir.Read(f.Path)
		if err != nil {
			s.logger.Warn("typedefs: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := s.apply(ctx, f.Path, data); err != nil {
			s.logger.Warn("typedefs: apply failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		written++
	}

	s.logger.Info("typedefs: sync complete", slog.Int("files", len(files)), slog.Int("written", written))
	return written, nil
}

// SyncFile applies one file if its contents changed since the last apply.
func (s *Syncer) SyncFile(ctx context.Context, rel string) (bool, error) {
	data, err := s.dir.Read(rel)
	if err != nil {
		return false, err
	}
	if s.applied(rel, checksum(data)) {
		return false, nil
	}
	if err := s.apply(ctx, rel, data); err != nil {
		return false, err
	}
	return true, nil
}

// Forget drops the remembered checksum of a removed file. The type itself
// stays in the store.
func (s *Syncer) Forget(rel string) {
	s.mu.Lock()
	delete(s.sums, rel)
	s.mu.Unlock()
}

func (s *Syncer) applied(rel, sum string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sums[rel] == sum
}

func (s *Syncer) apply(ctx context.Context, rel string, data []byte) error {
	def, err := Parse(rel, data)
	if err != nil {
		return err
	}
	ref, err := s.types.UpdateBitType(ctx, def)
	if err != nil {
		return fmt.Errorf("typedefs: %s: %w", rel, err)
	}

	s.mu.Lock()
	s.sums[rel] = checksum(data)
	s.mu.Unlock()

	s.logger.Debug("typedefs: applied", slog.String("path", rel), slog.String("id", ref.ID))
	return nil
}
