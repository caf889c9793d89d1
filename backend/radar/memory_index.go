package radar

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process record store and Backend. It serves development runs without a
// database and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Create stores rec, assigning an id and creation time when missing.
func (m *MemoryIndex) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	rec.Techs = NormalizeTechs(rec.Techs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return rec, nil
}

// Get returns the record with id.
func (m *MemoryIndex) Get(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, NotFound("dev %s not found", id)
	}
	return rec, nil
}

// GetByIDs returns the records for ids that exist, in no particular order.
func (m *MemoryIndex) GetByIDs(ctx context.Context, ids []string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// List returns every record, oldest first.
func (m *MemoryIndex) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Nearby implements Backend with a full scan.
func (m *MemoryIndex) Nearby(ctx context.Context, center Point, radiusMeters float64, tags TagSet) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	candidates := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		candidates = append(candidates, rec)
	}
	m.mu.RUnlock()

	return FilterNearby(candidates, center, radiusMeters, tags), nil
}
