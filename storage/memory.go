package storage

import (
	"context"
	"sync"
	"time"

	"github.com/johnwmail/pastelite/models"
)

// MemoryStore implements PasteStore in process memory. The map lock guards
// membership only; each record carries its own lock, so readers of different
// pastes never contend.
type MemoryStore struct {
	mu     sync.RWMutex
	pastes map[string]*memoryEntry
	closed bool
}

type memoryEntry struct {
	mu      sync.Mutex
	paste   models.Paste
	deleted bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pastes: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) lookup(id string) (*memoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errStoreClosed
	}
	return m.pastes[id], nil
}

// Insert saves a new paste
func (m *MemoryStore) Insert(ctx context.Context, paste *models.Paste) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	if _, exists := m.pastes[paste.ID]; exists {
		return ErrDuplicateID
	}
	m.pastes[paste.ID] = &memoryEntry{paste: clonePaste(paste)}
	return nil
}

// ConsumeView checks and increments under the record lock
func (m *MemoryStore) ConsumeView(ctx context.Context, id string, now time.Time) (*models.Paste, models.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NotFound, err
	}
	entry, err := m.lookup(id)
	if err != nil {
		return nil, models.NotFound, err
	}
	if entry == nil {
		return nil, models.NotFound, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, models.NotFound, nil
	}
	if verdict := models.Evaluate(&entry.paste, now); verdict != models.OK {
		p := clonePaste(&entry.paste)
		return &p, verdict, nil
	}
	entry.paste.ViewsUsed++
	p := clonePaste(&entry.paste)
	return &p, models.OK, nil
}

// Get retrieves a copy of a paste
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := m.lookup(id)
	if err != nil || entry == nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, nil
	}
	p := clonePaste(&entry.paste)
	return &p, nil
}

// Burn marks a paste as burned
func (m *MemoryStore) Burn(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, err := m.lookup(id)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return ErrNotFound
	}
	entry.paste.Burned = true
	return nil
}

// Delete removes a paste
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	if entry, ok := m.pastes[id]; ok {
		m.remove(id, entry)
	}
	return nil
}

// DeleteExpired removes expired pastes regardless of views or burn state
func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errStoreClosed
	}
	var removed int64
	for id, entry := range m.pastes {
		// ExpiresAt is immutable after insert, no record lock needed to read it
		if entry.paste.IsExpired(now) {
			m.remove(id, entry)
			removed++
		}
	}
	return removed, nil
}

// remove must be called with m.mu held
func (m *MemoryStore) remove(id string, entry *memoryEntry) {
	entry.mu.Lock()
	entry.deleted = true
	entry.mu.Unlock()
	delete(m.pastes, id)
}

// Ping reports whether the store is still open
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errStoreClosed
	}
	return ctx.Err()
}

// Close discards all pastes
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pastes = make(map[string]*memoryEntry)
	return nil
}

func clonePaste(p *models.Paste) models.Paste {
	c := *p
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	if p.MaxViews != nil {
		v := *p.MaxViews
		c.MaxViews = &v
	}
	return c
}
