package store

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/stevemurr/simple-resource-server/schema"
)

// MemoryStore keeps every record in memory. Data is lost on restart.
// Safe for concurrent use: one lock guards the records, the id counter
// and every version, so each operation is atomic.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint64]*Record
	lastID  uint64

	policy   Policy
	now      func() time.Time
	observer Observer
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithPolicy replaces the default title/content policy.
func WithPolicy(p Policy) Option {
	return func(m *MemoryStore) { m.policy = p }
}

// WithClock sets the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) { m.now = now }
}

// WithObserver registers an Observer for operation callbacks.
func WithObserver(o Observer) Option {
	return func(m *MemoryStore) { m.observer = o }
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		records:  make(map[uint64]*Record),
		policy:   schema.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Create(fields map[string]any) (Record, error) {
	start := time.Now()
	rec, err := m.create(fields)
	m.observe(OpCreate, start, err)
	return rec, err
}

func (m *MemoryStore) create(fields map[string]any) (Record, error) {
	// Normalizing and validating need no lock; the copy belongs to this call.
	stored, err := normalizeFields(fields)
	if err != nil {
		return Record{}, err
	}
	if missing := m.policy.Missing(stored); len(missing) > 0 {
		return Record{}, &ValidationError{MissingFields: missing}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	now := m.now()
	rec := &Record{
		ID:        m.lastID,
		Version:   1,
		Fields:    stored,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[rec.ID] = rec
	return rec.clone(), nil
}

func (m *MemoryStore) Get(id uint64) (Record, error) {
	start := time.Now()
	rec, err := m.get(id)
	m.observe(OpGet, start, err)
	return rec, err
}

func (m *MemoryStore) get(id uint64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}
	return rec.clone(), nil
}

func (m *MemoryStore) List() ([]Record, error) {
	start := time.Now()
	out := m.list()
	m.observe(OpList, start, nil)
	return out, nil
}

func (m *MemoryStore) list() []Record {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.clone())
	}
	m.mu.RUnlock()

	// Ids come from a monotonic counter, so id order is insertion order.
	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *MemoryStore) Update(id, expectedVersion uint64, patch map[string]any) (Record, error) {
	start := time.Now()
	rec, err := m.update(id, expectedVersion, patch)
	m.observe(OpUpdate, start, err)
	return rec, err
}

func (m *MemoryStore) update(id, expectedVersion uint64, patch map[string]any) (Record, error) {
	// Reported after the existence and version checks.
	patch, normErr := normalizeFields(patch)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}
	if expectedVersion != AnyVersion && expectedVersion != rec.Version {
		return Record{}, &VersionConflictError{ID: id, Expected: expectedVersion, Actual: rec.Version}
	}
	if normErr != nil {
		return Record{}, normErr
	}

	merged := mergePatch(rec.Fields, patch)
	if missing := m.policy.Missing(merged); len(missing) > 0 {
		return Record{}, &ValidationError{MissingFields: missing}
	}

	rec.Fields = merged
	rec.Version++
	rec.UpdatedAt = m.now()
	return rec.clone(), nil
}

func (m *MemoryStore) Delete(id uint64) error {
	start := time.Now()
	err := m.delete(id)
	m.observe(OpDelete, start, err)
	return err
}

func (m *MemoryStore) delete(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) observe(op string, start time.Time, err error) {
	m.observer.ObserveOperation(op, Outcome(err), time.Since(start))
}

// mergePatch returns a new field map: current overlaid with patch, where a
// nil patch value removes the field. Neither argument is modified, and the
// result shares no containers with either.
func mergePatch(current, patch map[string]any) map[string]any {
	merged := deepCopy(current)
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = copyValue(v)
	}
	return merged
}
