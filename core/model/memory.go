package model

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/query"
)

// Memory is an in-process class accessor. It backs the unit tests and
// the dev mode of the service; production deployments use the postgres
// store instead.
type Memory struct {
	definition Definition
	clock      func() time.Time

	mutex   sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewMemory creates an in-memory accessor for the given definition.
func NewMemory(definition Definition) *Memory {
	return &Memory{
		definition: definition,
		clock:      time.Now,
		records:    make(map[uuid.UUID]*Record),
	}
}

// WithClock replaces the time source, for tests.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

// Name returns the class name.
func (m *Memory) Name() string { return m.definition.Name }

// Definition returns the class definition.
func (m *Memory) Definition() Definition { return m.definition }

// ToPointer returns a pointer to a record of this class.
func (m *Memory) ToPointer(id uuid.UUID) core.Pointer {
	return core.Pointer{ClassName: m.definition.Name, ID: id}
}

// Find returns all records matching the descriptor, sorted and
// paginated. The descriptor must not contain unresolved subqueries.
func (m *Memory) Find(ctx context.Context, q query.Descriptor) ([]*Record, error) {
	m.mutex.RLock()
	candidates := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		candidates = append(candidates, record)
	}
	m.mutex.RUnlock()

	matches := make([]*Record, 0, len(candidates))
	for _, record := range candidates {
		ok, err := query.MatchesConstraints(record.matchObject(), q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, record.clone())
		}
	}

	sortRecords(matches, q.Sort)

	if q.Skip >= len(matches) {
		return []*Record{}, nil
	}
	matches = matches[q.Skip:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

// First returns the first match, or nil when there is none.
func (m *Memory) First(ctx context.Context, q query.Descriptor) (*Record, error) {
	q.Skip = 0
	q.Limit = 1
	records, err := m.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetByID returns one record by id, or nil when absent.
func (m *Memory) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return record.clone(), nil
}

// Save persists the record. A record without id gets a fresh one and a
// creation timestamp; a record with id replaces the stored version.
func (m *Memory) Save(ctx context.Context, r *Record) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.clock().UTC()
	if r.id == uuid.Nil {
		r.id = uuid.New()
		r.createdAt = now
	} else if stored, ok := m.records[r.id]; ok {
		r.createdAt = stored.createdAt
	} else if r.createdAt.IsZero() {
		r.createdAt = now
	}
	r.updatedAt = now
	m.records[r.id] = r.clone()
	return nil
}

// Destroy removes a record. Destroying an absent record is a no-op.
func (m *Memory) Destroy(ctx context.Context, id uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.records, id)
	return nil
}

func (r *Record) clone() *Record {
	keys := make(map[string]interface{}, len(r.keys))
	for key, value := range r.keys {
		keys[key] = value
	}
	return &Record{class: r.class, id: r.id, createdAt: r.createdAt, updatedAt: r.updatedAt, keys: keys}
}

func sortRecords(records []*Record, keys []query.SortKey) {
	if len(keys) == 0 {
		keys = []query.SortKey{{Field: query.FieldCreatedAt}}
	}
	sort.SliceStable(records, func(i, j int) bool {
		a := records[i].matchObject()
		b := records[j].matchObject()
		for _, key := range keys {
			order, comparable := query.CompareValues(a[key.Field], b[key.Field])
			if !comparable || order == 0 {
				continue
			}
			if key.Descending {
				return order > 0
			}
			return order < 0
		}
		// stable tie break on id so pagination does not shuffle
		return records[i].id.String() < records[j].id.String()
	})
}
