package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemStore - capped-коллекция в памяти процесса
type MemStore struct {
	mu       sync.RWMutex
	order    []*memEntry // от старых к новым
	index    map[ID]*memEntry
	bytes    int64
	capacity Capacity
	newID    func() (ID, error)
}

type memEntry struct {
	rec  Record
	size int64
}

func NewMemStore(capacity Capacity) *MemStore {
	return &MemStore{
		index:    make(map[ID]*memEntry),
		capacity: capacity,
		newID:    newID,
	}
}

func (s *MemStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, e := range s.order {
		out = append(out, cloneRecord(e.rec))
	}
	return out, nil
}

func (s *MemStore) Get(_ context.Context, id ID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[id]
	if !ok {
		return Record{}, fmt.Errorf("get %s: %w", RenderID(id), ErrNotFound)
	}
	return cloneRecord(e.rec), nil
}

// Insert добавляет документ в конец и вытесняет записи с начала, пока оба
// лимита не выполнены. Выдача id, вставка и вытеснение под одной блокировкой.
func (s *MemStore) Insert(_ context.Context, doc Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newID()
	if err != nil {
		return "", storageErr("insert", err)
	}
	if _, dup := s.index[id]; dup {
		return "", storageErr("insert", fmt.Errorf("duplicate id %s", RenderID(id)))
	}
	rec := cloneRecord(Record{ID: id, Document: doc})
	size, err := recordSize(rec)
	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}

	e := &memEntry{rec: rec, size: size}
	s.order = append(s.order, e)
	s.index[id] = e
	s.bytes += size

	evicted := 0
	for len(s.order) > s.capacity.MaxRecords || s.bytes > s.capacity.MaxSizeBytes {
		old := s.order[0]
		s.order[0] = nil
		s.order = s.order[1:]
		delete(s.index, old.rec.ID)
		s.bytes -= old.size
		evicted++
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Int("count", len(s.order)).Int64("bytes", s.bytes).Msg("capped collection evicted oldest records")
	}
	return RenderID(id), nil
}

func (s *MemStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Count: len(s.order), Bytes: s.bytes}, nil
}

func (s *MemStore) Close() error { return nil }

func cloneRecord(r Record) Record {
	out := Record{ID: r.ID, Document: Document{Name: r.Name}}
	if len(r.Fields) > 0 {
		out.Fields = make([]Field, len(r.Fields))
		for i, f := range r.Fields {
			out.Fields[i] = Field{Key: f.Key, Value: append([]byte(nil), f.Value...)}
		}
	}
	return out
}
