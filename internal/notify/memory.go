package notify

import (
	"context"
	"sort"
	"sync"

	"presentos/internal/model"
)

const DefaultRetention = 500

type memEntry struct {
	n   model.Notification
	day string
	seq uint64
}

// MemoryStore 进程内存储，保留最近 retention 条
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memEntry
	seq       uint64
	retention int
}

func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{entries: make(map[string]*memEntry), retention: retention}
}

func (s *MemoryStore) Upsert(_ context.Context, n model.Notification, day string) (model.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++

	for _, e := range s.entries {
		if e.n.Read || e.day != day || e.n.Type != n.Type || e.n.Subject != n.Subject {
			continue
		}
		e.n.Title = n.Title
		e.n.Body = n.Body
		e.n.Priority = n.Priority
		e.n.Metadata = n.Metadata
		e.n.CreatedAt = n.CreatedAt
		e.seq = s.seq
		return e.n, true, nil
	}

	s.entries[n.ID] = &memEntry{n: n, day: day, seq: s.seq}
	s.trim()
	return n, false, nil
}

func (s *MemoryStore) trim() {
	if len(s.entries) <= s.retention {
		return
	}
	sorted := s.sortedLocked()
	for _, e := range sorted[s.retention:] {
		delete(s.entries, e.n.ID)
	}
}

// sortedLocked 最新在前
func (s *MemoryStore) sortedLocked() []*memEntry {
	out := make([]*memEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].n.CreatedAt.Equal(out[j].n.CreatedAt) {
			return out[i].n.CreatedAt.After(out[j].n.CreatedAt)
		}
		return out[i].seq > out[j].seq
	})
	return out
}

func (s *MemoryStore) List(_ context.Context, f model.NotificationFilter) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Notification{}
	for _, e := range s.sortedLocked() {
		if !f.Match(e.n) {
			continue
		}
		out = append(out, e.n)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.n.Read = true
	return nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.n.Read {
			e.n.Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.n.Read {
			n++
		}
	}
	return n, nil
}
