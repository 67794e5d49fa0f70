package storage

import (
	"context"
	"sync"
)

// MemoryGroupStore keeps groups in process memory. Used by tests and by the
// "memory" store setting for local runs.
type MemoryGroupStore struct {
	mu     sync.Mutex
	groups map[string]*memGroup
}

type memGroup struct {
	fields  map[string]string
	version int64
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[string]*memGroup)}
}

func (s *MemoryGroupStore) CreateGroup(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		s.groups[id] = &memGroup{fields: make(map[string]string)}
	}
	return nil
}

func (s *MemoryGroupStore) ReadGroup(ctx context.Context, id string, keys ...string) (*Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	out := &Group{ID: id, Version: g.version, Fields: make(map[string]string)}
	if len(keys) == 0 {
		for k, v := range g.fields {
			out.Fields[k] = v
		}
		return out, nil
	}
	for _, k := range keys {
		if v, ok := g.fields[k]; ok {
			out.Fields[k] = v
		}
	}
	return out, nil
}

func (s *MemoryGroupStore) WriteGroup(ctx context.Context, id string, fields map[string]string, expectVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	var cur int64
	if ok {
		cur = g.version
	}
	if expectVersion >= 0 && cur != expectVersion {
		return 0, ErrVersionConflict
	}
	if !ok {
		g = &memGroup{fields: make(map[string]string)}
		s.groups[id] = g
	}
	for k, v := range fields {
		if v == "" {
			delete(g.fields, k)
			continue
		}
		g.fields[k] = v
	}
	g.version = cur + 1
	return g.version, nil
}

func (s *MemoryGroupStore) DeleteGroup(ctx context.Context, id string, expectVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	var cur int64
	if ok {
		cur = g.version
	}
	if expectVersion >= 0 && cur != expectVersion {
		return ErrVersionConflict
	}
	delete(s.groups, id)
	return nil
}

// Len reports the number of groups held.
func (s *MemoryGroupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}
