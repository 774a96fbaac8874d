// Package memory keeps stock items in process memory. The collection is lost
// on restart.
package memory

import (
	"context"
	"sync"

	"stockroom/internal/stock"
)

// Seed is the collection a fresh process starts with.
var Seed = []stock.Item{
	{ID: 1, Title: "Cat Food", Description: "It's cat food"},
	{ID: 2, Title: "Dog Food", Description: "It's dog food"},
}

// Store is a mutex-guarded stock.Store. lastID only ever grows, so ids are
// not reused after a delete.
type Store struct {
	mu     sync.Mutex
	items  []stock.Item
	lastID int64
}

// NewStore creates a store holding a copy of items.
func NewStore(items ...stock.Item) *Store {
	s := &Store{items: make([]stock.Item, 0, len(items))}
	for _, item := range items {
		s.items = append(s.items, item)
		if item.ID > s.lastID {
			s.lastID = item.ID
		}
	}
	return s
}

func (s *Store) List(ctx context.Context) ([]stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]stock.Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, stock.ErrNotFound
	}
	item := s.items[i]
	return &item, nil
}

func (s *Store) Create(ctx context.Context, item stock.Item) (*stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	item.ID = s.lastID
	s.items = append(s.items, item)
	return &item, nil
}

func (s *Store) Update(ctx context.Context, id int64, patch stock.Patch) (*stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, stock.ErrNotFound
	}
	patch.Apply(&s.items[i])
	item := s.items[i]
	return &item, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return stock.ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// indexOf must be called with mu held.
func (s *Store) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
