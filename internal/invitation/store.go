package invitation

import (
	"context"
	"sync"
	"time"
)

// Outcome — исход загрузки страницы, который можно перерисовать.
// Хранится только вид ошибки: ни токена, ни учётных данных.
type Outcome struct {
	Kind Kind
}

// OutcomeStore — исходы по идентификатору загрузки страницы.
type OutcomeStore interface {
	// Get возвращает исход и признак его наличия.
	Get(ctx context.Context, key string) (Outcome, bool, error)
	// Put сохраняет исход с TTL.
	Put(ctx context.Context, key string, o Outcome, ttl time.Duration) error
}

type memEntry struct {
	outcome Outcome
	expires time.Time
}

// MemoryStore — OutcomeStore в памяти процесса.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry

	// Now подменяется в тестах.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemoryStore) Get(_ context.Context, key string) (Outcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Outcome{}, false, nil
	}

	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return Outcome{}, false, nil
	}

	return e.outcome, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, o Outcome, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}

	if ttl <= 0 {
		return nil
	}

	s.entries[key] = memEntry{outcome: o, expires: now.Add(ttl)}
	return nil
}

// Len — число живых и ещё не вычищенных записей.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
