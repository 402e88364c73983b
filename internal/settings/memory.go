package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings in process memory. LoadErr and SetErr, when
// set, are returned by the corresponding calls.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]any

	LoadErr error
	SetErr  error

	notifier notifier
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]any)}
}

func (m *MemoryStore) Load(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return Settings{}, m.LoadErr
	}
	s := Defaults()
	for k, v := range m.values {
		next, err := s.With(k, v)
		if err != nil {
			return Settings{}, err
		}
		s = next
	}
	return s, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	m.mu.Lock()
	if m.SetErr != nil {
		m.mu.Unlock()
		return m.SetErr
	}
	m.values[key] = value
	m.mu.Unlock()

	m.notifier.publish(Change{Key: key, Value: value})
	return nil
}

func (m *MemoryStore) Subscribe() (<-chan Change, func()) {
	return m.notifier.subscribe()
}

func (m *MemoryStore) Close() error {
	m.notifier.closeAll()
	return nil
}
