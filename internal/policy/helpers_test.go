package policy

import (
	"context"
	"errors"
	"sort"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// memStore is an in-memory domain.PreferenceStore for tests.
type memStore struct {
	values map[string]string
	sets   map[string][]string
	err    error
}

func newMemStore() *memStore {
	return &memStore{
		values: make(map[string]string),
		sets:   make(map[string][]string),
	}
}

func (m *memStore) GetString(key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) PutString(key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *memStore) GetStringSet(key string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sets[key], nil
}

func (m *memStore) PutStringSet(key string, values []string) error {
	if m.err != nil {
		return m.err
	}
	m.sets[key] = append([]string(nil), values...)
	return nil
}

func (m *memStore) DeleteStringSet(key string) error {
	delete(m.sets, key)
	return nil
}

func (m *memStore) ListStringSets() ([]string, error) {
	keys := make([]string, 0, len(m.sets))
	for k := range m.sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// mockBroadcaster records settings-changed notifications.
type mockBroadcaster struct {
	keys []string
	err  error
}

func (b *mockBroadcaster) SettingsChanged(ctx context.Context, key string) error {
	b.keys = append(b.keys, key)
	return b.err
}

var errStore = errors.New("store unavailable")

var _ domain.PreferenceStore = (*memStore)(nil)
var _ domain.Broadcaster = (*mockBroadcaster)(nil)
