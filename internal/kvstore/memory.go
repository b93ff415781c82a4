package kvstore

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore is a thread-safe, in-memory Store. Useful for unit tests
// and single-process deployments that can afford to lose the cache on
// restart (it is a cache; the origin remains authoritative).
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
}

// NewMemoryStore creates a ready-to-use in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) GetRecord(ctx context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hash, ok := m.hashes[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]string, len(hash))
	for k, v := range hash {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SetRecord(ctx context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string, len(fields))
		m.hashes[key] = hash
	}
	for k, v := range fields {
		hash[k] = v
	}
	return nil
}

func (m *MemoryStore) GetValue(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) SetValue(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *MemoryStore) AddToSet(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) UnionStore(ctx context.Context, dest string, srcs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	union := make(map[string]struct{})
	for _, src := range srcs {
		for member := range m.sets[src] {
			union[member] = struct{}{}
		}
	}
	m.sets[dest] = union
	return nil
}

func (m *MemoryStore) Intersect(ctx context.Context, keys ...string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(keys) == 0 {
		return nil, nil
	}
	var out []string
	for member := range m.sets[keys[0]] {
		inAll := true
		for _, key := range keys[1:] {
			if _, ok := m.sets[key][member]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, member)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Union(ctx context.Context, keys ...string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, key := range keys {
		for member := range m.sets[key] {
			if _, ok := seen[member]; ok {
				continue
			}
			seen[member] = struct{}{}
			out = append(out, member)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Members(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.values[key]; ok {
		return true, nil
	}
	if _, ok := m.hashes[key]; ok {
		return true, nil
	}
	if _, ok := m.sets[key]; ok {
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) Increment(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	m.values[key] = strconv.FormatInt(n+1, 10)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.values, key)
		delete(m.hashes, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	match := func(key string) {
		if ok, _ := path.Match(pattern, key); ok {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				out = append(out, key)
			}
		}
	}
	for key := range m.values {
		match(key)
	}
	for key := range m.hashes {
		match(key)
	}
	for key := range m.sets {
		match(key)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[string]string)
	m.hashes = make(map[string]map[string]string)
	m.sets = make(map[string]map[string]struct{})
	return nil
}
