package cascade

import (
	"log/slog"
	"sync"
)

// Store is the durable key-value boundary persistent values read and write
// through. Implementations must tolerate concurrent Save calls for
// different keys; Saves for one key arrive serialized.
type Store interface {
	// Load returns the stored bytes for key and whether the key exists.
	Load(key string) ([]byte, bool, error)
	// Save durably stores data under key, replacing any previous value.
	Save(key string, data []byte) error
}

// MemoryStore is an in-process Store, useful in tests and as the default
// when nothing durable is configured.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string][]byte)}
}

func (s *MemoryStore) Load(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (s *MemoryStore) Save(key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.m[key] = cp
	s.mu.Unlock()
	return nil
}

// Registry owns the persistent values of an application: it deduplicates
// them by name, seeds each from the store, and serializes all store writes
// on one dedicated worker. Create one explicitly at startup and pass it
// where needed; there is no ambient global registry.
type Registry struct {
	store  Store
	logger *slog.Logger
	io     *SerialContext

	mu     sync.Mutex
	values map[string]any
}

// RegistryOption configures a registry at construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	logger *slog.Logger
}

// WithRegistryLogger sets the logger used for persistence failures.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(c *registryConfig) {
		c.logger = l
	}
}

// NewRegistry creates a registry persisting through store.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	if store == nil {
		panic("cascade: nil store")
	}
	cfg := registryConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: cfg.logger,
		io:     NewSerialContext("persist", WithContextLogger(cfg.logger)),
		values: make(map[string]any),
	}
}

// Close drains pending store writes and stops the persistence worker.
func (r *Registry) Close() {
	r.io.Close()
}
