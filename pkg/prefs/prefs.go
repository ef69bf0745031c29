package prefs

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/japaniel/cnyconv/pkg/db"
	"github.com/rs/zerolog"
)

// CurrencyKey is the store key of the target currency.
const CurrencyKey = "currency"

// ErrNotFound is returned by Store.Get for an unset key.
var ErrNotFound = errors.New("preference not set")

// Store is an async key-value store for user preferences.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// SQLStore persists preferences in the preferences table.
type SQLStore struct {
	conn *sql.DB
}

// NewSQLStore wraps an initialized database.
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{conn: conn}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := db.GetPreference(s.conn, key)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return p.Value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.SetPreference(s.conn, key, value)
}

// MemoryStore keeps preferences for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// FallbackStore writes through to a durable store and mirrors every value in
// memory. When the durable store fails, reads and writes are served from memory.
// A nil durable store means memory only.
type FallbackStore struct {
	durable Store
	memory  *MemoryStore
	log     zerolog.Logger
}

// NewFallbackStore wraps durable (may be nil).
func NewFallbackStore(durable Store, log zerolog.Logger) *FallbackStore {
	return &FallbackStore{
		durable: durable,
		memory:  NewMemoryStore(),
		log:     log.With().Str("component", "prefs").Logger(),
	}
}

func (f *FallbackStore) Get(ctx context.Context, key string) (string, error) {
	if f.durable != nil {
		v, err := f.durable.Get(ctx, key)
		switch {
		case err == nil:
			_ = f.memory.Set(ctx, key, v)
			return v, nil
		case errors.Is(err, ErrNotFound):
		default:
			f.log.Warn().Err(err).Str("key", key).Msg("Preference store read failed, using memory")
		}
	}
	return f.memory.Get(ctx, key)
}

func (f *FallbackStore) Set(ctx context.Context, key, value string) error {
	_ = f.memory.Set(ctx, key, value)
	if f.durable == nil {
		return nil
	}
	if err := f.durable.Set(ctx, key, value); err != nil {
		f.log.Warn().Err(err).Str("key", key).Msg("Preference store write failed, kept in memory")
	}
	return nil
}

// Preference is the process-wide target currency. Set is the only writer.
type Preference struct {
	mu   sync.RWMutex
	code string
}

// NewPreference starts with code (normalized to upper case).
func NewPreference(code string) *Preference {
	return &Preference{code: Normalize(code)}
}

// Current returns the selected currency code.
func (p *Preference) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.code
}

// Set replaces the selected currency and reports whether it changed.
func (p *Preference) Set(code string) bool {
	code = Normalize(code)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.code == code {
		return false
	}
	p.code = code
	return true
}

// Load initializes p from the store, keeping the current value when the store
// has nothing or fails.
func (p *Preference) Load(ctx context.Context, s Store) error {
	v, err := s.Get(ctx, CurrencyKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if v = Normalize(v); v != "" {
		p.Set(v)
	}
	return nil
}

// Normalize trims and upper-cases a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
