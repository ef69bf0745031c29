package prefs

import (
	"context"
	"errors"
	"testing"

	"github.com/japaniel/cnyconv/pkg/db"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) { return "", errors.New("disk gone") }
func (brokenStore) Set(context.Context, string, string) error   { return errors.New("disk gone") }

func TestSQLStore(t *testing.T) {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	s := NewSQLStore(conn)
	ctx := context.Background()

	_, err = s.Get(ctx, CurrencyKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, CurrencyKey, "EUR"))
	v, err := s.Get(ctx, CurrencyKey)
	require.NoError(t, err)
	assert.Equal(t, "EUR", v)
}

func TestFallbackStoreDegradesToMemory(t *testing.T) {
	s := NewFallbackStore(brokenStore{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, CurrencyKey, "TRY"))
	v, err := s.Get(ctx, CurrencyKey)
	require.NoError(t, err)
	assert.Equal(t, "TRY", v)
}

func TestFallbackStoreWithoutDurable(t *testing.T) {
	s := NewFallbackStore(nil, zerolog.Nop())
	_, err := s.Get(context.Background(), CurrencyKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPreferenceLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := NewPreference("usd")
	assert.Equal(t, "USD", p.Current())

	require.NoError(t, p.Load(ctx, store))
	assert.Equal(t, "USD", p.Current(), "missing value keeps default")

	require.NoError(t, store.Set(ctx, CurrencyKey, " eur "))
	require.NoError(t, p.Load(ctx, store))
	assert.Equal(t, "EUR", p.Current())

	assert.Error(t, p.Load(ctx, brokenStore{}))
	assert.Equal(t, "EUR", p.Current())
}

func TestPreferenceSetReportsChange(t *testing.T) {
	p := NewPreference("USD")
	assert.False(t, p.Set("usd"))
	assert.True(t, p.Set("EUR"))
	assert.Equal(t, "EUR", p.Current())
}
