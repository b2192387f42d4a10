package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/checkpulse/internal/config"
)

// exerciseContract runs the record store contract against a live backend,
// using a fresh collection so runs do not collide.
func exerciseContract(t *testing.T, s Store) {
	t.Helper()

	ctx := context.Background()
	collection := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	require.NoError(t, s.Create(ctx, collection, "one", []byte(`{"id":"one","timeoutSeconds":3}`)))
	require.ErrorIs(t, s.Create(ctx, collection, "one", []byte(`{}`)), ErrExists)

	data, err := s.Read(ctx, collection, "one")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"one","timeoutSeconds":3}`, string(data))

	require.NoError(t, s.Update(ctx, collection, "one", []byte(`{"id":"one","state":"up"}`)))
	data, err = s.Read(ctx, collection, "one")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"one","state":"up"}`, string(data))
	require.ErrorIs(t, s.Update(ctx, collection, "two", []byte(`{}`)), ErrNotFound)

	require.NoError(t, s.Create(ctx, collection, "two", []byte(`{}`)))
	ids, err := s.List(ctx, collection)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, ids)

	require.NoError(t, s.Delete(ctx, collection, "one"))
	require.NoError(t, s.Delete(ctx, collection, "two"))
	_, err = s.Read(ctx, collection, "one")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	s, closeFn, err := Open(context.Background(), config.StoreConfig{
		Type:         "postgres",
		DSN:          dsn,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	exerciseContract(t, s)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	s, closeFn, err := Open(context.Background(), config.StoreConfig{
		Type:     "mongo",
		MongoURI: uri,
		MongoDB:  "checkpulse_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	exerciseContract(t, s)
}
