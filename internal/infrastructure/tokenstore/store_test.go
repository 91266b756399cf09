package tokenstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
	"github.com/civicportal/resident-portal/internal/pkg/config"
)

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, store ports.TokenStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNoCredential)

	require.NoError(t, store.Clear(ctx), "clearing an empty store is a no-op")

	require.NoError(t, store.Save(ctx, "first.jwt.value"))
	require.NoError(t, store.Save(ctx, "second.jwt.value"))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second.jwt.value", got)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFile_Contract(t *testing.T) {
	store, err := NewFile(filepath.Join(t.TempDir(), "nested", "token.json"), "")
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFile_SealedContract(t *testing.T) {
	store, err := NewFile(filepath.Join(t.TempDir(), "token.json"), "correct horse battery staple")
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	first, err := NewFile(path, "k")
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), "persisted.jwt.value"))

	second, err := NewFile(path, "k")
	require.NoError(t, err)
	got, err := second.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "persisted.jwt.value", got)
}

func TestFile_SealedTokenNotOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFile(path, "k")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "secret.jwt.value"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "secret.jwt.value"))

	var rec fileRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.True(t, rec.Sealed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())
}

func TestFile_WrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFile(path, "right")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "v"))

	other, err := NewFile(path, "wrong")
	require.NoError(t, err)
	_, err = other.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoCredential)

	plain, err := NewFile(path, "")
	require.NoError(t, err)
	_, err = plain.Load(context.Background())
	assert.Error(t, err)
}

func TestFile_RequiresPath(t *testing.T) {
	_, err := NewFile("", "")
	assert.Error(t, err)
}

func TestOpen_LocalBackends(t *testing.T) {
	mem, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Backend: config.StoreMemory}})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, mem.Store)
	assert.Nil(t, mem.Ping)

	file, err := Open(context.Background(), &config.Config{
		Profile: "resident",
		Store:   config.StoreConfig{Backend: config.StoreFile, Path: filepath.Join(t.TempDir(), "t.json")},
	})
	require.NoError(t, err)
	assert.IsType(t, &File{}, file.Store)
	assert.NoError(t, file.Close(context.Background()))

	_, err = Open(context.Background(), &config.Config{Store: config.StoreConfig{Backend: "cookie"}})
	assert.Error(t, err)
}
