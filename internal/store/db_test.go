package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTemp(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestArtifactUpsertAndGet(t *testing.T) {
	db := openTemp(t)

	_, err := db.GetArtifact("https://example.com/model")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertArtifact(&Artifact{
		Identifier: " https://example.com/model ",
		Path:       "data/model.json",
		SHA256:     "aaaa",
		Size:       10,
		FetchedAt:  fetched,
	}))

	row, err := db.GetArtifact("https://example.com/model")
	require.NoError(t, err)
	assert.Equal(t, "aaaa", row.SHA256)
	assert.Equal(t, int64(10), row.Size)
	assert.True(t, row.FetchedAt.Equal(fetched))

	require.NoError(t, db.UpsertArtifact(&Artifact{
		Identifier: "https://example.com/model",
		Path:       "data/model.json",
		SHA256:     "bbbb",
		Size:       20,
		FetchedAt:  fetched.Add(time.Hour),
	}))
	row, err = db.GetArtifact("https://example.com/model")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", row.SHA256)

	rows, err := db.ListArtifacts()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTouchArtifact(t *testing.T) {
	db := openTemp(t)
	assert.True(t, errors.Is(db.TouchArtifact("missing", time.Now()), gorm.ErrRecordNotFound))

	require.NoError(t, db.UpsertArtifact(&Artifact{Identifier: "m", Path: "p", SHA256: "c", FetchedAt: time.Now()}))
	verified := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.TouchArtifact("m", verified))

	row, err := db.GetArtifact("m")
	require.NoError(t, err)
	assert.True(t, row.VerifiedAt.Equal(verified))
}

func TestUpsertArtifactValidation(t *testing.T) {
	db := openTemp(t)
	assert.Error(t, db.UpsertArtifact(nil))
	assert.Error(t, db.UpsertArtifact(&Artifact{Identifier: "  "}))
}
