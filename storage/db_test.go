package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("alpha"), []byte("one")))

	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	_, err = db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("mutable")
	require.NoError(t, db.Put([]byte("key"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("mutable"), got)

	// Mutating the returned slice must not poison the stored copy.
	got[0] = 'Y'
	again, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("mutable"), again)
}

func TestMemDBWriteBatch(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("batched")
	require.NoError(t, db.WriteBatch(map[string][]byte{
		"alpha": value,
		"beta":  []byte("two"),
	}))
	value[0] = 'X'

	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("batched"), got)

	got, err = db.Get([]byte("beta"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}

func TestLevelDBWriteBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultdb")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.WriteBatch(map[string][]byte{
		"alpha": []byte("one"),
		"beta":  []byte("two"),
	}))

	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	got, err = db.Get([]byte("beta"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}

func TestLevelDBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultdb")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("beta"), []byte("two")))

	got, err := db.Get([]byte("beta"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)

	_, err = db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultdb")

	db, err := NewLevelDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("gamma"), []byte("three")))
	db.Close()

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("gamma"))
	require.NoError(t, err)
	require.Equal(t, []byte("three"), got)
}
