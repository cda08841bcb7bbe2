package pathsync

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataStoreRecordAndLastSync(t *testing.T) {
	root := t.TempDir()
	store := NewMetadataStore()

	last, _, err := store.LastSync(root)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	require.NoError(t, store.RecordSync(root, DirectionBoth, 5, StatusSuccess))

	last, direction, err := store.LastSync(root)
	require.NoError(t, err)
	assert.False(t, last.IsZero())
	assert.Equal(t, DirectionBoth, direction)
	assert.FileExists(t, filepath.Join(root, MetaDir, "metadata.json"))
}

func TestMetadataStorePersistsAcrossInstances(t *testing.T) {
	root := t.TempDir()

	store := NewMetadataStore()
	require.NoError(t, store.RecordSync(root, DirectionPush, 2, StatusPartial))

	// fresh store reads the same file back
	reopened := NewMetadataStore()
	history, err := reopened.History(root, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, DirectionPush, history[0].Direction)
	assert.Equal(t, 2, history[0].FilesSynced)
	assert.Equal(t, StatusPartial, history[0].Status)
}

func TestMetadataStoreHistoryCap(t *testing.T) {
	root := t.TempDir()
	store := NewMetadataStore()

	for i := 0; i < HistoryCap+10; i++ {
		require.NoError(t, store.RecordSync(root, DirectionBoth, i, StatusSuccess))
	}

	history, err := store.History(root, 0)
	require.NoError(t, err)
	require.Len(t, history, HistoryCap)

	// most recent first, oldest ten evicted
	assert.Equal(t, HistoryCap+9, history[0].FilesSynced)
	assert.Equal(t, 10, history[len(history)-1].FilesSynced)
}

func TestMetadataStoreHistoryLimit(t *testing.T) {
	root := t.TempDir()
	store := NewMetadataStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordSync(root, DirectionPull, i, StatusSuccess))
	}

	history, err := store.History(root, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 4, history[0].FilesSynced)
	assert.Equal(t, 3, history[1].FilesSynced)
}

func TestMetadataStoreIsolatesRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	store := NewMetadataStore()

	require.NoError(t, store.RecordSync(rootA, DirectionBoth, 1, StatusSuccess))

	history, err := store.History(rootB, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}
