package notes

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/leetsrs/internal/domain"
	"github.com/conorfennell/leetsrs/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func TestSaveAndGet(t *testing.T) {
	svc, _ := newTestService(t)

	_, ok, err := svc.Get("card-1")
	require.NoError(t, err)
	assert.False(t, ok)

	saved, err := svc.Save("card-1", "two pointers from both ends")
	require.NoError(t, err)
	assert.Equal(t, "card-1", saved.CardID)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, ok, err := svc.Get("card-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two pointers from both ends", got.Text)
}

func TestSaveReplacesExisting(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Save("card-1", "first draft")
	require.NoError(t, err)
	_, err = svc.Save("card-1", "second draft")
	require.NoError(t, err)

	got, ok, err := svc.Get("card-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second draft", got.Text)
}

func TestSaveRejectsOversizedNote(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Save("card-1", strings.Repeat("a", domain.MaxNoteLength+1))
	assert.ErrorIs(t, err, ErrTooLong)

	// Exactly at the limit is allowed.
	_, err = svc.Save("card-1", strings.Repeat("a", domain.MaxNoteLength))
	assert.NoError(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Save("card-1", "note")
	require.NoError(t, err)

	require.NoError(t, svc.Delete("card-1"))
	_, ok, err := svc.Get("card-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Delete("card-1"))
}

func TestConcurrentSavesKeepEveryNote(t *testing.T) {
	svc, _ := newTestService(t)
	const writers = 50

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := svc.Save(fmt.Sprintf("card-%d", i), "note")
			assert.NoError(t, err)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < writers; i++ {
		_, ok, err := svc.Get(fmt.Sprintf("card-%d", i))
		require.NoError(t, err)
		assert.True(t, ok, "note card-%d was lost", i)
	}
}

func TestSaveStampsDataModified(t *testing.T) {
	svc, store := newTestService(t)

	_, err := svc.Save("card-1", "note")
	require.NoError(t, err)

	_, ok, err := store.DataUpdatedAt()
	require.NoError(t, err)
	assert.True(t, ok)
}
