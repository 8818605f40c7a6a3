package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDraftRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	body, err := store.Draft(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Empty(t, body)

	require.NoError(t, store.SaveDraft(ctx, "u1", "u2", "half a thought"))
	require.NoError(t, store.SaveDraft(ctx, "u1", "u2", "a whole thought"))
	require.NoError(t, store.SaveDraft(ctx, "u1", "u3", "other"))

	body, err = store.Draft(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Equal(t, "a whole thought", body)

	// Drafts are scoped per principal.
	body, err = store.Draft(ctx, "u9", "u2")
	require.NoError(t, err)
	require.Empty(t, body)
}

func TestSaveBlankDraftDeletes(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.SaveDraft(ctx, "u1", "u2", "hello"))
	require.NoError(t, store.SaveDraft(ctx, "u1", "u2", "   "))

	body, err := store.Draft(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Empty(t, body)

	require.NoError(t, store.DeleteDraft(ctx, "u1", "missing"))
}

func TestSelection(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	got, err := store.LastSelection(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, store.SaveSelection(ctx, "u1", "u2"))
	require.NoError(t, store.SaveSelection(ctx, "u1", "u3"))

	got, err = store.LastSelection(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u3", got)
}

func TestRequiresKeys(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.SaveDraft(context.Background(), "", "u2", "x"))
	require.Error(t, store.SaveSelection(context.Background(), "u1", " "))
}

func TestNilStore(t *testing.T) {
	var store *Store
	require.ErrorIs(t, store.SaveDraft(context.Background(), "u1", "u2", "x"), ErrStoreClosed)
	require.NoError(t, store.Close())
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveDraft(ctx, "u1", "u2", "persisted"))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	body, err := store.Draft(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Equal(t, "persisted", body)
}

func TestForgetClearsOnlyThatPrincipal(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.SaveDraft(ctx, "u1", "u2", "mine"))
	require.NoError(t, store.SaveSelection(ctx, "u1", "u2"))
	require.NoError(t, store.SaveDraft(ctx, "u9", "u2", "theirs"))

	require.NoError(t, store.Forget(ctx, "u1"))

	body, err := store.Draft(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Empty(t, body)
	selected, err := store.LastSelection(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, selected)

	body, err = store.Draft(ctx, "u9", "u2")
	require.NoError(t, err)
	require.Equal(t, "theirs", body)

	require.Error(t, store.Forget(ctx, " "))
}
