package preview

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/chat"
)

func msg(id int64, text string) chat.Message {
	return chat.Message{ID: chat.MessageID(id), From: "u2", To: "u1", Text: text}
}

func TestUpsertMonotonic(t *testing.T) {
	cache := New()
	for _, id := range []int64{5, 3, 9, 7} {
		cache.Upsert("u2", msg(id, "m"))
	}
	got, ok := cache.Get("u2")
	require.True(t, ok)
	require.Equal(t, chat.MessageID(9), got.ID)
}

func TestUpsertOrderIndependent(t *testing.T) {
	ids := []int64{5, 3, 9, 7, 1, 8}
	for i := 0; i < 20; i++ {
		rand.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
		cache := New()
		for _, id := range ids {
			cache.Upsert("u2", msg(id, "m"))
		}
		got, _ := cache.Get("u2")
		require.Equal(t, chat.MessageID(9), got.ID)
	}
}

func TestUpsertRejectsEqualAndPending(t *testing.T) {
	cache := New()
	require.True(t, cache.Upsert("u2", msg(10, "first")))
	require.False(t, cache.Upsert("u2", msg(10, "same id")))

	pending := msg(20, "local")
	pending.Pending = true
	require.False(t, cache.Upsert("u2", pending))
	require.False(t, cache.Upsert(" ", msg(30, "no key")))

	got, _ := cache.Get("u2")
	require.Equal(t, "first", got.Text)
}

func TestUpsertTailAndPreview(t *testing.T) {
	cache := New()
	require.False(t, cache.UpsertTail("u2", nil))
	require.True(t, cache.UpsertTail("u2", []chat.Message{msg(1, "a"), msg(2, "b")}))

	preview := cache.Preview("u2")
	require.NotNil(t, preview.LastMessage)
	require.Equal(t, "b", preview.LastMessage.Text)
	require.Nil(t, cache.Preview("u9").LastMessage)
}

func TestSnapshotAndReset(t *testing.T) {
	cache := New()
	cache.Upsert("a", msg(1, "x"))
	cache.Upsert("b", msg(3, "x"))
	snap := cache.Snapshot()
	require.Len(t, snap, 2)

	cache.Reset()
	require.Empty(t, cache.Snapshot())
	require.Len(t, snap, 2)
}

func TestUpsertConcurrent(t *testing.T) {
	cache := New()
	var wg sync.WaitGroup
	for i := int64(1); i <= 200; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			cache.Upsert("u2", msg(id, "m"))
		}(i)
	}
	wg.Wait()
	got, _ := cache.Get("u2")
	require.Equal(t, chat.MessageID(200), got.ID)
}

func TestSummary(t *testing.T) {
	require.Equal(t, NoMessages, Summary(nil, 0))
	short := msg(1, "hi")
	require.Equal(t, "hi", Summary(&short, 0))
	long := msg(2, "abcdefghijklmnopqrstuvwxyz0123456789")
	require.Equal(t, "abcdefghijklmnopqrstuvwxyz0123...", Summary(&long, 0))
}
