package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/storage"
	"github.com/leeforge/billing/storage/memory"
	"github.com/leeforge/billing/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Adapter { return memory.New() })
}

func TestCreateReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	in := storage.Record{"id": "c1", "email": "a@x.io"}
	out, err := store.Create(ctx, "customer", in)
	require.NoError(t, err)

	in["email"] = "changed@x.io"
	out["email"] = "changed@x.io"

	found, err := store.FindOne(ctx, "customer", condition.Eq("id", "c1"))
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", found["email"])
}

func TestDuplicateIDConflicts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := store.Create(ctx, "customer", storage.Record{"id": "c1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "customer", storage.Record{"id": "c1"})
	assert.True(t, errors.IsConflict(err))
}

func TestUpdateChangesFirstMatchOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, id := range []string{"c1", "c2"} {
		_, err := store.Create(ctx, "customer", storage.Record{"id": id, "plan": "free"})
		require.NoError(t, err)
	}

	updated, err := store.Update(ctx, "customer", condition.Eq("plan", "free"), storage.Record{"plan": "pro"})
	require.NoError(t, err)
	assert.Equal(t, "c1", updated.ID())

	free, err := store.FindMany(ctx, "customer", condition.Eq("plan", "free"), nil)
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, "c2", free[0].ID())
}

func TestUnknownOperatorIsRejected(t *testing.T) {
	store := memory.New()
	_, err := store.FindMany(context.Background(), "customer", condition.New("email", "regex", "^a"), nil)
	// No records means no leaf is evaluated.
	require.NoError(t, err)

	_, err = store.Create(context.Background(), "customer", storage.Record{"email": "a@x.io"})
	require.NoError(t, err)
	_, err = store.FindMany(context.Background(), "customer", condition.New("email", "regex", "^a"), nil)
	assert.True(t, errors.IsUnsupportedOperator(err))
}

func TestPaginate(t *testing.T) {
	records := []storage.Record{
		{"id": "a", "n": 3.0},
		{"id": "b", "n": 1.0},
		{"id": "c"},
		{"id": "d", "n": 2.0},
	}

	ids := func(rs []storage.Record) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.ID()
		}
		return out
	}

	cp := func() []storage.Record { return append([]storage.Record(nil), records...) }

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(memory.Paginate(cp(), nil)))
	assert.Equal(t, []string{"c", "b", "d", "a"}, ids(memory.Paginate(cp(), &storage.FindOptions{SortBy: &storage.Sort{Field: "n"}})))
	assert.Equal(t, []string{"a", "d"}, ids(memory.Paginate(cp(), &storage.FindOptions{SortBy: &storage.Sort{Field: "n", Desc: true}, Limit: 2})))
	assert.Equal(t, []string{"c", "d"}, ids(memory.Paginate(cp(), &storage.FindOptions{Offset: 2})))
	assert.Empty(t, memory.Paginate(cp(), &storage.FindOptions{Offset: 10}))
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, "usage", storage.Record{"quantity": 1.0})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := store.Count(ctx, "usage", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}
