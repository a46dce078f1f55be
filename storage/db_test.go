package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
	"github.com/leeforge/billing/storage/memory"
)

func customerSchema() *schema.Schema {
	return schema.Fold(schema.Definition{
		"customer": {
			"email":     {Type: schema.TypeString, Required: true, Unique: true},
			"status":    {Type: schema.TypeString, Default: "active"},
			"seats":     {Type: schema.TypeNumber},
			"createdAt": {Type: schema.TypeDate, Default: storage.DefaultNow},
		},
	})
}

func newDB(t *testing.T, hooks *hook.Manager) *storage.DB {
	t.Helper()
	store := memory.New()
	s := customerSchema()
	require.NoError(t, store.Migrate(context.Background(), s))
	db := storage.NewDB(store, hooks, nil)
	db.SetSchema(s)
	return db
}

func TestCreateAppliesDefaults(t *testing.T) {
	db := newDB(t, nil)
	before := time.Now().UTC()

	rec, err := db.Create(context.Background(), "customer", storage.Record{"email": "a@x.io", "seats": 2})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID())
	assert.Equal(t, "active", rec["status"])
	assert.Equal(t, 2.0, rec["seats"])
	created := rec.Time("createdAt")
	assert.False(t, created.Before(before.Add(-time.Second)), "createdAt %v", created)
	assert.Equal(t, time.UTC, created.Location())
}

func TestCreateKeepsExplicitValuesOverDefaults(t *testing.T) {
	db := newDB(t, nil)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	rec, err := db.Create(context.Background(), "customer", storage.Record{
		"email": "a@x.io", "status": "trialing", "createdAt": at,
	})
	require.NoError(t, err)
	assert.Equal(t, "trialing", rec["status"])
	assert.True(t, at.Equal(rec.Time("createdAt")))
}

func TestCreateValidation(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		model string
		data  storage.Record
	}{
		{"unknown model", "invoice", storage.Record{"email": "a@x.io"}},
		{"missing required", "customer", storage.Record{"status": "active"}},
		{"null required", "customer", storage.Record{"email": nil}},
		{"unknown field", "customer", storage.Record{"email": "a@x.io", "nickname": "al"}},
		{"wrong type", "customer", storage.Record{"email": "a@x.io", "seats": "two"}},
		{"bad date", "customer", storage.Record{"email": "a@x.io", "createdAt": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Create(ctx, tt.model, tt.data)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
}

func TestCreateUniqueConflict(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()

	_, err := db.Create(ctx, "customer", storage.Record{"email": "a@x.io"})
	require.NoError(t, err)
	_, err = db.Create(ctx, "customer", storage.Record{"email": "a@x.io"})
	assert.True(t, errors.IsConflict(err), "got %v", err)
}

func TestWriteHooks(t *testing.T) {
	hooks := hook.NewManager()
	var fired []string
	record := func(name string) {
		hooks.Register(name, func(_ context.Context, hc *hook.Context) error {
			fired = append(fired, name)
			return nil
		})
	}
	for _, action := range []string{storage.ActionCreate, storage.ActionUpdate, storage.ActionDelete} {
		record(storage.HookName(storage.PhaseBefore, "customer", action))
		record(storage.HookName(storage.PhaseAfter, "customer", action))
	}

	db := newDB(t, hooks)
	ctx := context.Background()

	rec, err := db.Create(ctx, "customer", storage.Record{"email": "a@x.io"})
	require.NoError(t, err)
	_, err = db.Update(ctx, "customer", condition.Eq("id", rec.ID()), storage.Record{"seats": 3})
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx, "customer", condition.Eq("id", rec.ID())))

	assert.Equal(t, []string{
		"beforeCustomerCreate", "afterCustomerCreate",
		"beforeCustomerUpdate", "afterCustomerUpdate",
		"beforeCustomerDelete", "afterCustomerDelete",
	}, fired)
}

func TestBeforeCreateHookMayAlterData(t *testing.T) {
	hooks := hook.NewManager()
	hooks.Register("beforeCustomerCreate", func(_ context.Context, hc *hook.Context) error {
		hc.Data["status"] = "vip"
		return nil
	})
	var result map[string]any
	hooks.Register("afterCustomerCreate", func(_ context.Context, hc *hook.Context) error {
		result = hc.Result
		return nil
	})

	db := newDB(t, hooks)
	rec, err := db.Create(context.Background(), "customer", storage.Record{"email": "a@x.io"})
	require.NoError(t, err)
	assert.Equal(t, "vip", rec["status"])
	assert.Equal(t, rec.ID(), result["id"])
}

func TestFailingBeforeCreateHookDoesNotBlockWrite(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	hooks := hook.NewManager(hook.WithLogger(logging.FromZap(zap.New(core))))
	hooks.Register("beforeCustomerCreate", func(context.Context, *hook.Context) error {
		return errors.NewInternal("crm unavailable")
	})
	ran := false
	hooks.Register("beforeCustomerCreate", func(context.Context, *hook.Context) error {
		ran = true
		return nil
	})

	db := newDB(t, hooks)
	ctx := context.Background()
	rec, err := db.Create(ctx, "customer", storage.Record{"email": "a@x.io"})
	require.NoError(t, err)
	assert.True(t, ran)

	found, err := db.FindOne(ctx, "customer", condition.Eq("id", rec.ID()))
	require.NoError(t, err)
	require.NotNil(t, found)

	entries := logs.FilterField(logging.Hook("beforeCustomerCreate")).All()
	require.Len(t, entries, 1)
}

func TestUpdateAndDeleteRequireWhere(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()

	_, err := db.Update(ctx, "customer", nil, storage.Record{"seats": 1})
	assert.True(t, errors.IsValidation(err))
	assert.True(t, errors.IsValidation(db.Delete(ctx, "customer", nil)))
}

func TestUpdateRejectsIDChange(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()
	rec, err := db.Create(ctx, "customer", storage.Record{"email": "a@x.io"})
	require.NoError(t, err)

	_, err = db.Update(ctx, "customer", condition.Eq("id", rec.ID()), storage.Record{"id": "other"})
	assert.True(t, errors.IsValidation(err))
}

func TestUpdateNotFound(t *testing.T) {
	db := newDB(t, nil)
	_, err := db.Update(context.Background(), "customer", condition.Eq("email", "ghost@x.io"), storage.Record{"seats": 1})
	assert.True(t, errors.IsNotFound(err))
}

func TestFindValidatesAgainstSchema(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()

	_, err := db.FindMany(ctx, "customer", condition.Eq("nickname", "al"), nil)
	assert.True(t, errors.IsValidation(err))

	_, err = db.FindMany(ctx, "customer", condition.New("seats", condition.OpContains, "1"), nil)
	assert.True(t, errors.IsValidation(err))

	_, err = db.FindMany(ctx, "customer", nil, &storage.FindOptions{SortBy: &storage.Sort{Field: "nickname"}})
	assert.True(t, errors.IsValidation(err))

	_, err = db.FindOne(ctx, "invoice", nil)
	assert.True(t, errors.IsValidation(err))

	_, err = db.FindMany(ctx, "customer", condition.Eq("seats", "3"), nil)
	assert.True(t, errors.IsValidation(err), "string operand on a number field: %v", err)
}

func TestUpdateUniqueConflict(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()

	_, err := db.Create(ctx, "customer", storage.Record{"email": "a@x.io"})
	require.NoError(t, err)
	b, err := db.Create(ctx, "customer", storage.Record{"email": "b@x.io"})
	require.NoError(t, err)

	_, err = db.Update(ctx, "customer", condition.Eq("id", b.ID()), storage.Record{"email": "a@x.io"})
	assert.True(t, errors.IsConflict(err), "got %v", err)

	updated, err := db.Update(ctx, "customer", condition.Eq("id", b.ID()), storage.Record{"email": "b@x.io", "seats": 2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, updated["seats"])
}

func TestCount(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()
	for _, email := range []string{"a@x.io", "b@x.io", "c@y.io"} {
		_, err := db.Create(ctx, "customer", storage.Record{"email": email})
		require.NoError(t, err)
	}

	n, err := db.Count(ctx, "customer", condition.New("email", condition.OpEndsWith, "@x.io"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSchemaIsLive(t *testing.T) {
	db := newDB(t, nil)
	ctx := context.Background()

	_, err := db.Create(ctx, "invoice", storage.Record{"amount": 10})
	require.Error(t, err)

	db.SetSchema(schema.Fold(customerSchema().Definition(), schema.Definition{
		"invoice": {"amount": {Type: schema.TypeNumber}},
	}))
	rec, err := db.Create(ctx, "invoice", storage.Record{"amount": 10})
	require.NoError(t, err)
	assert.Equal(t, 10.0, rec["amount"])
}

// plainAdapter hides the memory store's optional interfaces.
type plainAdapter struct{ storage.Adapter }

func TestTransactionFallsBackWithoutTransactor(t *testing.T) {
	store := memory.New()
	db := storage.NewDB(plainAdapter{store}, nil, nil)
	db.SetSchema(customerSchema())
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, tx *storage.DB) error {
		_, err := tx.Create(ctx, "customer", storage.Record{"email": "a@x.io"})
		if err != nil {
			return err
		}
		return errors.NewInternal("fail after write")
	})
	require.Error(t, err)

	// Without a transactor the write is not undone.
	n, err := db.Count(ctx, "customer", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHooksInsideTransactionSeeTransactionHandle(t *testing.T) {
	hooks := hook.NewManager()
	db := newDB(t, hooks)
	ctx := context.Background()

	assert.Same(t, db, storage.FromContext(ctx, db))

	var seen []*storage.DB
	hooks.Register(storage.HookName(storage.PhaseAfter, "customer", storage.ActionCreate),
		func(ctx context.Context, hc *hook.Context) error {
			h := storage.FromContext(ctx, db)
			seen = append(seen, h)
			// Reads through the handle must not wait on the open transaction.
			_, err := h.Count(ctx, "customer", nil)
			return err
		})

	var inner *storage.DB
	done := make(chan error, 1)
	go func() {
		done <- db.Transaction(ctx, func(ctx context.Context, tx *storage.DB) error {
			inner = tx
			assert.Same(t, tx, storage.FromContext(ctx, db))
			// A fresh context still binds the transaction for hooks.
			_, err := tx.Create(context.Background(), "customer", storage.Record{"email": "a@x.io"})
			return err
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction did not finish")
	}

	require.Len(t, seen, 1)
	assert.Same(t, inner, seen[0])

	_, err := db.Create(ctx, "customer", storage.Record{"email": "b@x.io"})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Same(t, db, seen[1])
}

func TestHookName(t *testing.T) {
	assert.Equal(t, "beforeCustomerCreate", storage.HookName(storage.PhaseBefore, "customer", storage.ActionCreate))
	assert.Equal(t, "afterUsageRecordDelete", storage.HookName(storage.PhaseAfter, "usageRecord", storage.ActionDelete))
}

func TestCoerceValue(t *testing.T) {
	v, err := storage.CoerceValue(schema.TypeNumber, int32(7))
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	v, err = storage.CoerceValue(schema.TypeDate, "2025-03-01T12:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), v)

	v, err = storage.CoerceValue(schema.TypeStringArray, []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	v, err = storage.CoerceValue(schema.TypeBoolean, int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = storage.CoerceValue(schema.TypeNumberArray, []any{"x"})
	assert.Error(t, err)

	_, err = storage.CoerceValue(schema.TypeString, 5)
	assert.Error(t, err)
}
