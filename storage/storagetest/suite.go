// Package storagetest is a conformance suite every storage adapter runs.
// Results are compared with condition.Filter over the same records, so an
// adapter passes only when its translation keeps the reference semantics.
package storagetest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// Model is the table the suite writes to.
const Model = "customer"

// Schema is the table definition the suite migrates.
func Schema() *schema.Schema {
	return schema.Fold(schema.Definition{
		Model: {
			"email":     {Type: schema.TypeString, Required: true, Unique: true},
			"plan":      {Type: schema.TypeString},
			"seats":     {Type: schema.TypeNumber},
			"active":    {Type: schema.TypeBoolean},
			"createdAt": {Type: schema.TypeDate},
			"tags":      {Type: schema.TypeStringArray},
		},
	})
}

// Factory returns a fresh, empty adapter.
type Factory func(t *testing.T) storage.Adapter

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seed() []storage.Record {
	return []storage.Record{
		{"email": "a%b@x.io", "plan": "pro", "seats": 3, "active": true, "createdAt": base, "tags": []string{"eu"}},
		{"email": "a_b@x.io", "plan": "team", "seats": 10, "active": true, "createdAt": base.Add(time.Hour)},
		{"email": "ab@x.io", "plan": "free", "seats": 1, "active": false, "createdAt": base.Add(2 * time.Hour)},
		{"email": "AB@x.io", "plan": "pro", "seats": 25, "active": true, "createdAt": base.Add(3 * time.Hour)},
		{"email": "zed@y.com", "seats": 7, "active": false, "createdAt": base.Add(4 * time.Hour)},
		{"email": "nl@x.io\n", "seats": 2, "createdAt": base.Add(5 * time.Hour), "tags": []string{"eu", "us"}},
	}
}

// Cases are the conditions checked against the reference evaluator.
func Cases() map[string]condition.Condition {
	return map[string]condition.Condition{
		"eq":                condition.Eq("plan", "pro"),
		"eq int vs float":   condition.Eq("seats", 3),
		"eq bool":           condition.Eq("active", false),
		"eq nil":            condition.Eq("plan", nil),
		"ne":                condition.New("plan", condition.OpNe, "pro"),
		"gt":                condition.New("seats", condition.OpGt, 7),
		"gte":               condition.New("seats", condition.OpGte, 7),
		"lt":                condition.New("seats", condition.OpLt, 3),
		"lte":               condition.New("seats", condition.OpLte, 3),
		"in":                condition.New("plan", condition.OpIn, []string{"team", "free"}),
		"in numbers":        condition.New("seats", condition.OpIn, []any{1, 25}),
		"contains percent":  condition.New("email", condition.OpContains, "%"),
		"contains under":    condition.New("email", condition.OpContains, "_"),
		"starts_with case":  condition.New("email", condition.OpStartsWith, "a"),
		"ends_with":         condition.New("email", condition.OpEndsWith, ".io"),
		"date gt":           condition.New("createdAt", condition.OpGt, base.Add(90*time.Minute)),
		"date lte":          condition.New("createdAt", condition.OpLte, base.Add(time.Hour)),
		"or nested and":     condition.Any(condition.Eq("plan", "free"), condition.All(condition.Eq("active", true), condition.New("seats", condition.OpGte, 10))),
		"and of or":         condition.All(condition.New("email", condition.OpEndsWith, ".io"), condition.Any(condition.Eq("seats", 1), condition.Eq("seats", 25))),
		"regexp metachars":  condition.New("email", condition.OpContains, ".*"),
		"starts_with empty": condition.New("email", condition.OpStartsWith, ""),
		"ends_with newline": condition.New("email", condition.OpEndsWith, "x.io"),
		"eq array":          condition.Eq("tags", []string{"eu"}),
		"eq array order":    condition.Eq("tags", []any{"us", "eu"}),
		"ne array":          condition.New("tags", condition.OpNe, []string{"eu", "us"}),
	}
}

// Run executes the suite. Each subtest gets a fresh adapter.
func Run(t *testing.T, factory Factory) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, factory(t)) })
	t.Run("Conditions", func(t *testing.T) { testConditions(t, factory(t)) })
	t.Run("FindOptions", func(t *testing.T) { testFindOptions(t, factory(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("Transaction", func(t *testing.T) { testTransaction(t, factory(t)) })
}

func open(t *testing.T, adapter storage.Adapter) (*storage.DB, []storage.Record) {
	t.Helper()
	ctx := context.Background()

	s := Schema()
	if m, ok := adapter.(storage.Migrator); ok {
		require.NoError(t, m.Migrate(ctx, s))
	}
	db := storage.NewDB(adapter, nil, nil)
	db.SetSchema(s)

	var created []storage.Record
	for _, r := range seed() {
		rec, err := db.Create(ctx, Model, r)
		require.NoError(t, err)
		created = append(created, rec)
	}
	return db, created
}

func ids(records []storage.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	sort.Strings(out)
	return out
}

func testCRUD(t *testing.T, adapter storage.Adapter) {
	ctx := context.Background()
	db, created := open(t, adapter)

	first := created[0]
	require.NotEmpty(t, first.ID())

	found, err := db.FindOne(ctx, Model, condition.Eq("id", first.ID()))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a%b@x.io", found.String("email"))
	assert.Equal(t, 3.0, found.Float("seats"))
	assert.True(t, found.Bool("active"))
	assert.True(t, base.Equal(found.Time("createdAt")), "createdAt round trip: %v", found["createdAt"])
	assert.Equal(t, []string{"eu"}, found["tags"])

	missing, err := db.FindOne(ctx, Model, condition.Eq("id", "nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	updated, err := db.Update(ctx, Model, condition.Eq("id", first.ID()), storage.Record{"plan": "team", "seats": 4})
	require.NoError(t, err)
	assert.Equal(t, first.ID(), updated.ID())
	assert.Equal(t, "team", updated.String("plan"))
	assert.Equal(t, 4.0, updated.Float("seats"))
	assert.Equal(t, "a%b@x.io", updated.String("email"))

	_, err = db.Update(ctx, Model, condition.Eq("id", "nope"), storage.Record{"plan": "team"})
	assert.True(t, errors.IsNotFound(err), "got %v", err)

	count, err := db.Count(ctx, Model, condition.Eq("plan", "team"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	second := condition.Eq("id", created[1].ID())
	_, err = db.Update(ctx, Model, second, storage.Record{"email": first.String("email")})
	assert.True(t, errors.IsConflict(err), "update onto a taken unique value: %v", err)

	kept, err := db.Update(ctx, Model, second, storage.Record{"email": created[1].String("email"), "seats": 11})
	require.NoError(t, err)
	assert.Equal(t, 11.0, kept.Float("seats"))
}

func testConditions(t *testing.T, adapter storage.Adapter) {
	ctx := context.Background()
	db, created := open(t, adapter)

	for name, c := range Cases() {
		t.Run(name, func(t *testing.T) {
			want, err := condition.Filter(c, created)
			require.NoError(t, err)

			got, err := db.FindMany(ctx, Model, c, nil)
			require.NoError(t, err)
			assert.Equal(t, ids(want), ids(got), "condition %s", c)
		})
	}

	t.Run("nil matches all", func(t *testing.T) {
		got, err := db.FindMany(ctx, Model, nil, nil)
		require.NoError(t, err)
		assert.Len(t, got, len(created))
	})

	t.Run("in with scalar is a validation error", func(t *testing.T) {
		_, err := db.FindMany(ctx, Model, condition.New("plan", condition.OpIn, "pro"), nil)
		assert.True(t, errors.IsValidation(err))
	})

	mismatched := map[string]condition.Condition{
		"numeric string on number": condition.Eq("seats", "3"),
		"ne string on number":      condition.New("seats", condition.OpNe, "3"),
		"number on string":         condition.Eq("plan", 1),
		"string on boolean":        condition.Eq("active", "true"),
		"text on date":             condition.Eq("createdAt", base.Format(time.RFC3339)),
		"mixed in":                 condition.New("seats", condition.OpIn, []any{3, "10"}),
		"element on array":         condition.Eq("tags", "eu"),
	}
	for name, c := range mismatched {
		t.Run(name+" is a validation error", func(t *testing.T) {
			_, err := db.FindMany(ctx, Model, c, nil)
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
}

func testFindOptions(t *testing.T, adapter storage.Adapter) {
	ctx := context.Background()
	db, _ := open(t, adapter)

	got, err := db.FindMany(ctx, Model, nil, &storage.FindOptions{
		SortBy: &storage.Sort{Field: "seats", Desc: true},
		Limit:  2,
		Offset: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[0].Float("seats"))
	assert.Equal(t, 7.0, got[1].Float("seats"))

	got, err = db.FindMany(ctx, Model, nil, &storage.FindOptions{SortBy: &storage.Sort{Field: "createdAt"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a%b@x.io", got[0].String("email"))
}

func testDelete(t *testing.T, adapter storage.Adapter) {
	ctx := context.Background()
	db, created := open(t, adapter)

	require.NoError(t, db.Delete(ctx, Model, condition.Eq("plan", "pro")))
	require.NoError(t, db.Delete(ctx, Model, condition.Eq("plan", "enterprise")))

	left, err := db.FindMany(ctx, Model, nil, nil)
	require.NoError(t, err)
	assert.Len(t, left, len(created)-2)
	for _, r := range left {
		assert.NotEqual(t, "pro", r.String("plan"))
	}
}

func testTransaction(t *testing.T, adapter storage.Adapter) {
	if _, ok := adapter.(storage.Transactor); !ok {
		t.Skipf("%s adapter has no transactions", adapter.Name())
	}
	ctx := context.Background()
	db, created := open(t, adapter)

	boom := errors.NewInternal("rollback please")
	err := db.Transaction(ctx, func(ctx context.Context, tx *storage.DB) error {
		if _, err := tx.Create(ctx, Model, storage.Record{"email": "tx@x.io"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	found, err := db.FindOne(ctx, Model, condition.Eq("email", "tx@x.io"))
	require.NoError(t, err)
	assert.Nil(t, found, "rolled back insert must not be visible")

	err = db.Transaction(ctx, func(ctx context.Context, tx *storage.DB) error {
		_, err := tx.Create(ctx, Model, storage.Record{"email": "kept@x.io"})
		return err
	})
	require.NoError(t, err)

	count, err := db.Count(ctx, Model, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(created)+1), count)
}
