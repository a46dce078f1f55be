package mongostore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/storage"
	"github.com/leeforge/billing/storage/storagetest"
)

func TestTranslateLeaf(t *testing.T) {
	tests := []struct {
		name string
		in   condition.Condition
		want bson.M
	}{
		{"eq id", condition.Eq("id", "c1"), bson.M{"_id": "c1"}},
		{"eq int", condition.Eq("seats", 3), bson.M{"seats": 3.0}},
		{"ne", condition.New("plan", condition.OpNe, "pro"), bson.M{"plan": bson.M{"$ne": "pro"}}},
		{"in", condition.New("plan", condition.OpIn, []string{"a", "b"}), bson.M{"plan": bson.M{"$in": bson.A{"a", "b"}}}},
		{"contains quotes", condition.New("email", condition.OpContains, "a.b"), bson.M{"email": bson.M{"$regex": bson.Regex{Pattern: `a\.b`}}}},
		{"starts_with", condition.New("email", condition.OpStartsWith, "a+"), bson.M{"email": bson.M{"$regex": bson.Regex{Pattern: `^a\+`}}}},
		{"ends_with", condition.New("email", condition.OpEndsWith, ".io"), bson.M{"email": bson.M{"$regex": bson.Regex{Pattern: `\.io\z`}}}},
		{"eq array", condition.Eq("tags", []string{"eu", "us"}), bson.M{"tags": bson.A{"eu", "us"}}},
		{"in numbers", condition.New("seats", condition.OpIn, []int{1, 2}), bson.M{"seats": bson.M{"$in": bson.A{1.0, 2.0}}}},
		{"or", condition.Any(condition.Eq("a", "x"), condition.Eq("b", "y")), bson.M{"$or": bson.A{bson.M{"a": "x"}, bson.M{"b": "y"}}}},
		{"and", condition.All(condition.Eq("a", "x"), condition.New("n", condition.OpGt, 1)), bson.M{"$and": bson.A{bson.M{"a": "x"}, bson.M{"n": bson.M{"$gt": 1.0}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translateNode(condition.Normalize(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateUnsupportedOperator(t *testing.T) {
	_, err := translateNode(condition.New("email", "regex", "^a"))
	assert.True(t, errors.IsUnsupportedOperator(err))
}

func TestPlainConvertsDriverTypes(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	got := plain(bson.D{
		{Key: "at", Value: bson.NewDateTimeFromTime(at)},
		{Key: "tags", Value: bson.A{"eu"}},
	})
	assert.Equal(t, map[string]any{"at": at, "tags": []any{"eu"}}, got)
}

func TestConformance(t *testing.T) {
	uri := strings.TrimSpace(os.Getenv("BILLING_TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("BILLING_TEST_MONGO_URI not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		ctx := context.Background()
		database := "billingtest_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
		store, err := Open(ctx, uri, database, nil)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = store.Database().Drop(ctx)
			_ = store.Close(ctx)
		})
		return store
	})
}
