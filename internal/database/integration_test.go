package database_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/periscope/aggregator-api/internal/database"
	"github.com/periscope/aggregator-api/internal/models"
	"github.com/periscope/aggregator-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestManagerWithMongo(t *testing.T) {
	t.Parallel()

	mc := testutils.StartMongoContainer(t)

	tests := map[string]struct {
		stored int
		query  models.ListQuery

		wantSample int
		wantPage   int
		wantTotal  int64
	}{
		"Empty collection":  {stored: 0, query: models.ListQuery{Limit: 20}, wantSample: 0, wantPage: 0, wantTotal: 0},
		"Single record":     {stored: 1, query: models.ListQuery{Limit: 20}, wantSample: 1, wantPage: 1, wantTotal: 1},
		"Three records":     {stored: 3, query: models.ListQuery{Limit: 20}, wantSample: 3, wantPage: 3, wantTotal: 3},
		"Hundred records":   {stored: 100, query: models.ListQuery{Limit: 20}, wantSample: 3, wantPage: 20, wantTotal: 100},
		"No filter match":   {stored: 10, query: models.ListQuery{StoreDataID: "absent", Limit: 20}, wantSample: 3, wantPage: 0, wantTotal: 0},
		"One filter match":  {stored: 10, query: models.ListQuery{StoreDataID: "store-4", Limit: 20}, wantSample: 3, wantPage: 1, wantTotal: 1},
		"Many filter match": {stored: 10, query: models.ListQuery{StoreDataID: "shared", Limit: 2}, wantSample: 3, wantPage: 2, wantTotal: 5},
		"Search is case insensitive": {
			stored: 10, query: models.ListQuery{Search: "BIZ-7", Limit: 20},
			wantSample: 3, wantPage: 1, wantTotal: 1,
		},
		"Search treats input literally": {
			stored: 10, query: models.ListQuery{Search: "biz.*", Limit: 20},
			wantSample: 3, wantPage: 0, wantTotal: 0,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			collection := fmt.Sprintf("c_%s", primitive.NewObjectID().Hex())
			records := seedRecords(tc.stored)
			mc.Seed(t, collection, records...)

			mgr, err := database.New(t.Context(), mc.Config(collection))
			require.NoError(t, err, "Setup: New should not fail")
			defer func() { require.NoError(t, mgr.Close(), "Teardown: Close should not fail") }()

			sample, err := mgr.Sample(t.Context(), 3)
			require.NoError(t, err, "Sample should not fail")
			assert.Len(t, sample, tc.wantSample, "Unexpected sample size")
			for i, r := range sample {
				assert.Equal(t, records[i].BizID, r.BizID, "Sample should follow natural order")
			}

			page, total, err := mgr.List(t.Context(), tc.query)
			require.NoError(t, err, "List should not fail")
			assert.Equal(t, tc.wantTotal, total, "Unexpected total")
			assert.Len(t, page, tc.wantPage, "Unexpected page size")
			for _, r := range page {
				assert.True(t, tc.query.Matches(r), "Every listed record should match the query")
			}

			if tc.stored == 0 {
				return
			}
			got, err := mgr.Get(t.Context(), records[0].ID.Hex())
			require.NoError(t, err, "Get should not fail")
			assert.Equal(t, records[0].BizID, got.BizID, "Get should return the requested record")
		})
	}
}

func TestManagerWithMongoSorts(t *testing.T) {
	t.Parallel()

	mc := testutils.StartMongoContainer(t)
	collection := "sorted"
	records := seedRecords(6)
	mc.Seed(t, collection, records...)

	mgr, err := database.New(t.Context(), mc.Config(collection))
	require.NoError(t, err, "Setup: New should not fail")
	defer func() { require.NoError(t, mgr.Close(), "Teardown: Close should not fail") }()

	page, _, err := mgr.List(t.Context(), models.ListQuery{Sort: "timestamp", Descending: true, Skip: 1, Limit: 2})
	require.NoError(t, err, "List should not fail")
	require.Len(t, page, 2, "Unexpected page size")
	assert.Equal(t, records[4].BizID, page[0].BizID, "Descending order should start after the skipped newest record")
	assert.Equal(t, records[3].BizID, page[1].BizID, "Descending order should be kept within the page")

	require.NoError(t, mgr.Close(), "Close should not fail")
	_, err = mgr.Sample(t.Context(), 3)
	require.ErrorIs(t, err, database.ErrNotConnected, "Sample on a closed manager should fail")
}

// seedRecords returns n records where odd ones share a store data id.
func seedRecords(n int) []models.AggregatorRecord {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]models.AggregatorRecord, 0, n)
	for i := range n {
		storeID := fmt.Sprintf("store-%d", i)
		if i%2 == 1 {
			storeID = "shared"
		}
		records = append(records, models.AggregatorRecord{
			ID:        primitive.NewObjectID(),
			BizID:     fmt.Sprintf("biz-%d", i),
			City:      "Bengaluru",
			Data:      models.Document{"store": models.Document{"id": storeID}},
			Status:    "ok",
			StoreID:   fmt.Sprintf("s%d", i),
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		})
	}
	return records
}
