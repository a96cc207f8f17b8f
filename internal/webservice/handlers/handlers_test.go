package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/periscope/aggregator-api/internal/constants"
	"github.com/periscope/aggregator-api/internal/models"
	"github.com/periscope/aggregator-api/internal/webservice/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHandler(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	handlers.RootHandler(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code, "Unexpected status")
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), "Unexpected content type")
	assert.JSONEq(t, `{"message":"Welcome to Aggregator Data API"}`, rr.Body.String(), "Unexpected body")
}

func TestVersionHandler(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	handlers.VersionHandler(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code, "Unexpected status")
	assert.JSONEq(t, fmt.Sprintf(`{"version":%q}`, constants.Version), rr.Body.String(), "Unexpected body")
}

func TestSample(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		stored   int
		storeErr error

		wantStatus int
		wantLen    int
		wantBody   string
	}{
		"Empty store returns an empty array": {stored: 0, wantStatus: http.StatusOK, wantBody: "[]"},
		"Single record":                      {stored: 1, wantStatus: http.StatusOK, wantLen: 1},
		"Exactly the limit":                  {stored: 3, wantStatus: http.StatusOK, wantLen: 3},
		"Many records are capped":            {stored: 100, wantStatus: http.StatusOK, wantLen: 3},

		// Error cases
		"Store failure": {
			storeErr:   errors.New("server selection error: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"detail":"server selection error: connection refused"}`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := &fakeSampler{records: makeRecords(tc.stored), err: tc.storeErr}
			h := handlers.NewSample(store, constants.SampleLimit)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/aggregator-data", nil))

			require.Equal(t, tc.wantStatus, rr.Code, "Unexpected status")
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), "Unexpected content type")
			assert.Equal(t, int64(constants.SampleLimit), store.gotN, "Store should be asked for the sample limit")
			if tc.wantBody != "" {
				assert.JSONEq(t, tc.wantBody, rr.Body.String(), "Unexpected body")
				return
			}

			var got []map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got), "Body should be a JSON array")
			require.Len(t, got, tc.wantLen, "Unexpected number of records")
			for i, r := range got {
				assert.Equal(t, fmt.Sprintf("biz-%d", i), r["biz_id"], "Records should keep natural order")
				assert.Contains(t, r, "store_data_id", "Every record should carry the derived field")
			}
			assert.Nil(t, got[0]["store_data_id"], "Missing nested store id should be null")
			if tc.wantLen > 1 {
				assert.Equal(t, "store-1", got[1]["store_data_id"], "Nested store id should be exposed")
			}
			if tc.wantLen > 2 {
				assert.Equal(t, "42", got[2]["store_data_id"], "Numeric store id should be rendered as a string")
			}
		})
	}
}

type fakeSampler struct {
	records []models.AggregatorRecord
	err     error

	gotN int64
}

// Sample ignores n on purpose so that the handler cap is exercised.
func (f *fakeSampler) Sample(_ context.Context, n int64) ([]models.AggregatorRecord, error) {
	f.gotN = n
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

// makeRecords returns n records: the first without a store payload, the second with a string
// store id, and the others with numeric ids.
func makeRecords(n int) []models.AggregatorRecord {
	records := make([]models.AggregatorRecord, 0, n)
	for i := range n {
		r := models.AggregatorRecord{
			BizID:     fmt.Sprintf("biz-%d", i),
			City:      "Pune",
			Timestamp: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		}
		switch {
		case i == 1:
			r.Data = models.Document{"store": map[string]any{"id": "store-1"}}
		case i > 1:
			r.Data = models.Document{"store": map[string]any{"id": 42}}
		}
		records = append(records, r)
	}
	return records
}
