package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/periscope/aggregator-api/internal/models"
	"github.com/periscope/aggregator-api/internal/webservice/metrics"
)

// Sampler returns up to n records in natural order.
type Sampler interface {
	Sample(ctx context.Context, n int64) ([]models.AggregatorRecord, error)
}

// Sample serves a small sample of the aggregator records.
type Sample struct {
	store Sampler
	limit int64
}

// NewSample returns a handler listing at most limit records from store.
func NewSample(store Sampler, limit int64) *Sample {
	return &Sample{store: store, limit: limit}
}

// ServeHTTP lists the sample. Store failures are reported as {"detail": <error text>}.
func (h *Sample) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := uuid.NewString()

	records, err := h.store.Sample(r.Context(), h.limit)
	if err != nil {
		slog.Error("Failed to sample records", "req_id", reqID, "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	if int64(len(records)) > h.limit {
		records = records[:h.limit]
	}

	slog.Debug("Sampled records", "req_id", reqID, "count", len(records))
	WriteJSON(w, http.StatusOK, models.Responses(records))
}
