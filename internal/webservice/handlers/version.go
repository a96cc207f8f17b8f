package handlers

import (
	"net/http"

	"github.com/periscope/aggregator-api/internal/constants"
	"github.com/periscope/aggregator-api/internal/webservice/metrics"
)

// VersionHandler handles requests to the /version endpoint.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	WriteJSON(w, http.StatusOK, map[string]string{"version": constants.Version})
}
