package handlers

import (
	"net/http"

	"github.com/periscope/aggregator-api/internal/constants"
	"github.com/periscope/aggregator-api/internal/webservice/metrics"
)

// RootHandler greets API clients.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	WriteJSON(w, http.StatusOK, map[string]string{"message": constants.WelcomeMessage})
}
