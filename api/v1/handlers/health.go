package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Pinger reports whether the backing database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthHandler(db Pinger, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			log.WithError(err).Warn("health check failed")
			SendJSON(w, healthResponse{
				Status:  "unavailable",
				Message: "Database is unreachable",
			}, http.StatusServiceUnavailable)
			return
		}

		SendJSON(w, healthResponse{
			Status:  "ok",
			Message: "fastzero API is running",
		}, http.StatusOK)
	}
}
