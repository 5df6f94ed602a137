package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/saansook/saansook/internal/auth/store"
	"github.com/saansook/saansook/pkg/httpx"
	"github.com/saansook/saansook/pkg/slogx"
)

const readyzTimeout = 2 * time.Second

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// LivezHandler reports process liveness. It never touches downstream
// dependencies, so a wedged session store does not restart the process.
func LivezHandler(startTime time.Time, version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
		})
	})
}

// ReadyzHandler reports readiness to serve traffic. Login, verify and
// refresh all fail closed when the session store is down, so readiness
// is gated on a store ping.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			slogx.FromContext(r.Context()).Warn("readiness check failed",
				slog.String("error", err.Error()),
			)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:  "unavailable",
				Version: version,
				Uptime:  time.Since(startTime).Round(time.Second).String(),
			})
			return
		}

		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
		})
	})
}
