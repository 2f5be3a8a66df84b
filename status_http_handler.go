package ocrsweep

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type SweepStatusHandler struct {
	progress *SweepProgress
}

func NewSweepStatusHandler(progress *SweepProgress) *SweepStatusHandler {
	return &SweepStatusHandler{progress: progress}
}

func (s *SweepStatusHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {

	log.Debug().Str("component", "STATUS_HTTP").Msg("serveHttp called")

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	js, err := json.Marshal(s.progress.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(js)
	if err != nil {
		log.Error().Err(err).Str("component", "STATUS_HTTP").Msg("could not write status")
	}
}

// NewStatusMux serves the sweep progress on /status and the metrics on /metrics
func NewStatusMux(progress *SweepProgress, metrics *SweepMetrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/status", metrics.InstrumentStatusHandler(NewSweepStatusHandler(progress)))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// StartStatusServer listens on port until ctx is done. Listener failures are
// logged, a sweep never depends on its status server.
func StartStatusServer(ctx context.Context, port uint, handler http.Handler) *http.Server {
	listenAddr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("component", "STATUS_HTTP").Str("listenAddr", listenAddr).Msg("Starting listener...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("component", "STATUS_HTTP").Msg("status server has failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("component", "STATUS_HTTP").Msg("status server shutdown")
		}
	}()

	return server
}
