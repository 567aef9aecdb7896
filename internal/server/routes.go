package server

import (
	"net/http"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SetupRoutes mounts the record lookup behind the rate limiter. /metrics is
// left unlimited so scrapes never get a 429.
func SetupRoutes(recordService *RecordService, m *metrics.Metrics, gatherer prometheus.Gatherer, limiter *rate.Limiter, logger *zap.Logger) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /records/{category}/{recordId}", recordService.GetRecord)

	mux := http.NewServeMux()
	mux.Handle("/records/", countRequests(m, rateLimit(limiter, logger, api)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
