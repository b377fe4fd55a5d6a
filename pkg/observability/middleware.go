package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsMiddleware records vizlaunch_requests_total,
// vizlaunch_requests_in_flight and vizlaunch_request_duration_seconds for
// every request served by next. Method labels are lower case.
func MetricsMiddleware(next http.Handler) http.Handler {
	h := promhttp.InstrumentHandlerDuration(RequestDuration, next)
	h = promhttp.InstrumentHandlerCounter(RequestsTotal, h)
	return promhttp.InstrumentHandlerInFlight(RequestsInFlight, h)
}
