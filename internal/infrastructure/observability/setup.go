package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(serviceName string) (func(context.Context) error, http.Handler) {
	InitLogger()
	InitMetrics()
	tracerShutdown := InitTracing(serviceName)
	return tracerShutdown, promhttp.Handler()
}
