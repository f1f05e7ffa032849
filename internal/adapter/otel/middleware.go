package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware traces mirror requests. Health checks are not traced and
// spans are named "mirror <METHOD> <path>".
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithFilter(traceMirrorRequest),
			otelhttp.WithSpanNameFormatter(mirrorSpanName),
		)
	}
}

func traceMirrorRequest(r *http.Request) bool {
	return r.URL.Path != "/healthz"
}

func mirrorSpanName(_ string, r *http.Request) string {
	return "mirror " + r.Method + " " + r.URL.Path
}
