package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ticketwise/enhancer/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Admission *service.AdmissionService
	Jobs      *service.JobService

	// HealthChecks maps dependency names to pings for the readiness endpoint.
	HealthChecks map[string]func(ctx context.Context) error

	// MaxBodyBytes caps inbound webhook payload size.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	webhookHandlers := &WebhookHandlers{Admission: services.Admission, Logger: logger}
	jobHandlers := &JobHandlers{Svc: services.Jobs}
	healthHandlers := &HealthHandlers{Checks: services.HealthChecks}

	mux.HandleFunc("POST /webhook/agents/{tenant_scope}", webhookHandlers.Admit)
	mux.HandleFunc("GET /jobs/{execution_id}", jobHandlers.Status)
	mux.HandleFunc("GET /health", healthHandlers.Ready)
	mux.HandleFunc("GET /healthz", healthHandlers.Live)
	mux.HandleFunc("HEAD /healthz", healthHandlers.Live)

	var handler http.Handler = mux
	if services.MaxBodyBytes > 0 {
		handler = MaxBody(services.MaxBodyBytes)(handler)
	}
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
