package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"paytrack/internal/domain"
	"paytrack/internal/importer"
	"paytrack/internal/service"
	"paytrack/internal/validation"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type PaymentService interface {
	Create(ctx context.Context, raw validation.RawPayment) (domain.Payment, error)
	Get(ctx context.Context, id string) (domain.Payment, error)
	List(ctx context.Context, f service.ListFilter) ([]domain.Payment, error)
	Update(ctx context.Context, id string, raw validation.RawPayment) (domain.Payment, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
	UploadEvidence(ctx context.Context, id, filename, contentType string, data []byte) (domain.EvidenceFile, error)
	OpenEvidence(ctx context.Context, id string) (domain.EvidenceFile, io.ReadCloser, error)
}

type PaymentImporter interface {
	Import(ctx context.Context, rows []importer.Row, opts service.ImportOptions) (service.ImportReport, error)
}

type PaymentExporter interface {
	StartPaymentsExport(ctx context.Context, req service.ExportRequest) (string, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

const defaultMaxUploadBytes = 10 << 20

type Handler struct {
	payments   PaymentService
	imports    PaymentImporter
	exports    PaymentExporter
	exportList ExportListService
	health     HealthChecker
	maxUpload  int64
	log        *zap.Logger
}

func NewHandler(
	payments PaymentService,
	imports PaymentImporter,
	exports PaymentExporter,
	exportList ExportListService,
	health HealthChecker,
	maxUploadBytes int64,
	log *zap.Logger,
) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		payments:   payments,
		imports:    imports,
		exports:    exports,
		exportList: exportList,
		health:     health,
		maxUpload:  maxUploadBytes,
		log:        log,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	r.Get("/health", h.healthCheck)

	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/", h.createPayment)
		r.Delete("/", h.deleteAllPayments)
		r.Post("/import", h.importPayments)

		// older client paths
		r.Post("/upload/{id}", h.uploadEvidence)
		r.Get("/download/{id}", h.downloadEvidence)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getPayment)
			r.Put("/", h.updatePayment)
			r.Delete("/", h.deletePayment)
			r.Post("/evidence", h.uploadEvidence)
			r.Get("/evidence", h.downloadEvidence)
		})
	})

	r.Route("/export", func(r chi.Router) {
		r.Get("/", h.listExports)
		r.Get("/{export_id}", h.getExport)
		r.Post("/payments", h.exportPayments)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			ErrorUnavailable(w, "database unavailable")
			return
		}
	}
	Success(w, "ok", nil)
}

// fail writes the error response matching err.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errs, ok := validation.AsErrors(err); ok {
		ErrorUnprocessable(w, "validation failed", errs)
		return
	}

	var verr *ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		ErrorBadRequest(w, verr.Error())
	case errors.As(err, &tooLarge):
		ErrorTooLarge(w, "request body too large")
	case errors.Is(err, domain.ErrNotFound):
		ErrorNotFound(w, "not found")
	case errors.Is(err, domain.ErrPaymentLocked):
		ErrorConflict(w, err.Error())
	case errors.Is(err, domain.ErrUnsupportedMedia),
		errors.Is(err, domain.ErrEmptyFile),
		errors.Is(err, service.ErrNoColumns),
		errors.Is(err, importer.ErrUnsupportedFormat):
		ErrorBadRequest(w, err.Error())
	default:
		h.log.Error(op+" failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		ErrorInternal(w, op+" failed")
	}
}
