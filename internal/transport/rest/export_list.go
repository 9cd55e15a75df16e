package rest

import (
	"context"
	"net/http"
	"strings"

	"paytrack/internal/service"

	"github.com/go-chi/chi/v5"
)

type ExportListService interface {
	GetExports(ctx context.Context, clientID string) ([]service.JobView, error)
	GetExport(ctx context.Context, exportID, clientID string) (service.JobView, error)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	exports, err := h.exportList.GetExports(r.Context(), r.URL.Query().Get("client_id"))
	if err != nil {
		h.fail(w, r, "list exports", err)
		return
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	exportIDParam := chi.URLParam(r, "export_id")
	if exportIDParam == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}
	exportID := exportIDParam
	if !strings.Contains(exportID, ":") {
		exportID = "exports:" + exportIDParam
	}

	export, err := h.exportList.GetExport(r.Context(), exportID, r.URL.Query().Get("client_id"))
	if err != nil {
		h.fail(w, r, "get export", err)
		return
	}

	Success(w, "", export)
}
