package rest

import (
	"net/http"
)

func (h *Handler) exportPayments(w http.ResponseWriter, r *http.Request) {
	req, err := ValidatePaymentsExportRequest(r)
	if err != nil {
		h.fail(w, r, "start export", err)
		return
	}

	exportID, err := h.exports.StartPaymentsExport(r.Context(), req.ToServiceRequest())
	if err != nil {
		h.fail(w, r, "start export", err)
		return
	}

	SuccessAccepted(w, "export queued", map[string]any{"export_id": exportID})
}
