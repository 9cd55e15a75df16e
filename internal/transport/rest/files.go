package rest

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"paytrack/internal/importer"
	"paytrack/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// multipart headers and boundaries on top of the file itself
const multipartOverhead = 1 << 20

type upload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload reads the "file" part of a multipart request, capped at the
// configured upload size.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload{}, err
		}
		return upload{}, &ValidationError{Field: "file", Message: "multipart form with a file is required"}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload{}, &ValidationError{Field: "file", Message: "file is required"}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return upload{}, err
	}
	if int64(len(data)) > h.maxUpload {
		return upload{}, &http.MaxBytesError{Limit: h.maxUpload}
	}

	return upload{
		filename:    filepath.Base(header.Filename),
		contentType: header.Header.Get("Content-Type"),
		data:        data,
	}, nil
}

func (h *Handler) uploadEvidence(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, "upload evidence", err)
		return
	}

	ev, err := h.payments.UploadEvidence(r.Context(), chi.URLParam(r, "id"), up.filename, up.contentType, up.data)
	if err != nil {
		h.fail(w, r, "upload evidence", err)
		return
	}

	Success(w, "evidence uploaded", ev)
}

func (h *Handler) downloadEvidence(w http.ResponseWriter, r *http.Request) {
	ev, body, err := h.payments.OpenEvidence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "download evidence", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", ev.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": ev.Filename}))
	if ev.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(ev.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn("evidence stream interrupted", zap.String("payment", ev.PaymentID), zap.Error(err))
	}
}

func (h *Handler) importPayments(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, "import payments", err)
		return
	}

	format, err := importer.DetectFormat(up.filename)
	if err != nil {
		h.fail(w, r, "import payments", err)
		return
	}

	rows, err := importer.Read(bytes.NewReader(up.data), format, importer.Options{Sheet: r.FormValue("sheet")})
	if err != nil {
		h.fail(w, r, "import payments", &ValidationError{Field: "file", Message: err.Error()})
		return
	}

	report, err := h.imports.Import(r.Context(), rows, service.ImportOptions{
		DryRun:   cast.ToBool(r.FormValue("dry_run")),
		ClientID: r.FormValue("client_id"),
		Source:   up.filename,
	})
	if err != nil {
		h.fail(w, r, "import payments", err)
		return
	}

	Success(w, "import finished", report)
}
